package compose

import (
	"github.com/sirupsen/logrus"

	"github.com/mark3labs/docweave/internal/log"
)

const globalSection = "api"

// FieldResolver looks up endpoint scalar fields in the entry itself, then the
// entry's referenced fragment, then globals["api"], then the caller default.
// It never fails.
type FieldResolver struct {
	globals any
	log     logrus.FieldLogger
}

func NewFieldResolver(globals any, logger logrus.FieldLogger) *FieldResolver {
	if logger == nil {
		logger = log.Discard()
	}
	section, _ := field(globals, globalSection)
	return &FieldResolver{globals: section, log: logger}
}

func (r *FieldResolver) sources(local, fragment any) [3]any {
	return [3]any{local, fragment, r.globals}
}

// String returns the first present value for key, stringified when it is not
// already a string.
func (r *FieldResolver) String(key, def string, local, fragment any) string {
	for _, src := range r.sources(local, fragment) {
		if v, ok := field(src, key); ok {
			return Stringify(v)
		}
	}
	return def
}

// Bool returns the first present boolean value for key. Present values of any
// other type are reported and skipped.
func (r *FieldResolver) Bool(key string, def bool, local, fragment any) bool {
	for _, src := range r.sources(local, fragment) {
		v, ok := field(src, key)
		if !ok {
			continue
		}
		if b, ok := v.(bool); ok {
			return b
		}
		report(r.log, &Error{Code: TypeMismatch, Message: "value is not a bool", Pointer: key})
	}
	return def
}

// WithLogger returns a copy of r that reports diagnostics to logger.
func (r *FieldResolver) WithLogger(logger logrus.FieldLogger) *FieldResolver {
	c := *r
	c.log = logger
	return &c
}
