package compose

import (
	"errors"
	"maps"
	"regexp"
	"slices"
	"strings"

	"github.com/mohae/deepcopy"
	"github.com/sirupsen/logrus"

	"github.com/mark3labs/docweave/internal/log"
)

// DefaultMaxDepth bounds nested $ref expansion. Deep but acyclic chains past
// this are treated like cycles.
const DefaultMaxDepth = 32

var templateVar = regexp.MustCompile(`\$\w+`)

// MergerSettings configures the merger.
type MergerSettings struct {
	MaxDepth int
}

// MergerOption mutates MergerSettings.
type MergerOption func(*MergerSettings)

func WithMaxDepth(n int) MergerOption { return func(s *MergerSettings) { s.MaxDepth = n } }

// Merger expands $ref, $exclude and template variables inside a value tree
// and reports the files the result was built from. It never mutates its
// input or the loader's cached values, so one Merger may be shared by
// concurrent builds.
type Merger struct {
	loader   *Loader
	log      logrus.FieldLogger
	settings MergerSettings
}

func NewMerger(loader *Loader, logger logrus.FieldLogger, opts ...MergerOption) *Merger {
	settings := MergerSettings{MaxDepth: DefaultMaxDepth}
	for _, opt := range opts {
		opt(&settings)
	}
	if settings.MaxDepth <= 0 {
		settings.MaxDepth = DefaultMaxDepth
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Merger{loader: loader, log: logger, settings: settings}
}

// WithLogger returns a copy of m that reports diagnostics to logger.
func (m *Merger) WithLogger(logger logrus.FieldLogger) *Merger {
	c := *m
	c.log = logger
	return &c
}

// Substitute replaces the first $NAME token in ref with its value from
// scope. The rest of ref is kept verbatim, and an undefined first token
// leaves ref unchanged.
func (m *Merger) Substitute(ref string, scope Scope) string {
	if len(scope.Defines) == 0 {
		return ref
	}
	loc := templateVar.FindStringIndex(ref)
	if loc == nil {
		return ref
	}
	v, ok := scope.Defines[ref[loc[0]+1:loc[1]]]
	if !ok {
		return ref
	}
	return ref[:loc[0]] + v + ref[loc[1]:]
}

// Fragment loads the target of an entry level $ref without merging it. The
// returned dependency list always has one element, the resolved source,
// which is empty when the file could not be loaded.
func (m *Merger) Fragment(ref string, scope Scope) (Fragment, []string) {
	frag := m.load(m.Substitute(ref, scope), scope)
	return frag, []string{frag.Source}
}

// Merge resolves every reference inside value. Arrays are templates: only
// their first element is kept and resolved.
func (m *Merger) Merge(value any, scope Scope) ([]string, any) {
	return m.merge(value, scope, nil)
}

func (m *Merger) merge(value any, scope Scope, chain []string) ([]string, any) {
	switch v := value.(type) {
	case map[string]any:
		return m.mergeObject(v, scope, chain)
	case []any:
		if len(v) == 0 {
			report(m.log, &Error{Code: EmptyTemplate, Message: "array template is empty", Location: scope.Path})
			return nil, v
		}
		deps, item := m.merge(v[0], scope, chain)
		return deps, []any{item}
	default:
		return nil, value
	}
}

func (m *Merger) mergeObject(obj map[string]any, scope Scope, chain []string) ([]string, map[string]any) {
	var deps []string
	result := make(map[string]any, len(obj))

	if raw, ok := obj[refKey]; ok {
		if ref, ok := raw.(string); ok {
			deps, result = m.expand(ref, obj[excludeKey], scope, chain)
		} else {
			report(m.log, &Error{Code: TypeMismatch, Message: "$ref is not a string", Location: scope.Path, Pointer: Stringify(raw)})
		}
	}

	for _, k := range slices.Sorted(maps.Keys(obj)) {
		if k == refKey || k == excludeKey {
			continue
		}
		nested, merged := m.merge(obj[k], scope, chain)
		deps = append(deps, nested...)
		result[k] = merged
	}
	return deps, result
}

// expand builds the base object for a $ref: the referenced fragment minus
// excluded fields, itself fully merged. Local sibling fields are overlaid by
// the caller.
func (m *Merger) expand(ref string, exclude any, scope Scope, chain []string) ([]string, map[string]any) {
	pointer := m.Substitute(ref, scope)
	file, sub, _ := strings.Cut(pointer, ":")
	target := m.loader.ResolvePath(file, scope.Path)
	key := target + "#" + sub

	if slices.Contains(chain, key) || len(chain) >= m.settings.MaxDepth {
		msg := "reference cycle"
		if !slices.Contains(chain, key) {
			msg = "reference depth limit exceeded"
		}
		report(m.log, &Error{Code: CircularReference, Message: msg, Location: scope.Path, Pointer: pointer})
		return []string{target}, map[string]any{}
	}

	frag := m.load(pointer, scope)
	deps := []string{frag.Source}

	base := map[string]any{}
	if frag.Found {
		if obj, ok := frag.Value.(map[string]any); ok {
			base = deepcopy.Copy(obj).(map[string]any)
		} else {
			report(m.log, &Error{Code: TypeMismatch, Message: "referenced value is not an object", Location: scope.Path, Pointer: pointer})
		}
	}
	m.applyExclude(base, exclude, scope)

	next := append(chain[:len(chain):len(chain)], key)
	nested, merged := m.mergeObject(base, scope, next)
	return append(deps, nested...), merged
}

// applyExclude removes top level keys named in $exclude. Dotted names are
// accepted but not applied to nested objects.
func (m *Merger) applyExclude(base map[string]any, exclude any, scope Scope) {
	if exclude == nil {
		return
	}
	names, ok := exclude.([]any)
	if !ok {
		report(m.log, &Error{Code: TypeMismatch, Message: "$exclude is not an array", Location: scope.Path})
		return
	}
	for _, n := range names {
		name, ok := n.(string)
		if !ok {
			report(m.log, &Error{Code: TypeMismatch, Message: "$exclude entry is not a string", Location: scope.Path, Pointer: Stringify(n)})
			continue
		}
		if strings.Contains(name, ".") {
			m.log.WithField("field", name).Debug("nested $exclude path ignored")
			continue
		}
		delete(base, name)
	}
}

func (m *Merger) load(pointer string, scope Scope) Fragment {
	frag, err := m.loader.Load(pointer, scope.Path)
	if err != nil {
		if scope.Unresolved != nil {
			file, _, _ := strings.Cut(pointer, ":")
			if target := m.loader.ResolvePath(file, scope.Path); target != "" {
				*scope.Unresolved = append(*scope.Unresolved, target)
			}
		}
		var cerr *Error
		if errors.As(err, &cerr) {
			report(m.log, cerr)
		} else {
			m.log.WithError(err).Warn("load reference")
		}
		return frag
	}
	if !frag.Found {
		report(m.log, &Error{Code: UnresolvableReference, Message: "no value at reference path", Location: scope.Path, Pointer: pointer})
	}
	return frag
}
