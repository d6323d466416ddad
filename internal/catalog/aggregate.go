package catalog

import (
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/mohae/deepcopy"
	"github.com/sirupsen/logrus"

	"github.com/mark3labs/docweave/internal/compose"
	"github.com/mark3labs/docweave/internal/log"
)

// Defaults for endpoint fields absent from the entry, its fragment and the
// global settings.
const (
	DefaultMethod   = "GET"
	DefaultBodyMode = "json"
)

// Aggregator turns one parsed document into a Document summary.
type Aggregator struct {
	merger       *compose.Merger
	fields       *compose.FieldResolver
	log          logrus.FieldLogger
	extension    string
	settingsFile string
	dataDir      string
}

// IsCandidate reports whether p should be aggregated as a document. Shared
// data files and the settings file are reference sources only.
func (a *Aggregator) IsCandidate(p string) bool {
	if !strings.HasSuffix(p, a.extension) {
		return false
	}
	if path.Base(p) == a.settingsFile {
		return false
	}
	dir := path.Dir(p)
	if dir == "." {
		return true
	}
	for _, seg := range strings.Split(dir, "/") {
		if seg == a.dataDir {
			return false
		}
	}
	return true
}

// Aggregate builds the summary for the document at docPath along with the
// files its endpoints were resolved from. Only a malformed document sets
// Err; every other problem is logged and degrades to defaults.
func (a *Aggregator) Aggregate(docPath string, root any) Result {
	res := Result{Path: docPath}
	obj, ok := root.(map[string]any)
	if !ok {
		res.Err = &compose.Error{Code: compose.MalformedDocument, Message: "document root is not an object", Location: docPath}
		return res
	}

	doc := &Document{Name: docPath, Path: docPath}
	if v, ok := obj["name"]; ok {
		doc.Name = compose.Stringify(v)
	}
	if v, ok := obj["desc"]; ok {
		doc.Description = compose.Stringify(v)
	}
	if v, ok := obj["order"]; ok {
		order, err := parseOrder(v)
		if err != nil {
			res.Err = &compose.Error{Code: compose.MalformedDocument, Message: "order is not an integer", Location: docPath, Pointer: compose.Stringify(v), Cause: err}
			return res
		}
		doc.Order = order
	}

	logger := log.WithDocument(docPath, a.log)
	merger := a.merger.WithLogger(logger)
	fields := a.fields.WithLogger(logger)
	scope := compose.NewScope(docPath, root)
	scope.Unresolved = &res.Unresolved

	var entries []any
	switch apis := obj["api"].(type) {
	case nil:
	case []any:
		entries = apis
	default:
		logger.Warn("api is not an array, document has no endpoints")
	}

	doc.Endpoints = make([]*Endpoint, 0, len(entries))
	for i, raw := range entries {
		entry, ok := raw.(map[string]any)
		if !ok {
			logger.WithField("index", i).Warn("api entry is not an object, skipped")
			continue
		}
		ep, epDeps := endpoint(entry, docPath, scope, merger, fields, logger)
		res.Dependencies = append(res.Dependencies, epDeps...)
		doc.Endpoints = append(doc.Endpoints, ep)
	}
	res.Document = doc
	return res
}

func endpoint(entry map[string]any, docPath string, scope compose.Scope, merger *compose.Merger, fields *compose.FieldResolver, logger logrus.FieldLogger) (*Endpoint, []string) {
	var (
		frag any
		deps []string
	)
	if raw, ok := entry["$ref"]; ok {
		if ref, ok := raw.(string); ok {
			f, d := merger.Fragment(ref, scope)
			deps = append(deps, d...)
			if f.Found {
				if _, isObj := f.Value.(map[string]any); !isObj {
					logger.WithField("ref", ref).Warn("api entry reference is not an object")
				}
				frag = f.Value
			}
		} else {
			logger.Warn("api entry $ref is not a string")
		}
	}

	ep := &Endpoint{
		Name:        fields.String("name", docPath, entry, frag),
		Description: fields.String("desc", "", entry, frag),
		URL:         fields.String("url", "", entry, frag),
		Method:      fields.String("method", DefaultMethod, entry, frag),
		BodyMode:    fields.String("body_mode", DefaultBodyMode, entry, frag),
		Auth:        fields.Bool("auth", false, entry, frag),
	}

	var d []string
	d, ep.Body = merger.Merge(pick("body", entry, frag), scope)
	deps = append(deps, d...)
	d, ep.Query = merger.Merge(pick("query", entry, frag), scope)
	deps = append(deps, d...)
	d, ep.Response = merger.Merge(pick("response", entry, frag), scope)
	deps = append(deps, d...)

	ep.TestData = deepcopy.Copy(pick("test_data", entry, frag))
	return ep, deps
}

// pick returns entry[key], falling back to the fragment's field.
func pick(key string, entry map[string]any, frag any) any {
	if v, ok := entry[key]; ok {
		return v
	}
	if f, ok := frag.(map[string]any); ok {
		return f[key]
	}
	return nil
}

func parseOrder(v any) (int64, error) {
	n, ok := v.(json.Number)
	if !ok {
		return 0, fmt.Errorf("expected integer, got %T", v)
	}
	return n.Int64()
}
