// Package compose resolves $ref fragments inside structured documents and
// merges them by precedence: local field, then referenced fragment, then
// global default.
//
// Structured values are the shapes produced by source.Parse: nil, bool,
// json.Number, string, map[string]any and []any.
package compose

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	refKey     = "$ref"
	excludeKey = "$exclude"
	defineKey  = "define"
)

// Scope identifies the document a value was read from. Relative references
// and template variables are resolved against it.
type Scope struct {
	Path    string
	Defines map[string]string
	// Unresolved, when set, collects the resolved paths of referenced files
	// that could not be loaded. A scope must not be shared across goroutines
	// while it is set.
	Unresolved *[]string
}

// NewScope builds the scope for a parsed document, reading its define map.
func NewScope(docPath string, root any) Scope {
	s := Scope{Path: docPath}
	obj, ok := root.(map[string]any)
	if !ok {
		return s
	}
	defs, ok := obj[defineKey].(map[string]any)
	if !ok {
		return s
	}
	s.Defines = make(map[string]string, len(defs))
	for k, v := range defs {
		s.Defines[k] = Stringify(v)
	}
	return s
}

// Stringify renders a structured value as text: strings verbatim, numbers in
// their source form, everything else as compact JSON.
func Stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		if val {
			return "true"
		}
		return "false"
	case nil:
		return "null"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// Lookup returns the value at a dotted path of object keys. An empty path
// returns root itself.
func Lookup(root any, dotted string) (any, bool) {
	if dotted == "" {
		return root, true
	}
	cur := root
	for _, seg := range strings.Split(dotted, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func field(v any, key string) (any, bool) {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	val, ok := obj[key]
	return val, ok
}
