// Package catalog aggregates parsed documents into the endpoint indices and
// tracks which shared data files each document depends on.
package catalog

import (
	"encoding/json"
	"slices"
	"strings"

	"github.com/samber/lo"

	"github.com/mark3labs/docweave/internal/source"
)

// Endpoint is one resolved API description. It is never modified after
// aggregation; the document tree and the endpoint table share the pointer.
type Endpoint struct {
	Name        string `json:"name"`
	Description string `json:"desc"`
	URL         string `json:"url"`
	Method      string `json:"method"`
	Auth        bool   `json:"auth"`
	BodyMode    string `json:"body_mode"`
	Body        any    `json:"body"`
	Query       any    `json:"query"`
	Response    any    `json:"response"`
	TestData    any    `json:"test_data"`
}

// Document summarizes one source document and its endpoints in declaration
// order.
type Document struct {
	Name        string      `json:"name"`
	Description string      `json:"desc"`
	Order       int64       `json:"order"`
	Path        string      `json:"path"`
	Endpoints   []*Endpoint `json:"endpoints"`
}

// EndpointTable maps URL then method to an endpoint. Later writes replace
// earlier ones. Method keys are upper case; the endpoint keeps the method as
// written.
type EndpointTable map[string]map[string]*Endpoint

func (t EndpointTable) Put(ep *Endpoint) {
	methods, ok := t[ep.URL]
	if !ok {
		methods = make(map[string]*Endpoint)
		t[ep.URL] = methods
	}
	methods[strings.ToUpper(ep.Method)] = ep
}

func (t EndpointTable) Get(url, method string) (*Endpoint, bool) {
	ep, ok := t[url][strings.ToUpper(method)]
	return ep, ok
}

// URLs returns the table's URLs sorted.
func (t EndpointTable) URLs() []string {
	urls := lo.Keys(t)
	slices.Sort(urls)
	return urls
}

// Methods returns the methods registered for url, sorted.
func (t EndpointTable) Methods(url string) []string {
	methods := lo.Keys(t[url])
	slices.Sort(methods)
	return methods
}

func (t EndpointTable) Len() int {
	n := 0
	for _, methods := range t {
		n += len(methods)
	}
	return n
}

// DependencyIndex maps a referenced source file to the documents whose
// resolved output depends on it. Entries are only ever added.
type DependencyIndex map[string]map[string]struct{}

// Add records that dependent was built from source. Empty sources (failed
// loads) and self references are ignored.
func (d DependencyIndex) Add(src, dependent string) {
	if src == "" || src == dependent {
		return
	}
	set, ok := d[src]
	if !ok {
		set = make(map[string]struct{})
		d[src] = set
	}
	set[dependent] = struct{}{}
}

// Dependents returns the documents depending on src, sorted.
func (d DependencyIndex) Dependents(src string) []string {
	deps := lo.Keys(d[source.NormalizePath(src)])
	slices.Sort(deps)
	return deps
}

// Sources returns every tracked source file, sorted.
func (d DependencyIndex) Sources() []string {
	srcs := lo.Keys(d)
	slices.Sort(srcs)
	return srcs
}

// Affected returns the documents that must be re-aggregated when the given
// paths change: the union of the dependents of every source at or below
// them.
func (d DependencyIndex) Affected(changed ...string) []string {
	var out []string
	for _, c := range changed {
		c = source.NormalizePath(c)
		for src := range d {
			if source.Covers(c, src) {
				out = append(out, d.Dependents(src)...)
			}
		}
	}
	out = lo.Uniq(out)
	slices.Sort(out)
	return out
}

func (d DependencyIndex) MarshalJSON() ([]byte, error) {
	flat := make(map[string][]string, len(d))
	for src := range d {
		flat[src] = d.Dependents(src)
	}
	return json.Marshal(flat)
}

// Skipped records a document left out of the build and why.
type Skipped struct {
	Path string `json:"path"`
	Err  error  `json:"-"`
}

func (s Skipped) MarshalJSON() ([]byte, error) {
	msg := ""
	if s.Err != nil {
		msg = s.Err.Error()
	}
	return json.Marshal(struct {
		Path  string `json:"path"`
		Error string `json:"error"`
	}{s.Path, msg})
}

// Catalog is the immutable result of one build pass.
type Catalog struct {
	Project      source.Settings `json:"project"`
	Documents    []*Document     `json:"documents"`
	Endpoints    EndpointTable   `json:"-"`
	Dependencies DependencyIndex `json:"dependencies"`
	Skipped      []Skipped       `json:"skipped,omitempty"`

	byPath map[string]*Document
}

// Document returns the summary for a document path.
func (c *Catalog) Document(p string) (*Document, bool) {
	doc, ok := c.byPath[source.NormalizePath(p)]
	return doc, ok
}
