package catalog

import (
	"cmp"
	"slices"

	"github.com/mark3labs/docweave/internal/source"
)

// Result is the per-document output of aggregation, kept in discovery order.
// Unresolved lists referenced files that could not be loaded; they are not
// dependencies, but their appearance must re-aggregate the document.
type Result struct {
	Path         string
	Document     *Document
	Dependencies []string
	Unresolved   []string
	Err          error
}

// Assemble exposes aggregated results as a Catalog. results must be in
// discovery order: endpoint table collisions resolve to the later document
// and equal orders keep discovery order.
func Assemble(project source.Settings, results []Result) *Catalog {
	c := &Catalog{
		Project:      project,
		Endpoints:    make(EndpointTable),
		Dependencies: make(DependencyIndex),
		byPath:       make(map[string]*Document, len(results)),
	}
	for _, r := range results {
		if r.Err != nil {
			c.Skipped = append(c.Skipped, Skipped{Path: r.Path, Err: r.Err})
			continue
		}
		if r.Document == nil {
			continue
		}
		c.Documents = append(c.Documents, r.Document)
		c.byPath[r.Path] = r.Document
		for _, ep := range r.Document.Endpoints {
			c.Endpoints.Put(ep)
		}
		for _, dep := range r.Dependencies {
			c.Dependencies.Add(dep, r.Path)
		}
	}
	slices.SortStableFunc(c.Documents, func(a, b *Document) int {
		return cmp.Compare(a.Order, b.Order)
	})
	return c
}
