package jsonemitter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/docweave/internal/catalog"
	"github.com/mark3labs/docweave/internal/emitter"
)

// Output file names.
const (
	CatalogFile      = "catalog.json"
	EndpointsFile    = "endpoints.json"
	DependenciesFile = "dependencies.json"
)

// Options controls how the JSON emitter writes a catalog.
type Options struct {
	OutDir  string // required; target directory
	Force   bool   // overwrite a non-empty directory
	DryRun  bool   // don't write, only plan
	Verbose bool
}

// Result returns the planned files.
type Result struct {
	Planned []emitter.PlannedFile
}

// Emit writes the catalog as three JSON files: the project and document tree,
// the endpoint table keyed by URL then method, and the dependency index.
func Emit(ctx context.Context, c *catalog.Catalog, opts Options) (*Result, error) {
	_ = ctx
	if c == nil {
		return nil, fmt.Errorf("jsonemitter: nil Catalog")
	}
	if strings.TrimSpace(opts.OutDir) == "" {
		return nil, fmt.Errorf("jsonemitter: OutDir is required")
	}

	files, err := Render(c)
	if err != nil {
		return nil, err
	}
	if !opts.DryRun {
		if err := emitter.WriteFiles(opts.OutDir, files, opts.Force); err != nil {
			return nil, fmt.Errorf("jsonemitter: %w", err)
		}
	}
	return &Result{Planned: emitter.Plan(files)}, nil
}

// Render encodes the catalog into file contents keyed by relative path.
func Render(c *catalog.Catalog) (map[string][]byte, error) {
	parts := map[string]any{
		CatalogFile:      c,
		EndpointsFile:    c.Endpoints,
		DependenciesFile: c.Dependencies,
	}
	files := make(map[string][]byte, len(parts))
	for name, v := range parts {
		data, err := encode(v)
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", name, err)
		}
		files[name] = data
	}
	return files, nil
}

func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
