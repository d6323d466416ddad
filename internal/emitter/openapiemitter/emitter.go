package openapiemitter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/mark3labs/docweave/internal/catalog"
	"github.com/mark3labs/docweave/internal/emitter"
	"github.com/mark3labs/docweave/internal/log"
)

// Output formats.
const (
	FormatYAML = "yaml"
	FormatJSON = "json"
)

// DefaultVersion is used for info.version when Options.Version is empty.
const DefaultVersion = "1.0.0"

// Options controls how the OpenAPI emitter renders a catalog.
type Options struct {
	OutDir  string // required; target directory
	Format  string // yaml (default) or json
	Version string // info.version
	Force   bool   // overwrite a non-empty directory
	DryRun  bool   // don't write, only plan
	Verbose bool
	Logger  logrus.FieldLogger
}

// Result returns the generated document and the planned files.
type Result struct {
	Document *openapi3.T
	Planned  []emitter.PlannedFile
}

// Emit converts the catalog's endpoint table into an OpenAPI 3 document and
// writes it as openapi.yaml or openapi.json. Validation problems are logged,
// not returned.
func Emit(ctx context.Context, c *catalog.Catalog, opts Options) (*Result, error) {
	if c == nil {
		return nil, fmt.Errorf("openapiemitter: nil Catalog")
	}
	if strings.TrimSpace(opts.OutDir) == "" {
		return nil, fmt.Errorf("openapiemitter: OutDir is required")
	}
	format := strings.ToLower(strings.TrimSpace(opts.Format))
	if format == "" {
		format = FormatYAML
	}
	if format != FormatYAML && format != FormatJSON {
		return nil, fmt.Errorf("openapiemitter: unsupported format %q", opts.Format)
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Discard()
	}

	doc := Build(c, opts.Version, logger)
	if err := doc.Validate(ctx, openapi3.DisableExamplesValidation()); err != nil {
		logger.WithError(err).Warn("generated OpenAPI document does not validate")
	}
	data, err := Render(doc, format)
	if err != nil {
		return nil, fmt.Errorf("openapiemitter: %w", err)
	}

	files := map[string][]byte{"openapi." + format: data}
	if !opts.DryRun {
		if err := emitter.WriteFiles(opts.OutDir, files, opts.Force); err != nil {
			return nil, fmt.Errorf("openapiemitter: %w", err)
		}
	}
	return &Result{Document: doc, Planned: emitter.Plan(files)}, nil
}

// Render encodes doc as indented JSON or block style YAML.
func Render(doc *openapi3.T, format string) ([]byte, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	if format == FormatJSON {
		return append(data, '\n'), nil
	}
	// Going through a yaml.Node keeps the JSON key order.
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("convert to yaml: %w", err)
	}
	blockStyle(&node)
	out, err := yaml.Marshal(&node)
	if err != nil {
		return nil, fmt.Errorf("marshal yaml: %w", err)
	}
	return out, nil
}

func blockStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		blockStyle(c)
	}
}
