package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mark3labs/docweave/internal/catalog"
	"github.com/mark3labs/docweave/internal/emitter"
	"github.com/mark3labs/docweave/internal/emitter/jsonemitter"
	"github.com/mark3labs/docweave/internal/emitter/openapiemitter"
	"github.com/mark3labs/docweave/internal/log"
)

var buildRunner = runBuild

func newBuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Resolve every document under the project root and write the indices",
		Long: "Build walks the project root, resolves $ref, $exclude and template variables in every " +
			"document, and writes the resulting endpoint catalog as JSON or as an OpenAPI document.",
		Example: strings.TrimSpace(`  docweave build --root ./docs --out ./dist
  docweave build --format openapi --openapi-format json
  docweave --config docweave.yaml build --dry-run`),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, args)
			if err != nil {
				return err
			}
			return buildRunner(cmd.Context(), cfg)
		},
	}

	addProjectFlags(cmd)
	flags := cmd.Flags()
	flags.String("out", "", "Output directory (default dist)")
	flags.String("format", "", "Output format (json|openapi); defaults to json")
	flags.String("openapi-format", "", "OpenAPI encoding (yaml|json); defaults to yaml")
	flags.Bool("dry-run", false, "Preview planned outputs without writing files")
	flags.Bool("force", false, "Overwrite a non-empty output directory")
	return cmd
}

// addProjectFlags registers the flags shared by every command that builds a
// catalog.
func addProjectFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.String("root", "", "Project root directory (default .)")
	flags.String("data-dir", "", "Shared data directory name (default _data)")
	flags.String("settings-file", "", "Project settings file name (default _settings.json)")
	flags.Int("workers", 0, "Concurrent document workers (default GOMAXPROCS)")
	flags.Int("max-ref-depth", 0, "Maximum nested $ref depth (default 32)")
	flags.Duration("cache-ttl", 0, "How long parsed reference files are reused; 0 keeps them for the whole pass")
}

func newCatalogBuilder(cfg *Config, logger logrus.FieldLogger) *catalog.Builder {
	return catalog.NewBuilder(os.DirFS(cfg.Root), logger, cfg.builderOptions()...)
}

func runBuild(ctx context.Context, cfg *Config) error {
	logger := log.InitLogs(cfg.Verbose)
	c, err := newCatalogBuilder(cfg, logger).Build(ctx)
	if err != nil {
		return fmt.Errorf("build: %w", err)
	}

	absOut := cfg.Out
	if ap, err := filepath.Abs(cfg.Out); err == nil {
		absOut = ap
	}

	var planned []emitter.PlannedFile
	switch cfg.Format {
	case FormatJSON:
		res, err := jsonemitter.Emit(ctx, c, jsonemitter.Options{
			OutDir:  cfg.Out,
			Force:   cfg.Force,
			DryRun:  cfg.DryRun,
			Verbose: cfg.Verbose,
		})
		if err != nil {
			return wrapOutputError(err, absOut)
		}
		planned = res.Planned
	case FormatOpenAPI:
		res, err := openapiemitter.Emit(ctx, c, openapiemitter.Options{
			OutDir:  cfg.Out,
			Format:  cfg.OpenAPIFormat,
			Force:   cfg.Force,
			DryRun:  cfg.DryRun,
			Verbose: cfg.Verbose,
			Logger:  logger,
		})
		if err != nil {
			return wrapOutputError(err, absOut)
		}
		planned = res.Planned
	default:
		return usageErrorf("build: unsupported --format %q (allowed: json, openapi)", cfg.Format)
	}

	w := cfg.Stdout()
	if cfg.DryRun {
		printPlan(w, absOut, lo.Map(planned, func(p emitter.PlannedFile, _ int) string { return p.RelPath }))
	}
	fmt.Fprintf(w, "Built %d documents, %d endpoints", len(c.Documents), c.Endpoints.Len())
	if len(c.Skipped) > 0 {
		fmt.Fprintf(w, " (%d skipped)", len(c.Skipped))
	}
	fmt.Fprintln(w)
	return nil
}

func printPlan(w io.Writer, outDir string, relPaths []string) {
	fmt.Fprintf(w, "Planned writes to %s (%d files):\n", outDir, len(relPaths))
	for _, p := range relPaths {
		fmt.Fprintf(w, "- %s\n", p)
	}
}

func wrapOutputError(err error, outDir string) error {
	msg := err.Error()
	lower := strings.ToLower(msg)
	if strings.Contains(lower, "permission") || strings.Contains(lower, "read-only") || strings.Contains(lower, "mkdir") || strings.Contains(lower, "rename") || strings.Contains(lower, "output directory") {
		return usageErrorf("output error for %s: %s\nHint: choose a different --out or use --force when appropriate.", outDir, msg)
	}
	return err
}
