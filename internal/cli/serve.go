package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mark3labs/docweave/internal/log"
	"github.com/mark3labs/docweave/internal/server"
)

var serveRunner = runServe

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the catalog over HTTP",
		Long: "Serve builds the catalog and exposes it as JSON under /api, with Prometheus metrics " +
			"on /metrics. With --watch, file changes trigger an incremental rebuild of the affected documents.",
		Example: strings.TrimSpace(`  docweave serve --root ./docs --watch
  docweave serve --addr 127.0.0.1:9000`),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, args)
			if err != nil {
				return err
			}
			return serveRunner(cmd.Context(), cfg)
		},
	}
	addProjectFlags(cmd)
	flags := cmd.Flags()
	flags.String("addr", "", "Listen address (default :8080)")
	flags.Bool("watch", false, "Rebuild affected documents when files change")
	flags.Duration("debounce", 0, "Quiet period before a watched change triggers a rebuild (default 200ms)")
	return cmd
}

func runServe(ctx context.Context, cfg *Config) error {
	logger := log.InitLogs(cfg.Verbose)
	srv := server.New(newCatalogBuilder(cfg, logger), logger)
	if err := srv.Rebuild(ctx); err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(ctx, cfg.Addr) })
	if cfg.Watch {
		g.Go(func() error { return srv.Watch(ctx, cfg.Root, cfg.Debounce, nil) })
	}
	return g.Wait()
}
