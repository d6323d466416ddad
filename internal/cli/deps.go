package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mark3labs/docweave/internal/log"
)

var depsRunner = runDeps

func newDepsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deps <file>...",
		Short: "List the documents that depend on the given files",
		Long: "Deps builds the catalog and prints, for each file, the documents whose resolved " +
			"endpoints were built from it. These are the documents a change to the file affects.",
		Example: strings.TrimSpace(`  docweave deps _data/shared.json
  docweave deps --root ./docs _data/users.json _data/auth.json`),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, args)
			if err != nil {
				return err
			}
			return depsRunner(cmd.Context(), cfg)
		},
	}
	addProjectFlags(cmd)
	return cmd
}

func runDeps(ctx context.Context, cfg *Config) error {
	c, err := newCatalogBuilder(cfg, log.InitLogs(cfg.Verbose)).Build(ctx)
	if err != nil {
		return fmt.Errorf("deps: %w", err)
	}
	w := cfg.Stdout()
	for _, f := range cfg.Files {
		dependents := c.Dependencies.Dependents(f)
		fmt.Fprintf(w, "%s (%d):\n", f, len(dependents))
		for _, d := range dependents {
			fmt.Fprintf(w, "- %s\n", d)
		}
	}
	return nil
}
