package cli

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/oggyb/muzz-matching/internal/app"
	"github.com/oggyb/muzz-matching/internal/config"
	"github.com/oggyb/muzz-matching/internal/logger"
	"github.com/oggyb/muzz-matching/internal/service/matching"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	// Open builds the Core a command runs against and a func releasing it.
	// Defaults to the environment configuration; tests swap it.
	Open func(ctx context.Context, opts *RootOptions) (*matching.Core, func(), error)
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the matchctl CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{Open: openFromEnv})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "matchctl",
		Short: "matchctl - operate the matching core",
		Long:  "Maintenance commands for the matching core: seeding, reconciliation, sweeps and outbox dispatch.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewSeedCommand(opts))
	cmd.AddCommand(NewReconcileCommand(opts))
	cmd.AddCommand(NewSweepCommand(opts))
	cmd.AddCommand(NewDispatchCommand(opts))

	return cmd
}

func openFromEnv(ctx context.Context, opts *RootOptions) (*matching.Core, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	lc := logger.Config{
		Level:     cfg.Log.Level,
		Format:    logger.Format(cfg.Log.Format),
		Component: "matchctl",
	}
	if opts.Verbose {
		lc.Level = slog.LevelDebug.String()
	}
	appCtx, closeFn, err := app.Bootstrap(ctx, cfg, logger.New(lc))
	if err != nil {
		return nil, nil, err
	}
	return matching.NewCore(appCtx), closeFn, nil
}
