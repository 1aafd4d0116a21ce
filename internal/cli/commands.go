package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/oggyb/muzz-matching/internal/seed"
	"github.com/oggyb/muzz-matching/internal/worker"
)

type SeedOptions struct {
	*RootOptions
	Users      int
	Candidates int
	Seed       int64
	Reset      bool
}

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SeedOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Populate the database with a demo dataset",
		Long: `Create a daily match set per demo user and drive likes, matches and
messages through the matching workflow.

Examples:
  matchctl seed
  matchctl seed --users 50 --candidates 10 --seed 42 --reset`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			core, closeFn, err := opts.Open(cmd.Context(), opts.RootOptions)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to open matching core", err)
			}
			defer closeFn()

			sum, err := seed.Run(cmd.Context(), core, seed.Options{
				Users:      opts.Users,
				Candidates: opts.Candidates,
				Seed:       opts.Seed,
				Reset:      opts.Reset,
			})
			if err != nil {
				return WrapExitError(ExitFailure, "seeding failed", err)
			}
			return render(cmd.OutOrStdout(), opts.RootOptions, sum, func(w io.Writer) {
				fmt.Fprintf(w, "Seeded %d users, %d match sets, %d actions, %d matches (%d unmatched), %d messages.\n",
					sum.Users, sum.MatchSets, sum.Actions, sum.Matches, sum.Unmatched, sum.Messages)
			})
		},
	}

	cmd.Flags().IntVar(&opts.Users, "users", 20, "number of demo users")
	cmd.Flags().IntVar(&opts.Candidates, "candidates", 8, "candidates per daily match set")
	cmd.Flags().Int64Var(&opts.Seed, "seed", 0, "random seed (0 = time based)")
	cmd.Flags().BoolVar(&opts.Reset, "reset", false, "delete all existing data first")

	return cmd
}

type ReconcileOptions struct {
	*RootOptions
	UserID string
}

// NewReconcileCommand creates the reconcile command.
func NewReconcileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReconcileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Rebuild aggregates from the authoritative records",
		Long: `Recompute UserActivity and UserMatches from actions, matches, match sets
and messages, and overwrite any drifted aggregate.

Exit codes:
  0 - done (drift, if any, was repaired)
  1 - one or more users failed
  2 - command error

Examples:
  matchctl reconcile
  matchctl reconcile --user user7 --format json`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			core, closeFn, err := opts.Open(cmd.Context(), opts.RootOptions)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to open matching core", err)
			}
			defer closeFn()

			if opts.UserID != "" {
				report, err := core.Reconciler.ReconcileUser(cmd.Context(), opts.UserID)
				if err != nil {
					return WrapExitError(ExitFailure, "reconcile failed", err)
				}
				return render(cmd.OutOrStdout(), opts.RootOptions, report, func(w io.Writer) {
					fmt.Fprintf(w, "User %s: activity drift=%t, matches drift=%t, actions absorbed=%d\n",
						report.UserID, report.ActivityDrift, report.MatchesDrift, report.ActionsMarked)
				})
			}

			report, err := core.Reconciler.Run(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "reconcile failed", err)
			}
			if err := render(cmd.OutOrStdout(), opts.RootOptions, report, func(w io.Writer) {
				fmt.Fprintf(w, "Reconciled %d users: %d drifted, %d failed\n", report.Users, report.Drifted, report.Failed)
			}); err != nil {
				return err
			}
			if report.Failed > 0 {
				return WrapExitError(ExitFailure, fmt.Sprintf("%d users failed to reconcile", report.Failed), nil)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.UserID, "user", "", "reconcile a single user")

	return cmd
}

// NewSweepCommand creates the sweep command.
func NewSweepCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "sweep",
		Short:        "Archive conversations idle past MATCHING_AUTO_ARCHIVE_AFTER",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			core, closeFn, err := rootOpts.Open(cmd.Context(), rootOpts)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to open matching core", err)
			}
			defer closeFn()

			n, err := worker.NewScheduler(core.App(), core).Sweep(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "sweep failed", err)
			}
			return render(cmd.OutOrStdout(), rootOpts, map[string]int64{"archived": n}, func(w io.Writer) {
				fmt.Fprintf(w, "Archived %d conversations\n", n)
			})
		},
	}
	return cmd
}

// NewDispatchCommand creates the dispatch command, a single outbox cycle.
func NewDispatchCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "dispatch",
		Short:        "Run one dispatcher cycle over pending projections",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			core, closeFn, err := rootOpts.Open(cmd.Context(), rootOpts)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to open matching core", err)
			}
			defer closeFn()

			stats, err := worker.NewDispatcher(core.App(), core).ProcessOnce(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "dispatch failed", err)
			}
			return render(cmd.OutOrStdout(), rootOpts, stats, func(w io.Writer) {
				fmt.Fprintf(w, "Projected %d events (%d failed), %d actions, %d messages\n",
					stats.Events, stats.EventsFailed, stats.Actions, stats.Messages)
			})
		},
	}
	return cmd
}
