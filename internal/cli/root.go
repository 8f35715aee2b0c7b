package cli

import (
	"errors"

	"github.com/spf13/cobra"
)

var (
	// Version is set at build time via ldflags.
	Version = "dev"
)

// NewRootCommand builds calltrackctl. open is called once, before the selected subcommand runs.
func NewRootCommand(open Opener) *cobra.Command {
	var app *App

	rootCmd := &cobra.Command{
		Use:     "calltrackctl",
		Short:   "Call tracking statistics maintenance",
		Long:    `Recompute tenant statistics, backfill them across tenants and inspect stored snapshots.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a, err := open(cmd.Context())
			if err != nil {
				return err
			}
			if a.Out == nil {
				a.Out = cmd.OutOrStdout()
			}
			app = a
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if app == nil || app.Store == nil {
				return nil
			}
			return app.Store.Close()
		},
		SilenceUsage: true,
	}

	current := func() (*App, error) {
		if app == nil {
			return nil, errors.New("calltrackctl: not initialized")
		}
		return app, nil
	}

	rootCmd.AddCommand(
		newRecomputeCommand(current),
		newBackfillCommand(current),
		newStatsCommand(current),
		newEventsCommand(current),
	)
	return rootCmd
}
