package cli

import (
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func newEventsCommand(app func() (*App, error)) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "events <tenant-id>",
		Short: "Show the newest recompute journal entries of a tenant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app()
			if err != nil {
				return err
			}
			events, err := a.Journal.List(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}

			table := tablewriter.NewWriter(a.Out)
			table.SetHeader([]string{"At", "Type", "Source", "Took", "Call", "Message"})
			table.SetBorder(true)
			table.SetAlignment(tablewriter.ALIGN_LEFT)
			for _, e := range events {
				table.Append([]string{
					e.CreatedAt.UTC().Format(time.RFC3339),
					string(e.Type),
					e.Source,
					strconv.FormatInt(e.DurationMillis, 10) + "ms",
					e.CallID,
					e.Message,
				})
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum entries to show")
	return cmd
}
