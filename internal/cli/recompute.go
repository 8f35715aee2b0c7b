package cli

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"calltrack/internal/recompute"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

var errSomeFailed = fmt.Errorf("one or more tenants failed")

func newRecomputeCommand(app func() (*App, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recompute <tenant-id...>",
		Short: "Recompute the stats snapshot of the given tenants, one after another",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app()
			if err != nil {
				return err
			}
			ids, err := recompute.TenantIDs(recompute.Request{Method: http.MethodGet, QueryTenantIDs: args})
			if err != nil {
				return err
			}
			results := a.Worker().Run(cmd.Context(), ids)
			renderResults(a.Out, results)
			return summarize(a.Out, results)
		},
	}
	return cmd
}

func newBackfillCommand(app func() (*App, error)) *cobra.Command {
	var (
		concurrency int
		perSecond   float64
	)
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Recompute every known tenant with bounded concurrency",
		Long: `Recompute every tenant that has a snapshot or at least one call.
Tenants run in parallel up to --concurrency, started at no more than --rate per second.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			ids, err := knownTenants(ctx, a)
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				color.New(color.FgYellow).Fprintln(a.Out, "no tenants found")
				return nil
			}

			w := a.Worker()
			limit := rate.Limit(perSecond)
			if perSecond <= 0 {
				limit = rate.Inf
			}
			limiter := rate.NewLimiter(limit, 1)

			results := make([]recompute.Result, len(ids))
			for i, tid := range ids {
				results[i] = recompute.Result{TenantID: tid, State: recompute.StatePending}
			}

			g, gctx := errgroup.WithContext(ctx)
			g.SetLimit(max(concurrency, 1))
			for i, tid := range ids {
				if err := limiter.Wait(gctx); err != nil {
					break
				}
				g.Go(func() error {
					results[i] = w.Run(gctx, []string{tid})[0]
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			renderResults(a.Out, results)
			if err := ctx.Err(); err != nil {
				return err
			}
			return summarize(a.Out, results)
		},
	}
	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", 4, "Tenants recomputed in parallel")
	cmd.Flags().Float64VarP(&perSecond, "rate", "r", 5, "Tenants started per second")
	return cmd
}

func renderResults(out io.Writer, results []recompute.Result) {
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Tenant", "State", "Leads", "Calls", "In", "Out", "Missed", "Rejected", "Duration", "Error"})
	table.SetBorder(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)

	for _, r := range results {
		row := []string{r.TenantID, stateString(r.State), "-", "-", "-", "-", "-", "-", "-", r.Error}
		if s := r.Stats; s != nil {
			row[2] = strconv.FormatInt(s.LeadsCount, 10)
			row[3] = strconv.FormatInt(s.CallsCount, 10)
			row[4] = strconv.FormatInt(s.InboundCount, 10)
			row[5] = strconv.FormatInt(s.OutboundCount, 10)
			row[6] = strconv.FormatInt(s.MissedCount, 10)
			row[7] = strconv.FormatInt(s.RejectedCount, 10)
			row[8] = (time.Duration(s.TotalDurationSeconds) * time.Second).String()
		}
		table.Append(row)
	}
	table.Render()
}

func stateString(s recompute.State) string {
	switch s {
	case recompute.StateDone:
		return color.GreenString(string(s))
	case recompute.StateFailed:
		return color.RedString(string(s))
	default:
		return color.YellowString(string(s))
	}
}

func summarize(out io.Writer, results []recompute.Result) error {
	var done, failed int
	for _, r := range results {
		switch r.State {
		case recompute.StateDone:
			done++
		case recompute.StateFailed:
			failed++
		}
	}
	color.New(color.FgGreen).Fprintf(out, "✓ %d tenant(s) recomputed\n", done)
	if failed > 0 || done != len(results) {
		color.New(color.FgRed).Fprintf(out, "✗ %d tenant(s) not recomputed\n", len(results)-done)
		return errSomeFailed
	}
	return nil
}
