package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"calltrack/internal/tenants"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func newStatsCommand(app func() (*App, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "stats [tenant-id]",
		Short: "Show the stored stats snapshot of a tenant, or the cross-tenant overview",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app()
			if err != nil {
				return err
			}
			if len(args) == 1 {
				t, err := a.Store.GetTenant(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("tenant %s: %w", args[0], err)
				}
				renderTenant(a.Out, t)
				return nil
			}

			ts, err := a.Store.ListTenants(cmd.Context())
			if err != nil {
				return err
			}
			renderOverview(a.Out, tenants.Summarize(ts))
			return nil
		},
	}
}

func renderTenant(out io.Writer, t tenants.Tenant) {
	s := t.Stats
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Field", "Value"})
	table.SetBorder(true)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.AppendBulk([][]string{
		{"Tenant", t.ID},
		{"Leads", strconv.FormatInt(s.LeadsCount, 10)},
		{"Calls", strconv.FormatInt(s.CallsCount, 10)},
		{"Inbound", strconv.FormatInt(s.InboundCount, 10)},
		{"Outbound", strconv.FormatInt(s.OutboundCount, 10)},
		{"Missed", strconv.FormatInt(s.MissedCount, 10)},
		{"Rejected", strconv.FormatInt(s.RejectedCount, 10)},
		{"Unclassified", strconv.FormatInt(s.Unclassified(), 10)},
		{"Talk time", (time.Duration(s.TotalDurationSeconds) * time.Second).String()},
		{"Last recompute", recalcString(s.LastRecalcAt)},
	})
	table.Render()
	if !t.HasCounters {
		color.New(color.FgYellow).Fprintln(out, "tenant has no stored counters yet")
	}
}

func renderOverview(out io.Writer, o tenants.Overview) {
	fmt.Fprintf(out, "Tenants: %d  Calls: %d  Leads: %d  Missed: %d  Rejected: %d\n",
		o.TenantCount, o.Totals.CallsCount, o.Totals.LeadsCount, o.Totals.MissedCount, o.Totals.RejectedCount)
	fmt.Fprintf(out, "Answered: %d inbound, %d outbound\n", o.InboundAnswered, o.OutboundAnswered)
	if o.LastRecalcAt != nil {
		fmt.Fprintf(out, "Last recompute: %s\n", recalcString(*o.LastRecalcAt))
	} else {
		color.New(color.FgYellow).Fprintln(out, "no tenant has been recomputed yet")
	}

	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Tenant", "Calls"})
	table.SetBorder(true)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	for _, tc := range o.TopByCalls {
		table.Append([]string{tc.TenantID, strconv.FormatInt(tc.Calls, 10)})
	}
	table.Render()
}

func recalcString(t time.Time) string {
	if t.IsZero() {
		return color.YellowString("never")
	}
	return t.UTC().Format(time.RFC3339)
}

// knownTenants is every tenant with a snapshot plus every tenant that owns a call, sorted.
func knownTenants(ctx context.Context, a *App) ([]string, error) {
	seen := map[string]struct{}{}
	ts, err := a.Store.ListTenants(ctx)
	if err != nil {
		return nil, err
	}
	for _, t := range ts {
		seen[t.ID] = struct{}{}
	}
	cs, err := a.Store.ListAllCalls(ctx)
	if err != nil {
		return nil, err
	}
	for _, c := range cs {
		if c.TenantID != "" {
			seen[c.TenantID] = struct{}{}
		}
	}

	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}
