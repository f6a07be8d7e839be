package main

import (
	"context"
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"mcpguard/internal/approval"
)

func (a *app) cmdApprovals(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("approvals: subcommand required (stats, list)")
	}
	hours, err := a.hoursFlag("approvals "+args[0], 24, args[1:])
	if err != nil {
		return err
	}
	switch args[0] {
	case "stats":
		return a.approvalStats(ctx, hours)
	case "list":
		return a.approvalList(ctx, hours)
	default:
		return fmt.Errorf("approvals: unknown subcommand %q", args[0])
	}
}

func (a *app) approvalStats(ctx context.Context, hours float64) error {
	s, err := a.workflow(currentUser()).Stats(ctx, hours)
	if err != nil {
		return fmt.Errorf("approval stats: %w", err)
	}
	if a.jsonOut {
		return a.printJSON(s)
	}

	fmt.Fprintf(a.stdout, "Approvals, last %g hours\n\n", hours)
	fmt.Fprintf(a.stdout, "  Total:     %d\n", s.Total)
	fmt.Fprintf(a.stdout, "  Approved:  %d\n", s.Approved)
	fmt.Fprintf(a.stdout, "  Rejected:  %d\n", s.Rejected)
	fmt.Fprintf(a.stdout, "  Expired:   %d\n", s.Expired)
	fmt.Fprintf(a.stdout, "  Pending:   %d\n\n", s.Pending)

	if len(s.ByRiskLevel) > 0 {
		levels := make([]string, 0, len(s.ByRiskLevel))
		for l := range s.ByRiskLevel {
			levels = append(levels, l)
		}
		sort.Strings(levels)
		fmt.Fprintln(a.stdout, "By risk level:")
		for _, l := range levels {
			fmt.Fprintf(a.stdout, "  %-10s %d\n", l, s.ByRiskLevel[l])
		}
		fmt.Fprintln(a.stdout)
	}
	if len(s.ByAction) > 0 {
		w := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ACTION\tCOUNT")
		for _, ac := range s.ByAction {
			fmt.Fprintf(w, "%s\t%d\n", ac.Action, ac.Count)
		}
		return w.Flush()
	}
	return nil
}

func (a *app) approvalList(ctx context.Context, hours float64) error {
	since := time.Now().Add(-time.Duration(hours * float64(time.Hour)))
	reqs, err := a.approvalLog().Read(ctx, since)
	if err != nil {
		return fmt.Errorf("read approval log: %w", err)
	}
	if a.jsonOut {
		if reqs == nil {
			reqs = []approval.Request{}
		}
		return a.printJSON(reqs)
	}
	if len(reqs) == 0 {
		fmt.Fprintln(a.stdout, "No approvals found.")
		return nil
	}

	w := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tACTION\tRISK\tACTOR\tAPPROVER\tREQUESTED\tRESOLUTION")
	for _, r := range reqs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID,
			statusIcon(r.Status)+" "+string(r.Status),
			r.Key(),
			r.RiskLevel,
			r.Actor,
			r.Approver,
			r.Timestamp.Local().Format("2006-01-02 15:04:05"),
			r.Resolution,
		)
	}
	return w.Flush()
}

func statusIcon(s approval.Status) string {
	switch s {
	case approval.StatusApproved:
		return "✓"
	case approval.StatusRejected:
		return "✗"
	case approval.StatusExpired:
		return "⏱"
	default:
		return "⏳"
	}
}
