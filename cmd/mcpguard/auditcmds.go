package main

import (
	"context"
	"flag"
	"fmt"
	"text/tabwriter"
	"time"
)

func (a *app) hoursFlag(name string, def float64, args []string) (float64, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	hours := fs.Float64("hours", def, "Window size in hours")
	if err := fs.Parse(args); err != nil {
		return 0, err
	}
	if *hours <= 0 {
		return 0, fmt.Errorf("--hours must be positive")
	}
	return *hours, nil
}

func (a *app) cmdSummary(ctx context.Context, args []string) error {
	hours, err := a.hoursFlag("summary", 24, args)
	if err != nil {
		return err
	}
	s, err := a.auditLogger().Summarize(ctx, hours)
	if err != nil {
		return fmt.Errorf("summarize: %w", err)
	}
	if a.jsonOut {
		return a.printJSON(s)
	}

	fmt.Fprintf(a.stdout, "Audit summary, last %g hours\n\n", hours)
	fmt.Fprintf(a.stdout, "  Total invocations:  %d\n", s.TotalInvocations)
	fmt.Fprintf(a.stdout, "  Blocked:            %d\n", s.Blocked)
	fmt.Fprintf(a.stdout, "  Failures:           %d\n", s.Failures)
	fmt.Fprintf(a.stdout, "  High-risk actions:  %d\n\n", s.HighRiskActions)
	if len(s.TopActions) == 0 {
		return nil
	}
	w := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tACTION\tCOUNT")
	for i, ac := range s.TopActions {
		fmt.Fprintf(w, "%d\t%s\t%d\n", i+1, ac.Action, ac.Count)
	}
	return w.Flush()
}

func (a *app) cmdAnomalies(ctx context.Context, args []string) error {
	hours, err := a.hoursFlag("anomalies", 1, args)
	if err != nil {
		return err
	}
	findings, err := a.auditLogger().DetectAnomalies(ctx, hours)
	if err != nil {
		return fmt.Errorf("detect anomalies: %w", err)
	}
	if a.jsonOut {
		if findings == nil {
			findings = []string{}
		}
		return a.printJSON(findings)
	}
	if len(findings) == 0 {
		fmt.Fprintf(a.stdout, "No anomalies detected in the last %g hours.\n", hours)
		return nil
	}
	for _, f := range findings {
		fmt.Fprintf(a.stdout, "⚠ %s\n", f)
	}
	return nil
}

func (a *app) cmdReport(ctx context.Context) error {
	logger := a.auditLogger()
	report, err := logger.DailyReport(ctx)
	if err != nil {
		return fmt.Errorf("daily report: %w", err)
	}
	fmt.Fprint(a.stdout, report)
	fmt.Fprintf(a.stderr, "Report written to %s\n", logger.ReportPath(time.Now()))
	return nil
}

func (a *app) cmdVerify(ctx context.Context) error {
	status, err := a.auditLogger().VerifyIntegrity(ctx)
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}
	if a.jsonOut {
		if err := a.printJSON(status); err != nil {
			return err
		}
	} else if status.Valid {
		fmt.Fprintf(a.stdout, "✓ %d records in %d sessions verified (%d without hash)\n",
			status.TotalRecords, status.Sessions, status.UnhashedCount)
	} else {
		fmt.Fprintf(a.stdout, "✗ chain broken at %s: %s\n", status.BrokenAt, status.Error)
	}
	if !status.Valid {
		return fmt.Errorf("audit chain is broken")
	}
	return nil
}
