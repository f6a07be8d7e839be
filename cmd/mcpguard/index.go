package main

import (
	"context"
	"flag"
	"fmt"
	"text/tabwriter"
	"time"

	"mcpguard/internal/audit"
	"mcpguard/internal/policy"
)

const defaultIndexDSN = "audit-index.db"

func (a *app) cmdIndex(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("index: subcommand required (ingest, query)")
	}
	fs := flag.NewFlagSet("index "+args[0], flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	dsn := fs.String("dsn", a.cfg.Audit.Index, "SQLite path or postgres:// URL of the index")
	hours := fs.Float64("hours", 0, "Only records from the last N hours (0 = all)")
	tool := fs.String("tool", "", "Filter by tool")
	action := fs.String("action", "", "Filter by action")
	env := fs.String("env", "", "Filter by environment")
	result := fs.String("result", "", "Filter by result (success, failure, blocked)")
	risk := fs.String("risk", "", "Filter by risk level")
	session := fs.String("session", "", "Filter by session ID")
	limit := fs.Int("limit", 50, "Maximum number of results")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	if *dsn == "" {
		*dsn = defaultIndexDSN
	}

	var since time.Time
	if *hours > 0 {
		since = time.Now().Add(-time.Duration(*hours * float64(time.Hour)))
	}

	idx, err := audit.NewIndex(audit.IndexConfig{DSN: *dsn})
	if err != nil {
		return fmt.Errorf("open index: %w", err)
	}
	defer idx.Close()

	switch args[0] {
	case "ingest":
		records, err := a.auditLogger().ReadRecords(ctx, since)
		if err != nil {
			return fmt.Errorf("read audit log: %w", err)
		}
		n, err := idx.Ingest(ctx, records)
		if err != nil {
			return fmt.Errorf("ingest: %w", err)
		}
		fmt.Fprintf(a.stdout, "Indexed %d new records (%d read).\n", n, len(records))
		return nil

	case "query":
		records, err := idx.Query(ctx, audit.IndexQuery{
			Since:       since,
			SessionID:   *session,
			ToolName:    *tool,
			Action:      *action,
			Environment: *env,
			Result:      audit.Result(*result),
			RiskLevel:   policy.RiskLevel(*risk),
			Limit:       *limit,
		})
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		if a.jsonOut {
			if records == nil {
				records = []audit.Record{}
			}
			return a.printJSON(records)
		}
		if len(records) == 0 {
			fmt.Fprintln(a.stdout, "No records found.")
			return nil
		}
		w := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tRESULT\tACTION\tRISK\tENV\tACTOR\tREASON")
		for _, r := range records {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				r.Timestamp.Local().Format("2006-01-02 15:04:05"),
				r.Result, r.Key(), r.RiskLevel, r.Environment, r.Actor, truncate(r.Reason, 50))
		}
		return w.Flush()

	default:
		return fmt.Errorf("index: unknown subcommand %q", args[0])
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
