package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"mcpguard/internal/audit"
	"mcpguard/internal/config"
	"mcpguard/internal/metrics"
)

func (a *app) cmdServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	addr := fs.String("addr", a.cfg.Metrics.Addr, "Listen address")
	schedule := fs.String("schedule", a.cfg.Report.Schedule, "Cron schedule of the daily report")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := config.Report(a.cfg.Violations(), "serve"); err != nil {
		return err
	}

	logger := a.auditLogger()
	srv := &http.Server{
		Addr:              *addr,
		Handler:           a.routes(logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sched := audit.NewReportScheduler(logger, *schedule)
	schedErr := make(chan error, 1)
	go func() { schedErr <- sched.Run(ctx) }()

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("mcpguard serving", "addr", *addr, "report_schedule", *schedule)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-schedErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			srv.Close()
			return fmt.Errorf("report scheduler: %w", err)
		}
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (a *app) routes(logger *audit.Logger) http.Handler {
	approvals := a.workflow(currentUser())
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := logger.Ready(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		fmt.Fprintln(w, "ok")
	})
	mux.HandleFunc("GET /v1/summary", func(w http.ResponseWriter, r *http.Request) {
		hours, ok := queryHours(w, r, 24)
		if !ok {
			return
		}
		s, err := logger.Summarize(r.Context(), hours)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, s)
	})
	mux.HandleFunc("GET /v1/anomalies", func(w http.ResponseWriter, r *http.Request) {
		hours, ok := queryHours(w, r, 1)
		if !ok {
			return
		}
		findings, err := logger.DetectAnomalies(r.Context(), hours)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if findings == nil {
			findings = []string{}
		}
		writeJSON(w, map[string]any{"hoursBack": hours, "anomalies": findings})
	})
	mux.HandleFunc("GET /v1/approvals/stats", func(w http.ResponseWriter, r *http.Request) {
		hours, ok := queryHours(w, r, 24)
		if !ok {
			return
		}
		s, err := approvals.Stats(r.Context(), hours)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, s)
	})
	mux.HandleFunc("GET /v1/check", func(w http.ResponseWriter, r *http.Request) {
		action := r.URL.Query().Get("action")
		if action == "" {
			http.Error(w, "action required", http.StatusBadRequest)
			return
		}
		writeJSON(w, a.firewall().Explain(action, r.URL.Query().Get("env")))
	})
	return mux
}

func queryHours(w http.ResponseWriter, r *http.Request, def float64) (float64, bool) {
	v := r.URL.Query().Get("hours")
	if v == "" {
		return def, true
	}
	h, err := strconv.ParseFloat(v, 64)
	if err != nil || h <= 0 {
		http.Error(w, "hours must be a positive number", http.StatusBadRequest)
		return 0, false
	}
	return h, true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(v) //nolint:errcheck
}
