package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultReportSchedule runs the daily report at midnight UTC.
const DefaultReportSchedule = "0 0 * * *"

// ReportScheduler writes the daily report whenever its cron schedule fires.
type ReportScheduler struct {
	Logger       *Logger
	Schedule     string
	PollInterval time.Duration
	Now          func() time.Time
	Parser       *cron.Parser

	lastRun time.Time
}

// NewReportScheduler creates a scheduler for the given logger.
func NewReportScheduler(logger *Logger, schedule string) *ReportScheduler {
	return &ReportScheduler{Logger: logger, Schedule: schedule}
}

func (s *ReportScheduler) init() error {
	if s.Logger == nil {
		return errors.New("logger required")
	}
	if s.Now == nil {
		s.Now = s.Logger.now
	}
	if s.Parser == nil {
		parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
		s.Parser = &parser
	}
	if s.Schedule == "" {
		s.Schedule = DefaultReportSchedule
	}
	if s.PollInterval <= 0 {
		s.PollInterval = 30 * time.Second
	}
	return nil
}

// Run polls until the context is cancelled.
func (s *ReportScheduler) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.init(); err != nil {
		return err
	}
	if _, err := s.RunOnce(ctx); err != nil {
		return err
	}
	ticker := time.NewTicker(s.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				slog.Error("daily report failed", "err", err)
			}
		}
	}
}

// RunOnce writes the report if the schedule fired since the previous run.
// The first call only records the starting point.
func (s *ReportScheduler) RunOnce(ctx context.Context) (bool, error) {
	if err := s.init(); err != nil {
		return false, err
	}
	sched, err := s.Parser.Parse(s.Schedule)
	if err != nil {
		return false, fmt.Errorf("parse report schedule %q: %w", s.Schedule, err)
	}

	now := s.Now().UTC()
	if s.lastRun.IsZero() {
		s.lastRun = now
		return false, nil
	}
	if now.Before(sched.Next(s.lastRun)) {
		return false, nil
	}

	s.lastRun = now
	if _, err := s.Logger.DailyReport(ctx); err != nil {
		return false, err
	}
	slog.Info("daily report written", "path", s.Logger.ReportPath(now))
	return true, nil
}
