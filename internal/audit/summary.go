package audit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"mcpguard/internal/policy"
)

// Anomaly thresholds. Counts must exceed them.
const (
	BlockedThreshold = 10
	FailureThreshold = 5
)

// ProductionEnvironment is the environment flagged by anomaly detection.
const ProductionEnvironment = "production"

// TopN is the number of entries kept in top-action lists.
const TopN = 10

// ActionCount is one entry of a top-N list.
type ActionCount struct {
	Action string `json:"action"`
	Count  int    `json:"count"`
}

// Tally counts keys and remembers the order in which they first appeared,
// so equal counts keep their first-encountered order in Top.
type Tally struct {
	order  []string
	counts map[string]int
}

// Add counts one occurrence of key.
func (t *Tally) Add(key string) {
	if t.counts == nil {
		t.counts = make(map[string]int)
	}
	if _, ok := t.counts[key]; !ok {
		t.order = append(t.order, key)
	}
	t.counts[key]++
}

// Top returns up to n keys by descending count.
func (t *Tally) Top(n int) []ActionCount {
	out := make([]ActionCount, 0, len(t.order))
	for _, k := range t.order {
		out = append(out, ActionCount{Action: k, Count: t.counts[k]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// Summary aggregates audit records over a time window.
type Summary struct {
	HoursBack        float64       `json:"hoursBack"`
	TotalInvocations int           `json:"totalInvocations"`
	Blocked          int           `json:"blocked"`
	Failures         int           `json:"failures"`
	HighRiskActions  int           `json:"highRiskActions"`
	TopActions       []ActionCount `json:"topActions"`
}

// Since returns the start of a window ending now.
func (l *Logger) Since(hoursBack float64) time.Time {
	return l.now().Add(-time.Duration(hoursBack * float64(time.Hour)))
}

// Summarize aggregates records from the last hoursBack hours.
func (l *Logger) Summarize(ctx context.Context, hoursBack float64) (Summary, error) {
	records, err := l.ReadRecords(ctx, l.Since(hoursBack))
	if err != nil {
		return Summary{}, err
	}
	return summarize(records, hoursBack), nil
}

func summarize(records []Record, hoursBack float64) Summary {
	s := Summary{HoursBack: hoursBack, TotalInvocations: len(records)}
	var tally Tally
	for i := range records {
		r := &records[i]
		switch r.Result {
		case ResultBlocked:
			s.Blocked++
		case ResultFailure:
			s.Failures++
		}
		if r.RiskLevel.IsHigh() {
			s.HighRiskActions++
		}
		tally.Add(r.Key())
	}
	s.TopActions = tally.Top(TopN)
	return s
}

// DetectAnomalies scans the last hoursBack hours and returns one finding per
// triggered condition.
func (l *Logger) DetectAnomalies(ctx context.Context, hoursBack float64) ([]string, error) {
	records, err := l.ReadRecords(ctx, l.Since(hoursBack))
	if err != nil {
		return nil, err
	}
	return detectAnomalies(records, hoursBack), nil
}

func detectAnomalies(records []Record, hoursBack float64) []string {
	var blocked, failures, critical, production int
	for i := range records {
		r := &records[i]
		switch r.Result {
		case ResultBlocked:
			blocked++
		case ResultFailure:
			failures++
		}
		if r.RiskLevel == policy.RiskCritical {
			critical++
		}
		if r.Environment == ProductionEnvironment {
			production++
		}
	}

	window := formatHours(hoursBack)
	var findings []string
	if blocked > BlockedThreshold {
		findings = append(findings, fmt.Sprintf("High number of blocked actions: %d in the last %s hours", blocked, window))
	}
	if failures > FailureThreshold {
		findings = append(findings, fmt.Sprintf("High failure rate: %d failed actions in the last %s hours", failures, window))
	}
	if critical > 0 {
		findings = append(findings, fmt.Sprintf("Critical risk actions detected: %d", critical))
	}
	if production > 0 {
		findings = append(findings, fmt.Sprintf("Production environment access detected: %d actions", production))
	}
	return findings
}

// ReportPath returns the report file for the given day.
func (l *Logger) ReportPath(t time.Time) string {
	return filepath.Join(l.reportDir, "report-"+t.UTC().Format(dayLayout)+".txt")
}

// DailyReport renders the last 24 hours into a report, writes it to the
// day's report file (replacing any earlier one) and returns the text.
func (l *Logger) DailyReport(ctx context.Context) (string, error) {
	records, err := l.ReadRecords(ctx, l.Since(24))
	if err != nil {
		return "", err
	}
	now := l.now().UTC()
	report := renderReport(now, l.sessionID, summarize(records, 24), detectAnomalies(records, 24))

	if err := os.MkdirAll(l.reportDir, 0755); err != nil {
		return report, fmt.Errorf("create report directory: %w", err)
	}
	if err := os.WriteFile(l.ReportPath(now), []byte(report), 0644); err != nil {
		return report, fmt.Errorf("write report: %w", err)
	}
	return report, nil
}

func renderReport(now time.Time, sessionID string, s Summary, anomalies []string) string {
	var b strings.Builder
	rule := strings.Repeat("=", 60)

	b.WriteString(rule + "\n")
	b.WriteString("MCP GOVERNANCE DAILY REPORT\n")
	fmt.Fprintf(&b, "Generated: %s\n", now.Format(time.RFC3339))
	fmt.Fprintf(&b, "Session:   %s\n", sessionID)
	b.WriteString("Period:    last 24 hours\n")
	b.WriteString(rule + "\n\n")

	b.WriteString("SUMMARY\n")
	fmt.Fprintf(&b, "  Total invocations:  %d\n", s.TotalInvocations)
	fmt.Fprintf(&b, "  Blocked:            %d\n", s.Blocked)
	fmt.Fprintf(&b, "  Failures:           %d\n", s.Failures)
	fmt.Fprintf(&b, "  High-risk actions:  %d\n\n", s.HighRiskActions)

	b.WriteString("TOP ACTIONS\n")
	if len(s.TopActions) == 0 {
		b.WriteString("  (none)\n")
	}
	for i, a := range s.TopActions {
		fmt.Fprintf(&b, "  %2d. %-40s %d\n", i+1, a.Action, a.Count)
	}
	b.WriteString("\n")

	b.WriteString("ANOMALIES\n")
	if len(anomalies) == 0 {
		b.WriteString("  None detected\n")
	}
	for _, a := range anomalies {
		fmt.Fprintf(&b, "  ⚠ %s\n", a)
	}
	return b.String()
}

func formatHours(h float64) string {
	return strconv.FormatFloat(h, 'f', -1, 64)
}
