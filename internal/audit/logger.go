package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"mcpguard/internal/metrics"
	"mcpguard/internal/policy"
	"mcpguard/internal/redact"
)

const (
	filePrefix = "audit-"
	fileSuffix = ".jsonl"
	dayLayout  = "2006-01-02"

	// maxLineSize bounds a single record when reading partitions back.
	maxLineSize = 16 << 20
)

// LoggerConfig configures the audit logger.
type LoggerConfig struct {
	// Dir holds the date-partitioned JSONL files. Created on first write.
	Dir string

	// ReportDir holds daily reports. Defaults to Dir/reports.
	ReportDir string

	// SessionID groups all records of this process. Generated when empty.
	SessionID string

	// Now is the clock. Defaults to time.Now.
	Now func() time.Time

	// Console receives one human-readable line per record. Nil disables it.
	Console io.Writer

	// Redactor masks parameters before they are persisted.
	Redactor *redact.Redactor
}

// Logger is an append-only audit store with one JSONL file per UTC day.
type Logger struct {
	dir       string
	reportDir string
	sessionID string
	now       func() time.Time
	console   io.Writer
	redactor  *redact.Redactor

	mu       sync.Mutex // serializes appends and protects lastHash
	lastHash string
}

// NewLogger creates an audit logger. It does not touch the filesystem.
func NewLogger(cfg LoggerConfig) *Logger {
	if cfg.Dir == "" {
		cfg.Dir = filepath.Join("logs", "audit")
	}
	if cfg.ReportDir == "" {
		cfg.ReportDir = filepath.Join(cfg.Dir, "reports")
	}
	if cfg.SessionID == "" {
		cfg.SessionID = NewSessionID()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Logger{
		dir:       cfg.Dir,
		reportDir: cfg.ReportDir,
		sessionID: cfg.SessionID,
		now:       cfg.Now,
		console:   cfg.Console,
		redactor:  cfg.Redactor,
		lastHash:  GenesisHash,
	}
}

// NewSessionID generates a session identifier.
func NewSessionID() string {
	return "sess_" + uuid.New().String()[:12]
}

// SessionID returns the session shared by every record of this logger.
func (l *Logger) SessionID() string { return l.sessionID }

// Dir returns the directory holding the partition files.
func (l *Logger) Dir() string { return l.dir }

// PartitionPath returns the file that holds records for the given day.
func (l *Logger) PartitionPath(t time.Time) string {
	return filepath.Join(l.dir, filePrefix+t.UTC().Format(dayLayout)+fileSuffix)
}

// Record stamps an entry and appends it as one JSON line. The console echo
// happens even when the write fails; the write error is returned so callers
// never assume an action was audited when it was not.
func (l *Logger) Record(ctx context.Context, entry Entry) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	params, err := normalizeParams(entry.Parameters)
	if err != nil {
		metrics.AuditWriteErrorsTotal.WithLabelValues("audit").Inc()
		return Record{}, fmt.Errorf("encode audit parameters: %w", err)
	}

	rec := Record{
		ID:          "aud_" + uuid.New().String()[:8],
		SessionID:   l.sessionID,
		Actor:       entry.Actor,
		Environment: entry.Environment,
		ToolName:    entry.ToolName,
		Action:      entry.Action,
		Parameters:  l.redactor.Params(params),
		Result:      entry.Result,
		Reason:      l.redactor.String(entry.Reason),
		DurationMs:  entry.DurationMs,
		RiskLevel:   entry.RiskLevel,
	}
	if rec.RiskLevel == "" {
		rec.RiskLevel = policy.ClassifyRisk(entry.Action)
	}

	// Hold the lock through the write so the chain matches file order.
	l.mu.Lock()
	defer l.mu.Unlock()

	rec.Timestamp = l.now().UTC()
	rec.PrevHash = l.lastHash
	rec.Hash = ComputeRecordHash(&rec)

	err = l.append(rec)
	l.echo(rec, err)
	if err != nil {
		metrics.AuditWriteErrorsTotal.WithLabelValues("audit").Inc()
		return rec, err
	}

	// Update lastHash only after successful write
	l.lastHash = rec.Hash
	return rec, nil
}

// Ready checks that today's partition can be opened for appending.
func (l *Logger) Ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(l.dir, 0755); err != nil {
		return fmt.Errorf("create audit directory: %w", err)
	}
	f, err := os.OpenFile(l.PartitionPath(l.now()), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open audit file: %w", err)
	}
	return f.Close()
}

func (l *Logger) append(rec Record) error {
	line, err := json.Marshal(&rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	line = append(line, '\n')

	if err := os.MkdirAll(l.dir, 0755); err != nil {
		return fmt.Errorf("create audit directory: %w", err)
	}
	f, err := os.OpenFile(l.PartitionPath(rec.Timestamp), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open audit file: %w", err)
	}
	// One write call per line keeps the line whole under O_APPEND.
	if _, err := f.Write(line); err != nil {
		f.Close()
		return fmt.Errorf("append audit record: %w", err)
	}
	return f.Close()
}

func (l *Logger) echo(rec Record, writeErr error) {
	if l.console == nil {
		return
	}
	var b strings.Builder
	icon := "✓"
	switch rec.Result {
	case ResultBlocked:
		icon = "⛔"
	case ResultFailure:
		icon = "✗"
	}
	fmt.Fprintf(&b, "[%s] %s %s %s actor=%s env=%s risk=%s",
		rec.Timestamp.Format(time.RFC3339), icon, strings.ToUpper(string(rec.Result)),
		rec.Key(), rec.Actor, rec.Environment, rec.RiskLevel)
	if rec.DurationMs != nil {
		fmt.Fprintf(&b, " (%dms)", *rec.DurationMs)
	}
	if rec.Reason != "" {
		fmt.Fprintf(&b, " reason=%q", rec.Reason)
	}
	if writeErr != nil {
		fmt.Fprintf(&b, " [NOT PERSISTED: %v]", writeErr)
	}
	b.WriteByte('\n')
	io.WriteString(l.console, b.String()) //nolint:errcheck
}

// ReadRecords reads every partition that may hold records at or after since
// and returns matching records sorted by timestamp. Malformed lines are
// skipped. A missing directory yields no records.
func (l *Logger) ReadRecords(ctx context.Context, since time.Time) ([]Record, error) {
	records, err := l.readPartitions(ctx, since)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp.Before(records[j].Timestamp)
	})
	return records, nil
}

// VerifyIntegrity checks the hash chains of every stored record.
func (l *Logger) VerifyIntegrity(ctx context.Context) (ChainStatus, error) {
	// File order, not timestamp order: the chain follows the writes.
	records, err := l.readPartitions(ctx, time.Time{})
	if err != nil {
		return ChainStatus{}, err
	}
	return VerifyChain(records), nil
}

func (l *Logger) readPartitions(ctx context.Context, since time.Time) ([]Record, error) {
	files, err := filepath.Glob(filepath.Join(l.dir, filePrefix+"*"+fileSuffix))
	if err != nil {
		return nil, fmt.Errorf("list audit files: %w", err)
	}
	sort.Strings(files)

	sinceDay := ""
	if !since.IsZero() {
		sinceDay = since.UTC().Format(dayLayout)
	}

	var records []Record
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		day := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(path), filePrefix), fileSuffix)
		if sinceDay != "" && day < sinceDay {
			continue
		}
		recs, err := readFile(path, since)
		if err != nil {
			slog.Warn("audit file read incomplete", "path", path, "err", err)
		}
		records = append(records, recs...)
	}
	return records, nil
}

func readFile(path string, since time.Time) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var records []Record
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		var rec Record
		if err := decodeJSON(line, &rec); err != nil {
			slog.Debug("skipping malformed audit line", "path", path, "line", lineNo, "err", err)
			continue
		}
		if rec.Timestamp.Before(since) {
			continue
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return records, fmt.Errorf("scan %s: %w", path, err)
	}
	return records, nil
}
