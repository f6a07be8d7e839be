package approval

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Log is the append-only JSONL file of terminal request snapshots.
type Log struct {
	path string
	mu   sync.Mutex
}

// NewLog returns a log writing to path. The file and its directory are
// created on first append.
func NewLog(path string) *Log {
	if path == "" {
		path = filepath.Join("logs", "approvals.jsonl")
	}
	return &Log{path: path}
}

// Path returns the log file.
func (l *Log) Path() string { return l.path }

// Append writes one request snapshot as a single line.
func (l *Log) Append(req *Request) error {
	line, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal approval: %w", err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("create approval log directory: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open approval log: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return fmt.Errorf("append approval: %w", err)
	}
	return f.Close()
}

// Read returns snapshots whose request timestamp is at or after since.
// Malformed lines are skipped; a missing file yields nothing.
func (l *Log) Read(ctx context.Context, since time.Time) ([]Request, error) {
	f, err := os.Open(l.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open approval log: %w", err)
	}
	defer f.Close()

	var out []Request
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16<<20)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var req Request
		if err := json.Unmarshal(sc.Bytes(), &req); err != nil || req.ID == "" {
			continue
		}
		if req.Timestamp.Before(since) {
			continue
		}
		out = append(out, req)
	}
	if err := sc.Err(); err != nil {
		slog.Warn("approval log read incomplete", "path", l.path, "err", err)
	}
	return out, nil
}
