package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"mcpguard/internal/policy"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	x, err := NewIndex(IndexConfig{DSN: filepath.Join(t.TempDir(), "index", "audit.db")})
	if err != nil {
		t.Fatalf("NewIndex: %v", err)
	}
	t.Cleanup(func() { x.Close() })
	return x
}

func TestRebind(t *testing.T) {
	q := "SELECT * FROM t WHERE a = ? AND b = ?"
	if got := rebind(false, q); got != q {
		t.Errorf("sqlite rebind changed query: %q", got)
	}
	if got := rebind(true, q); got != "SELECT * FROM t WHERE a = $1 AND b = $2" {
		t.Errorf("postgres rebind = %q", got)
	}
}

func TestIndex_IngestIsIdempotent(t *testing.T) {
	clock := newClock()
	l, _ := newTestLogger(t, clock)
	record(t, l, "github", "createIssue", ResultSuccess, "development")
	record(t, l, "db", "dropTable", ResultBlocked, "production")

	recs, err := l.ReadRecords(context.Background(), time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	x := newTestIndex(t)
	if x.IsPostgres() {
		t.Fatal("file DSN should select sqlite")
	}
	ctx := context.Background()

	n, err := x.Ingest(ctx, recs)
	if err != nil || n != 2 {
		t.Fatalf("first ingest: n=%d err=%v", n, err)
	}
	n, err = x.Ingest(ctx, recs)
	if err != nil || n != 0 {
		t.Fatalf("second ingest: n=%d err=%v", n, err)
	}

	got, err := x.Query(ctx, IndexQuery{})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("indexed = %d, want 2", len(got))
	}
	if !VerifyRecordHash(&got[0]) {
		t.Error("indexed record lost its hash")
	}
}

func TestIndex_QueryFilters(t *testing.T) {
	clock := newClock()
	l, _ := newTestLogger(t, clock)
	clock.Set(time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC))
	record(t, l, "fs", "read", ResultSuccess, "development")
	clock.Set(time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC))
	record(t, l, "github", "createIssue", ResultFailure, "development")
	clock.Set(time.Date(2026, 3, 14, 11, 0, 0, 0, time.UTC))
	record(t, l, "db", "dropTable", ResultBlocked, "production")
	clock.Set(time.Date(2026, 3, 14, 11, 0, 0, 500, time.UTC))
	record(t, l, "fs", "read", ResultSuccess, "production")

	recs, _ := l.ReadRecords(context.Background(), time.Time{})
	x := newTestIndex(t)
	ctx := context.Background()
	if _, err := x.Ingest(ctx, recs); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		query   IndexQuery
		actions []string
	}{
		{"all newest first", IndexQuery{}, []string{"read", "dropTable", "createIssue", "read"}},
		{"since", IndexQuery{Since: time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)}, []string{"read", "dropTable", "createIssue"}},
		{"tool", IndexQuery{ToolName: "fs"}, []string{"read", "read"}},
		{"environment", IndexQuery{Environment: "production"}, []string{"read", "dropTable"}},
		{"result", IndexQuery{Result: ResultFailure}, []string{"createIssue"}},
		{"risk", IndexQuery{RiskLevel: policy.RiskCritical}, []string{"dropTable"}},
		{"limit", IndexQuery{Limit: 1}, []string{"read"}},
		{"session", IndexQuery{SessionID: "sess_other"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := x.Query(ctx, tt.query)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != len(tt.actions) {
				t.Fatalf("got %d records, want %d", len(got), len(tt.actions))
			}
			for i, a := range tt.actions {
				if got[i].Action != a {
					t.Errorf("record %d action = %q, want %q", i, got[i].Action, a)
				}
			}
		})
	}
}

func TestIndex_SkipsRecordsWithoutID(t *testing.T) {
	x := newTestIndex(t)
	n, err := x.Ingest(context.Background(), []Record{{ToolName: "t", Action: "a"}})
	if err != nil || n != 0 {
		t.Errorf("n=%d err=%v", n, err)
	}
}
