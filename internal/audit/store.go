package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"mcpguard/internal/policy"
)

// indexTimeLayout is fixed-width so timestamps sort lexically.
const indexTimeLayout = "2006-01-02T15:04:05.000000000Z"

// Index mirrors the JSONL audit trail into SQLite or PostgreSQL so it can be
// queried ad hoc. The JSONL files stay the source of truth.
type Index struct {
	db         *sql.DB
	isPostgres bool // true when connected to PostgreSQL
}

// IndexConfig configures the audit index.
type IndexConfig struct {
	// DSN is the data-source name. When it starts with "postgres://" or
	// "postgresql://", the PostgreSQL backend (pgx) is used; otherwise the
	// value is treated as a SQLite file path.
	DSN string
}

// IsPostgres reports whether the index is backed by PostgreSQL.
func (x *Index) IsPostgres() bool { return x.isPostgres }

// rebind rewrites a query that uses ? placeholders into one using $N
// placeholders when the index is backed by PostgreSQL.
func rebind(isPostgres bool, query string) string {
	if !isPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		} else {
			b.WriteRune(c)
		}
	}
	return b.String()
}

// NewIndex opens the index database and creates its schema.
func NewIndex(cfg IndexConfig) (*Index, error) {
	dsn := cfg.DSN
	if dsn == "" {
		dsn = "audit-index.db"
	}

	// Detect backend from DSN prefix.
	isPostgres := strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")

	var db *sql.DB
	var err error

	if isPostgres {
		db, err = sql.Open("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("open postgres database: %w", err)
		}
	} else {
		// SQLite: ensure directory exists.
		dir := filepath.Dir(dsn)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("create index directory: %w", err)
			}
		}
		db, err = sql.Open("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("open index database: %w", err)
		}
		// Enable WAL mode for better concurrent read performance (SQLite only).
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}

	if err := createTables(db, isPostgres); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return &Index{db: db, isPostgres: isPostgres}, nil
}

func createTables(db *sql.DB, isPostgres bool) error {
	// Primary-key definition differs between SQLite and PostgreSQL.
	pkDef := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if isPostgres {
		pkDef = "BIGSERIAL PRIMARY KEY"
	}

	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS audit_records (
		id %s,
		record_id TEXT UNIQUE NOT NULL,
		timestamp TEXT NOT NULL,
		session_id TEXT NOT NULL,
		actor TEXT,
		environment TEXT,
		tool_name TEXT,
		action TEXT,
		result TEXT NOT NULL,
		reason TEXT,
		duration_ms INTEGER,
		risk_level TEXT,
		raw_json TEXT NOT NULL
	);
	`, pkDef)

	if _, err := db.Exec(schema); err != nil {
		return err
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_records_timestamp ON audit_records(timestamp)",
		"CREATE INDEX IF NOT EXISTS idx_records_session ON audit_records(session_id)",
		"CREATE INDEX IF NOT EXISTS idx_records_tool ON audit_records(tool_name, action)",
		"CREATE INDEX IF NOT EXISTS idx_records_result ON audit_records(result)",
		"CREATE INDEX IF NOT EXISTS idx_records_risk ON audit_records(risk_level)",
	}
	for _, stmt := range indexes {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Ingest inserts records that are not yet indexed and returns how many were
// added. Re-ingesting the same records is a no-op.
func (x *Index) Ingest(ctx context.Context, records []Record) (int, error) {
	insert := `INSERT OR IGNORE INTO audit_records (
			record_id, timestamp, session_id, actor, environment, tool_name, action,
			result, reason, duration_ms, risk_level, raw_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if x.isPostgres {
		insert = strings.Replace(insert, "INSERT OR IGNORE", "INSERT", 1) + " ON CONFLICT (record_id) DO NOTHING"
	}
	insert = rebind(x.isPostgres, insert)

	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin ingest: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	added := 0
	for i := range records {
		r := &records[i]
		if r.ID == "" {
			continue // cannot deduplicate without an ID
		}
		rawJSON, err := json.Marshal(r)
		if err != nil {
			return 0, fmt.Errorf("marshal record: %w", err)
		}
		var duration sql.NullInt64
		if r.DurationMs != nil {
			duration = sql.NullInt64{Int64: *r.DurationMs, Valid: true}
		}
		res, err := tx.ExecContext(ctx, insert,
			r.ID,
			r.Timestamp.UTC().Format(indexTimeLayout),
			r.SessionID,
			r.Actor,
			r.Environment,
			r.ToolName,
			r.Action,
			string(r.Result),
			r.Reason,
			duration,
			string(r.RiskLevel),
			string(rawJSON),
		)
		if err != nil {
			return 0, fmt.Errorf("insert record %s: %w", r.ID, err)
		}
		n, _ := res.RowsAffected()
		added += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit ingest: %w", err)
	}
	return added, nil
}

// IndexQuery specifies filters for querying the index.
type IndexQuery struct {
	Since       time.Time
	SessionID   string
	ToolName    string
	Action      string
	Environment string
	Result      Result
	RiskLevel   policy.RiskLevel
	Limit       int
}

// Query returns indexed records matching the filters, newest first.
func (x *Index) Query(ctx context.Context, opts IndexQuery) ([]Record, error) {
	query := `SELECT raw_json FROM audit_records WHERE 1=1`
	var args []any

	if !opts.Since.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, opts.Since.UTC().Format(indexTimeLayout))
	}
	if opts.SessionID != "" {
		query += " AND session_id = ?"
		args = append(args, opts.SessionID)
	}
	if opts.ToolName != "" {
		query += " AND tool_name = ?"
		args = append(args, opts.ToolName)
	}
	if opts.Action != "" {
		query += " AND action = ?"
		args = append(args, opts.Action)
	}
	if opts.Environment != "" {
		query += " AND environment = ?"
		args = append(args, opts.Environment)
	}
	if opts.Result != "" {
		query += " AND result = ?"
		args = append(args, string(opts.Result))
	}
	if opts.RiskLevel != "" {
		query += " AND risk_level = ?"
		args = append(args, string(opts.RiskLevel))
	}

	query += " ORDER BY timestamp DESC"

	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := x.db.QueryContext(ctx, rebind(x.isPostgres, query), args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rawJSON string
		if err := rows.Scan(&rawJSON); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		var rec Record
		if err := json.Unmarshal([]byte(rawJSON), &rec); err != nil {
			return nil, fmt.Errorf("unmarshal record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Close closes the index database.
func (x *Index) Close() error {
	return x.db.Close()
}
