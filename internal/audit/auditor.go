package audit

import (
	"context"
	"time"
)

// Auditor is the interface for recording and reading audit records.
// Implemented by Logger (JSONL files); Index mirrors it for SQL queries.
type Auditor interface {
	// Record stamps and persists one invocation outcome.
	Record(ctx context.Context, entry Entry) (Record, error)

	// ReadRecords returns records at or after since, oldest first.
	ReadRecords(ctx context.Context, since time.Time) ([]Record, error)

	// Ready reports whether the store can currently accept a record.
	Ready(ctx context.Context) error
}

// Ensure implementations satisfy the interface.
var _ Auditor = (*Logger)(nil)
