// Package audit provides the append-only audit trail for governed MCP tool
// invocations and the retrospective analysis built on it.
package audit

import (
	"encoding/json"
	"time"

	"mcpguard/internal/policy"
)

// Result is the outcome of a governed invocation attempt.
type Result string

const (
	ResultSuccess Result = "success"
	ResultFailure Result = "failure"
	ResultBlocked Result = "blocked"
)

// Record is one invocation attempt as persisted to the audit store. Field
// names are camelCase because the JSONL files are read by external tools.
type Record struct {
	ID          string           `json:"id"`
	Timestamp   time.Time        `json:"timestamp"`
	SessionID   string           `json:"sessionId"`
	Actor       string           `json:"actor"`
	Environment string           `json:"environment"`
	ToolName    string           `json:"toolName"`
	Action      string           `json:"action"`
	Parameters  map[string]any   `json:"parameters,omitempty"`
	Result      Result           `json:"result"`
	Reason      string           `json:"reason,omitempty"`
	DurationMs  *int64           `json:"durationMs,omitempty"`
	RiskLevel   policy.RiskLevel `json:"riskLevel"`

	// Hash chain for tamper evidence, scoped to the session.
	PrevHash string `json:"prevHash,omitempty"`
	Hash     string `json:"hash,omitempty"`
}

// Key groups records for top-N reporting.
func (r *Record) Key() string {
	return r.ToolName + "." + r.Action
}

// String returns a JSON string representation of the record.
func (r *Record) String() string {
	b, _ := json.Marshal(r)
	return string(b)
}

// Entry is an invocation outcome before the logger stamps it.
type Entry struct {
	Actor       string
	Environment string
	ToolName    string
	Action      string
	Parameters  map[string]any
	Result      Result
	Reason      string
	DurationMs  *int64           // nil when nothing was executed
	RiskLevel   policy.RiskLevel // classified from Action when empty
}

// Millis converts a duration for Entry.DurationMs.
func Millis(d time.Duration) *int64 {
	ms := d.Milliseconds()
	return &ms
}
