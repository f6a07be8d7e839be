// Package approval gates approval-required actions behind a human decision
// with a hard timeout, auto-approval by environment and an approver
// allow-list. Every terminal decision is appended to a JSONL approval log.
package approval

import (
	"slices"
	"time"

	"mcpguard/internal/policy"
)

// Status is the lifecycle state of a request.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusExpired  Status = "expired"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusExpired
}

// Machine-readable resolution reasons.
const (
	ReasonDisabled              = "disabled"
	ReasonRejectedByUser        = "rejected_by_user"
	ReasonTimeout               = "timeout"
	ReasonApproverNotAuthorized = "approver_not_authorized"
	ReasonCancelled             = "cancelled"
)

// AutoApprover is the approver recorded for auto-approved environments.
const AutoApprover = "auto-approved"

// Interfaces through which a decision can be collected.
const (
	InterfaceCLI = "cli"
	InterfaceWeb = "web"
	InterfaceAPI = "api"
)

// Config controls the workflow. It is read once at startup.
type Config struct {
	Enabled                 bool     `yaml:"enabled" json:"enabled"`
	Interface               string   `yaml:"interface" json:"interface" validate:"omitempty,oneof=cli web api"`
	TimeoutSeconds          float64  `yaml:"timeout_seconds" json:"timeoutSeconds" validate:"gt=0"`
	AllowedApprovers        []string `yaml:"allowed_approvers" json:"allowedApprovers" validate:"dive,required"`
	AutoApproveEnvironments []string `yaml:"auto_approve_environments" json:"autoApproveEnvironments" validate:"dive,required"`
}

// DefaultTimeout applies when TimeoutSeconds is zero.
const DefaultTimeout = 5 * time.Minute

// DefaultConfig returns an enabled CLI workflow that auto-approves the
// development environment.
func DefaultConfig() Config {
	return Config{
		Enabled:                 true,
		Interface:               InterfaceCLI,
		TimeoutSeconds:          DefaultTimeout.Seconds(),
		AutoApproveEnvironments: []string{"development"},
	}
}

// Timeout returns the prompt deadline.
func (c Config) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return DefaultTimeout
	}
	return time.Duration(c.TimeoutSeconds * float64(time.Second))
}

// ApproverAllowed reports whether an identity may approve. An empty
// allow-list accepts anyone.
func (c Config) ApproverAllowed(approver string) bool {
	return len(c.AllowedApprovers) == 0 || slices.Contains(c.AllowedApprovers, approver)
}

// AutoApproves reports whether env skips the human decision.
func (c Config) AutoApproves(env string) bool {
	return slices.Contains(c.AutoApproveEnvironments, env)
}

// Request is one action waiting on, or resolved by, a human decision.
type Request struct {
	ID                string           `json:"id"`
	Timestamp         time.Time        `json:"timestamp"`
	Actor             string           `json:"actor"`
	Environment       string           `json:"environment"`
	ToolName          string           `json:"toolName"`
	Action            string           `json:"action"`
	Parameters        map[string]any   `json:"parameters,omitempty"`
	RiskLevel         policy.RiskLevel `json:"riskLevel"`
	Reason            string           `json:"reason,omitempty"`
	Status            Status           `json:"status"`
	Approver          string           `json:"approver,omitempty"`
	ApprovalTimestamp *time.Time       `json:"approvalTimestamp,omitempty"`
	ExpiresAt         time.Time        `json:"expiresAt"`
	Resolution        string           `json:"resolution,omitempty"`
}

// Key returns "tool.action".
func (r *Request) Key() string {
	return r.ToolName + "." + r.Action
}

// Input describes the action to be approved.
type Input struct {
	Actor       string
	Environment string
	ToolName    string
	Action      string
	Parameters  map[string]any
	RiskLevel   policy.RiskLevel
	Reason      string
}

// Decision is the outcome of RequestApproval.
type Decision struct {
	Approved  bool   `json:"approved"`
	RequestID string `json:"requestId,omitempty"`
	Status    Status `json:"status"`
	Approver  string `json:"approver,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

func decisionOf(r *Request) Decision {
	return Decision{
		Approved:  r.Status == StatusApproved,
		RequestID: r.ID,
		Status:    r.Status,
		Approver:  r.Approver,
		Reason:    r.Resolution,
	}
}
