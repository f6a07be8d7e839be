// Package policy implements the capability firewall and risk classification
// that gate MCP tool actions before they run.
package policy

import "slices"

// Effect represents the outcome of a firewall evaluation.
type Effect string

const (
	EffectAllow           Effect = "allow"
	EffectDeny            Effect = "deny"
	EffectRequireApproval Effect = "require_approval"
)

// Reasons attached to firewall verdicts. The text is consumed by log readers
// and must stay stable.
const (
	ReasonBlocked          = "blocked by capability firewall"
	ReasonEnvironment      = "environment not in allowed list"
	ReasonRequiresApproval = "requires human approval"
	ReasonNotAllowed       = "not in allowed actions list"
)

// RuleSet is the static capability configuration. It is loaded once at
// startup and never mutated afterwards.
type RuleSet struct {
	// AllowedActions is an explicit allow-list. Empty means no allow-list is
	// configured and every action that passes the other checks is permitted.
	AllowedActions []string `yaml:"allowed_actions" json:"allowedActions"`

	// BlockedActions are always denied, in every environment.
	BlockedActions []string `yaml:"blocked_actions" json:"blockedActions"`

	// RequireApproval lists actions that must go through the approval workflow.
	RequireApproval []string `yaml:"require_approval" json:"requireApproval"`

	// AllowedEnvironments lists environments in which any action may run.
	AllowedEnvironments []string `yaml:"allowed_environments" json:"allowedEnvironments"`
}

// IsBlocked reports whether the action is on the block list.
func (r *RuleSet) IsBlocked(action string) bool {
	return slices.Contains(r.BlockedActions, action)
}

// NeedsApproval reports whether the action is approval-gated.
func (r *RuleSet) NeedsApproval(action string) bool {
	return slices.Contains(r.RequireApproval, action)
}

// EnvironmentAllowed reports whether the environment is on the allow-list.
func (r *RuleSet) EnvironmentAllowed(env string) bool {
	return slices.Contains(r.AllowedEnvironments, env)
}

// ActionAllowed reports whether the action passes the allow-list. An empty
// allow-list admits everything.
func (r *RuleSet) ActionAllowed(action string) bool {
	if len(r.AllowedActions) == 0 {
		return true
	}
	return slices.Contains(r.AllowedActions, action)
}

// Verdict is the result of a firewall evaluation.
type Verdict struct {
	Effect Effect `json:"effect"`
	Reason string `json:"reason,omitempty"`
	Rule   string `json:"rule"` // which check produced the verdict
}

// Allowed returns true only for an outright allow. Approval-gated actions
// report false until the approval workflow grants them.
func (v Verdict) Allowed() bool {
	return v.Effect == EffectAllow
}

// IsDenied returns true if the verdict is a hard denial.
func (v Verdict) IsDenied() bool {
	return v.Effect == EffectDeny
}

// NeedsApproval returns true if the action must be routed through approval.
func (v Verdict) NeedsApproval() bool {
	return v.Effect == EffectRequireApproval
}
