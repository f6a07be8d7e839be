package policy

import (
	"log/slog"

	"mcpguard/internal/metrics"
)

// Firewall evaluates actions against a RuleSet.
type Firewall struct {
	rules RuleSet
}

// NewFirewall creates a firewall over a copy of the given rules.
func NewFirewall(rules RuleSet) *Firewall {
	return &Firewall{rules: RuleSet{
		AllowedActions:      append([]string(nil), rules.AllowedActions...),
		BlockedActions:      append([]string(nil), rules.BlockedActions...),
		RequireApproval:     append([]string(nil), rules.RequireApproval...),
		AllowedEnvironments: append([]string(nil), rules.AllowedEnvironments...),
	}}
}

// Rules returns the firewall's rule set.
func (f *Firewall) Rules() RuleSet {
	return f.rules
}

// Validate evaluates an action in an environment and returns a verdict.
func (f *Firewall) Validate(action, environment string) Verdict {
	v, _ := f.evaluate(action, environment)
	logVerdict(action, environment, v)
	metrics.FirewallDecisionsTotal.WithLabelValues(string(v.Effect)).Inc()
	return v
}

// evaluate runs the checks in order and records each one in the trace.
// The first check that fires decides.
func (f *Firewall) evaluate(action, environment string) (Verdict, []Step) {
	var steps []Step

	if f.rules.IsBlocked(action) {
		steps = append(steps, Step{Check: CheckBlocked, Fired: true})
		return Verdict{Effect: EffectDeny, Reason: ReasonBlocked, Rule: CheckBlocked}, steps
	}
	steps = append(steps, Step{Check: CheckBlocked})

	if !f.rules.EnvironmentAllowed(environment) {
		steps = append(steps, Step{Check: CheckEnvironment, Fired: true})
		return Verdict{Effect: EffectDeny, Reason: ReasonEnvironment, Rule: CheckEnvironment}, steps
	}
	steps = append(steps, Step{Check: CheckEnvironment})

	if f.rules.NeedsApproval(action) {
		steps = append(steps, Step{Check: CheckApproval, Fired: true})
		return Verdict{Effect: EffectRequireApproval, Reason: ReasonRequiresApproval, Rule: CheckApproval}, steps
	}
	steps = append(steps, Step{Check: CheckApproval})

	if !f.rules.ActionAllowed(action) {
		steps = append(steps, Step{Check: CheckAllowList, Fired: true})
		return Verdict{Effect: EffectDeny, Reason: ReasonNotAllowed, Rule: CheckAllowList}, steps
	}
	steps = append(steps, Step{Check: CheckAllowList, Skipped: len(f.rules.AllowedActions) == 0})

	return Verdict{Effect: EffectAllow, Rule: "default"}, steps
}

func logVerdict(action, environment string, v Verdict) {
	attrs := []any{
		"action", action,
		"environment", environment,
		"effect", v.Effect,
		"rule", v.Rule,
	}
	if v.Reason != "" {
		attrs = append(attrs, "reason", v.Reason)
	}

	switch v.Effect {
	case EffectDeny:
		slog.Warn("firewall decision: DENY", attrs...)
	case EffectRequireApproval:
		slog.Info("firewall decision: REQUIRE_APPROVAL", attrs...)
	default:
		slog.Debug("firewall decision: ALLOW", attrs...)
	}
}

// Err converts a verdict into an error. Allowed verdicts return nil.
func (v Verdict) Err() error {
	switch v.Effect {
	case EffectAllow:
		return nil
	case EffectRequireApproval:
		return &ApprovalRequiredError{Verdict: v}
	default:
		return &DeniedError{Verdict: v}
	}
}

// DeniedError is returned when the firewall denies an action.
type DeniedError struct {
	Verdict Verdict
}

func (e *DeniedError) Error() string {
	if e.Verdict.Reason != "" {
		return "action denied: " + e.Verdict.Reason
	}
	return "action denied by rule " + e.Verdict.Rule
}

// ApprovalRequiredError is returned when an action needs human approval.
type ApprovalRequiredError struct {
	Verdict Verdict
}

func (e *ApprovalRequiredError) Error() string {
	return "approval required: " + e.Verdict.Reason
}

// IsApprovalRequired returns true if the error indicates approval is required.
func IsApprovalRequired(err error) bool {
	if err == nil {
		return false
	}
	_, ok := err.(*ApprovalRequiredError)
	return ok
}

// IsDenied returns true if the error indicates the action was denied.
func IsDenied(err error) bool {
	if err == nil {
		return false
	}
	_, ok := err.(*DeniedError)
	return ok
}
