package policy

import (
	"fmt"
	"strings"
)

// Firewall check names, in evaluation order.
const (
	CheckBlocked     = "blocked_actions"
	CheckEnvironment = "allowed_environments"
	CheckApproval    = "require_approval"
	CheckAllowList   = "allowed_actions"
)

// Step records one firewall check during an evaluation.
type Step struct {
	Check   string `json:"check"`
	Fired   bool   `json:"fired"`
	Skipped bool   `json:"skipped,omitempty"` // allow-list not configured
}

// Trace is a full record of how a verdict was reached.
type Trace struct {
	Action      string    `json:"action"`
	Environment string    `json:"environment"`
	Verdict     Verdict   `json:"verdict"`
	Steps       []Step    `json:"steps"`
	Risk        RiskLevel `json:"risk_level"`
	Explanation string    `json:"explanation"`
}

// Explain evaluates an action like Validate but returns the full trace with
// a human-readable explanation. It does not log or count the decision.
func (f *Firewall) Explain(action, environment string) Trace {
	v, steps := f.evaluate(action, environment)
	t := Trace{
		Action:      action,
		Environment: environment,
		Verdict:     v,
		Steps:       steps,
		Risk:        ClassifyRisk(action),
	}
	t.Explanation = buildExplanation(t)
	return t
}

// buildExplanation is a pure function of the trace.
func buildExplanation(t Trace) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Action %q in environment %q (risk: %s): %s\n",
		t.Action, t.Environment, t.Risk, effectLabel(t.Verdict.Effect))

	b.WriteString("\n")
	for i, s := range t.Steps {
		mark := "✓"
		detail := "passed"
		switch {
		case s.Fired:
			mark = "✗"
			detail = "matched"
		case s.Skipped:
			mark = "-"
			detail = "not configured, permissive"
		}
		fmt.Fprintf(&b, "  %d. %s %-22s %s\n", i+1, mark, s.Check, detail)
	}

	b.WriteString("\n")
	switch t.Verdict.Effect {
	case EffectDeny:
		fmt.Fprintf(&b, "Reason: %s", t.Verdict.Reason)
	case EffectRequireApproval:
		b.WriteString("The action must be approved by a human before it runs.")
	case EffectAllow:
		b.WriteString("The action is permitted to proceed.")
	}

	return b.String()
}

func effectLabel(e Effect) string {
	switch e {
	case EffectRequireApproval:
		return "REQUIRES APPROVAL"
	case EffectDeny:
		return "DENIED"
	case EffectAllow:
		return "ALLOWED"
	default:
		return strings.ToUpper(string(e))
	}
}
