package config

import (
	"fmt"
	"log/slog"
	"slices"
)

// Severity of a posture violation.
const (
	SeverityFatal   = "fatal"
	SeverityWarning = "warning"
)

// Violation describes a governance control that is missing or weakened by
// the configuration.
type Violation struct {
	Module      string `json:"module"` // e.g. "firewall", "approval", "redaction"
	Severity    string `json:"severity"`
	Description string `json:"description"`
	Remediation string `json:"remediation"`
}

// productionEnvironments are the environment names treated as production.
var productionEnvironments = []string{"production", "prod"}

func isProduction(env string) bool {
	return slices.Contains(productionEnvironments, env)
}

// Violations checks the configuration for weakened governance controls.
// Fatal violations disable a control for production; warnings only reduce
// coverage.
//
// Checked modules:
//   - firewall:   at least one blocked or approval-gated action
//   - approval:   enabled, never auto-approved in production, approvers listed
//   - redaction:  not disabled
//   - schemas:    parameter validation enabled
//   - scopes:     token scopes required for some action
func (c *Config) Violations() []Violation {
	var v []Violation

	// 1. Firewall. With no deny or approval lists only the environment check applies.
	fw := c.Firewall
	if len(fw.BlockedActions) == 0 && len(fw.RequireApproval) == 0 {
		v = append(v, Violation{
			Module:      "firewall",
			Severity:    SeverityWarning,
			Description: "No actions are blocked or gated by approval. Only the environment allow-list is enforced.",
			Remediation: "Add firewall.blocked_actions or firewall.require_approval.",
		})
	}

	// 2. Approval workflow.
	if !c.Approval.Enabled {
		sev := SeverityWarning
		if slices.ContainsFunc(fw.AllowedEnvironments, isProduction) && len(fw.RequireApproval) > 0 {
			sev = SeverityFatal
		}
		v = append(v, Violation{
			Module:      "approval",
			Severity:    sev,
			Description: "Approvals are disabled. Approval-gated actions run without human sign-off.",
			Remediation: "Set approval.enabled: true.",
		})
	} else {
		if slices.ContainsFunc(c.Approval.AutoApproveEnvironments, isProduction) {
			v = append(v, Violation{
				Module:      "approval",
				Severity:    SeverityFatal,
				Description: "Production is auto-approved. Risky production actions run without human sign-off.",
				Remediation: "Remove production from approval.auto_approve_environments.",
			})
		}
		if len(c.Approval.AllowedApprovers) == 0 {
			v = append(v, Violation{
				Module:      "approval",
				Severity:    SeverityWarning,
				Description: "Any identity may approve requests.",
				Remediation: "List approvers in approval.allowed_approvers.",
			})
		}
	}

	// 3. Redaction of secrets in audit and approval records.
	if c.Redact.Disabled {
		v = append(v, Violation{
			Module:      "redaction",
			Severity:    SeverityWarning,
			Description: "Redaction is disabled. Secrets in parameters are written to the audit trail.",
			Remediation: "Remove redact.disabled.",
		})
	}

	// 4. Parameter schemas.
	if !c.Schemas.Enabled {
		v = append(v, Violation{
			Module:      "schemas",
			Severity:    SeverityWarning,
			Description: "Parameter schemas are not enforced.",
			Remediation: "Set schemas.enabled: true.",
		})
	}

	// 5. Token scopes.
	if len(c.Scopes.Required) == 0 {
		v = append(v, Violation{
			Module:      "scopes",
			Severity:    SeverityWarning,
			Description: "No token scopes are required. Callers are identified only by the actor they claim.",
			Remediation: "Set scopes.secret and scopes.required.",
		})
	}

	return v
}

// Report logs each violation and returns an error when any is fatal.
func Report(violations []Violation, component string) error {
	if len(violations) == 0 {
		return nil
	}
	slog.Warn("governance posture violations detected", "component", component, "count", len(violations))

	fatal := 0
	for _, v := range violations {
		attrs := []any{
			"component", component,
			"module", v.Module,
			"severity", v.Severity,
			"description", v.Description,
			"remediation", v.Remediation,
		}
		if v.Severity == SeverityFatal {
			fatal++
			slog.Error("governance violation", attrs...)
		} else {
			slog.Warn("governance violation", attrs...)
		}
	}
	if fatal > 0 {
		return fmt.Errorf("%d fatal governance violation(s)", fatal)
	}
	return nil
}
