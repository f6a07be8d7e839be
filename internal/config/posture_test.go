package config

import (
	"strings"
	"testing"

	"mcpguard/internal/policy"
)

// hardenedConfig returns a config with every control in place.
func hardenedConfig() *Config {
	cfg := Default()
	cfg.Firewall = policy.RuleSet{
		BlockedActions:      []string{"deleteRepo"},
		RequireApproval:     []string{"mergePR"},
		AllowedEnvironments: []string{"development", "production"},
	}
	cfg.Approval.AllowedApprovers = []string{"alice"}
	cfg.Schemas.Enabled = true
	cfg.Scopes.Secret = "s3cret"
	cfg.Scopes.Required = map[string][]string{"*": {"mcp:invoke"}}
	return cfg
}

func modules(vs []Violation) string {
	var parts []string
	for _, v := range vs {
		parts = append(parts, v.Module+":"+v.Severity)
	}
	return strings.Join(parts, ",")
}

func TestViolations(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"hardened", func(*Config) {}, ""},
		{"empty firewall", func(c *Config) {
			c.Firewall.BlockedActions = nil
			c.Firewall.RequireApproval = nil
		}, "firewall:warning"},
		{"approvals disabled with production gated", func(c *Config) {
			c.Approval.Enabled = false
		}, "approval:fatal"},
		{"approvals disabled without production", func(c *Config) {
			c.Approval.Enabled = false
			c.Firewall.AllowedEnvironments = []string{"development"}
		}, "approval:warning"},
		{"production auto-approved", func(c *Config) {
			c.Approval.AutoApproveEnvironments = []string{"development", "prod"}
		}, "approval:fatal"},
		{"open approver list", func(c *Config) {
			c.Approval.AllowedApprovers = nil
		}, "approval:warning"},
		{"redaction disabled", func(c *Config) {
			c.Redact.Disabled = true
		}, "redaction:warning"},
		{"schemas off", func(c *Config) {
			c.Schemas.Enabled = false
		}, "schemas:warning"},
		{"no scopes", func(c *Config) {
			c.Scopes.Required = nil
		}, "scopes:warning"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := hardenedConfig()
			tt.mutate(cfg)
			if got := modules(cfg.Violations()); got != tt.want {
				t.Errorf("violations = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestViolations_Defaults(t *testing.T) {
	got := modules(Default().Violations())
	want := "firewall:warning,approval:warning,schemas:warning,scopes:warning"
	if got != want {
		t.Errorf("violations = %q, want %q", got, want)
	}
}

func TestReport(t *testing.T) {
	if err := Report(nil, "test"); err != nil {
		t.Errorf("no violations: %v", err)
	}
	if err := Report([]Violation{{Module: "schemas", Severity: SeverityWarning}}, "test"); err != nil {
		t.Errorf("warnings only: %v", err)
	}
	err := Report([]Violation{
		{Module: "approval", Severity: SeverityFatal},
		{Module: "schemas", Severity: SeverityWarning},
	}, "test")
	if err == nil || !strings.Contains(err.Error(), "1 fatal") {
		t.Errorf("err = %v, want 1 fatal", err)
	}
}
