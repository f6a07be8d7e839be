package main

import (
	"os"

	"mcpguard/internal/approval"
	"mcpguard/internal/audit"
	"mcpguard/internal/governance"
	"mcpguard/internal/policy"
	"mcpguard/internal/schema"
	"mcpguard/internal/scope"
)

func (a *app) auditLogger() *audit.Logger {
	return audit.NewLogger(audit.LoggerConfig{
		Dir:      a.cfg.Audit.Dir,
		Console:  a.stderr,
		Redactor: a.cfg.Redactor(),
	})
}

func (a *app) workflow(defaultApprover string) *approval.Workflow {
	return approval.NewWorkflow(approval.Options{
		Config:   a.cfg.Approval,
		LogPath:  a.cfg.Audit.ApprovalLog,
		Prompter: approval.NewPrompter(a.cfg.Approval.Interface, a.stdin, a.stderr, defaultApprover),
		Redactor: a.cfg.Redactor(),
	})
}

func (a *app) approvalLog() *approval.Log {
	return approval.NewLog(a.cfg.Audit.ApprovalLog)
}

func (a *app) firewall() *policy.Firewall {
	return policy.NewFirewall(a.cfg.Firewall)
}

func (a *app) governor(logger *audit.Logger, wf *approval.Workflow) (*governance.Governor, error) {
	cfg := governance.Config{
		Firewall:  a.firewall(),
		Audit:     logger,
		Approvals: wf,
	}
	if a.cfg.Schemas.Enabled {
		cfg.Schemas = schema.NewValidator(a.cfg.Schemas.Dir)
	}
	if checker := scope.NewChecker(a.cfg.Scopes); checker != nil {
		cfg.Scopes = checker
	}
	return governance.New(cfg)
}

func currentUser() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "unknown"
}
