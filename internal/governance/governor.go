// Package governance runs tool actions under the capability firewall, the
// approval workflow and the audit log.
package governance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"mcpguard/internal/approval"
	"mcpguard/internal/audit"
	"mcpguard/internal/metrics"
	"mcpguard/internal/policy"
)

// Descriptor identifies one action invocation.
type Descriptor struct {
	Actor       string
	Environment string
	ToolName    string
	Action      string
	Parameters  map[string]any

	// Token is the caller's bearer token, checked when scopes are required.
	Token string
}

// Approver decides approval-gated actions.
type Approver interface {
	RequestApproval(ctx context.Context, in approval.Input) (approval.Decision, error)
}

// ParamValidator checks action parameters.
type ParamValidator interface {
	Validate(tool, action string, params map[string]any) error
}

// ScopeChecker checks that a token grants an action.
type ScopeChecker interface {
	Check(token, tool, action string) error
}

// Config wires a Governor. Firewall and Audit are required.
type Config struct {
	Firewall  *policy.Firewall
	Audit     audit.Auditor
	Approvals Approver       // nil rejects every approval-gated action
	Schemas   ParamValidator // optional
	Scopes    ScopeChecker   // optional
}

// Governor composes the governance components.
type Governor struct {
	firewall  *policy.Firewall
	audit     audit.Auditor
	approvals Approver
	schemas   ParamValidator
	scopes    ScopeChecker
}

// New creates a Governor.
func New(cfg Config) (*Governor, error) {
	if cfg.Firewall == nil {
		return nil, errors.New("governance: firewall required")
	}
	if cfg.Audit == nil {
		return nil, errors.New("governance: audit log required")
	}
	return &Governor{
		firewall:  cfg.Firewall,
		audit:     cfg.Audit,
		approvals: cfg.Approvals,
		schemas:   cfg.Schemas,
		scopes:    cfg.Scopes,
	}, nil
}

// Firewall returns the governor's firewall.
func (g *Governor) Firewall() *policy.Firewall { return g.firewall }

// Check evaluates the firewall without executing or auditing anything.
func (g *Governor) Check(d Descriptor) policy.Verdict {
	return g.firewall.Validate(d.Action, d.Environment)
}

// Execute runs fn for d if every gate permits it and audits the outcome.
//
// Denials surface as *Error with CategoryBlocked, CategoryRejected or
// CategoryExpired. An error from fn is audited and returned unchanged. If
// the success record cannot be written, fn's result is returned together
// with an error wrapping ErrUnaudited.
func Execute[T any](ctx context.Context, g *Governor, d Descriptor, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	risk := policy.ClassifyRisk(d.Action)

	if g.scopes != nil {
		if err := g.scopes.Check(d.Token, d.ToolName, d.Action); err != nil {
			return zero, g.deny(ctx, d, risk, CategoryBlocked, err.Error(), err)
		}
	}

	verdict := g.firewall.Validate(d.Action, d.Environment)
	if verdict.IsDenied() {
		return zero, g.deny(ctx, d, risk, CategoryBlocked, verdict.Reason, verdict.Err())
	}

	if g.schemas != nil {
		if err := g.schemas.Validate(d.ToolName, d.Action, d.Parameters); err != nil {
			return zero, g.deny(ctx, d, risk, CategoryBlocked, err.Error(), err)
		}
	}

	if verdict.NeedsApproval() {
		if err := g.approve(ctx, d, risk, verdict); err != nil {
			return zero, err
		}
	}

	// Refuse to run what could not be audited.
	if err := g.audit.Ready(ctx); err != nil {
		slog.Error("audit log unavailable, refusing to execute", "action", d.ToolName+"."+d.Action, "err", err)
		metrics.GovernedInvocationsTotal.WithLabelValues(d.ToolName, d.Action, string(CategoryBlocked)).Inc()
		return zero, &Error{Category: CategoryBlocked, Reason: "audit log unavailable", ToolName: d.ToolName, Action: d.Action, Err: err}
	}

	start := time.Now()
	result, err := fn(ctx)
	elapsed := time.Since(start)
	metrics.ExecutionDuration.WithLabelValues(d.ToolName, d.Action).Observe(elapsed.Seconds())

	entry := g.entry(d, risk)
	entry.DurationMs = audit.Millis(elapsed)
	if err != nil {
		entry.Result = audit.ResultFailure
		entry.Reason = err.Error()
		if _, werr := g.audit.Record(ctx, entry); werr != nil {
			slog.Error("failed to audit execution failure", "action", d.ToolName+"."+d.Action, "err", werr)
		}
		metrics.GovernedInvocationsTotal.WithLabelValues(d.ToolName, d.Action, string(audit.ResultFailure)).Inc()
		return zero, err
	}

	entry.Result = audit.ResultSuccess
	metrics.GovernedInvocationsTotal.WithLabelValues(d.ToolName, d.Action, string(audit.ResultSuccess)).Inc()
	if _, werr := g.audit.Record(ctx, entry); werr != nil {
		return result, fmt.Errorf("%w: %v", ErrUnaudited, werr)
	}
	return result, nil
}

// Run is Execute for actions without a result value.
func (g *Governor) Run(ctx context.Context, d Descriptor, fn func(context.Context) error) error {
	_, err := Execute(ctx, g, d, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

func (g *Governor) approve(ctx context.Context, d Descriptor, risk policy.RiskLevel, verdict policy.Verdict) error {
	if g.approvals == nil {
		return g.deny(ctx, d, risk, CategoryRejected, "no approval workflow configured", verdict.Err())
	}
	decision, err := g.approvals.RequestApproval(ctx, approval.Input{
		Actor:       d.Actor,
		Environment: d.Environment,
		ToolName:    d.ToolName,
		Action:      d.Action,
		Parameters:  d.Parameters,
		RiskLevel:   risk,
		Reason:      verdict.Reason,
	})
	if err == nil && decision.Approved {
		slog.Info("approval granted", "action", d.ToolName+"."+d.Action, "approver", decision.Approver, "request", decision.RequestID)
		return nil
	}

	category := CategoryRejected
	if decision.Status == approval.StatusExpired {
		category = CategoryExpired
	}
	reason := decision.Reason
	if reason == "" && err != nil {
		reason = err.Error()
	}
	if reason == "" {
		reason = string(decision.Status)
	}
	return g.deny(ctx, d, risk, category, reason, err)
}

// deny audits a blocked attempt and builds the error for the caller.
func (g *Governor) deny(ctx context.Context, d Descriptor, risk policy.RiskLevel, category Category, reason string, cause error) error {
	entry := g.entry(d, risk)
	entry.Result = audit.ResultBlocked
	entry.Reason = reason
	metrics.GovernedInvocationsTotal.WithLabelValues(d.ToolName, d.Action, string(category)).Inc()

	gerr := &Error{Category: category, Reason: reason, ToolName: d.ToolName, Action: d.Action, Err: cause}
	if _, werr := g.audit.Record(ctx, entry); werr != nil {
		slog.Error("failed to audit blocked action", "action", d.ToolName+"."+d.Action, "err", werr)
		gerr.Err = errors.Join(cause, fmt.Errorf("%w: %v", ErrUnaudited, werr))
	}
	return gerr
}

func (g *Governor) entry(d Descriptor, risk policy.RiskLevel) audit.Entry {
	return audit.Entry{
		Actor:       d.Actor,
		Environment: d.Environment,
		ToolName:    d.ToolName,
		Action:      d.Action,
		Parameters:  d.Parameters,
		RiskLevel:   risk,
	}
}
