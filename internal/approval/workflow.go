package approval

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"mcpguard/internal/metrics"
	"mcpguard/internal/policy"
	"mcpguard/internal/redact"
)

// Options configures a Workflow.
type Options struct {
	Config Config

	// LogPath is the approval log file. Defaults to logs/approvals.jsonl.
	LogPath string

	// Prompter collects decisions. Defaults to a CLIPrompter on stdin/stderr.
	Prompter Prompter

	// Now is the clock for timestamps and expiry. Defaults to time.Now.
	Now func() time.Time

	// Redactor masks parameters before they are logged or displayed.
	Redactor *redact.Redactor
}

type pending struct {
	req  *Request
	done chan struct{} // closed once req reaches a terminal state
	err  error         // approval log error for the resolution, set before done closes
}

// Workflow owns the pending-request set and the approval log.
type Workflow struct {
	cfg      Config
	log      *Log
	prompter Prompter
	now      func() time.Time
	redactor *redact.Redactor

	mu      sync.Mutex
	pending map[string]*pending
}

// NewWorkflow creates a workflow.
func NewWorkflow(opts Options) *Workflow {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Prompter == nil {
		opts.Prompter = promptFor(opts.Config.Interface)
	}
	return &Workflow{
		cfg:      opts.Config,
		log:      NewLog(opts.LogPath),
		prompter: opts.Prompter,
		now:      opts.Now,
		redactor: opts.Redactor,
		pending:  make(map[string]*pending),
	}
}

// NewPrompter returns the prompter for an interface. Only the terminal is
// implemented; web and api use it too.
func NewPrompter(iface string, in io.Reader, out io.Writer, defaultApprover string) Prompter {
	switch iface {
	case "", InterfaceCLI:
	default:
		slog.Warn("approval interface not implemented, using cli", "interface", iface)
	}
	return NewCLIPrompter(in, out, defaultApprover)
}

func promptFor(iface string) Prompter {
	return NewPrompter(iface, os.Stdin, os.Stderr, os.Getenv("USER"))
}

// Config returns the workflow configuration.
func (w *Workflow) Config() Config { return w.cfg }

// LogPath returns the approval log file.
func (w *Workflow) LogPath() string { return w.log.Path() }

// RequestApproval resolves an approval for one action. It returns when a
// decision is made by the prompter, by Approve/Reject, by expiry, or when
// the timeout elapses. A non-nil error means the resolution could not be
// logged or ctx was cancelled; the decision is then never an approval.
func (w *Workflow) RequestApproval(ctx context.Context, in Input) (Decision, error) {
	if !w.cfg.Enabled {
		return Decision{Approved: true, Status: StatusApproved, Reason: ReasonDisabled}, nil
	}

	req := w.newRequest(in)

	if w.cfg.AutoApproves(in.Environment) {
		ts := req.Timestamp
		req.Status = StatusApproved
		req.Approver = AutoApprover
		req.ApprovalTimestamp = &ts
		slog.Info("approval auto-approved", "id", req.ID, "action", req.Key(), "environment", req.Environment)
		metrics.ApprovalsTotal.WithLabelValues(string(StatusApproved)).Inc()
		if err := w.append(req); err != nil {
			return Decision{Status: StatusRejected, RequestID: req.ID, Reason: err.Error()}, err
		}
		return decisionOf(req), nil
	}

	// The prompter gets its own copy; resolve mutates req under w.mu.
	view := *req
	p := &pending{req: req, done: make(chan struct{})}
	w.mu.Lock()
	w.pending[req.ID] = p
	metrics.PendingApprovals.Set(float64(len(w.pending)))
	w.mu.Unlock()
	slog.Info("approval requested", "id", view.ID, "action", view.Key(), "risk", view.RiskLevel, "expires_at", view.ExpiresAt)

	pctx, cancel := context.WithTimeout(ctx, w.cfg.Timeout())
	defer cancel()

	answers := make(chan Answer, 1)
	go func() {
		ans, err := w.prompter.Prompt(pctx, view)
		if err != nil {
			if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
				slog.Debug("approval prompt ended without answer", "id", view.ID, "err", err)
			}
			return
		}
		answers <- ans
	}()

	var logErr error
	select {
	case <-p.done:
	case ans := <-answers:
		switch {
		case !ans.Approved:
			_, logErr = w.resolve(req.ID, StatusRejected, ans.Approver, ReasonRejectedByUser)
		case !w.cfg.ApproverAllowed(ans.Approver):
			slog.Warn("approver not authorized", "id", req.ID, "approver", ans.Approver)
			_, logErr = w.resolve(req.ID, StatusRejected, ans.Approver, ReasonApproverNotAuthorized)
		default:
			_, logErr = w.resolve(req.ID, StatusApproved, ans.Approver, "")
		}
	case <-pctx.Done():
		if ctx.Err() != nil {
			_, logErr = w.resolve(req.ID, StatusRejected, "", ReasonCancelled)
		} else {
			_, logErr = w.resolve(req.ID, StatusExpired, "", ReasonTimeout)
		}
	}
	cancel()

	// Another path may have resolved first; done is closed either way.
	<-p.done
	if p.err != nil {
		logErr = p.err
	}
	final := *p.req
	w.prompter.Outcome(final)

	d := decisionOf(&final)
	if logErr != nil {
		d.Approved = false
		return d, logErr
	}
	if ctx.Err() != nil && final.Resolution == ReasonCancelled {
		return d, ctx.Err()
	}
	return d, nil
}

func (w *Workflow) newRequest(in Input) *Request {
	now := w.now().UTC()
	risk := in.RiskLevel
	if risk == "" {
		risk = policy.ClassifyRisk(in.Action)
	}
	return &Request{
		ID:          "apr_" + uuid.New().String()[:8],
		Timestamp:   now,
		Actor:       in.Actor,
		Environment: in.Environment,
		ToolName:    in.ToolName,
		Action:      in.Action,
		Parameters:  w.redactor.Params(in.Parameters),
		RiskLevel:   risk,
		Reason:      in.Reason,
		Status:      StatusPending,
		ExpiresAt:   now.Add(w.cfg.Timeout()),
	}
}

// resolve moves a pending request to a terminal state, removes it from the
// pending set, appends it to the log and then wakes its waiter. It returns
// false when the id is not pending.
func (w *Workflow) resolve(id string, status Status, approver, resolution string) (bool, error) {
	w.mu.Lock()
	p, ok := w.pending[id]
	if !ok {
		w.mu.Unlock()
		return false, nil
	}
	ts := w.now().UTC()
	p.req.Status = status
	p.req.Approver = approver
	p.req.Resolution = resolution
	if status != StatusExpired {
		p.req.ApprovalTimestamp = &ts
	}
	delete(w.pending, id)
	metrics.PendingApprovals.Set(float64(len(w.pending)))
	snapshot := *p.req
	w.mu.Unlock()

	metrics.ApprovalsTotal.WithLabelValues(string(status)).Inc()
	slog.Info("approval resolved", "id", id, "status", status, "approver", approver, "resolution", resolution)
	err := w.append(&snapshot)
	p.err = err
	close(p.done)
	return true, err
}

func (w *Workflow) append(req *Request) error {
	if err := w.log.Append(req); err != nil {
		metrics.AuditWriteErrorsTotal.WithLabelValues("approval").Inc()
		slog.Error("approval log write failed", "id", req.ID, "err", err)
		return err
	}
	return nil
}

// Sweep expires every pending request whose deadline has passed and returns
// how many were expired. Each request is expired at most once.
func (w *Workflow) Sweep(ctx context.Context) (int, error) {
	now := w.now()
	w.mu.Lock()
	var due []string
	for id, p := range w.pending {
		if !now.Before(p.req.ExpiresAt) {
			due = append(due, id)
		}
	}
	w.mu.Unlock()

	n := 0
	var errs []error
	for _, id := range due {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		ok, err := w.resolve(id, StatusExpired, "", ReasonTimeout)
		if ok {
			n++
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return n, errors.Join(errs...)
}

// PendingRequests expires overdue requests and returns copies of the rest,
// oldest first.
func (w *Workflow) PendingRequests(ctx context.Context) ([]Request, error) {
	if _, err := w.Sweep(ctx); err != nil {
		slog.Warn("approval sweep incomplete", "err", err)
	}
	w.mu.Lock()
	out := make([]Request, 0, len(w.pending))
	for _, p := range w.pending {
		out = append(out, *p.req)
	}
	w.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID < out[j].ID
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

// Approve resolves a pending request as approved. It returns false when the
// id is unknown, the approver is not allowed, or the request has already
// expired, in which case it is marked expired.
func (w *Workflow) Approve(ctx context.Context, id, approver string) bool {
	return w.manual(ctx, id, approver, StatusApproved, "")
}

// Reject resolves a pending request as rejected. An empty reason records
// rejected_by_user.
func (w *Workflow) Reject(ctx context.Context, id, approver, reason string) bool {
	if reason == "" {
		reason = ReasonRejectedByUser
	}
	return w.manual(ctx, id, approver, StatusRejected, reason)
}

func (w *Workflow) manual(ctx context.Context, id, approver string, status Status, reason string) bool {
	if ctx.Err() != nil {
		return false
	}
	w.mu.Lock()
	p, ok := w.pending[id]
	expired := ok && !w.now().Before(p.req.ExpiresAt)
	w.mu.Unlock()
	if !ok {
		return false
	}
	if expired {
		w.resolve(id, StatusExpired, "", ReasonTimeout) //nolint:errcheck // logged in append
		return false
	}
	if !w.cfg.ApproverAllowed(approver) {
		slog.Warn("approver not authorized", "id", id, "approver", approver)
		return false
	}
	ok, err := w.resolve(id, status, approver, reason)
	return ok && err == nil
}

// Pending returns the number of outstanding requests without sweeping.
func (w *Workflow) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}
