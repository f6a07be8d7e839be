package approval

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// ErrNoInput is returned by a prompter whose input is exhausted.
var ErrNoInput = errors.New("no approval input available")

// Answer is a human's reply to a prompt.
type Answer struct {
	Approved bool
	Approver string
}

// Prompter collects a decision from a human. Prompt must return when ctx is
// done. Outcome presents the terminal state of a prompted request.
type Prompter interface {
	Prompt(ctx context.Context, req Request) (Answer, error)
	Outcome(req Request)
}

// CLIPrompter asks on a terminal. A single goroutine reads input lines so a
// cancelled prompt never leaves a reader blocked on the stream; prompts are
// serialized so concurrent requests do not interleave on screen.
type CLIPrompter struct {
	out             io.Writer
	in              io.Reader
	defaultApprover string

	once  sync.Once
	lines chan string
	sem   chan struct{}
	mu    sync.Mutex // guards writes to out
}

// NewCLIPrompter reads answers from in and writes prompts to out. When the
// approver line is left blank, defaultApprover is used.
func NewCLIPrompter(in io.Reader, out io.Writer, defaultApprover string) *CLIPrompter {
	return &CLIPrompter{
		in:              in,
		out:             out,
		defaultApprover: defaultApprover,
		lines:           make(chan string),
		sem:             make(chan struct{}, 1),
	}
}

func (p *CLIPrompter) startReader() {
	p.once.Do(func() {
		go func() {
			defer close(p.lines)
			sc := bufio.NewScanner(p.in)
			for sc.Scan() {
				p.lines <- strings.TrimSpace(sc.Text())
			}
		}()
	})
}

func (p *CLIPrompter) readLine(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-p.lines:
		if !ok {
			return "", ErrNoInput
		}
		return line, nil
	}
}

func (p *CLIPrompter) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, format, args...)
}

// Prompt prints the full request and waits for y/n and an approver name.
func (p *CLIPrompter) Prompt(ctx context.Context, req Request) (Answer, error) {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return Answer{}, ctx.Err()
	}
	defer func() { <-p.sem }()
	p.startReader()

	p.printf("%s", renderRequest(&req))
	p.printf("Approve this action? [y/N]: ")
	line, err := p.readLine(ctx)
	if err != nil {
		p.printf("\n")
		return Answer{}, err
	}
	switch strings.ToLower(line) {
	case "y", "yes":
	default:
		return Answer{Approved: false}, nil
	}

	p.printf("Approver identity: ")
	name, err := p.readLine(ctx)
	if err != nil {
		p.printf("\n")
		return Answer{}, err
	}
	if name == "" {
		name = p.defaultApprover
	}
	return Answer{Approved: true, Approver: name}, nil
}

// Outcome prints APPROVED, REJECTED or TIMED-OUT.
func (p *CLIPrompter) Outcome(req Request) {
	switch req.Status {
	case StatusApproved:
		p.printf("✅ APPROVED by %s (%s)\n", req.Approver, req.ID)
	case StatusExpired:
		p.printf("⏱  TIMED-OUT after waiting for approval (%s)\n", req.ID)
	default:
		p.printf("❌ REJECTED: %s (%s)\n", req.Resolution, req.ID)
	}
}

func renderRequest(r *Request) string {
	var b strings.Builder
	rule := strings.Repeat("-", 60)
	b.WriteString("\n" + rule + "\n")
	b.WriteString("APPROVAL REQUIRED\n")
	b.WriteString(rule + "\n")
	fmt.Fprintf(&b, "  Request:     %s\n", r.ID)
	fmt.Fprintf(&b, "  Tool:        %s\n", r.ToolName)
	fmt.Fprintf(&b, "  Action:      %s\n", r.Action)
	fmt.Fprintf(&b, "  Risk:        %s\n", strings.ToUpper(string(r.RiskLevel)))
	fmt.Fprintf(&b, "  Actor:       %s\n", r.Actor)
	fmt.Fprintf(&b, "  Environment: %s\n", r.Environment)
	if r.Reason != "" {
		fmt.Fprintf(&b, "  Reason:      %s\n", r.Reason)
	}
	if len(r.Parameters) > 0 {
		params, _ := json.MarshalIndent(r.Parameters, "  ", "  ")
		fmt.Fprintf(&b, "  Parameters:  %s\n", params)
	}
	fmt.Fprintf(&b, "  Expires:     %s\n", r.ExpiresAt.Format(time.RFC3339))
	b.WriteString(rule + "\n")
	return b.String()
}
