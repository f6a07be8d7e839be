package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"mcpguard/internal/approval"
	"mcpguard/internal/governance"
)

// Exit codes of "run" when governance stops the command.
const (
	exitBlocked  = 3
	exitRejected = 4
	exitExpired  = 5
)

// paramFlag collects repeated --param key=value flags.
type paramFlag map[string]any

func (p paramFlag) String() string { return fmt.Sprint(map[string]any(p)) }

func (p paramFlag) Set(v string) error {
	k, val, ok := strings.Cut(v, "=")
	if !ok || k == "" {
		return fmt.Errorf("expected key=value, got %q", v)
	}
	p[k] = val
	return nil
}

func (a *app) cmdRun(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	tool := fs.String("tool", "", "Tool (MCP server) name")
	action := fs.String("action", "", "Action name")
	env := fs.String("env", "development", "Environment")
	actor := fs.String("actor", currentUser(), "Identity of the caller")
	token := fs.String("token", os.Getenv("MCPGUARD_TOKEN"), "Bearer token for scope checks")
	params := paramFlag{}
	fs.Var(params, "param", "Action parameter key=value (repeatable)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	command := fs.Args()
	if *tool == "" || *action == "" || len(command) == 0 {
		fmt.Fprintln(a.stderr, "Error: --tool, --action and a command are required")
		return 2
	}
	params["command"] = strings.Join(command, " ")

	logger := a.auditLogger()
	wf := a.workflow(*actor)
	g, err := a.governor(logger, wf)
	if err != nil {
		fmt.Fprintf(a.stderr, "Error: %v\n", err)
		return 1
	}

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go (&approval.Sweeper{Workflow: wf}).Run(sweepCtx) //nolint:errcheck

	err = g.Run(ctx, governance.Descriptor{
		Actor:       *actor,
		Environment: *env,
		ToolName:    *tool,
		Action:      *action,
		Parameters:  params,
		Token:       *token,
	}, func(ctx context.Context) error {
		cmd := exec.CommandContext(ctx, command[0], command[1:]...)
		cmd.Stdout = a.stdout
		cmd.Stderr = a.stderr
		return cmd.Run()
	})
	return a.exitCode(err)
}

func (a *app) exitCode(err error) int {
	switch governance.CategoryOf(err) {
	case "":
		return 0
	case governance.CategoryBlocked:
		fmt.Fprintf(a.stderr, "⛔ BLOCKED: %v\n", err)
		return exitBlocked
	case governance.CategoryRejected:
		fmt.Fprintf(a.stderr, "❌ REJECTED: %v\n", err)
		return exitRejected
	case governance.CategoryExpired:
		fmt.Fprintf(a.stderr, "⏱  EXPIRED: %v\n", err)
		return exitExpired
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	fmt.Fprintf(a.stderr, "Error: %v\n", err)
	return 1
}
