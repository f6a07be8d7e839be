package main

import (
	"flag"
	"fmt"
	"strings"

	"mcpguard/internal/policy"
)

func (a *app) cmdCheck(args []string) error {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	env := fs.String("env", "development", "Environment the action would run in")
	if err := fs.Parse(reorder(args)); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("action required")
	}

	trace := a.firewall().Explain(fs.Arg(0), *env)
	if a.jsonOut {
		return a.printJSON(trace)
	}

	fmt.Fprintf(a.stdout, "Action:      %s\n", trace.Action)
	fmt.Fprintf(a.stdout, "Environment: %s\n", trace.Environment)
	fmt.Fprintf(a.stdout, "Risk:        %s\n", trace.Risk)
	fmt.Fprintf(a.stdout, "Verdict:     %s %s\n", verdictIcon(trace.Verdict), trace.Verdict.Effect)
	if trace.Verdict.Reason != "" {
		fmt.Fprintf(a.stdout, "Reason:      %s\n", trace.Verdict.Reason)
	}
	fmt.Fprintf(a.stdout, "\n%s\n", trace.Explanation)
	return nil
}

func verdictIcon(v policy.Verdict) string {
	switch v.Effect {
	case policy.EffectAllow:
		return "✓"
	case policy.EffectRequireApproval:
		return "?"
	default:
		return "⛔"
	}
}

// reorder moves flags ahead of positional arguments so "check deleteRepo
// --env prod" parses like "check --env prod deleteRepo".
func reorder(args []string) []string {
	var flags, positional []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			positional = append(positional, args[i+1:]...)
			break
		}
		if len(arg) > 1 && arg[0] == '-' {
			flags = append(flags, arg)
			if !strings.Contains(arg, "=") && i+1 < len(args) && !isBoolFlag(arg) {
				flags = append(flags, args[i+1])
				i++
			}
			continue
		}
		positional = append(positional, arg)
	}
	return append(flags, positional...)
}

// Boolean flags used by subcommands take no separate value.
func isBoolFlag(arg string) bool {
	switch arg {
	case "-verified", "--verified", "-remote", "--remote":
		return true
	}
	return false
}
