// Package main implements mcpguard, a CLI that runs MCP tool actions under a
// capability firewall, human approval and an audit log, and reports on the
// resulting audit trail.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"mcpguard/internal/config"
	"mcpguard/internal/logging"
)

func main() {
	// Initialize logging first (strips --log-level from args)
	args := logging.InitLogging(os.Args[1:])

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, args, os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// app carries what every subcommand needs.
type app struct {
	cfg     *config.Config
	stdin   io.Reader
	stdout  io.Writer
	stderr  io.Writer
	jsonOut bool
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("mcpguard", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to the YAML config (or set "+config.EnvPath+")")
	outputJSON := fs.Bool("json", false, "Output in JSON format")

	fs.Usage = func() {
		fmt.Fprintf(stderr, `Usage: mcpguard [options] <command> [arguments]

Commands:
  check <action> [--env ENV]                 Show the firewall verdict for an action
  run --tool T --action A [flags] -- CMD...  Run a command under governance
  summary [--hours N]                        Summarize the audit log
  anomalies [--hours N]                      Detect anomalies in the audit log
  report                                     Write today's daily report
  verify                                     Verify audit hash chains
  approvals stats|list [--hours N]           Approval statistics and history
  doctor                                     Report weakened governance controls
  registry lookup <source> [--name N]        Identify a known MCP server
  registry list [--provider P] [--risk R]    List known MCP servers
  index ingest|query [flags]                 Mirror the audit log into SQL and query it
  serve [--addr ADDR]                        Serve metrics and reports, run the report schedule

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(stderr, `
Environment Variables:
  %s     Config file path
  MCPGUARD_LOG_LEVEL  debug, info, warn or error
  MCPGUARD_LOG_FORMAT text (default) or json
  MCPGUARD_TOKEN      Bearer token for scope checks in "run"

Examples:
  mcpguard check deleteRepo --env production
  mcpguard run --tool github --action mergePR --env staging -- gh pr merge 42
  mcpguard anomalies --hours 1
`, config.EnvPath)
	}

	if err := fs.Parse(args); err != nil {
		return 2
	}
	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return 2
	}

	cfg, err := config.LoadFile(config.Path(*configPath))
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	a := &app{cfg: cfg, stdin: stdin, stdout: stdout, stderr: stderr, jsonOut: *outputJSON}

	command, cmdArgs := rest[0], rest[1:]
	switch command {
	case "check":
		err = a.cmdCheck(cmdArgs)
	case "run":
		return a.cmdRun(ctx, cmdArgs)
	case "summary":
		err = a.cmdSummary(ctx, cmdArgs)
	case "anomalies":
		err = a.cmdAnomalies(ctx, cmdArgs)
	case "report":
		err = a.cmdReport(ctx)
	case "verify":
		err = a.cmdVerify(ctx)
	case "doctor":
		err = a.cmdDoctor()
	case "approvals":
		err = a.cmdApprovals(ctx, cmdArgs)
	case "registry":
		err = a.cmdRegistry(cmdArgs)
	case "index":
		err = a.cmdIndex(ctx, cmdArgs)
	case "serve":
		err = a.cmdServe(ctx, cmdArgs)
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", command)
		fs.Usage()
		return 2
	}

	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
