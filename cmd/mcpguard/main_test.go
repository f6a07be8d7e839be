package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"mcpguard/internal/audit"
	"mcpguard/internal/config"
	"mcpguard/internal/policy"
	"mcpguard/internal/registry"
)

const testConfigYAML = `
firewall:
  blocked_actions: [deleteRepo]
  require_approval: [mergePR]
  allowed_environments: [development, staging]
approval:
  enabled: true
  timeout_seconds: 1
  auto_approve_environments: [development]
audit:
  dir: %s
  approval_log: %s
`

// writeTestConfig writes a config rooted in a temp dir and points
// MCPGUARD_CONFIG at it.
func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "mcpguard.yaml")
	body := fmt.Sprintf(testConfigYAML, filepath.Join(dir, "audit"), filepath.Join(dir, "approvals.jsonl"))
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(config.EnvPath, path)
	return dir
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, strings.NewReader(""), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_NoCommandPrintsUsage(t *testing.T) {
	writeTestConfig(t)
	code, _, stderr := runCLI(t)
	if code != 2 {
		t.Errorf("exit = %d, want 2", code)
	}
	if !strings.Contains(stderr, "Usage: mcpguard") {
		t.Errorf("stderr missing usage:\n%s", stderr)
	}
}

func TestRun_UnknownCommand(t *testing.T) {
	writeTestConfig(t)
	if code, _, _ := runCLI(t, "frobnicate"); code != 2 {
		t.Errorf("exit = %d, want 2", code)
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("approval:\n  interface: pager\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	code, _, stderr := runCLI(t, "--config", path, "check", "listIssues")
	if code != 1 {
		t.Errorf("exit = %d, want 1", code)
	}
	if !strings.Contains(stderr, "invalid config") {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestCheck(t *testing.T) {
	writeTestConfig(t)
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"check", "deleteRepo"}, "⛔ deny"},
		{[]string{"check", "mergePR", "--env", "staging"}, "? require_approval"},
		{[]string{"check", "listIssues"}, "✓ allow"},
		{[]string{"check", "listIssues", "--env", "production"}, "⛔ deny"},
	}
	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			code, stdout, stderr := runCLI(t, tt.args...)
			if code != 0 {
				t.Fatalf("exit = %d, stderr = %s", code, stderr)
			}
			if !strings.Contains(stdout, "Verdict:     "+tt.want) {
				t.Errorf("stdout missing %q:\n%s", tt.want, stdout)
			}
		})
	}
}

func TestCheck_JSON(t *testing.T) {
	writeTestConfig(t)
	code, stdout, _ := runCLI(t, "--json", "check", "deleteRepo", "--env", "development")
	if code != 0 {
		t.Fatalf("exit = %d", code)
	}
	var trace policy.Trace
	if err := json.Unmarshal([]byte(stdout), &trace); err != nil {
		t.Fatalf("decode: %v\n%s", err, stdout)
	}
	if trace.Verdict.Effect != policy.EffectDeny {
		t.Errorf("effect = %s, want deny", trace.Verdict.Effect)
	}
	if trace.Risk != policy.RiskCritical {
		t.Errorf("risk = %s, want critical", trace.Risk)
	}
}

func TestCheck_MissingAction(t *testing.T) {
	writeTestConfig(t)
	if code, _, _ := runCLI(t, "check"); code != 1 {
		t.Errorf("exit = %d, want 1", code)
	}
}

func TestRunCommand_BlockedIsAudited(t *testing.T) {
	writeTestConfig(t)
	code, _, stderr := runCLI(t, "run", "--tool", "github", "--action", "deleteRepo", "--", "echo", "never")
	if code != exitBlocked {
		t.Fatalf("exit = %d, want %d; stderr = %s", code, exitBlocked, stderr)
	}
	if !strings.Contains(stderr, "BLOCKED") {
		t.Errorf("stderr = %q", stderr)
	}

	code, stdout, _ := runCLI(t, "--json", "summary")
	if code != 0 {
		t.Fatalf("summary exit = %d", code)
	}
	var s audit.Summary
	if err := json.Unmarshal([]byte(stdout), &s); err != nil {
		t.Fatalf("decode: %v\n%s", err, stdout)
	}
	if s.TotalInvocations != 1 || s.Blocked != 1 {
		t.Errorf("summary = %+v, want 1 blocked invocation", s)
	}
}

func TestRunCommand_Executes(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	writeTestConfig(t)

	code, stdout, stderr := runCLI(t, "run", "--tool", "github", "--action", "listIssues", "--", "sh", "-c", "echo hello")
	if code != 0 {
		t.Fatalf("exit = %d, stderr = %s", code, stderr)
	}
	if !strings.Contains(stdout, "hello") {
		t.Errorf("stdout = %q", stdout)
	}

	code, _, _ = runCLI(t, "run", "--tool", "github", "--action", "listIssues", "--", "sh", "-c", "exit 7")
	if code != 7 {
		t.Errorf("exit = %d, want the command's exit code 7", code)
	}

	code, stdout, _ = runCLI(t, "verify")
	if code != 0 {
		t.Fatalf("verify exit = %d", code)
	}
	if !strings.Contains(stdout, "✓ 2 records") {
		t.Errorf("verify output = %q", stdout)
	}
}

func TestRunCommand_AutoApprovedInDevelopment(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	dir := writeTestConfig(t)

	code, _, stderr := runCLI(t, "run", "--tool", "github", "--action", "mergePR", "--", "sh", "-c", "true")
	if code != 0 {
		t.Fatalf("exit = %d, stderr = %s", code, stderr)
	}
	data, err := os.ReadFile(filepath.Join(dir, "approvals.jsonl"))
	if err != nil {
		t.Fatalf("read approval log: %v", err)
	}
	if !strings.Contains(string(data), `"auto-approved"`) {
		t.Errorf("approval log = %s", data)
	}
}

func TestRunCommand_RejectedOnStdin(t *testing.T) {
	writeTestConfig(t)
	var stdout, stderr bytes.Buffer
	code := run(context.Background(),
		[]string{"run", "--tool", "github", "--action", "mergePR", "--env", "staging", "--", "sh", "-c", "true"},
		strings.NewReader("n\n"), &stdout, &stderr)
	if code != exitRejected {
		t.Fatalf("exit = %d, want %d; stderr = %s", code, exitRejected, stderr.String())
	}
}

func TestRunCommand_Usage(t *testing.T) {
	writeTestConfig(t)
	if code, _, _ := runCLI(t, "run", "--tool", "github"); code != 2 {
		t.Errorf("exit = %d, want 2", code)
	}
	if code, _, _ := runCLI(t, "run", "--param", "novalue", "--tool", "x", "--action", "y", "--", "true"); code != 2 {
		t.Errorf("bad --param: exit = %d, want 2", code)
	}
}

func TestApprovalsStats_Empty(t *testing.T) {
	writeTestConfig(t)
	code, stdout, stderr := runCLI(t, "approvals", "stats")
	if code != 0 {
		t.Fatalf("exit = %d, stderr = %s", code, stderr)
	}
	if !strings.Contains(stdout, "Total:     0") {
		t.Errorf("stdout = %s", stdout)
	}
}

func TestDoctor(t *testing.T) {
	writeTestConfig(t)
	code, stdout, _ := runCLI(t, "doctor")
	if code != 0 {
		t.Fatalf("exit = %d", code)
	}
	if !strings.Contains(stdout, "[schemas]") {
		t.Errorf("stdout = %s", stdout)
	}

	path := filepath.Join(t.TempDir(), "weak.yaml")
	weak := "approval:\n  auto_approve_environments: [production]\n"
	if err := os.WriteFile(path, []byte(weak), 0o644); err != nil {
		t.Fatal(err)
	}
	code, stdout, _ = runCLI(t, "--config", path, "--json", "doctor")
	if code != 1 {
		t.Errorf("exit = %d, want 1 for a fatal violation", code)
	}
	var vs []config.Violation
	if err := json.Unmarshal([]byte(stdout), &vs); err != nil {
		t.Fatalf("decode: %v\n%s", err, stdout)
	}
	fatal := false
	for _, v := range vs {
		fatal = fatal || v.Severity == config.SeverityFatal
	}
	if !fatal {
		t.Errorf("violations = %+v, want a fatal one", vs)
	}
}

func TestRegistry(t *testing.T) {
	writeTestConfig(t)

	code, stdout, _ := runCLI(t, "registry", "lookup", "npx -y @modelcontextprotocol/server-github")
	if code != 0 {
		t.Fatalf("exit = %d", code)
	}
	if !strings.Contains(stdout, "ID:        github") {
		t.Errorf("lookup output:\n%s", stdout)
	}

	code, stdout, _ = runCLI(t, "registry", "lookup", "./my-private-server")
	if code != 0 || !strings.Contains(stdout, "Unknown MCP server") {
		t.Errorf("unknown lookup: exit = %d, stdout = %q", code, stdout)
	}

	code, stdout, _ = runCLI(t, "--json", "registry", "list", "--verified")
	if code != 0 {
		t.Fatalf("list exit = %d", code)
	}
	var mcps []registry.MCP
	if err := json.Unmarshal([]byte(stdout), &mcps); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(mcps) == 0 {
		t.Fatal("no verified servers listed")
	}
	for _, m := range mcps {
		if !m.Verified {
			t.Errorf("%s listed but not verified", m.ID)
		}
	}

	if code, _, _ := runCLI(t, "registry"); code != 1 {
		t.Errorf("missing subcommand: exit = %d, want 1", code)
	}
}

func TestIndex_IngestAndQuery(t *testing.T) {
	dir := writeTestConfig(t)
	dsn := filepath.Join(dir, "index.db")

	runCLI(t, "run", "--tool", "github", "--action", "deleteRepo", "--", "true")
	runCLI(t, "run", "--tool", "github", "--action", "listIssues", "--env", "production", "--", "true")

	code, stdout, stderr := runCLI(t, "index", "ingest", "--dsn", dsn)
	if code != 0 {
		t.Fatalf("ingest exit = %d, stderr = %s", code, stderr)
	}
	if !strings.Contains(stdout, "Indexed 2 new records") {
		t.Errorf("ingest output = %q", stdout)
	}

	code, stdout, _ = runCLI(t, "--json", "index", "query", "--dsn", dsn, "--action", "deleteRepo")
	if code != 0 {
		t.Fatalf("query exit = %d", code)
	}
	var records []audit.Record
	if err := json.Unmarshal([]byte(stdout), &records); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(records) != 1 || records[0].Result != audit.ResultBlocked {
		t.Errorf("records = %+v, want one blocked deleteRepo", records)
	}
}

func TestRoutes(t *testing.T) {
	writeTestConfig(t)
	cfg, err := config.LoadFile(os.Getenv(config.EnvPath))
	if err != nil {
		t.Fatal(err)
	}
	var stderr bytes.Buffer
	a := &app{cfg: cfg, stdin: strings.NewReader(""), stdout: &bytes.Buffer{}, stderr: &stderr}
	h := a.routes(a.auditLogger())

	tests := []struct {
		path string
		code int
		want string
	}{
		{"/healthz", http.StatusOK, "ok"},
		{"/v1/check?action=deleteRepo&env=development", http.StatusOK, `"effect": "deny"`},
		{"/v1/check", http.StatusBadRequest, "action required"},
		{"/v1/summary", http.StatusOK, `"totalInvocations": 0`},
		{"/v1/summary?hours=abc", http.StatusBadRequest, "positive number"},
		{"/v1/anomalies?hours=2", http.StatusOK, `"anomalies": []`},
		{"/v1/approvals/stats", http.StatusOK, `"total": 0`},
		{"/metrics", http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if w.Code != tt.code {
				t.Fatalf("status = %d, want %d; body = %s", w.Code, tt.code, w.Body.String())
			}
			if !strings.Contains(w.Body.String(), tt.want) {
				t.Errorf("body missing %q:\n%s", tt.want, w.Body.String())
			}
		})
	}
}
