package schema

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

func TestValidate_Builtin(t *testing.T) {
	v := NewValidator("")
	tests := []struct {
		name    string
		tool    string
		action  string
		params  map[string]any
		wantErr string
	}{
		{"valid", "github", "createIssue", map[string]any{"repo": "octo/hello", "title": "bug"}, ""},
		{"missing required", "github", "createIssue", map[string]any{"repo": "octo/hello"}, "title"},
		{"bad pattern", "github", "deleteRepo", map[string]any{"repo": "not a repo"}, "repo"},
		{"extra property", "github", "deleteRepo", map[string]any{"repo": "a/b", "force": true}, "force"},
		{"wildcard action", "github", "listPulls", map[string]any{"state": "open"}, ""},
		{"nil params", "github", "listPulls", nil, ""},
		{"no wildcard", "filesystem", "stat", map[string]any{}, ""},
		{"unknown tool", "slack", "post", map[string]any{"x": 1}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.tool, tt.action, tt.params)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error")
			}
			if !IsValidationError(err) {
				t.Errorf("error type = %T", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_DirectoryOverride(t *testing.T) {
	dir := t.TempDir()
	doc := `{"actions": {"post": {"type": "object", "required": ["channel"]}}}`
	if err := os.WriteFile(filepath.Join(dir, "slack.json"), []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}
	v := NewValidator(dir)
	if err := v.Validate("slack", "post", map[string]any{}); err == nil {
		t.Error("expected missing channel error")
	}
	if err := v.Validate("slack", "post", map[string]any{"channel": "#ops"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	// Built-ins still apply for tools without an override.
	if err := v.Validate("github", "deleteRepo", map[string]any{}); err == nil {
		t.Error("built-in schema should still apply")
	}
}

func TestValidate_BrokenDocument(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{"), 0644)
	if err := NewValidator(dir).Validate("bad", "x", nil); err == nil || IsValidationError(err) {
		t.Errorf("want load error, got %v", err)
	}
}

func TestValidate_RejectsPathTool(t *testing.T) {
	if err := NewValidator(t.TempDir()).Validate("../etc", "x", nil); err == nil {
		t.Error("expected invalid tool name error")
	}
}

func TestTools(t *testing.T) {
	tools := Tools()
	if !slices.Contains(tools, "github") || !slices.Contains(tools, "filesystem") {
		t.Errorf("Tools = %v", tools)
	}
}
