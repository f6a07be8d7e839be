package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"strings"
	"testing"
)

func TestStripLevelFlag(t *testing.T) {
	tests := []struct {
		name      string
		args      []string
		wantLevel string
		wantRest  []string
	}{
		{"none", []string{"summary", "--hours", "2"}, "info", []string{"summary", "--hours", "2"}},
		{"double dash equals", []string{"--log-level=debug", "check"}, "debug", []string{"check"}},
		{"single dash equals", []string{"check", "-log-level=warn"}, "warn", []string{"check"}},
		{"separate value", []string{"-log-level", "error", "report"}, "error", []string{"report"}},
		{"trailing without value", []string{"report", "--log-level"}, "info", []string{"report"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			level, rest := stripLevelFlag(tt.args, "info")
			if level != tt.wantLevel {
				t.Errorf("level = %q, want %q", level, tt.wantLevel)
			}
			if !slices.Equal(rest, tt.wantRest) {
				t.Errorf("rest = %v, want %v", rest, tt.wantRest)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNew_Formats(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, slog.LevelInfo, "json").Info("hello", "k", "v")
	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("json handler output not JSON: %q", buf.String())
	}
	if m["msg"] != "hello" || m["k"] != "v" {
		t.Errorf("entry = %v", m)
	}

	buf.Reset()
	l := New(&buf, slog.LevelWarn, "")
	l.Info("dropped")
	l.Warn("kept")
	if strings.Contains(buf.String(), "dropped") || !strings.Contains(buf.String(), "msg=kept") {
		t.Errorf("text output = %q", buf.String())
	}
}

func TestInitLogging_EnvLevel(t *testing.T) {
	defer slog.SetDefault(slog.Default())
	t.Setenv(EnvLevel, "error")
	rest := InitLogging([]string{"check"})
	if len(rest) != 1 || rest[0] != "check" {
		t.Errorf("rest = %v", rest)
	}
	if slog.Default().Enabled(context.Background(), slog.LevelWarn) {
		t.Error("warn should be disabled at error level")
	}
}
