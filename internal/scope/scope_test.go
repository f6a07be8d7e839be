package scope

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const secret = "test-secret"

func testChecker() *Checker {
	return NewChecker(Config{
		Secret: secret,
		Issuer: "mcpguard",
		Required: map[string][]string{
			"github.deleteRepo": {"repo:admin"},
			"github.*":          {"repo:read"},
		},
	})
}

func mustIssue(t *testing.T, issuer string, scopes []string, ttl time.Duration) string {
	t.Helper()
	tok, err := Issue(secret, issuer, "alice", scopes, ttl)
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func TestCheck(t *testing.T) {
	c := testChecker()
	tests := []struct {
		name    string
		token   string
		tool    string
		action  string
		wantErr string
	}{
		{"no requirement", "", "slack", "post", ""},
		{"missing token", "", "github", "listPulls", "token required"},
		{"wildcard satisfied", mustIssue(t, "mcpguard", []string{"repo:read"}, time.Hour), "github", "listPulls", ""},
		{"specific wins over wildcard", mustIssue(t, "mcpguard", []string{"repo:read"}, time.Hour), "github", "deleteRepo", "repo:admin"},
		{"specific satisfied", mustIssue(t, "mcpguard", []string{"repo:admin"}, time.Hour), "github", "deleteRepo", ""},
		{"wrong issuer", mustIssue(t, "other", []string{"repo:admin"}, time.Hour), "github", "deleteRepo", "invalid token"},
		{"expired", mustIssue(t, "mcpguard", []string{"repo:admin"}, -time.Minute), "github", "deleteRepo", "invalid token"},
		{"garbage", "not.a.token", "github", "deleteRepo", "invalid token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Check(tt.token, tt.tool, tt.action)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestCheck_MissingScopeError(t *testing.T) {
	err := testChecker().Check(mustIssue(t, "mcpguard", nil, time.Hour), "github", "deleteRepo")
	var mse *MissingScopeError
	if !errors.As(err, &mse) {
		t.Fatalf("err = %T %v", err, err)
	}
	if mse.Subject != "alice" || len(mse.Missing) != 1 || mse.Missing[0] != "repo:admin" {
		t.Errorf("error = %+v", mse)
	}
}

func TestCheck_SpaceDelimitedScope(t *testing.T) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "mcpguard", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		Scope:            "repo:read repo:admin",
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatal(err)
	}
	if err := testChecker().Check(tok, "github", "deleteRepo"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestCheck_RejectsOtherAlgorithms(t *testing.T) {
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{Scopes: []string{"repo:admin"}}).SignedString([]byte(secret))
	if err != nil {
		t.Fatal(err)
	}
	if err := testChecker().Check(tok, "github", "deleteRepo"); err == nil {
		t.Error("HS512 token should be rejected")
	}
}

func TestNilChecker(t *testing.T) {
	var c *Checker
	if NewChecker(Config{}) != nil {
		t.Error("no requirements should give a nil checker")
	}
	if err := c.Check("", "github", "deleteRepo"); err != nil {
		t.Errorf("nil checker should allow: %v", err)
	}
}
