// Package scope checks that a caller's bearer token grants the scopes an
// action requires.
package scope

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrMissingToken is returned when an action requires scopes and no token
// was presented.
var ErrMissingToken = errors.New("token required")

// Claims are the token claims read by the checker. Scopes may be given as a
// list or as an OAuth space-delimited "scope" string.
type Claims struct {
	jwt.RegisteredClaims
	Scopes []string `json:"scopes,omitempty"`
	Scope  string   `json:"scope,omitempty"`
}

// Granted returns the union of both scope claims.
func (c *Claims) Granted() []string {
	out := slices.Clone(c.Scopes)
	for _, s := range strings.Fields(c.Scope) {
		if !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}

// MissingScopeError names the scopes a token lacks.
type MissingScopeError struct {
	Subject string
	Missing []string
}

func (e *MissingScopeError) Error() string {
	return fmt.Sprintf("token for %q is missing scopes: %s", e.Subject, strings.Join(e.Missing, ", "))
}

// Config configures a Checker.
type Config struct {
	// Secret is the HMAC key used to sign tokens.
	Secret string `yaml:"secret" json:"-" validate:"required_with=Required"`

	// Issuer, when set, must match the token's iss claim.
	Issuer string `yaml:"issuer" json:"issuer,omitempty"`

	// Required maps "tool.action", "tool.*" or "*" to the scopes needed.
	// The most specific key wins.
	Required map[string][]string `yaml:"required" json:"required,omitempty"`
}

// Checker validates HS256 tokens and their scopes.
type Checker struct {
	secret   []byte
	issuer   string
	required map[string][]string
	now      func() time.Time
}

// NewChecker returns a checker, or nil when no scopes are required.
func NewChecker(cfg Config) *Checker {
	if len(cfg.Required) == 0 {
		return nil
	}
	return &Checker{
		secret:   []byte(cfg.Secret),
		issuer:   cfg.Issuer,
		required: cfg.Required,
		now:      time.Now,
	}
}

// Required returns the scopes needed for tool.action.
func (c *Checker) Required(tool, action string) []string {
	if c == nil {
		return nil
	}
	for _, key := range []string{tool + "." + action, tool + ".*", "*"} {
		if scopes, ok := c.required[key]; ok {
			return scopes
		}
	}
	return nil
}

// Check parses token and verifies it grants every scope tool.action needs.
// A nil Checker allows everything.
func (c *Checker) Check(token, tool, action string) error {
	need := c.Required(tool, action)
	if len(need) == 0 {
		return nil
	}
	if token == "" {
		return ErrMissingToken
	}
	claims, err := c.Parse(token)
	if err != nil {
		return err
	}
	granted := claims.Granted()
	var missing []string
	for _, s := range need {
		if !slices.Contains(granted, s) {
			missing = append(missing, s)
		}
	}
	if len(missing) > 0 {
		return &MissingScopeError{Subject: claims.Subject, Missing: missing}
	}
	return nil
}

// Parse validates the signature and registered claims of token.
func (c *Checker) Parse(token string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(*jwt.Token) (any, error) {
		return c.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, jwt.ErrTokenSignatureInvalid
	}
	return claims, nil
}

// Issue signs a token for subject with the given scopes.
func Issue(secret, issuer, subject string, scopes []string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Scopes: scopes,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
