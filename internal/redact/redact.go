// Package redact masks secrets in tool parameters before they reach a
// durable log.
package redact

import (
	"regexp"
	"strings"
)

// Mask replaces every redacted value.
const Mask = "***"

// DefaultPatterns match secrets embedded in free-form strings.
func DefaultPatterns() []string {
	return []string{
		`(?i)(token|secret|password|api[_-]?key)=[^\s&]+`,
		`(?i)authorization:\s*\S+(\s+\S+)?`,
		`(?i)bearer\s+[a-z0-9\-._~+/]+=*`,
		`gh[pousr]_[A-Za-z0-9]{20,}`,
		`AKIA[0-9A-Z]{16}`,
	}
}

// DefaultKeys are parameter names whose values are always masked.
func DefaultKeys() []string {
	return []string{"password", "passwd", "token", "secret", "api_key", "apikey", "authorization", "cookie", "private_key"}
}

// Redactor masks secrets in strings and nested parameter maps.
type Redactor struct {
	patterns []*regexp.Regexp
	keys     []string
}

// New compiles the given patterns and key names. Invalid patterns are
// skipped. A nil Redactor is valid and masks nothing.
func New(patterns, keys []string) *Redactor {
	var compiled []*regexp.Regexp
	for _, pattern := range patterns {
		if pattern == "" {
			continue
		}
		if re, err := regexp.Compile(pattern); err == nil {
			compiled = append(compiled, re)
		}
	}
	var lower []string
	for _, k := range keys {
		if k != "" {
			lower = append(lower, strings.ToLower(k))
		}
	}
	if len(compiled) == 0 && len(lower) == 0 {
		return nil
	}
	return &Redactor{patterns: compiled, keys: lower}
}

// Default returns a redactor with the default patterns and keys.
func Default() *Redactor {
	return New(DefaultPatterns(), DefaultKeys())
}

// String masks pattern matches in s.
func (r *Redactor) String(s string) string {
	if r == nil || s == "" {
		return s
	}
	out := s
	for _, re := range r.patterns {
		out = re.ReplaceAllString(out, Mask)
	}
	return out
}

// Params returns a redacted deep copy of a parameter map. The input is not
// modified.
func (r *Redactor) Params(params map[string]any) map[string]any {
	if params == nil {
		return nil
	}
	if r == nil {
		return params
	}
	out, _ := r.value(params).(map[string]any)
	return out
}

func (r *Redactor) value(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			if r.sensitiveKey(k) {
				out[k] = Mask
				continue
			}
			out[k] = r.value(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = r.value(item)
		}
		return out
	case []string:
		out := make([]string, len(val))
		for i, item := range val {
			out[i] = r.String(item)
		}
		return out
	case string:
		return r.String(val)
	default:
		return v
	}
}

func (r *Redactor) sensitiveKey(key string) bool {
	k := strings.ToLower(key)
	for _, s := range r.keys {
		if k == s || strings.HasSuffix(k, "_"+s) {
			return true
		}
	}
	return false
}
