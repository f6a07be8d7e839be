// Package registry identifies known MCP servers by package, endpoint or name.
package registry

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"mcpguard/internal/policy"
)

//go:embed known_mcps.json
var knownMCPs []byte

// MCP describes one known server.
type MCP struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	Provider     string           `json:"provider"`
	Package      string           `json:"package"`
	Endpoint     string           `json:"endpoint,omitempty"`
	Type         string           `json:"type"`
	RiskLevel    policy.RiskLevel `json:"risk_level"`
	Verified     bool             `json:"verified"`
	Capabilities []string         `json:"capabilities,omitempty"`
}

// Registry is a list of known servers plus the vocabulary used to describe
// them.
type Registry struct {
	Version         string            `json:"version"`
	MCPs            []MCP             `json:"mcps"`
	RiskDefinitions map[string]string `json:"risk_definitions"`
	TypeDefinitions map[string]string `json:"type_definitions"`
}

var defaultRegistry = sync.OnceValues(func() (*Registry, error) {
	return Parse(knownMCPs)
})

// Default returns the built-in registry.
func Default() *Registry {
	r, err := defaultRegistry()
	if err != nil {
		panic(fmt.Sprintf("registry: built-in data is invalid: %v", err))
	}
	return r
}

// Parse decodes a registry document.
func Parse(data []byte) (*Registry, error) {
	var r Registry
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse registry: %w", err)
	}
	return &r, nil
}

// Load reads a registry document from r.
func Load(r io.Reader) (*Registry, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// LoadFile reads a registry document from path.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}
	return Parse(data)
}

// Lookup finds the server behind source (a command line, package spec or
// URL) and an optional configured name. Matches are tried in order: package
// contained in source, endpoint or endpoint domain, exact name or id, then
// partial name.
func (r *Registry) Lookup(source, name string) (MCP, bool) {
	src := strings.ToLower(source)
	nm := strings.ToLower(name)

	if src != "" {
		for _, m := range r.MCPs {
			if m.Package != "" && strings.Contains(src, strings.ToLower(m.Package)) {
				return m, true
			}
		}
		srcDomain := domain(src)
		for _, m := range r.MCPs {
			if m.Endpoint == "" {
				continue
			}
			ep := strings.ToLower(m.Endpoint)
			if strings.Contains(src, ep) || strings.Contains(ep, src) || domain(ep) == srcDomain {
				return m, true
			}
		}
	}

	if nm == "" {
		return MCP{}, false
	}
	for _, m := range r.MCPs {
		if nm == strings.ToLower(m.Name) || nm == strings.ToLower(m.ID) {
			return m, true
		}
	}
	for _, m := range r.MCPs {
		mn := strings.ToLower(m.Name)
		if strings.Contains(nm, mn) || strings.Contains(mn, nm) {
			return m, true
		}
	}
	return MCP{}, false
}

// domain strips scheme, path and port from a URL-ish string.
func domain(u string) string {
	u = strings.TrimPrefix(u, "https://")
	u = strings.TrimPrefix(u, "http://")
	u, _, _ = strings.Cut(u, "/")
	u, _, _ = strings.Cut(u, ":")
	return u
}

func (r *Registry) filter(keep func(*MCP) bool) []MCP {
	var out []MCP
	for i := range r.MCPs {
		if keep(&r.MCPs[i]) {
			out = append(out, r.MCPs[i])
		}
	}
	return out
}

// ByProvider returns servers from provider, case-insensitively.
func (r *Registry) ByProvider(provider string) []MCP {
	return r.filter(func(m *MCP) bool { return strings.EqualFold(m.Provider, provider) })
}

// ByRisk returns servers with the given risk level.
func (r *Registry) ByRisk(level policy.RiskLevel) []MCP {
	return r.filter(func(m *MCP) bool { return m.RiskLevel == level })
}

// Verified returns verified servers.
func (r *Registry) Verified() []MCP {
	return r.filter(func(m *MCP) bool { return m.Verified })
}

// WithEndpoints returns servers reachable over the network.
func (r *Registry) WithEndpoints() []MCP {
	return r.filter(func(m *MCP) bool { return m.Endpoint != "" })
}

// RiskDefinition describes a risk level.
func (r *Registry) RiskDefinition(level policy.RiskLevel) string {
	if d, ok := r.RiskDefinitions[string(level)]; ok {
		return d
	}
	return "Unknown risk level"
}

// TypeDefinition describes a server type.
func (r *Registry) TypeDefinition(typ string) string {
	if d, ok := r.TypeDefinitions[typ]; ok {
		return d
	}
	return "Unknown type"
}
