package policy

import (
	"fmt"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// LoadFile loads a rule set from a YAML file.
func LoadFile(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read firewall file: %w", err)
	}
	return Load(data)
}

// Load parses a rule set from YAML data.
func Load(data []byte) (*RuleSet, error) {
	// Expand environment variables in the YAML
	expanded := os.ExpandEnv(string(data))

	var rules RuleSet
	if err := yaml.Unmarshal([]byte(expanded), &rules); err != nil {
		return nil, fmt.Errorf("parse firewall YAML: %w", err)
	}

	if err := Validate(&rules); err != nil {
		return nil, fmt.Errorf("validate firewall: %w", err)
	}

	return &rules, nil
}

// Validate checks a rule set for errors. Overlaps that the evaluation order
// resolves (an action both allowed and blocked) are logged, not rejected.
func Validate(rules *RuleSet) error {
	lists := []struct {
		name  string
		items []string
	}{
		{CheckAllowList, rules.AllowedActions},
		{CheckBlocked, rules.BlockedActions},
		{CheckApproval, rules.RequireApproval},
		{CheckEnvironment, rules.AllowedEnvironments},
	}
	for _, l := range lists {
		for i, item := range l.items {
			if item == "" {
				return fmt.Errorf("%s[%d]: empty entry", l.name, i)
			}
		}
	}

	for _, a := range rules.BlockedActions {
		if slices.Contains(rules.AllowedActions, a) {
			slog.Warn("action is both allowed and blocked; block wins", "action", a)
		}
		if slices.Contains(rules.RequireApproval, a) {
			slog.Warn("action is both blocked and approval-gated; block wins", "action", a)
		}
	}

	if len(rules.AllowedEnvironments) == 0 {
		slog.Warn("no allowed environments configured; every action will be denied")
	}

	return nil
}

// DefaultRuleSet returns the rule set used when none is configured. It only
// admits non-production environments and has no allow-list.
func DefaultRuleSet() RuleSet {
	return RuleSet{
		AllowedEnvironments: []string{"development", "test"},
	}
}
