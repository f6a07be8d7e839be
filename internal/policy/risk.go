package policy

import "strings"

// RiskLevel is a coarse severity tier derived from an action name.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

var riskTiers = []struct {
	level    RiskLevel
	keywords []string
}{
	{RiskCritical, []string{"delete", "drop", "destroy", "remove_user", "grant_admin"}},
	{RiskHigh, []string{"create", "update", "push", "merge", "deploy"}},
	{RiskMedium, []string{"write", "modify", "upload", "publish"}},
}

// ClassifyRisk returns the risk tier of an action. Tiers are checked from
// most to least severe and the first keyword hit wins.
func ClassifyRisk(action string) RiskLevel {
	a := strings.ToLower(action)
	for _, tier := range riskTiers {
		for _, kw := range tier.keywords {
			if strings.Contains(a, kw) {
				return tier.level
			}
		}
	}
	return RiskLow
}

// Severity returns an ordinal for sorting. Higher is riskier; unknown is -1.
func (r RiskLevel) Severity() int {
	switch r {
	case RiskLow:
		return 0
	case RiskMedium:
		return 1
	case RiskHigh:
		return 2
	case RiskCritical:
		return 3
	default:
		return -1
	}
}

// IsHigh reports whether the level is high or critical.
func (r RiskLevel) IsHigh() bool {
	return r == RiskHigh || r == RiskCritical
}
