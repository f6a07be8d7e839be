package policy

import (
	"strings"
	"testing"
)

// ── helpers ──────────────────────────────────────────────────────────────────

func assertContains(t *testing.T, s, sub string) {
	t.Helper()
	if !strings.Contains(s, sub) {
		t.Errorf("expected output to contain %q\nfull output:\n%s", sub, s)
	}
}

func assertNotContains(t *testing.T, s, sub string) {
	t.Helper()
	if strings.Contains(s, sub) {
		t.Errorf("expected output NOT to contain %q\nfull output:\n%s", sub, s)
	}
}

func newExplainFirewall() *Firewall {
	return NewFirewall(RuleSet{
		BlockedActions:      []string{"deleteRepo"},
		RequireApproval:     []string{"deploy"},
		AllowedEnvironments: []string{"development"},
	})
}

// ── Explain ──────────────────────────────────────────────────────────────────

func TestExplain_Blocked(t *testing.T) {
	tr := newExplainFirewall().Explain("deleteRepo", "development")

	if tr.Verdict.Effect != EffectDeny {
		t.Fatalf("effect = %q", tr.Verdict.Effect)
	}
	if len(tr.Steps) != 1 || !tr.Steps[0].Fired {
		t.Errorf("expected a single fired step, got %+v", tr.Steps)
	}
	if tr.Risk != RiskCritical {
		t.Errorf("risk = %q", tr.Risk)
	}
	assertContains(t, tr.Explanation, "DENIED")
	assertContains(t, tr.Explanation, ReasonBlocked)
}

func TestExplain_RequiresApproval(t *testing.T) {
	tr := newExplainFirewall().Explain("deploy", "development")

	if len(tr.Steps) != 3 {
		t.Fatalf("steps = %d, want 3", len(tr.Steps))
	}
	assertContains(t, tr.Explanation, "REQUIRES APPROVAL")
	assertContains(t, tr.Explanation, "approved by a human")
	assertNotContains(t, tr.Explanation, "Reason:")
}

func TestExplain_AllowedWithoutAllowList(t *testing.T) {
	tr := newExplainFirewall().Explain("readRepo", "development")

	if tr.Verdict.Effect != EffectAllow {
		t.Fatalf("effect = %q", tr.Verdict.Effect)
	}
	last := tr.Steps[len(tr.Steps)-1]
	if last.Check != CheckAllowList || !last.Skipped {
		t.Errorf("last step = %+v, want skipped allow-list", last)
	}
	assertContains(t, tr.Explanation, "not configured, permissive")
	assertContains(t, tr.Explanation, "permitted to proceed")
}

func TestExplain_MatchesValidate(t *testing.T) {
	fw := newExplainFirewall()
	for _, action := range []string{"deleteRepo", "deploy", "readRepo"} {
		for _, env := range []string{"development", "production"} {
			got := fw.Explain(action, env).Verdict
			want := fw.Validate(action, env)
			if got != want {
				t.Errorf("%s/%s: Explain verdict %+v != Validate %+v", action, env, got, want)
			}
		}
	}
}

func TestEffectLabel(t *testing.T) {
	tests := map[Effect]string{
		EffectAllow:           "ALLOWED",
		EffectDeny:            "DENIED",
		EffectRequireApproval: "REQUIRES APPROVAL",
		Effect("custom"):      "CUSTOM",
	}
	for e, want := range tests {
		if got := effectLabel(e); got != want {
			t.Errorf("effectLabel(%q) = %q, want %q", e, got, want)
		}
	}
}
