package approval

import (
	"context"
	"time"

	"mcpguard/internal/audit"
)

// Stats aggregates approvals over a time window.
type Stats struct {
	HoursBack   float64             `json:"hoursBack"`
	Total       int                 `json:"total"`
	Approved    int                 `json:"approved"`
	Rejected    int                 `json:"rejected"`
	Expired     int                 `json:"expired"`
	Pending     int                 `json:"pending"`
	ByRiskLevel map[string]int      `json:"byRiskLevel"`
	ByAction    []audit.ActionCount `json:"byAction"`
}

// Stats reads resolved requests created in the last hoursBack hours from
// the approval log and adds the live pending set.
func (w *Workflow) Stats(ctx context.Context, hoursBack float64) (Stats, error) {
	since := w.now().Add(-time.Duration(hoursBack * float64(time.Hour)))
	resolved, err := w.log.Read(ctx, since)
	if err != nil {
		return Stats{}, err
	}
	w.mu.Lock()
	live := make([]Request, 0, len(w.pending))
	for _, p := range w.pending {
		live = append(live, *p.req)
	}
	w.mu.Unlock()
	return aggregate(hoursBack, resolved, live), nil
}

func aggregate(hoursBack float64, resolved, live []Request) Stats {
	s := Stats{HoursBack: hoursBack, ByRiskLevel: make(map[string]int)}
	var tally audit.Tally
	count := func(r *Request) {
		s.Total++
		s.ByRiskLevel[string(r.RiskLevel)]++
		tally.Add(r.Key())
	}
	for i := range resolved {
		r := &resolved[i]
		switch r.Status {
		case StatusApproved:
			s.Approved++
		case StatusRejected:
			s.Rejected++
		case StatusExpired:
			s.Expired++
		default:
			continue
		}
		count(r)
	}
	for i := range live {
		s.Pending++
		count(&live[i])
	}
	s.ByAction = tally.Top(audit.TopN)
	return s
}
