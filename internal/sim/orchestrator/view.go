package orchestrator

import (
	"fmt"

	"savegrid.ai/internal/sim/entities"
	"savegrid.ai/internal/sim/failure"
	"savegrid.ai/internal/sim/ledger"
	"savegrid.ai/internal/sim/negotiation"
	"savegrid.ai/internal/sim/objective"
	"savegrid.ai/internal/sim/stats"
)

// Decision is a committed proposal with its rendered explanation.
type Decision struct {
	Tick        uint64  `json:"tick"`
	Seq         int     `json:"seq"`
	Kind        string  `json:"kind"`
	Subject     string  `json:"subject"`
	Target      string  `json:"target"`
	Score       float64 `json:"score"`
	Explanation string  `json:"explanation"`
}

func decisionFor(tick uint64, p negotiation.Proposal) Decision {
	d := Decision{Tick: tick, Seq: p.Seq, Kind: string(p.Kind), Subject: p.Subject, Target: p.Target, Score: p.Score}
	switch p.Kind {
	case negotiation.KindPatientAssignment:
		bed := "general bed"
		if p.Resource == negotiation.ResourceICUBed {
			bed = "ICU bed"
		}
		d.Explanation = fmt.Sprintf("Assigned %s (%s) to a %s at %s. %s", p.Subject, p.Acuity.Name(), bed, p.Target, p.Rationale)
	case negotiation.KindAmbulanceDispatch:
		d.Explanation = fmt.Sprintf("Dispatched %s for %s to %s. %s", p.Target, p.Subject, p.HospitalID, p.Rationale)
	case negotiation.KindSupplyAllocation:
		d.Explanation = fmt.Sprintf("Sent %d %s from %s to %s. %s", p.Quantity, p.Resource, p.Subject, p.Target, p.Rationale)
	default:
		d.Explanation = p.Rationale
	}
	return d
}

// ring keeps the latest decisions.
type ring struct {
	buf  []Decision
	next int
	full bool
}

func newRing(n int) *ring {
	if n <= 0 {
		n = 1
	}
	return &ring{buf: make([]Decision, n)}
}

func (r *ring) push(d Decision) {
	r.buf[r.next] = d
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
}

func (r *ring) len() int {
	if r.full {
		return len(r.buf)
	}
	return r.next
}

// latest returns up to n decisions, newest first.
func (r *ring) latest(n int) []Decision {
	size := r.len()
	if n <= 0 || n > size {
		n = size
	}
	out := make([]Decision, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, r.buf[(r.next-i+len(r.buf))%len(r.buf)])
	}
	return out
}

// View is an immutable, published picture of a session after a tick. Readers must treat
// every field as read-only.
type View struct {
	SessionID string      `json:"session_id"`
	Scenario  string      `json:"scenario"`
	Tick      uint64      `json:"tick"`
	Ledgers   *ledger.Set `json:"ledgers"`

	Patients      int    `json:"patients"`
	Waiting       int    `json:"waiting"`
	SeverityLevel string `json:"severity_level"`

	Metrics     stats.Metrics      `json:"metrics"`
	Improvement *stats.Improvement `json:"improvement,omitempty"`
	Summary     string             `json:"summary"`
	History     []stats.TickPoint  `json:"history"`

	Objective objective.Score      `json:"objective"`
	LastTick  objective.Comparison `json:"last_tick_comparison"`
	Overall   objective.Comparison `json:"overall_comparison"`

	ActiveAlerts []failure.Alert `json:"active_alerts"`
	AlertHistory []failure.Alert `json:"alert_history"`

	Decisions []Decision  `json:"-"`
	Last      *StepReport `json:"-"`
}

// View returns the latest published view. It never blocks on a running tick.
func (s *Session) View() *View { return s.view.Load() }

// LatestDecisions returns up to limit decisions, newest first.
func (v *View) LatestDecisions(limit int) []Decision {
	if limit <= 0 || limit > len(v.Decisions) {
		limit = len(v.Decisions)
	}
	return v.Decisions[:limit]
}

// publish must be called with mu held (or before the session is shared).
func (s *Session) publish() {
	waiting := s.waitingCount()
	score := s.score()
	v := &View{
		SessionID:     s.id,
		Scenario:      s.scenario.Name,
		Tick:          s.tick,
		Ledgers:       s.set.Clone(),
		Patients:      len(s.patients),
		Waiting:       waiting,
		SeverityLevel: entities.NewAuthority(s.set.Authority).SeverityLevel(),
		Metrics:       s.stats.Current(waiting),
		Summary:       s.stats.Summary(),
		History:       append([]stats.TickPoint(nil), s.stats.History...),
		Objective:     score,
		Overall:       objective.Compare(s.initial, score),
		ActiveAlerts:  s.monitor.Active(),
		AlertHistory:  s.monitor.History(),
		Decisions:     s.decisions.latest(0),
	}
	if im, ok := s.stats.Improvement(); ok {
		v.Improvement = &im
	}
	if s.last != nil {
		r := *s.last
		v.Last = &r
		v.LastTick = r.Comparison
	}
	s.view.Store(v)
}
