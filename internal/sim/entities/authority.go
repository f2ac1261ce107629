package entities

import (
	"fmt"
	"math"

	"savegrid.ai/internal/sim/ledger"
)

const (
	SeverityDecayEvery = 10
	SeverityDecay      = 0.02
	SeverityFloor      = 0.3

	CriticalMultiplier  = 1.5
	LowOxygenMultiplier = 1.3
	LowOxygenLiters     = 30
)

// Authority is the regional authority: it owns severity and rule flags and derives
// the per-hospital multipliers negotiation scores with.
type Authority struct {
	L *ledger.AuthorityState
}

func NewAuthority(a *ledger.AuthorityState) *Authority { return &Authority{L: a} }

func (a *Authority) ID() string { return a.L.ID }

// SeverityLevel maps severity onto critical/high/medium/low.
func (a *Authority) SeverityLevel() string {
	s := a.L.Severity
	switch {
	case s >= 0.8:
		return "critical"
	case s >= 0.5:
		return "high"
	case s >= 0.3:
		return "medium"
	default:
		return "low"
	}
}

// Policy builds the directive for this tick from the current hospital ledgers.
func (a *Authority) Policy(hospitals []*ledger.ResourcePool) ledger.Policy {
	p := ledger.Policy{
		Multipliers: make(map[string]float64, len(hospitals)),
		Severity:    a.L.Severity,
		Rules:       make(map[string]bool, len(a.L.Rules)),
	}
	for k, v := range a.L.Rules {
		p.Rules[k] = v
	}
	for _, h := range hospitals {
		m := 1.0
		if h.Critical() {
			m *= CriticalMultiplier
		}
		if h.OxygenLiters < LowOxygenLiters {
			m *= LowOxygenMultiplier
		}
		p.Multipliers[h.ID] = m
	}
	return p
}

func (a *Authority) Snapshot() ledger.Snapshot {
	snap := ledger.Snapshot{
		ID:            a.L.ID,
		Kind:          ledger.KindAuthority,
		Name:          a.L.ID,
		PriorityScore: a.L.Severity,
	}
	for _, r := range a.L.ActiveRules() {
		snap.Offers = append(snap.Offers, ledger.Offer{Resource: "policy_rule", Quantity: 1, Description: r})
	}
	return snap
}

func (a *Authority) Handle(msg Message) error {
	switch m := msg.(type) {
	case OverridePolicy:
		o := m.Override
		if o.Severity != nil {
			s := *o.Severity
			if math.IsNaN(s) || s < 0 || s > 1 {
				return fmt.Errorf("authority %s: severity %v outside [0,1]", a.L.ID, s)
			}
			a.L.Severity = s
		}
		if a.L.Rules == nil {
			a.L.Rules = map[string]bool{}
		}
		for k, v := range o.Rules {
			a.L.Rules[k] = v
		}
		a.L.Overrides = append(a.L.Overrides, o)
		return nil
	default:
		return fmt.Errorf("authority %s: %w: %s", a.L.ID, ErrUnknownMessage, msg.MessageType())
	}
}

// Step decays severity toward the floor every SeverityDecayEvery ticks.
func (a *Authority) Step(tick uint64) []Event {
	if tick == 0 || tick%SeverityDecayEvery != 0 || a.L.Severity <= SeverityFloor {
		return nil
	}
	a.L.Severity = max(SeverityFloor, a.L.Severity-SeverityDecay)
	return []Event{{Kind: EventSeverityDecayed, Tick: tick, Source: a.L.ID, Value: a.L.Severity}}
}
