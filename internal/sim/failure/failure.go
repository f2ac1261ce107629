// Package failure detects system-wide danger conditions and raises advisory alerts.
// The monitor never acts on its recommendations.
package failure

import (
	"fmt"

	"savegrid.ai/internal/sim/ledger"
)

type Type string

const (
	NoBedsAnywhere  Type = "NO_BEDS_ANYWHERE"
	OxygenExhausted Type = "OXYGEN_EXHAUSTED"
	NoAmbulances    Type = "NO_AMBULANCES"
	SupplyDepleted  Type = "SUPPLY_DEPLETED"
)

// Thresholds for the condition predicates.
const (
	OxygenMinLiters    = 5.0
	OxygenShareTrigger = 0.5
	SupplyMinQuantity  = 10
)

// CriticalSupplies are the depot kinds watched for depletion.
var CriticalSupplies = []string{"oxygen", "medications"}

type Condition struct {
	Type     Type   `json:"type"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

type playbook struct {
	severity string
	protocol string
	actions  []string
}

var playbooks = map[Type]playbook{
	NoBedsAnywhere: {
		severity: "critical",
		protocol: "Emergency Bed Expansion Protocol",
		actions: []string{
			"Activate overflow capacity at all hospitals",
			"Request field hospital deployment",
			"Prioritize critical patients only",
			"Implement triage protocols",
		},
	},
	OxygenExhausted: {
		severity: "critical",
		protocol: "Oxygen Emergency Protocol",
		actions: []string{
			"Redistribute from lower-priority facilities",
			"Emergency airlift request",
			"Implement oxygen rationing",
			"Prioritize ICU patients",
		},
	},
	NoAmbulances: {
		severity: "high",
		protocol: "Transport Emergency Protocol",
		actions: []string{
			"Activate reserve vehicles",
			"Request military/police transport",
			"Establish triage collection points",
			"Priority-based patient staging",
		},
	},
	SupplyDepleted: {
		severity: "high",
		protocol: "Supply Chain Emergency Protocol",
		actions: []string{
			"Emergency procurement activated",
			"Regional supply sharing initiated",
			"Non-essential deliveries suspended",
			"Rationing protocols in effect",
		},
	},
}

// Protocol returns the named protocol and its ordered advisory actions.
func Protocol(t Type) (string, []string) {
	p := playbooks[t]
	return p.protocol, append([]string(nil), p.actions...)
}

// Detect evaluates every predicate; conditions are returned in a fixed order.
func Detect(s *ledger.Set) []Condition {
	var out []Condition
	add := func(t Type, msg string) {
		out = append(out, Condition{Type: t, Severity: playbooks[t].severity, Message: msg})
	}

	if beds, icu := s.FreeCapacity(); len(s.Hospitals) > 0 && beds == 0 && icu == 0 {
		add(NoBedsAnywhere, "All hospitals at full capacity")
	}

	low := 0
	for _, h := range s.Hospitals {
		if h.OxygenLiters <= OxygenMinLiters {
			low++
		}
	}
	if len(s.Hospitals) > 0 && float64(low) >= OxygenShareTrigger*float64(len(s.Hospitals)) {
		add(OxygenExhausted, fmt.Sprintf("%d of %d hospitals have critically low oxygen", low, len(s.Hospitals)))
	}

	ready := 0
	for _, u := range s.Units {
		if u.Available() {
			ready++
		}
	}
	if ready == 0 {
		add(NoAmbulances, "No ambulances available for dispatch")
	}

	if s.Depot != nil {
		for _, k := range CriticalSupplies {
			if qty, ok := s.Depot.Inventory[k]; ok && qty <= SupplyMinQuantity {
				add(SupplyDepleted, fmt.Sprintf("Critical supply %s depleted (%d remaining)", k, qty))
				break
			}
		}
	}
	return out
}

type Alert struct {
	Type     Type     `json:"type"`
	Severity string   `json:"severity"`
	Message  string   `json:"message"`
	Protocol string   `json:"protocol"`
	Actions  []string `json:"actions"`
	Tick     uint64   `json:"tick"`
	Resolved bool     `json:"resolved,omitempty"`
}

// Monitor deduplicates alerts by condition type across ticks. A condition alerts once when
// its predicate starts holding and again only after it has stopped holding.
type Monitor struct {
	active  map[Type]Alert
	history []Alert
}

func NewMonitor() *Monitor {
	return &Monitor{active: map[Type]Alert{}}
}

// Observe returns newly activated alerts followed by resolutions, both in Detect order.
func (m *Monitor) Observe(s *ledger.Set, tick uint64) []Alert {
	now := Detect(s)
	holding := make(map[Type]bool, len(now))
	var out []Alert
	for _, c := range now {
		holding[c.Type] = true
		if _, ok := m.active[c.Type]; ok {
			continue
		}
		name, actions := Protocol(c.Type)
		a := Alert{
			Type:     c.Type,
			Severity: c.Severity,
			Message:  c.Message,
			Protocol: name,
			Actions:  actions,
			Tick:     tick,
		}
		m.active[c.Type] = a
		m.history = append(m.history, a)
		out = append(out, a)
	}
	for _, t := range []Type{NoBedsAnywhere, OxygenExhausted, NoAmbulances, SupplyDepleted} {
		a, ok := m.active[t]
		if !ok || holding[t] {
			continue
		}
		delete(m.active, t)
		a.Resolved = true
		a.Tick = tick
		a.Message = fmt.Sprintf("%s resolved", t)
		m.history = append(m.history, a)
		out = append(out, a)
	}
	return out
}

// Active lists currently active alerts in a fixed order.
func (m *Monitor) Active() []Alert {
	var out []Alert
	for _, t := range []Type{NoBedsAnywhere, OxygenExhausted, NoAmbulances, SupplyDepleted} {
		if a, ok := m.active[t]; ok {
			out = append(out, a)
		}
	}
	return out
}

// History returns every activation and resolution so far.
func (m *Monitor) History() []Alert {
	return append([]Alert(nil), m.history...)
}

// Restore rebuilds monitor state from a saved active set and history.
func Restore(active, history []Alert) *Monitor {
	m := NewMonitor()
	for _, a := range active {
		m.active[a.Type] = a
	}
	m.history = append(m.history, history...)
	return m
}
