package ledger

import "sort"

// Rule flags understood by the authority.
const (
	RuleCriticalPatientsFirst  = "critical_patients_first"
	RuleBalanceHospitalLoad    = "balance_hospital_load"
	RulePreserveOxygenReserves = "preserve_oxygen_reserves"
	RuleGoldenHourCompliance   = "golden_hour_compliance"
	RuleMutualAidActivated     = "mutual_aid_activated"
)

var knownRules = map[string]bool{
	RuleCriticalPatientsFirst:  true,
	RuleBalanceHospitalLoad:    true,
	RulePreserveOxygenReserves: true,
	RuleGoldenHourCompliance:   true,
	RuleMutualAidActivated:     true,
}

func KnownRule(name string) bool { return knownRules[name] }

// Policy is the directive the authority hands to negotiation. Read-only to the core.
type Policy struct {
	Multipliers map[string]float64 `json:"multipliers"`
	Severity    float64            `json:"severity"`
	Rules       map[string]bool    `json:"rules"`
}

// Multiplier defaults to 1 for unknown holders and clamps negatives to 0.
func (p Policy) Multiplier(id string) float64 {
	m, ok := p.Multipliers[id]
	if !ok {
		return 1
	}
	if m < 0 {
		return 0
	}
	return m
}

func (p Policy) Rule(name string) bool { return p.Rules[name] }

// AuthorityState is the regional authority's ledger.
type AuthorityState struct {
	ID        string          `json:"id"`
	Severity  float64         `json:"severity"`
	Fairness  float64         `json:"fairness"`
	Rules     map[string]bool `json:"rules"`
	Overrides []Override      `json:"overrides,omitempty"`
}

// Override is an operator policy change applied at a tick.
type Override struct {
	Tick     uint64          `json:"tick"`
	Severity *float64        `json:"severity,omitempty"`
	Rules    map[string]bool `json:"rules,omitempty"`
	Reason   string          `json:"reason,omitempty"`
}

// ActiveRules lists enabled rule names in stable order.
func (a *AuthorityState) ActiveRules() []string {
	out := make([]string, 0, len(a.Rules))
	for k, v := range a.Rules {
		if v {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func (a *AuthorityState) Clone() *AuthorityState {
	if a == nil {
		return nil
	}
	c := *a
	c.Rules = make(map[string]bool, len(a.Rules))
	for k, v := range a.Rules {
		c.Rules[k] = v
	}
	c.Overrides = append([]Override(nil), a.Overrides...)
	return &c
}
