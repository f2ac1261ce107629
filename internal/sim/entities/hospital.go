package entities

import (
	"fmt"
	"sort"

	"savegrid.ai/internal/sim/ledger"
)

const (
	// DischargeEvery is the discharge cadence in ticks.
	DischargeEvery = 5

	OxygenRequestLiters = 100
	NursingRequestStaff = 2
)

// Hospital wraps a ResourcePool ledger.
type Hospital struct {
	L *ledger.ResourcePool
}

func NewHospital(p *ledger.ResourcePool) *Hospital { return &Hospital{L: p} }

func (h *Hospital) ID() string { return h.L.ID }

// Stress is the 0..1 load indicator used as the snapshot priority score.
func (h *Hospital) Stress() float64 {
	p := h.L
	s := 0.25*p.BedUtilization() + 0.30*p.ICUUtilization()
	switch p.OxygenStatus() {
	case "critical":
		s += 0.30
	case "warning":
		s += 0.15
	}
	if !p.StaffingAdequate() {
		s += 0.10
	}
	s += min(0.05, p.InflowRate*0.01)
	return min(1, s)
}

func (h *Hospital) Requests() []ledger.Request {
	p := h.L
	var out []ledger.Request
	switch p.OxygenStatus() {
	case "critical":
		out = append(out, ledger.Request{
			Resource: "oxygen", Quantity: OxygenRequestLiters, Urgency: ledger.UrgencyCritical,
			Reason: fmt.Sprintf("%.1f hours of oxygen remaining", p.OxygenHours()),
		})
	case "warning":
		out = append(out, ledger.Request{
			Resource: "oxygen", Quantity: OxygenRequestLiters, Urgency: ledger.UrgencyHigh,
			Reason: fmt.Sprintf("%.1f hours of oxygen remaining", p.OxygenHours()),
		})
	}
	if p.RequiresDiversion() {
		out = append(out, ledger.Request{
			Resource: "patient_diversion", Quantity: 1, Urgency: ledger.UrgencyCritical,
			Reason: "hospital at diversion threshold",
		})
	} else if p.Overloaded() {
		out = append(out, ledger.Request{
			Resource: "surge_support", Quantity: 1, Urgency: ledger.UrgencyHigh,
			Reason: fmt.Sprintf("bed utilization %.0f%%", p.BedUtilization()*100),
		})
	}
	if !p.StaffingAdequate() && p.OccupiedICU() > 0 {
		out = append(out, ledger.Request{
			Resource: "nursing_staff", Quantity: NursingRequestStaff, Urgency: ledger.UrgencyHigh,
			Reason: "ICU nurse ratio below minimum",
		})
	}
	return out
}

func (h *Hospital) Offers() []ledger.Offer {
	p := h.L
	var out []ledger.Offer
	if p.BedUtilization() < 0.5 && p.AvailableBeds/2 > 0 {
		out = append(out, ledger.Offer{
			Resource: "bed_capacity", Quantity: p.AvailableBeds / 2, Priority: "medium",
			Description: fmt.Sprintf("can accept %d additional patients", p.AvailableBeds/2),
		})
	}
	if p.ICUUtilization() < 0.6 && p.ICUAvailable > 0 {
		out = append(out, ledger.Offer{
			Resource: "icu_capacity", Quantity: p.ICUAvailable, Priority: "high",
			Description: fmt.Sprintf("%d ICU beds available for critical patients", p.ICUAvailable),
		})
	}
	return out
}

func (h *Hospital) Snapshot() ledger.Snapshot {
	p := h.L
	return ledger.Snapshot{
		ID:       p.ID,
		Kind:     ledger.KindHospital,
		Name:     p.Name,
		Location: p.Location,
		Capacity: ledger.Capacity{
			AvailableBeds: p.AvailableBeds,
			ICUAvailable:  p.ICUAvailable,
			OxygenLiters:  p.OxygenLiters,
			OxygenHours:   p.OxygenHours(),
			Critical:      p.Critical(),
		},
		Requests:      h.Requests(),
		Offers:        h.Offers(),
		PriorityScore: h.Stress(),
	}
}

func (h *Hospital) Handle(msg Message) error {
	p := h.L
	switch m := msg.(type) {
	case AdmitPatient:
		unit := ledger.CareGeneral
		if m.Acuity.NeedsICU() {
			if p.ICUAvailable <= 0 {
				return fmt.Errorf("hospital %s: %w: icu", p.ID, ErrNoCapacity)
			}
			p.ICUAvailable--
			unit = ledger.CareICU
		} else {
			if p.AvailableBeds <= 0 {
				return fmt.Errorf("hospital %s: %w: beds", p.ID, ErrNoCapacity)
			}
			p.AvailableBeds--
		}
		p.Admitted = append(p.Admitted, ledger.Admission{
			PatientID:    m.PatientID,
			Acuity:       m.Acuity,
			Unit:         unit,
			AdmittedTick: m.Tick,
		})
		return nil
	case ReleaseAdmission:
		for i, a := range p.Admitted {
			if a.PatientID != m.PatientID {
				continue
			}
			p.Admitted = append(p.Admitted[:i], p.Admitted[i+1:]...)
			if a.Unit == ledger.CareICU {
				p.ICUAvailable = min(p.ICUBeds, p.ICUAvailable+1)
			} else {
				p.AvailableBeds = min(p.TotalBeds, p.AvailableBeds+1)
			}
			return nil
		}
		return fmt.Errorf("hospital %s: no admission for %s", p.ID, m.PatientID)
	case PatientArrived:
		for i := range p.Admitted {
			if p.Admitted[i].PatientID == m.PatientID {
				p.Admitted[i].Arrived = true
				return nil
			}
		}
		return fmt.Errorf("hospital %s: no admission for %s", p.ID, m.PatientID)
	case ReceiveSupply:
		if m.Kind == "oxygen" {
			p.OxygenLiters += float64(m.Quantity)
			return nil
		}
		if p.Supplies == nil {
			p.Supplies = map[string]int{}
		}
		p.Supplies[m.Kind] += m.Quantity
		return nil
	default:
		return fmt.Errorf("hospital %s: %w: %s", p.ID, ErrUnknownMessage, msg.MessageType())
	}
}

// Step burns one tick of oxygen and, every DischargeEvery ticks, discharges the
// least severe patient that has arrived.
func (h *Hospital) Step(tick uint64) []Event {
	p := h.L
	var evs []Event

	had := p.OxygenLiters > 0
	p.OxygenLiters = max(0, p.OxygenLiters-p.OxygenLPM()*ledger.MinutesPerTick)
	if had && p.OxygenLiters == 0 {
		evs = append(evs, Event{Kind: EventOxygenExhausted, Tick: tick, Source: p.ID, HospitalID: p.ID})
	}

	if tick > 0 && tick%DischargeEvery == 0 {
		if a, ok := h.discharge(); ok {
			evs = append(evs, Event{
				Kind:       EventDischarged,
				Tick:       tick,
				Source:     p.ID,
				PatientID:  a.PatientID,
				HospitalID: p.ID,
				Resource:   string(a.Unit),
			})
		}
	}
	return evs
}

func (h *Hospital) discharge() (ledger.Admission, bool) {
	p := h.L
	idx := make([]int, 0, len(p.Admitted))
	for i, a := range p.Admitted {
		if a.Arrived {
			idx = append(idx, i)
		}
	}
	if len(idx) == 0 {
		return ledger.Admission{}, false
	}
	sort.SliceStable(idx, func(i, j int) bool {
		a, b := p.Admitted[idx[i]], p.Admitted[idx[j]]
		if a.Acuity != b.Acuity {
			return a.Acuity > b.Acuity
		}
		if a.AdmittedTick != b.AdmittedTick {
			return a.AdmittedTick < b.AdmittedTick
		}
		return a.PatientID < b.PatientID
	})
	i := idx[0]
	a := p.Admitted[i]
	p.Admitted = append(p.Admitted[:i], p.Admitted[i+1:]...)
	if a.Unit == ledger.CareICU {
		p.ICUAvailable = min(p.ICUBeds, p.ICUAvailable+1)
	} else {
		p.AvailableBeds = min(p.TotalBeds, p.AvailableBeds+1)
	}
	return a, true
}
