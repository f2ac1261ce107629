package ledger

import "fmt"

// Admission is one patient admitted through commit.
type Admission struct {
	PatientID    string   `json:"patient_id"`
	Acuity       Acuity   `json:"acuity"`
	Unit         CareUnit `json:"unit"`
	AdmittedTick uint64   `json:"admitted_tick"`
	Arrived      bool     `json:"arrived"`
}

// ResourcePool is a hospital's capacity ledger.
//
// Beds and ICU slots occupied before the simulation starts are tracked as baseline
// occupancy; only admissions made by commit are discharged.
type ResourcePool struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Location Point  `json:"location"`

	TotalBeds     int `json:"total_beds"`
	AvailableBeds int `json:"available_beds"`
	ICUBeds       int `json:"icu_beds"`
	ICUAvailable  int `json:"icu_available"`

	BaselineBeds int `json:"baseline_beds"`
	BaselineICU  int `json:"baseline_icu"`

	OxygenLiters float64 `json:"oxygen_liters"`

	Doctors    int     `json:"doctors"`
	Nurses     int     `json:"nurses"`
	InflowRate float64 `json:"inflow_rate"`

	Admitted []Admission `json:"admitted"`

	// Supplies holds delivered non-oxygen stock.
	Supplies map[string]int `json:"supplies,omitempty"`
}

// NewResourcePool builds a ledger, recording current occupancy as baseline.
func NewResourcePool(id, name string, loc Point, totalBeds, availableBeds, icuBeds, icuAvailable int, oxygen float64) *ResourcePool {
	return &ResourcePool{
		ID:            id,
		Name:          name,
		Location:      loc,
		TotalBeds:     totalBeds,
		AvailableBeds: availableBeds,
		ICUBeds:       icuBeds,
		ICUAvailable:  icuAvailable,
		BaselineBeds:  totalBeds - availableBeds,
		BaselineICU:   icuBeds - icuAvailable,
		OxygenLiters:  oxygen,
	}
}

func (p *ResourcePool) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("hospital: %w", ErrMissingID)
	}
	if p.TotalBeds+p.ICUBeds <= 0 {
		return fmt.Errorf("hospital %s: %w: zero total capacity", p.ID, ErrInvalidCapacity)
	}
	if p.TotalBeds < 0 || p.ICUBeds < 0 || p.AvailableBeds < 0 || p.ICUAvailable < 0 {
		return fmt.Errorf("hospital %s: %w: negative capacity", p.ID, ErrInvalidCapacity)
	}
	if p.AvailableBeds > p.TotalBeds {
		return fmt.Errorf("hospital %s: %w: available_beds %d > total_beds %d", p.ID, ErrInvalidCapacity, p.AvailableBeds, p.TotalBeds)
	}
	if p.ICUAvailable > p.ICUBeds {
		return fmt.Errorf("hospital %s: %w: icu_available %d > icu_beds %d", p.ID, ErrInvalidCapacity, p.ICUAvailable, p.ICUBeds)
	}
	if p.OxygenLiters < 0 {
		return fmt.Errorf("hospital %s: %w: negative oxygen", p.ID, ErrInvalidCapacity)
	}
	return nil
}

func (p *ResourcePool) OccupiedBeds() int { return p.TotalBeds - p.AvailableBeds }
func (p *ResourcePool) OccupiedICU() int { return p.ICUBeds - p.ICUAvailable }

// AdmittedIn counts commit-admitted patients in the given care unit.
func (p *ResourcePool) AdmittedIn(u CareUnit) int {
	n := 0
	for _, a := range p.Admitted {
		if a.Unit == u {
			n++
		}
	}
	return n
}

func (p *ResourcePool) BedUtilization() float64 {
	return 1 - float64(p.AvailableBeds)/float64(max(p.TotalBeds, 1))
}

func (p *ResourcePool) ICUUtilization() float64 {
	return 1 - float64(p.ICUAvailable)/float64(max(p.ICUBeds, 1))
}

// OxygenLPM is the current draw in litres per minute.
func (p *ResourcePool) OxygenLPM() float64 {
	lpm := float64(p.BaselineICU) * AcuityResuscitation.OxygenLPM()
	for _, a := range p.Admitted {
		lpm += a.Acuity.OxygenLPM()
	}
	return lpm
}

func (p *ResourcePool) OxygenHours() float64 {
	lpm := p.OxygenLPM()
	if lpm <= 0 {
		return OxygenUnlimitedHours
	}
	return p.OxygenLiters / (lpm * 60)
}

// OxygenStatus is "critical", "warning" or "adequate".
func (p *ResourcePool) OxygenStatus() string {
	h := p.OxygenHours()
	switch {
	case h <= OxygenCriticalHours:
		return "critical"
	case h <= OxygenWarningHours:
		return "warning"
	default:
		return "adequate"
	}
}

// NurseRatio is ICU nurses per ICU patient; ok is false with no ICU patients.
func (p *ResourcePool) NurseRatio() (ratio float64, ok bool) {
	icu := p.OccupiedICU()
	if icu == 0 {
		return 0, false
	}
	return float64(p.Nurses) * ICUNurseShare / float64(icu), true
}

func (p *ResourcePool) StaffingAdequate() bool {
	r, ok := p.NurseRatio()
	if !ok {
		return true
	}
	return r >= ICUNursesPerPatientMin
}

func (p *ResourcePool) Overloaded() bool { return p.BedUtilization() >= OverloadThreshold }

func (p *ResourcePool) Critical() bool {
	return p.BedUtilization() >= CriticalThreshold ||
		p.ICUUtilization() >= ICUCriticalThreshold ||
		p.OxygenStatus() == "critical"
}

func (p *ResourcePool) RequiresDiversion() bool {
	return p.BedUtilization() >= DiversionThreshold ||
		p.ICUAvailable == 0 ||
		p.OxygenHours() <= OxygenDiversionHours
}

// StatusLevel is the dashboard status: diversion, critical, warning or operational.
func (p *ResourcePool) StatusLevel() string {
	switch {
	case p.RequiresDiversion():
		return "diversion"
	case p.Critical():
		return "critical"
	case p.Overloaded():
		return "warning"
	default:
		return "operational"
	}
}

// Has reports whether a slot of the class the acuity needs is free.
func (p *ResourcePool) Has(a Acuity) bool {
	if a.NeedsICU() {
		return p.ICUAvailable > 0
	}
	return p.AvailableBeds > 0
}

func (p *ResourcePool) Clone() *ResourcePool {
	if p == nil {
		return nil
	}
	c := *p
	c.Admitted = append([]Admission(nil), p.Admitted...)
	c.Supplies = cloneIntMap(p.Supplies)
	return &c
}
