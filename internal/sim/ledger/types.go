package ledger

import "math"

// Point is a map position in kilometres.
type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

func Distance(a, b Point) float64 {
	return math.Hypot(b.X-a.X, b.Y-a.Y)
}

// Acuity is the five-level triage scale: 1 is most severe.
type Acuity int

const (
	AcuityResuscitation Acuity = 1
	AcuityEmergent      Acuity = 2
	AcuityUrgent        Acuity = 3
	AcuityLessUrgent    Acuity = 4
	AcuityNonUrgent     Acuity = 5
)

func (a Acuity) Valid() bool { return a >= AcuityResuscitation && a <= AcuityNonUrgent }

// NeedsICU reports whether the patient must be placed in an ICU slot.
func (a Acuity) NeedsICU() bool { return a <= AcuityEmergent }

// Critical is the subset counted by the objective as unserved-critical.
func (a Acuity) Critical() bool { return a <= AcuityEmergent }

func (a Acuity) Name() string {
	switch a {
	case AcuityResuscitation:
		return "Resuscitation"
	case AcuityEmergent:
		return "Emergent"
	case AcuityUrgent:
		return "Urgent"
	case AcuityLessUrgent:
		return "Less Urgent"
	case AcuityNonUrgent:
		return "Non-Urgent"
	default:
		return "Unknown"
	}
}

// OxygenLPM is the supplemental oxygen draw per patient in litres per minute.
func (a Acuity) OxygenLPM() float64 {
	switch a {
	case AcuityResuscitation:
		return 15
	case AcuityEmergent:
		return 8
	case AcuityUrgent:
		return 4
	case AcuityLessUrgent:
		return 2
	case AcuityNonUrgent:
		return 0
	default:
		return 4
	}
}

type Urgency string

const (
	UrgencyCritical Urgency = "critical"
	UrgencyHigh     Urgency = "high"
	UrgencyMedium   Urgency = "medium"
	UrgencyLow      Urgency = "low"
)

// Rank orders urgencies; lower is more urgent. Unknown values sort with medium.
func (u Urgency) Rank() int {
	switch u {
	case UrgencyCritical:
		return 0
	case UrgencyHigh:
		return 1
	case UrgencyMedium:
		return 2
	case UrgencyLow:
		return 3
	default:
		return 2
	}
}

type PatientStatus string

const (
	PatientWaiting    PatientStatus = "waiting"
	PatientAssigned   PatientStatus = "assigned"
	PatientEnRoute    PatientStatus = "en_route"
	PatientAdmitted   PatientStatus = "admitted"
	PatientDischarged PatientStatus = "discharged"
)

type UnitStatus string

const (
	UnitIdle            UnitStatus = "idle"
	UnitEnRoutePickup   UnitStatus = "en_route_pickup"
	UnitEnRouteHospital UnitStatus = "en_route_hospital"
)

type CareUnit string

const (
	CareICU     CareUnit = "ICU"
	CareGeneral CareUnit = "General"
)

// Clinical and operational thresholds.
const (
	OverloadThreshold      = 0.85
	CriticalThreshold      = 0.95
	DiversionThreshold     = 0.98
	ICUCriticalThreshold   = 0.90
	OxygenCriticalHours    = 4.0
	OxygenWarningHours     = 8.0
	OxygenDiversionHours   = 2.0
	OxygenUnlimitedHours   = 999.0
	FuelCritical           = 0.15
	FuelLow                = 0.30
	AmbulanceSpeedKmh      = 40.0
	MinutesPerTick         = 5.0
	ICUNurseShare          = 0.4
	ICUNursesPerPatientMin = 0.5
)
