package negotiation

import "savegrid.ai/internal/sim/ledger"

type Kind string

const (
	KindPatientAssignment Kind = "patient_assignment"
	KindAmbulanceDispatch Kind = "ambulance_dispatch"
	KindSupplyAllocation  Kind = "supply_allocation"
)

// Resource kinds carried by patient proposals.
const (
	ResourceICUBed     = "icu_bed"
	ResourceGeneralBed = "general_bed"
	ResourceTransport  = "transport"
)

// Proposal is a candidate allocation. It is ephemeral: produced by Match, consumed by
// constraint validation and commit within the same tick.
//
// Subject/Target by kind:
//
//	patient_assignment: patient -> hospital
//	ambulance_dispatch: patient -> unit (HospitalID is the drop-off)
//	supply_allocation:  depot   -> hospital
type Proposal struct {
	Seq        int            `json:"seq"`
	Kind       Kind           `json:"kind"`
	Subject    string         `json:"subject"`
	Target     string         `json:"target"`
	HospitalID string         `json:"hospital_id,omitempty"`
	Resource   string         `json:"resource"`
	Quantity   int            `json:"quantity"`
	Score      float64        `json:"score"`
	Acuity     ledger.Acuity  `json:"acuity,omitempty"`
	ETAMinutes float64        `json:"eta_minutes,omitempty"`
	Urgency    ledger.Urgency `json:"urgency,omitempty"`
	Rationale  string         `json:"rationale"`

	Pickup      ledger.Point `json:"pickup"`
	Destination ledger.Point `json:"destination"`
}

// Unmatched records why a waiting patient received no proposal this tick.
type Unmatched struct {
	PatientID string        `json:"patient_id"`
	Acuity    ledger.Acuity `json:"acuity"`
	Reason    string        `json:"reason"`
}

const (
	ReasonNoCapacity  = "no_capacity"
	ReasonNoTransport = "no_transport"
)

type Plan struct {
	Proposals []Proposal  `json:"proposals"`
	Unmatched []Unmatched `json:"unmatched,omitempty"`
}

// Count returns the number of proposals of the given kind.
func (p Plan) Count(k Kind) int {
	n := 0
	for _, pr := range p.Proposals {
		if pr.Kind == k {
			n++
		}
	}
	return n
}
