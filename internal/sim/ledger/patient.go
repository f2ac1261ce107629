package ledger

import "sort"

type Patient struct {
	ID          string        `json:"id"`
	Acuity      Acuity        `json:"acuity"`
	Location    Point         `json:"location"`
	Zone        string        `json:"zone,omitempty"`
	CreatedTick uint64        `json:"created_tick"`
	Status      PatientStatus `json:"status"`

	HospitalID string `json:"hospital_id,omitempty"`
	UnitID     string `json:"unit_id,omitempty"`

	// ResponseMinutes is the projected pickup-to-door time of the dispatch that served the patient.
	ResponseMinutes float64 `json:"response_minutes,omitempty"`
}

// SortForTriage orders patients most severe first, then oldest, then by id.
func SortForTriage(ps []Patient) {
	sort.SliceStable(ps, func(i, j int) bool {
		a, b := ps[i], ps[j]
		if a.Acuity != b.Acuity {
			return a.Acuity < b.Acuity
		}
		if a.CreatedTick != b.CreatedTick {
			return a.CreatedTick < b.CreatedTick
		}
		return a.ID < b.ID
	})
}
