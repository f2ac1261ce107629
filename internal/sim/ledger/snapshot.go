package ledger

type Kind string

const (
	KindHospital  Kind = "hospital"
	KindAmbulance Kind = "ambulance"
	KindDepot     Kind = "depot"
	KindAuthority Kind = "authority"
)

type Request struct {
	Resource string  `json:"resource"`
	Quantity int     `json:"quantity"`
	Urgency  Urgency `json:"urgency"`
	Reason   string  `json:"reason,omitempty"`
}

type Offer struct {
	Resource    string `json:"resource"`
	Quantity    int    `json:"quantity"`
	Priority    string `json:"priority,omitempty"`
	Description string `json:"description,omitempty"`
}

// Capacity holds the typed capacity fields; only those for the holder's kind are set.
type Capacity struct {
	AvailableBeds int     `json:"available_beds,omitempty"`
	ICUAvailable  int     `json:"icu_available,omitempty"`
	OxygenLiters  float64 `json:"oxygen_liters,omitempty"`
	OxygenHours   float64 `json:"oxygen_hours,omitempty"`
	Critical      bool    `json:"critical,omitempty"`

	AvailableSlots int        `json:"available_slots,omitempty"`
	Fuel           float64    `json:"fuel,omitempty"`
	Status         UnitStatus `json:"status,omitempty"`

	Inventory         map[string]int `json:"inventory,omitempty"`
	VehiclesAvailable int            `json:"vehicles_available,omitempty"`
}

// Snapshot is the per-tick status a resource holder reports. It is a value copy.
type Snapshot struct {
	ID            string    `json:"id"`
	Kind          Kind      `json:"kind"`
	Name          string    `json:"name,omitempty"`
	Location      Point     `json:"location"`
	Capacity      Capacity  `json:"capacity"`
	Requests      []Request `json:"pending_requests"`
	Offers        []Offer   `json:"pending_offers"`
	PriorityScore float64   `json:"priority_score"`
}
