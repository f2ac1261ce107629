package ledger

import (
	"fmt"
	"sort"
)

// Delivery is a supply run in transit; it completes when ETAMinutes reaches zero.
type Delivery struct {
	ID            string  `json:"id"`
	Kind          string  `json:"kind"`
	Quantity      int     `json:"quantity"`
	DestinationID string  `json:"destination_id"`
	Destination   Point   `json:"destination"`
	ETAMinutes    float64 `json:"eta_minutes"`
	StartedTick   uint64  `json:"started_tick"`
	Urgency       Urgency `json:"urgency,omitempty"`
}

// SupplyDepot is the depot ledger.
type SupplyDepot struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Location Point  `json:"location"`

	Inventory map[string]int `json:"inventory"`
	Initial   map[string]int `json:"initial"`

	Vehicles          int `json:"vehicles"`
	VehiclesAvailable int `json:"vehicles_available"`

	InTransit    []Delivery `json:"in_transit"`
	Completed    int        `json:"completed"`
	NextDelivery int        `json:"next_delivery"`
}

func NewSupplyDepot(id, name string, loc Point, inventory map[string]int, vehicles int) *SupplyDepot {
	inv := make(map[string]int, len(inventory))
	initial := make(map[string]int, len(inventory))
	for k, v := range inventory {
		inv[k] = v
		initial[k] = v
	}
	return &SupplyDepot{
		ID:                id,
		Name:              name,
		Location:          loc,
		Inventory:         inv,
		Initial:           initial,
		Vehicles:          vehicles,
		VehiclesAvailable: vehicles,
	}
}

func (d *SupplyDepot) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("depot: %w", ErrMissingID)
	}
	if d.Vehicles < 0 || d.VehiclesAvailable < 0 || d.VehiclesAvailable > d.Vehicles {
		return fmt.Errorf("depot %s: %w: vehicles %d/%d", d.ID, ErrInvalidCapacity, d.VehiclesAvailable, d.Vehicles)
	}
	for k, v := range d.Inventory {
		if v < 0 {
			return fmt.Errorf("depot %s: %w: %s inventory %d", d.ID, ErrInvalidCapacity, k, v)
		}
	}
	return nil
}

// Kinds returns inventory kinds in stable order.
func (d *SupplyDepot) Kinds() []string {
	out := make([]string, 0, len(d.Inventory))
	for k := range d.Inventory {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// StockStatus is "critical" below 20% of initial stock, "low" below 40%, else "ok".
func (d *SupplyDepot) StockStatus(kind string) string {
	initial := d.Initial[kind]
	if initial <= 0 {
		initial = 1
	}
	r := float64(d.Inventory[kind]) / float64(initial)
	switch {
	case r < 0.2:
		return "critical"
	case r < 0.4:
		return "low"
	default:
		return "ok"
	}
}

func (d *SupplyDepot) Clone() *SupplyDepot {
	if d == nil {
		return nil
	}
	c := *d
	c.Inventory = cloneIntMap(d.Inventory)
	c.Initial = cloneIntMap(d.Initial)
	c.InTransit = append([]Delivery(nil), d.InTransit...)
	return &c
}

func cloneIntMap(m map[string]int) map[string]int {
	if m == nil {
		return nil
	}
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
