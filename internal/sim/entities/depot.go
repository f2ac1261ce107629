package entities

import (
	"fmt"

	"savegrid.ai/internal/sim/ledger"
)

type Depot struct {
	L *ledger.SupplyDepot
}

func NewDepot(d *ledger.SupplyDepot) *Depot { return &Depot{L: d} }

func (d *Depot) ID() string { return d.L.ID }

func (d *Depot) Stress() float64 {
	s := 0.4
	if d.L.StockStatus("oxygen") == "critical" {
		s += 0.2
	}
	if d.L.StockStatus("medications") == "critical" {
		s += 0.1
	}
	return clamp01(s)
}

func (d *Depot) Snapshot() ledger.Snapshot {
	l := d.L
	inv := make(map[string]int, len(l.Inventory))
	for k, v := range l.Inventory {
		inv[k] = v
	}
	snap := ledger.Snapshot{
		ID:       l.ID,
		Kind:     ledger.KindDepot,
		Name:     l.Name,
		Location: l.Location,
		Capacity: ledger.Capacity{
			Inventory:         inv,
			VehiclesAvailable: l.VehiclesAvailable,
		},
		PriorityScore: d.Stress(),
	}
	for _, k := range l.Kinds() {
		qty := l.Inventory[k]
		if l.StockStatus(k) == "critical" {
			snap.Requests = append(snap.Requests, ledger.Request{
				Resource: k,
				Quantity: max(0, l.Initial[k]-qty),
				Urgency:  ledger.UrgencyCritical,
				Reason:   "restock below 20% of initial",
			})
		}
		if qty > 0 && l.VehiclesAvailable > 0 {
			snap.Offers = append(snap.Offers, ledger.Offer{
				Resource:    k,
				Quantity:    qty,
				Priority:    "medium",
				Description: fmt.Sprintf("%d %s in stock", qty, k),
			})
		}
	}
	return snap
}

func (d *Depot) Handle(msg Message) error {
	l := d.L
	switch m := msg.(type) {
	case DispatchSupply:
		if m.Quantity <= 0 || l.Inventory[m.Kind] < m.Quantity {
			return fmt.Errorf("depot %s: %w: %s %d/%d", l.ID, ErrInsufficientStock, m.Kind, l.Inventory[m.Kind], m.Quantity)
		}
		if l.VehiclesAvailable <= 0 {
			return fmt.Errorf("depot %s: %w", l.ID, ErrNoVehicle)
		}
		l.Inventory[m.Kind] -= m.Quantity
		l.VehiclesAvailable--
		l.NextDelivery++
		l.InTransit = append(l.InTransit, ledger.Delivery{
			ID:            fmt.Sprintf("delivery_%04d", l.NextDelivery),
			Kind:          m.Kind,
			Quantity:      m.Quantity,
			DestinationID: m.DestinationID,
			Destination:   m.Destination,
			ETAMinutes:    ledger.TravelMinutes(ledger.Distance(l.Location, m.Destination)),
			StartedTick:   m.Tick,
			Urgency:       m.Urgency,
		})
		return nil
	default:
		return fmt.Errorf("depot %s: %w: %s", l.ID, ErrUnknownMessage, msg.MessageType())
	}
}

// Step counts down every in-transit delivery and completes those that arrive.
func (d *Depot) Step(tick uint64) []Event {
	l := d.L
	var evs []Event
	keep := make([]ledger.Delivery, 0, len(l.InTransit))
	for _, dl := range l.InTransit {
		dl.ETAMinutes -= ledger.MinutesPerTick
		if dl.ETAMinutes > 0 {
			keep = append(keep, dl)
			continue
		}
		l.VehiclesAvailable = min(l.Vehicles, l.VehiclesAvailable+1)
		l.Completed++
		evs = append(evs, Event{
			Kind:       EventDelivered,
			Tick:       tick,
			Source:     l.ID,
			HospitalID: dl.DestinationID,
			DeliveryID: dl.ID,
			Resource:   dl.Kind,
			Quantity:   dl.Quantity,
			Urgency:    dl.Urgency,
		})
	}
	l.InTransit = keep
	return evs
}
