package entities

import (
	"fmt"

	"savegrid.ai/internal/sim/ledger"
)

const (
	// SpeedKmPerTick is the distance a moving unit covers per tick.
	SpeedKmPerTick = 5.0
	FuelPerTick    = 0.02
)

type Ambulance struct {
	L *ledger.TransportUnit
}

func NewAmbulance(u *ledger.TransportUnit) *Ambulance { return &Ambulance{L: u} }

func (a *Ambulance) ID() string { return a.L.ID }

func (a *Ambulance) Stress() float64 {
	u := a.L
	s := 0.5
	if u.Mission != nil && u.Mission.Acuity.Critical() {
		s += 0.3
	}
	if u.FuelStatus() == "critical" {
		s -= 0.2
	}
	return clamp01(s)
}

func (a *Ambulance) Snapshot() ledger.Snapshot {
	u := a.L
	snap := ledger.Snapshot{
		ID:       u.ID,
		Kind:     ledger.KindAmbulance,
		Name:     u.ID,
		Location: u.Location,
		Capacity: ledger.Capacity{
			AvailableSlots: u.FreeSlots(),
			Fuel:           u.Fuel,
			Status:         u.Status,
		},
		PriorityScore: a.Stress(),
	}
	if u.Fuel < ledger.FuelLow {
		urg := ledger.UrgencyHigh
		if u.Fuel < ledger.FuelCritical {
			urg = ledger.UrgencyCritical
		}
		snap.Requests = append(snap.Requests, ledger.Request{
			Resource: "fuel",
			Quantity: int((1 - u.Fuel) * 100),
			Urgency:  urg,
			Reason:   fmt.Sprintf("fuel at %.0f%%", u.Fuel*100),
		})
	}
	if u.Available() {
		snap.Offers = append(snap.Offers, ledger.Offer{
			Resource:    "transport",
			Quantity:    u.FreeSlots(),
			Priority:    "high",
			Description: fmt.Sprintf("%d free slots", u.FreeSlots()),
		})
	}
	return snap
}

func (a *Ambulance) Handle(msg Message) error {
	u := a.L
	switch m := msg.(type) {
	case StartMission:
		if !u.Available() {
			return fmt.Errorf("unit %s: %w (status=%s load=%d fuel=%.2f)", u.ID, ErrUnavailable, u.Status, u.Load, u.Fuel)
		}
		u.Load++
		u.Status = ledger.UnitEnRoutePickup
		u.Mission = &ledger.Mission{
			PatientID:  m.PatientID,
			Acuity:     m.Acuity,
			HospitalID: m.HospitalID,
			Pickup:     m.Pickup,
			Hospital:   m.Hospital,
			StartTick:  m.Tick,
		}
		return nil
	default:
		return fmt.Errorf("unit %s: %w: %s", u.ID, ErrUnknownMessage, msg.MessageType())
	}
}

// Step moves the unit toward its destination. Reaching the pickup point turns the unit
// toward the hospital; reaching the hospital releases the load and returns it to idle.
func (a *Ambulance) Step(tick uint64) []Event {
	u := a.L
	if u.Status == ledger.UnitIdle || u.Mission == nil {
		return nil
	}
	var evs []Event

	had := u.Fuel > 0
	u.Fuel = max(0, u.Fuel-FuelPerTick)
	if had && u.Fuel == 0 {
		evs = append(evs, Event{Kind: EventFuelExhausted, Tick: tick, Source: u.ID, UnitID: u.ID})
	}

	dest, _ := u.Destination()
	d := ledger.Distance(u.Location, dest)
	if d > SpeedKmPerTick {
		f := SpeedKmPerTick / d
		u.Location = ledger.Point{
			X: u.Location.X + (dest.X-u.Location.X)*f,
			Y: u.Location.Y + (dest.Y-u.Location.Y)*f,
		}
		u.Travelled += SpeedKmPerTick
		return evs
	}
	u.Location = dest
	u.Travelled += d

	m := u.Mission
	switch u.Status {
	case ledger.UnitEnRoutePickup:
		m.PickedUp = true
		u.Status = ledger.UnitEnRouteHospital
		evs = append(evs, Event{
			Kind: EventPickedUp, Tick: tick, Source: u.ID,
			UnitID: u.ID, PatientID: m.PatientID, HospitalID: m.HospitalID,
		})
	case ledger.UnitEnRouteHospital:
		u.Load = max(0, u.Load-1)
		u.Delivered++
		u.Status = ledger.UnitIdle
		u.Mission = nil
		evs = append(evs, Event{
			Kind: EventDroppedOff, Tick: tick, Source: u.ID,
			UnitID: u.ID, PatientID: m.PatientID, HospitalID: m.HospitalID,
			Value: float64(tick-m.StartTick) * ledger.MinutesPerTick,
		})
	}
	return evs
}
