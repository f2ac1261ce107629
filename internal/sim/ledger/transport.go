package ledger

import "fmt"

// Mission is the pickup/drop-off a unit is currently executing.
type Mission struct {
	PatientID  string `json:"patient_id"`
	Acuity     Acuity `json:"acuity"`
	HospitalID string `json:"hospital_id"`
	Pickup     Point  `json:"pickup"`
	Hospital   Point  `json:"hospital"`
	StartTick  uint64 `json:"start_tick"`
	PickedUp   bool   `json:"picked_up"`
}

// TransportUnit is an ambulance ledger.
type TransportUnit struct {
	ID       string     `json:"id"`
	Location Point      `json:"location"`
	Capacity int        `json:"capacity"`
	Load     int        `json:"load"`
	Fuel     float64    `json:"fuel"`
	Status   UnitStatus `json:"status"`

	Mission *Mission `json:"mission,omitempty"`

	Delivered int     `json:"delivered"`
	Travelled float64 `json:"travelled_km"`
}

func (u *TransportUnit) Validate() error {
	if u.ID == "" {
		return fmt.Errorf("transport unit: %w", ErrMissingID)
	}
	if u.Capacity <= 0 {
		return fmt.Errorf("transport unit %s: %w: zero capacity", u.ID, ErrInvalidCapacity)
	}
	if u.Load < 0 || u.Load > u.Capacity {
		return fmt.Errorf("transport unit %s: %w: load %d outside [0,%d]", u.ID, ErrInvalidCapacity, u.Load, u.Capacity)
	}
	if u.Fuel < 0 || u.Fuel > 1 {
		return fmt.Errorf("transport unit %s: %w: fuel %.2f outside [0,1]", u.ID, ErrInvalidCapacity, u.Fuel)
	}
	switch u.Status {
	case UnitIdle, UnitEnRoutePickup, UnitEnRouteHospital:
	case "":
		u.Status = UnitIdle
	default:
		return fmt.Errorf("transport unit %s: unknown status %q", u.ID, u.Status)
	}
	return nil
}

// Available reports eligibility for a new assignment.
func (u *TransportUnit) Available() bool {
	return u.Status == UnitIdle && u.Load < u.Capacity && u.Fuel > FuelCritical
}

func (u *TransportUnit) FreeSlots() int { return u.Capacity - u.Load }

// FuelStatus is "critical", "low" or "ok".
func (u *TransportUnit) FuelStatus() string {
	switch {
	case u.Fuel < FuelCritical:
		return "critical"
	case u.Fuel < FuelLow:
		return "low"
	default:
		return "ok"
	}
}

// Destination is where the unit is heading, if anywhere.
func (u *TransportUnit) Destination() (Point, bool) {
	if u.Mission == nil {
		return Point{}, false
	}
	switch u.Status {
	case UnitEnRoutePickup:
		return u.Mission.Pickup, true
	case UnitEnRouteHospital:
		return u.Mission.Hospital, true
	}
	return Point{}, false
}

// ETAMinutes to the current destination at average speed.
func (u *TransportUnit) ETAMinutes() float64 {
	d, ok := u.Destination()
	if !ok {
		return 0
	}
	return TravelMinutes(Distance(u.Location, d))
}

func TravelMinutes(km float64) float64 {
	return km / AmbulanceSpeedKmh * 60
}

func (u *TransportUnit) Clone() *TransportUnit {
	if u == nil {
		return nil
	}
	c := *u
	if u.Mission != nil {
		m := *u.Mission
		c.Mission = &m
	}
	return &c
}
