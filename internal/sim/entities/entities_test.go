package entities

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"savegrid.ai/internal/sim/ledger"
)

func TestHospital_AdmitAndDischarge(t *testing.T) {
	h := NewHospital(ledger.NewResourcePool("h", "H", ledger.Point{}, 10, 2, 2, 1, 10000))

	require.NoError(t, h.Handle(AdmitPatient{PatientID: "p1", Acuity: 1, Tick: 1}))
	require.NoError(t, h.Handle(AdmitPatient{PatientID: "p3", Acuity: 3, Tick: 1}))
	require.NoError(t, h.Handle(AdmitPatient{PatientID: "p4", Acuity: 4, Tick: 2}))
	assert.Equal(t, 0, h.L.ICUAvailable)
	assert.Equal(t, 0, h.L.AvailableBeds)

	err := h.Handle(AdmitPatient{PatientID: "p5", Acuity: 2})
	require.True(t, errors.Is(err, ErrNoCapacity), "err=%v", err)

	// Nobody has arrived yet: no discharge.
	assert.Empty(t, h.Step(5))

	for _, id := range []string{"p1", "p3", "p4"} {
		require.NoError(t, h.Handle(PatientArrived{PatientID: id}))
	}
	var got []Event
	for _, ev := range h.Step(10) {
		if ev.Kind == EventDischarged {
			got = append(got, ev)
		}
	}
	require.Len(t, got, 1)
	assert.Equal(t, "p4", got[0].PatientID, "least severe patient goes first")
	assert.Equal(t, 1, h.L.AvailableBeds)
	assert.Len(t, h.L.Admitted, 2)
}

func TestHospital_OxygenConsumption(t *testing.T) {
	h := NewHospital(ledger.NewResourcePool("h", "H", ledger.Point{}, 10, 10, 2, 2, 1000))
	require.NoError(t, h.Handle(AdmitPatient{PatientID: "p1", Acuity: 1}))

	h.Step(1)
	assert.InDelta(t, 925, h.L.OxygenLiters, 1e-9)

	h.L.OxygenLiters = 50
	evs := h.Step(2)
	assert.Equal(t, 0.0, h.L.OxygenLiters)
	require.Len(t, evs, 1)
	assert.Equal(t, EventOxygenExhausted, evs[0].Kind)

	require.NoError(t, h.Handle(ReceiveSupply{Kind: "oxygen", Quantity: 100}))
	require.NoError(t, h.Handle(ReceiveSupply{Kind: "medications", Quantity: 5}))
	assert.Equal(t, 100.0, h.L.OxygenLiters)
	assert.Equal(t, 5, h.L.Supplies["medications"])
}

func TestHospital_RequestsAndStress(t *testing.T) {
	// Full ICU, oxygen for well under four hours.
	p := ledger.NewResourcePool("h", "H", ledger.Point{}, 100, 10, 4, 0, 3000)
	p.Nurses = 2
	h := NewHospital(p)

	kinds := map[string]ledger.Urgency{}
	for _, r := range h.Requests() {
		kinds[r.Resource] = r.Urgency
	}
	assert.Equal(t, ledger.UrgencyCritical, kinds["oxygen"])
	assert.Equal(t, ledger.UrgencyCritical, kinds["patient_diversion"])
	assert.NotContains(t, kinds, "surge_support")
	assert.Equal(t, ledger.UrgencyHigh, kinds["nursing_staff"])

	snap := h.Snapshot()
	assert.Equal(t, ledger.KindHospital, snap.Kind)
	assert.True(t, snap.Capacity.Critical)
	assert.GreaterOrEqual(t, snap.PriorityScore, 0.9)
	assert.LessOrEqual(t, snap.PriorityScore, 1.0)
	assert.Empty(t, snap.Offers)
}

func TestAmbulance_Mission(t *testing.T) {
	a := NewAmbulance(&ledger.TransportUnit{ID: "U1", Capacity: 2, Fuel: 0.9, Status: ledger.UnitIdle})
	require.NoError(t, a.Handle(StartMission{
		PatientID: "p", Acuity: 2, HospitalID: "h",
		Pickup: ledger.Point{X: 3}, Hospital: ledger.Point{X: 13}, Tick: 1,
	}))
	assert.Equal(t, 1, a.L.Load)
	assert.Equal(t, ledger.UnitEnRoutePickup, a.L.Status)
	assert.InDelta(t, 0.8, a.Stress(), 1e-9)

	err := a.Handle(StartMission{PatientID: "q"})
	require.True(t, errors.Is(err, ErrUnavailable))

	evs := a.Step(2)
	require.Len(t, evs, 1)
	assert.Equal(t, EventPickedUp, evs[0].Kind)
	assert.Equal(t, ledger.UnitEnRouteHospital, a.L.Status)

	assert.Empty(t, a.Step(3))
	assert.InDelta(t, 8, a.L.Location.X, 1e-9)

	evs = a.Step(4)
	require.Len(t, evs, 1)
	assert.Equal(t, EventDroppedOff, evs[0].Kind)
	assert.Equal(t, "h", evs[0].HospitalID)
	assert.Equal(t, ledger.UnitIdle, a.L.Status)
	assert.Equal(t, 0, a.L.Load)
	assert.Equal(t, 1, a.L.Delivered)
	assert.InDelta(t, 0.84, a.L.Fuel, 1e-9)
	assert.InDelta(t, 13, a.L.Travelled, 1e-9)

	// Idle units don't burn fuel.
	a.Step(5)
	assert.InDelta(t, 0.84, a.L.Fuel, 1e-9)
}

func TestAmbulance_LowFuelRequest(t *testing.T) {
	a := NewAmbulance(&ledger.TransportUnit{ID: "U1", Capacity: 2, Fuel: 0.1, Status: ledger.UnitIdle})
	snap := a.Snapshot()
	require.Len(t, snap.Requests, 1)
	assert.Equal(t, "fuel", snap.Requests[0].Resource)
	assert.Equal(t, ledger.UrgencyCritical, snap.Requests[0].Urgency)
	assert.Empty(t, snap.Offers, "unit below fuel threshold offers no transport")
	assert.InDelta(t, 0.3, snap.PriorityScore, 1e-9)
}

func TestDepot_DeliveryLifecycle(t *testing.T) {
	d := NewDepot(ledger.NewSupplyDepot("d", "D", ledger.Point{X: 50, Y: 50}, map[string]int{"oxygen": 50}, 1))

	require.NoError(t, d.Handle(DispatchSupply{Kind: "oxygen", Quantity: 40, DestinationID: "h", Destination: ledger.Point{X: 70, Y: 50}}))
	assert.Equal(t, 10, d.L.Inventory["oxygen"])
	assert.Equal(t, 0, d.L.VehiclesAvailable)

	err := d.Handle(DispatchSupply{Kind: "oxygen", Quantity: 5, DestinationID: "h"})
	require.True(t, errors.Is(err, ErrNoVehicle), "err=%v", err)
	err = d.Handle(DispatchSupply{Kind: "oxygen", Quantity: 500, DestinationID: "h"})
	require.True(t, errors.Is(err, ErrInsufficientStock), "err=%v", err)

	// 20 km at 40 km/h is 30 minutes, six ticks.
	for tick := uint64(1); tick <= 5; tick++ {
		require.Empty(t, d.Step(tick), "tick %d", tick)
	}
	evs := d.Step(6)
	require.Len(t, evs, 1)
	assert.Equal(t, EventDelivered, evs[0].Kind)
	assert.Equal(t, 40, evs[0].Quantity)
	assert.Equal(t, 1, d.L.VehiclesAvailable)
	assert.Equal(t, 1, d.L.Completed)
	assert.Empty(t, d.L.InTransit)
}

func TestDepot_DeliveryListReplacedNotEdited(t *testing.T) {
	d := NewDepot(ledger.NewSupplyDepot("d", "D", ledger.Point{X: 50, Y: 50}, map[string]int{"oxygen": 50}, 2))
	require.NoError(t, d.Handle(DispatchSupply{Kind: "oxygen", Quantity: 5, DestinationID: "near", Destination: ledger.Point{X: 55, Y: 50}}))
	require.NoError(t, d.Handle(DispatchSupply{Kind: "oxygen", Quantity: 5, DestinationID: "far", Destination: ledger.Point{X: 90, Y: 50}}))

	before := d.L.InTransit
	require.Len(t, before, 2)
	nearID, farID := before[0].ID, before[1].ID

	var evs []Event
	for tick := uint64(1); tick <= 10 && len(evs) == 0; tick++ {
		evs = d.Step(tick)
	}
	require.Len(t, evs, 1)
	assert.Equal(t, nearID, evs[0].DeliveryID)
	require.Len(t, d.L.InTransit, 1)
	assert.Equal(t, farID, d.L.InTransit[0].ID)
	assert.Equal(t, nearID, before[0].ID, "previous list must not be rewritten")
}

func TestAuthority_DecayAndPolicy(t *testing.T) {
	a := NewAuthority(&ledger.AuthorityState{ID: "gov", Severity: 0.31, Rules: map[string]bool{ledger.RuleBalanceHospitalLoad: true}})
	assert.Empty(t, a.Step(9))
	evs := a.Step(10)
	require.Len(t, evs, 1)
	assert.InDelta(t, 0.3, a.L.Severity, 1e-9)
	assert.Empty(t, a.Step(20), "floor reached")
	assert.Equal(t, "medium", a.SeverityLevel())

	full := ledger.NewResourcePool("full", "F", ledger.Point{}, 10, 5, 2, 0, 20)
	calm := ledger.NewResourcePool("calm", "C", ledger.Point{}, 10, 5, 2, 2, 5000)
	pol := a.Policy([]*ledger.ResourcePool{full, calm})
	assert.InDelta(t, 1.95, pol.Multiplier("full"), 1e-9)
	assert.Equal(t, 1.0, pol.Multiplier("calm"))
	assert.True(t, pol.Rule(ledger.RuleBalanceHospitalLoad))

	sev := 0.9
	require.NoError(t, a.Handle(OverridePolicy{Override: ledger.Override{Tick: 21, Severity: &sev, Rules: map[string]bool{ledger.RuleMutualAidActivated: true}}}))
	assert.Equal(t, 0.9, a.L.Severity)
	assert.Len(t, a.L.Overrides, 1)
	bad := 1.5
	require.Error(t, a.Handle(OverridePolicy{Override: ledger.Override{Severity: &bad}}))
}

func TestRoster_Order(t *testing.T) {
	s, err := ledger.NewSet(
		[]*ledger.ResourcePool{ledger.NewResourcePool("h", "H", ledger.Point{}, 10, 5, 2, 1, 100)},
		[]*ledger.TransportUnit{{ID: "U2", Capacity: 1, Fuel: 1}, {ID: "U1", Capacity: 1, Fuel: 1}},
		ledger.NewSupplyDepot("d", "D", ledger.Point{}, nil, 1),
		&ledger.AuthorityState{ID: "gov", Severity: 0.5},
	)
	require.NoError(t, err)
	r := NewRoster(s)
	var ids []string
	for _, e := range r.All() {
		ids = append(ids, e.ID())
	}
	assert.Equal(t, []string{"h", "U1", "U2", "d", "gov"}, ids)
	assert.NotNil(t, r.Hospital("h"))
	assert.Nil(t, r.Hospital("U1"))
	assert.NotNil(t, r.Ambulance("U1"))
}

func TestHospital_ReleaseAdmission(t *testing.T) {
	h := NewHospital(ledger.NewResourcePool("h", "H", ledger.Point{}, 10, 2, 2, 1, 1000))
	require.NoError(t, h.Handle(AdmitPatient{PatientID: "p1", Acuity: 2}))
	require.NoError(t, h.Handle(AdmitPatient{PatientID: "p2", Acuity: 3}))

	require.NoError(t, h.Handle(ReleaseAdmission{PatientID: "p1"}))
	assert.Equal(t, 1, h.L.ICUAvailable)
	assert.Equal(t, 1, h.L.AvailableBeds)
	require.Len(t, h.L.Admitted, 1)
	assert.Equal(t, "p2", h.L.Admitted[0].PatientID)

	assert.Error(t, h.Handle(ReleaseAdmission{PatientID: "p1"}))
}
