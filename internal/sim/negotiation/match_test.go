package negotiation

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"savegrid.ai/internal/sim/ledger"
)

func hospital(id string, x, y float64, beds, icu int, stress float64) ledger.Snapshot {
	return ledger.Snapshot{
		ID:            id,
		Kind:          ledger.KindHospital,
		Name:          id,
		Location:      ledger.Point{X: x, Y: y},
		Capacity:      ledger.Capacity{AvailableBeds: beds, ICUAvailable: icu},
		PriorityScore: stress,
	}
}

func unit(id string, x, y, fuel float64) ledger.Snapshot {
	return ledger.Snapshot{
		ID:       id,
		Kind:     ledger.KindAmbulance,
		Location: ledger.Point{X: x, Y: y},
		Capacity: ledger.Capacity{AvailableSlots: 2, Fuel: fuel, Status: ledger.UnitIdle},
	}
}

func patient(id string, a ledger.Acuity, x, y float64) ledger.Patient {
	return ledger.Patient{ID: id, Acuity: a, Location: ledger.Point{X: x, Y: y}, Status: ledger.PatientWaiting}
}

func TestMatch_ICUPatientSkipsHospitalWithoutICU(t *testing.T) {
	e := New(DefaultConfig())
	plan := e.Match(
		[]ledger.Patient{patient("p1", 1, 10, 10)},
		[]ledger.Snapshot{hospital("A", 12, 10, 40, 0, 0.2), hospital("B", 60, 60, 5, 3, 0.6)},
		[]ledger.Snapshot{unit("U1", 0, 0, 0.9)},
		ledger.Snapshot{}, ledger.Policy{},
	)
	require.Len(t, plan.Proposals, 2)
	assign, dispatch := plan.Proposals[0], plan.Proposals[1]
	assert.Equal(t, KindPatientAssignment, assign.Kind)
	assert.Equal(t, "B", assign.Target)
	assert.Equal(t, ResourceICUBed, assign.Resource)
	assert.Equal(t, KindAmbulanceDispatch, dispatch.Kind)
	assert.Equal(t, "U1", dispatch.Target)
	assert.Equal(t, "B", dispatch.HospitalID)
	assert.Equal(t, []int{1, 2}, []int{assign.Seq, dispatch.Seq})
	assert.NotEmpty(t, assign.Rationale)
}

func TestMatch_NoOvercommitWithinOneCall(t *testing.T) {
	e := New(DefaultConfig())
	plan := e.Match(
		[]ledger.Patient{patient("p1", 1, 10, 10), patient("p2", 2, 11, 10)},
		[]ledger.Snapshot{hospital("A", 12, 10, 40, 1, 0.2)},
		[]ledger.Snapshot{unit("U1", 0, 0, 0.9), unit("U2", 5, 5, 0.9)},
		ledger.Snapshot{}, ledger.Policy{},
	)
	assert.Equal(t, 1, plan.Count(KindPatientAssignment))
	assert.Equal(t, "p1", plan.Proposals[0].Subject, "most severe first")
	require.Len(t, plan.Unmatched, 1)
	assert.Equal(t, "p2", plan.Unmatched[0].PatientID)
	assert.Equal(t, ReasonNoCapacity, plan.Unmatched[0].Reason)
}

func TestMatch_TiesGoToLowestID(t *testing.T) {
	e := New(DefaultConfig())
	plan := e.Match(
		[]ledger.Patient{patient("p1", 3, 50, 50)},
		[]ledger.Snapshot{hospital("Z", 50, 60, 10, 1, 0.3), hospital("M", 50, 40, 10, 1, 0.3)},
		[]ledger.Snapshot{unit("U9", 50, 45, 0.9), unit("U3", 50, 55, 0.9)},
		ledger.Snapshot{}, ledger.Policy{},
	)
	require.Len(t, plan.Proposals, 2)
	assert.Equal(t, "M", plan.Proposals[0].Target)
	// U9 is 5 km from the patient, U3 is 5 km too: equal ETA, lowest id wins.
	assert.Equal(t, "U3", plan.Proposals[1].Target)
}

func TestMatch_NoUnitMeansNoProposal(t *testing.T) {
	e := New(DefaultConfig())
	plan := e.Match(
		[]ledger.Patient{patient("p1", 3, 50, 50)},
		[]ledger.Snapshot{hospital("A", 50, 60, 10, 1, 0.3)},
		[]ledger.Snapshot{unit("U1", 0, 0, 0.10), func() ledger.Snapshot {
			u := unit("U2", 0, 0, 0.9)
			u.Capacity.Status = ledger.UnitEnRoutePickup
			return u
		}()},
		ledger.Snapshot{}, ledger.Policy{},
	)
	assert.Empty(t, plan.Proposals)
	require.Len(t, plan.Unmatched, 1)
	assert.Equal(t, ReasonNoTransport, plan.Unmatched[0].Reason)
}

func TestMatch_BatchCapAndUnitUniqueness(t *testing.T) {
	e := New(DefaultConfig())
	var ps []ledger.Patient
	for i := 0; i < 15; i++ {
		ps = append(ps, patient(fmt.Sprintf("p%02d", i), 3, 50, 50))
	}
	var us []ledger.Snapshot
	for i := 0; i < 20; i++ {
		us = append(us, unit(fmt.Sprintf("U%02d", i), float64(i), 0, 0.9))
	}
	plan := e.Match(ps, []ledger.Snapshot{hospital("A", 50, 60, 100, 0, 0)}, us, ledger.Snapshot{}, ledger.Policy{})
	assert.Equal(t, 10, plan.Count(KindPatientAssignment))
	seen := map[string]bool{}
	for _, p := range plan.Proposals {
		if p.Kind != KindAmbulanceDispatch {
			continue
		}
		require.False(t, seen[p.Target], "unit %s dispatched twice", p.Target)
		seen[p.Target] = true
	}
	assert.Len(t, seen, 10)
}

func TestMatch_MultiplierShiftsChoice(t *testing.T) {
	e := New(DefaultConfig())
	ps := []ledger.Patient{patient("p1", 3, 20, 20)}
	hs := []ledger.Snapshot{hospital("near", 22, 20, 10, 0, 0.5), hospital("far", 80, 80, 10, 0, 0.5)}
	us := []ledger.Snapshot{unit("U1", 20, 20, 0.9)}

	plan := e.Match(ps, hs, us, ledger.Snapshot{}, ledger.Policy{})
	require.NotEmpty(t, plan.Proposals)
	assert.Equal(t, "near", plan.Proposals[0].Target)

	plan = e.Match(ps, hs, us, ledger.Snapshot{}, ledger.Policy{Multipliers: map[string]float64{"far": 3}})
	require.NotEmpty(t, plan.Proposals)
	assert.Equal(t, "far", plan.Proposals[0].Target)
}

func TestScore(t *testing.T) {
	e := New(DefaultConfig())
	// dist term 0.5, capacity term min(1, 30/50)=0.6, stress term 0.8
	got := e.Score(50, 10, 10, 0.2, 1)
	assert.InDelta(t, 0.4*0.5+0.4*0.6+0.2*0.8, got, 1e-9)
	assert.InDelta(t, 0.4*0+0.4*1+0.2*0, e.Score(150, 100, 0, 1, 1), 1e-9)
	assert.Equal(t, 0.0, e.Score(10, 10, 1, 0, 0))
}

func TestMatchSupply_ClampsToTentativeInventory(t *testing.T) {
	e := New(DefaultConfig())
	h1 := hospital("H1", 10, 10, 5, 1, 0.9)
	h1.Requests = []ledger.Request{{Resource: "oxygen", Quantity: 40, Urgency: ledger.UrgencyCritical}}
	h2 := hospital("H2", 20, 20, 5, 1, 0.5)
	h2.Requests = []ledger.Request{
		{Resource: "oxygen", Quantity: 30, Urgency: ledger.UrgencyHigh},
		{Resource: "patient_diversion", Quantity: 1, Urgency: ledger.UrgencyCritical},
	}
	h3 := hospital("H3", 30, 30, 5, 1, 0.4)
	h3.Requests = []ledger.Request{{Resource: "oxygen", Quantity: 30, Urgency: ledger.UrgencyMedium}}
	depot := ledger.Snapshot{
		ID: "depot", Kind: ledger.KindDepot, Location: ledger.Point{X: 50, Y: 50},
		Capacity: ledger.Capacity{Inventory: map[string]int{"oxygen": 50}, VehiclesAvailable: 4},
	}

	plan := e.Match(nil, []ledger.Snapshot{h3, h2, h1}, nil, depot, ledger.Policy{})
	require.Len(t, plan.Proposals, 2)
	assert.Equal(t, "H1", plan.Proposals[0].Target)
	assert.Equal(t, 40, plan.Proposals[0].Quantity)
	assert.Equal(t, "H2", plan.Proposals[1].Target)
	assert.Equal(t, 10, plan.Proposals[1].Quantity)
	assert.Equal(t, 50, depot.Capacity.Inventory["oxygen"], "input snapshot not mutated")
}

func TestMatchSupply_NeedsVehicle(t *testing.T) {
	e := New(DefaultConfig())
	h := hospital("H1", 10, 10, 5, 1, 0.9)
	h.Requests = []ledger.Request{
		{Resource: "oxygen", Quantity: 10, Urgency: ledger.UrgencyCritical},
		{Resource: "medications", Quantity: 10, Urgency: ledger.UrgencyHigh},
	}
	depot := ledger.Snapshot{
		ID:       "depot",
		Capacity: ledger.Capacity{Inventory: map[string]int{"oxygen": 50, "medications": 50}, VehiclesAvailable: 1},
	}
	plan := e.Match(nil, []ledger.Snapshot{h}, nil, depot, ledger.Policy{})
	require.Len(t, plan.Proposals, 1)
	assert.Equal(t, "oxygen", plan.Proposals[0].Resource)
}
