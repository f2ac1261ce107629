package failure

import (
	"testing"

	"savegrid.ai/internal/sim/ledger"
)

func testSet(t *testing.T) *ledger.Set {
	t.Helper()
	s, err := ledger.NewSet(
		[]*ledger.ResourcePool{
			ledger.NewResourcePool("a", "A", ledger.Point{}, 10, 2, 2, 1, 1000),
			ledger.NewResourcePool("b", "B", ledger.Point{}, 10, 0, 2, 0, 1000),
		},
		[]*ledger.TransportUnit{{ID: "U1", Capacity: 2, Fuel: 0.9}},
		ledger.NewSupplyDepot("d", "D", ledger.Point{}, map[string]int{"oxygen": 500, "medications": 50}, 2),
		&ledger.AuthorityState{ID: "gov", Severity: 0.5},
	)
	if err != nil {
		t.Fatalf("NewSet: %v", err)
	}
	return s
}

func types(as []Alert) []Type {
	var out []Type
	for _, a := range as {
		out = append(out, a.Type)
	}
	return out
}

func TestDetect_Healthy(t *testing.T) {
	if cs := Detect(testSet(t)); len(cs) != 0 {
		t.Fatalf("unexpected conditions: %+v", cs)
	}
}

func TestDetect_AllConditions(t *testing.T) {
	s := testSet(t)
	for _, h := range s.Hospitals {
		h.AvailableBeds, h.ICUAvailable = 0, 0
	}
	s.Hospitals[0].OxygenLiters = 5
	s.Units[0].Fuel = 0.15
	s.Depot.Inventory["medications"] = 10

	cs := Detect(s)
	want := []Type{NoBedsAnywhere, OxygenExhausted, NoAmbulances, SupplyDepleted}
	if len(cs) != len(want) {
		t.Fatalf("conditions=%+v", cs)
	}
	for i, c := range cs {
		if c.Type != want[i] {
			t.Fatalf("condition[%d]=%s want %s", i, c.Type, want[i])
		}
	}
	if cs[0].Severity != "critical" || cs[2].Severity != "high" {
		t.Fatalf("severities: %+v", cs)
	}
}

func TestMonitor_NoAmbulancesOncePerActivation(t *testing.T) {
	s := testSet(t)
	m := NewMonitor()
	s.Units[0].Status = ledger.UnitEnRoutePickup

	if got := types(m.Observe(s, 1)); len(got) != 1 || got[0] != NoAmbulances {
		t.Fatalf("tick1 alerts=%v", got)
	}
	if got := m.Observe(s, 2); len(got) != 0 {
		t.Fatalf("re-alerted while still active: %v", types(got))
	}

	s.Units[0].Status = ledger.UnitIdle
	res := m.Observe(s, 3)
	if len(res) != 1 || !res[0].Resolved {
		t.Fatalf("expected resolution, got %+v", res)
	}
	if len(m.Active()) != 0 {
		t.Fatalf("active after resolution: %+v", m.Active())
	}

	s.Units[0].Status = ledger.UnitEnRoutePickup
	again := m.Observe(s, 4)
	if len(again) != 1 || again[0].Resolved || again[0].Tick != 4 {
		t.Fatalf("expected fresh activation, got %+v", again)
	}
	if len(m.History()) != 3 {
		t.Fatalf("history=%d want 3", len(m.History()))
	}
}

func TestMonitor_NoBedsOncePerActivation(t *testing.T) {
	s := testSet(t)
	m := NewMonitor()
	s.Hospitals[0].AvailableBeds, s.Hospitals[0].ICUAvailable = 0, 0

	as := m.Observe(s, 5)
	if len(as) != 1 || as[0].Type != NoBedsAnywhere {
		t.Fatalf("alerts=%v", types(as))
	}
	if as[0].Protocol != "Emergency Bed Expansion Protocol" || len(as[0].Actions) != 4 || as[0].Actions[0] != "Activate overflow capacity at all hospitals" {
		t.Fatalf("playbook=%+v", as[0])
	}
	for tick := uint64(6); tick < 10; tick++ {
		if got := m.Observe(s, tick); len(got) != 0 {
			t.Fatalf("tick %d re-alerted: %v", tick, types(got))
		}
	}
}

func TestProtocol_ReturnsCopy(t *testing.T) {
	_, a := Protocol(SupplyDepleted)
	a[0] = "mutated"
	if _, b := Protocol(SupplyDepleted); b[0] != "Emergency procurement activated" {
		t.Fatalf("playbook actions were mutated through the returned slice")
	}
}
