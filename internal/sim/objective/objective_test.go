package objective

import (
	"math"
	"testing"

	"savegrid.ai/internal/sim/ledger"
)

func TestEvaluate(t *testing.T) {
	s := DefaultWeights().Evaluate(Inputs{UnservedCritical: 3, AvgResponseMinutes: 12.5, Overloaded: 1, LoadVariance: 0.1})
	if want := 30 + 25 + 5 + 0.3; math.Abs(s.Cost-want) > 1e-9 {
		t.Fatalf("cost=%v want %v", s.Cost, want)
	}
	if s.Breakdown.ResponseTime != 25 || s.Breakdown.UnservedCritical != 30 {
		t.Fatalf("breakdown=%+v", s.Breakdown)
	}
}

func TestMeasure(t *testing.T) {
	hs := []*ledger.ResourcePool{
		ledger.NewResourcePool("a", "A", ledger.Point{}, 100, 10, 10, 1, 1000), // 0.90
		ledger.NewResourcePool("b", "B", ledger.Point{}, 100, 70, 10, 5, 1000), // 0.30
	}
	ps := []ledger.Patient{
		{ID: "1", Acuity: 1, Status: ledger.PatientWaiting},
		{ID: "2", Acuity: 2, Status: ledger.PatientWaiting},
		{ID: "3", Acuity: 3, Status: ledger.PatientWaiting},
		{ID: "4", Acuity: 1, Status: ledger.PatientAssigned},
	}
	in := Measure(hs, ps, []float64{10, 20})
	if in.UnservedCritical != 2 {
		t.Fatalf("unserved critical=%d want 2", in.UnservedCritical)
	}
	if in.AvgResponseMinutes != 15 {
		t.Fatalf("avg response=%v", in.AvgResponseMinutes)
	}
	if in.Overloaded != 1 {
		t.Fatalf("overloaded=%d", in.Overloaded)
	}
	// population variance of {0.9, 0.3}: 0.09
	if math.Abs(in.LoadVariance-0.09) > 1e-9 {
		t.Fatalf("variance=%v", in.LoadVariance)
	}

	empty := Measure(nil, nil, nil)
	if empty != (Inputs{}) {
		t.Fatalf("empty inputs=%+v", empty)
	}
}

func TestCompare(t *testing.T) {
	w := DefaultWeights()
	before := w.Evaluate(Inputs{UnservedCritical: 5, AvgResponseMinutes: 20, Overloaded: 2})
	after := w.Evaluate(Inputs{UnservedCritical: 2, AvgResponseMinutes: 20, Overloaded: 1})
	c := Compare(before, after)
	if !c.Better || c.Delta != 35 {
		t.Fatalf("delta=%v better=%v", c.Delta, c.Better)
	}
	if math.Abs(c.DeltaPct-35.0/100*100) > 1e-9 {
		t.Fatalf("pct=%v", c.DeltaPct)
	}
	if len(c.ImprovedTerms) != 2 || c.ImprovedTerms[0] != "unserved critical" || c.ImprovedTerms[1] != "overload" {
		t.Fatalf("improved=%v", c.ImprovedTerms)
	}
	if c.Explanation != "3 critical patient(s) now receiving care. 1 hospital(s) no longer overloaded." {
		t.Fatalf("explanation=%q", c.Explanation)
	}

	zero := Compare(Score{}, w.Evaluate(Inputs{Overloaded: 1}))
	if zero.DeltaPct != 0 || zero.Better || zero.Explanation != "No improvement in this round." {
		t.Fatalf("zero baseline: %+v", zero)
	}
}
