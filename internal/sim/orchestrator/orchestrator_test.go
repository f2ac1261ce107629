package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"savegrid.ai/internal/persistence/snapshot"
	"savegrid.ai/internal/protocol"
	"savegrid.ai/internal/sim/ledger"
	"savegrid.ai/internal/sim/negotiation"
	"savegrid.ai/internal/sim/tuning"
	"savegrid.ai/schemas"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	sc, err := tuning.LoadScenario("")
	require.NoError(t, err)
	return Config{Tuning: tuning.Defaults(), Scenario: sc}
}

func newTestSession(t *testing.T) *Session {
	t.Helper()
	s, err := New(testConfig(t))
	require.NoError(t, err)
	return s
}

type recorder struct {
	steps  []StepLogEntry
	alerts []AlertLogEntry
	index  []StepReport
}

func (r *recorder) WriteStep(e StepLogEntry) error   { r.steps = append(r.steps, e); return nil }
func (r *recorder) WriteAlert(e AlertLogEntry) error { r.alerts = append(r.alerts, e); return nil }
func (r *recorder) RecordStep(rep StepReport)        { r.index = append(r.index, rep) }

func TestSession_Deterministic(t *testing.T) {
	a := newTestSession(t)
	b := newTestSession(t)
	if a.ID() == b.ID() {
		t.Fatalf("session ids must differ")
	}
	ctx := context.Background()
	for i := 0; i < 40; i++ {
		ra, err := a.Advance(ctx)
		require.NoError(t, err)
		rb, err := b.Advance(ctx)
		require.NoError(t, err)
		if ra.Digest != rb.Digest {
			t.Fatalf("tick %d: digest %s != %s", ra.Tick, ra.Digest, rb.Digest)
		}
		ra.SessionID, rb.SessionID = "", ""
		if !reflect.DeepEqual(ra, rb) {
			t.Fatalf("tick %d: reports differ\n%+v\n%+v", ra.Tick, ra, rb)
		}
	}
}

func TestCommit_FailedDispatchUnwindsAssignment(t *testing.T) {
	s := newTestSession(t)
	h := s.set.Hospitals[0]
	beds, icu, admitted := h.AvailableBeds, h.ICUAvailable, len(h.Admitted)
	decisions := s.decisions.len()

	p1, p2 := s.patients[0].ID, s.patients[1].ID
	accepted := []negotiation.Proposal{
		{Seq: 1, Kind: negotiation.KindPatientAssignment, Subject: p1, Target: h.ID, HospitalID: h.ID},
		{Seq: 2, Kind: negotiation.KindAmbulanceDispatch, Subject: p1, Target: "unit_missing", HospitalID: h.ID},
		{Seq: 3, Kind: negotiation.KindPatientAssignment, Subject: p2, Target: h.ID, HospitalID: h.ID},
	}
	committed, failed := s.commit(1, accepted)

	assert.Empty(t, committed)
	require.Len(t, failed, 3)
	got := []int{failed[0].Proposal.Seq, failed[1].Proposal.Seq, failed[2].Proposal.Seq}
	assert.Equal(t, []int{2, 1, 3}, got, "dispatch failure, its unwound assignment, then the orphan assignment")
	for _, f := range failed {
		assert.Equal(t, protocol.ErrInternal, f.Code)
	}
	for _, id := range []string{p1, p2} {
		pt := s.patient(id)
		assert.Equal(t, ledger.PatientWaiting, pt.Status, id)
		assert.Empty(t, pt.HospitalID, id)
	}
	assert.Equal(t, beds, h.AvailableBeds)
	assert.Equal(t, icu, h.ICUAvailable)
	assert.Len(t, h.Admitted, admitted)
	assert.Equal(t, decisions, s.decisions.len(), "no decision for an unwound pair")
}

func TestStepEntities_ObservesCancellation(t *testing.T) {
	s := newTestSession(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.stepEntities(ctx, 1); !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v", err)
	}
}

func TestSession_FirstTickServesCriticalFirst(t *testing.T) {
	s := newTestSession(t)
	rep, err := s.Advance(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(1), rep.Tick)
	require.NotEmpty(t, rep.Committed)

	// Every dispatch is preceded by its assignment and the first assignment is the most severe.
	seen := map[string]bool{}
	var first *negotiation.Proposal
	for i, p := range rep.Committed {
		switch p.Kind {
		case negotiation.KindPatientAssignment:
			seen[p.Subject] = true
			if first == nil {
				first = &rep.Committed[i]
			}
		case negotiation.KindAmbulanceDispatch:
			if !seen[p.Subject] {
				t.Fatalf("dispatch for %s before its assignment", p.Subject)
			}
		}
	}
	require.NotNil(t, first)
	for _, p := range rep.Committed {
		if p.Kind == negotiation.KindPatientAssignment && p.Acuity < first.Acuity {
			t.Fatalf("assignment %s (acuity %d) ordered after %s (acuity %d)", p.Subject, p.Acuity, first.Subject, first.Acuity)
		}
	}
	assert.Len(t, rep.Digest, 64)
}

func TestSession_CapacityConservation(t *testing.T) {
	s := newTestSession(t)
	initial := map[string][2]int{}
	for _, h := range s.set.Hospitals {
		initial[h.ID] = [2]int{h.AvailableBeds, h.ICUAvailable}
	}
	ctx := context.Background()
	for i := 0; i < 60; i++ {
		_, err := s.Advance(ctx)
		require.NoError(t, err)
		for _, h := range s.set.Hospitals {
			if h.AvailableBeds < 0 || h.AvailableBeds > h.TotalBeds {
				t.Fatalf("tick %d %s beds=%d/%d", s.tick, h.ID, h.AvailableBeds, h.TotalBeds)
			}
			if h.ICUAvailable < 0 || h.ICUAvailable > h.ICUBeds {
				t.Fatalf("tick %d %s icu=%d/%d", s.tick, h.ID, h.ICUAvailable, h.ICUBeds)
			}
			in := initial[h.ID]
			if got := in[0] - h.AvailableBeds; got != h.AdmittedIn(ledger.CareGeneral) {
				t.Fatalf("tick %d %s general: used=%d admitted=%d", s.tick, h.ID, got, h.AdmittedIn(ledger.CareGeneral))
			}
			if got := in[1] - h.ICUAvailable; got != h.AdmittedIn(ledger.CareICU) {
				t.Fatalf("tick %d %s icu: used=%d admitted=%d", s.tick, h.ID, got, h.AdmittedIn(ledger.CareICU))
			}
		}
		for _, u := range s.set.Units {
			if u.Load < 0 || u.Load > u.Capacity || u.Fuel < 0 || u.Fuel > 1 {
				t.Fatalf("tick %d unit %+v", s.tick, u)
			}
		}
		for k, v := range s.set.Depot.Inventory {
			if v < 0 {
				t.Fatalf("tick %d depot %s=%d", s.tick, k, v)
			}
		}
	}
}

func TestSession_OverrideAppliesNextTick(t *testing.T) {
	s := newTestSession(t)
	sev := 0.3
	err := s.ApplyOverride(ledger.Override{Severity: &sev, Rules: map[string]bool{ledger.RuleMutualAidActivated: true}, Reason: "drill"})
	require.NoError(t, err)

	v := s.View()
	assert.False(t, v.Ledgers.Authority.Rules[ledger.RuleMutualAidActivated], "override must wait for the tick boundary")

	rep, err := s.Advance(context.Background())
	require.NoError(t, err)
	require.Len(t, rep.Overrides, 1)
	assert.Equal(t, uint64(1), rep.Overrides[0].Tick)

	v = s.View()
	assert.True(t, v.Ledgers.Authority.Rules[ledger.RuleMutualAidActivated])
	assert.InDelta(t, 0.3, v.Ledgers.Authority.Severity, 1e-9)
}

func TestSession_RejectsInvalidOverride(t *testing.T) {
	s := newTestSession(t)
	bad := 1.5
	cases := []ledger.Override{
		{},
		{Severity: &bad},
		{Rules: map[string]bool{"open_all_doors": true}},
	}
	for _, o := range cases {
		if err := s.ApplyOverride(o); !errors.Is(err, ErrInvalidOverride) {
			t.Fatalf("override %+v: err=%v", o, err)
		}
	}
}

func TestSession_SinksReceiveEveryTick(t *testing.T) {
	cfg := testConfig(t)
	rec := &recorder{}
	snaps := make(chan snapshot.SnapshotV1, 1)
	cfg.Tuning.SnapshotEveryTicks = 5
	cfg.Sinks = Sinks{Steps: rec, Alerts: rec, Index: rec, Snapshots: snaps}
	s, err := New(cfg)
	require.NoError(t, err)

	_, err = s.Run(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, rec.steps, 5)
	require.Len(t, rec.index, 5)
	assert.Equal(t, rec.index[4].Digest, rec.steps[4].Digest)

	select {
	case snap := <-snaps:
		assert.Equal(t, uint64(5), snap.Header.Tick)
	default:
		t.Fatalf("expected a snapshot at tick 5")
	}
}

func TestSession_SnapshotRestoreContinues(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(cfg)
	require.NoError(t, err)
	ctx := context.Background()
	_, err = a.Run(ctx, 12)
	require.NoError(t, err)

	path := snapshot.PathFor(t.TempDir(), 12)
	require.NoError(t, snapshot.WriteSnapshot(path, a.ExportSnapshot()))
	snap, err := snapshot.ReadSnapshot(path)
	require.NoError(t, err)

	b, err := Restore(cfg, snap)
	require.NoError(t, err)
	assert.Equal(t, a.ID(), b.ID())
	assert.Equal(t, uint64(12), b.Tick())
	assert.Equal(t, a.digest(), b.digest())

	for i := 0; i < 10; i++ {
		ra, err := a.Advance(ctx)
		require.NoError(t, err)
		rb, err := b.Advance(ctx)
		require.NoError(t, err)
		if ra.Digest != rb.Digest {
			t.Fatalf("tick %d diverged after restore", ra.Tick)
		}
	}
	assert.Equal(t, filepath.Base(path), "12.snap.zst")
}

func TestSession_StepMessageMatchesSchema(t *testing.T) {
	sch, err := schemas.Compile("step.schema.json")
	require.NoError(t, err)

	s := newTestSession(t)
	reps, err := s.Run(context.Background(), 4)
	require.NoError(t, err)
	for _, rep := range reps {
		b, err := json.Marshal(rep.Message())
		require.NoError(t, err)
		var doc any
		require.NoError(t, json.Unmarshal(b, &doc))
		if err := sch.Validate(doc); err != nil {
			t.Fatalf("tick %d: %v", rep.Tick, err)
		}
	}
}

func TestSession_ViewAndDecisions(t *testing.T) {
	cfg := testConfig(t)
	cfg.Tuning.DecisionRing = 4
	s, err := New(cfg)
	require.NoError(t, err)

	v0 := s.View()
	require.NotNil(t, v0)
	assert.Equal(t, uint64(0), v0.Tick)
	assert.Equal(t, 120, v0.Patients)
	assert.Nil(t, v0.Last)

	_, err = s.Run(context.Background(), 3)
	require.NoError(t, err)
	v := s.View()
	assert.Equal(t, uint64(3), v.Tick)
	require.NotNil(t, v.Last)
	assert.Equal(t, uint64(3), v.Last.Tick)
	assert.LessOrEqual(t, len(v.Decisions), 4)
	require.NotEmpty(t, v.Decisions)
	assert.NotEmpty(t, v.Decisions[0].Explanation)
	assert.Len(t, v.LatestDecisions(2), 2)
	assert.Equal(t, "flood_district_x", v.Scenario)

	// The view is a copy: mutating it must not reach the session.
	v.Ledgers.Hospitals[0].AvailableBeds = -99
	assert.NotEqual(t, -99, s.set.Hospitals[0].AvailableBeds)
}

func TestRing_LatestNewestFirst(t *testing.T) {
	r := newRing(3)
	for i := 1; i <= 5; i++ {
		r.push(Decision{Seq: i})
	}
	got := r.latest(0)
	require.Len(t, got, 3)
	assert.Equal(t, []int{5, 4, 3}, []int{got[0].Seq, got[1].Seq, got[2].Seq})
	assert.Len(t, r.latest(2), 2)
}

func TestController(t *testing.T) {
	c := NewController(testConfig(t))
	if _, err := c.Advance(context.Background()); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("advance before start: %v", err)
	}
	if _, err := c.View(); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("view before start: %v", err)
	}

	first, err := c.Start()
	require.NoError(t, err)
	_, err = c.Run(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), first.Tick())

	second, err := c.Reset()
	require.NoError(t, err)
	assert.NotEqual(t, first.ID(), second.ID())
	v, err := c.View()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), v.Tick)
	assert.Equal(t, uint64(3), first.Tick(), "old session is left untouched")
}

func TestSession_AdvanceHonorsContext(t *testing.T) {
	s := newTestSession(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Advance(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v", err)
	}
	assert.Equal(t, uint64(0), s.Tick())
}
