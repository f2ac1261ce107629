package indexdb

import (
	"testing"

	"savegrid.ai/internal/persistence/snapshot"
	"savegrid.ai/internal/sim/orchestrator"
)

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqStep, step: orchestrator.StepReport{Tick: 1}}

	s.RecordStep(orchestrator.StepReport{Tick: 2})
	s.RecordStep(orchestrator.StepReport{Tick: 3})
	s.RecordSnapshot("/tmp/2.snap.zst", snapshot.SnapshotV1{})

	st := s.Stats()
	if st.DropStepTotal != 2 {
		t.Fatalf("DropStepTotal=%d want=2", st.DropStepTotal)
	}
	if st.DropSnapshotTotal != 1 {
		t.Fatalf("DropSnapshotTotal=%d want=1", st.DropSnapshotTotal)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}

func TestSQLiteIndex_NilIsNoop(t *testing.T) {
	var s *SQLiteIndex
	s.RecordStep(orchestrator.StepReport{Tick: 1})
	s.RecordSnapshot("x", snapshot.SnapshotV1{})
	if st := s.Stats(); st != (QueueStats{}) {
		t.Fatalf("stats=%+v", st)
	}
}
