package orchestrator

import (
	"fmt"

	"savegrid.ai/internal/persistence/snapshot"
	"savegrid.ai/internal/sim/failure"
	"savegrid.ai/internal/sim/inflow"
	"savegrid.ai/internal/sim/ledger"
	"savegrid.ai/internal/sim/stats"
)

// ExportSnapshot captures the full session state at the last completed tick.
func (s *Session) ExportSnapshot() snapshot.SnapshotV1 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exportLocked()
}

func (s *Session) exportLocked() snapshot.SnapshotV1 {
	set := s.set.Clone()
	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version:   snapshot.Version,
			SessionID: s.id,
			Scenario:  s.scenario.Name,
			Tick:      s.tick,
		},
		Seed:               s.cfg.Seed,
		TickRateHz:         s.cfg.TickRateHz,
		InflowEveryTicks:   s.cfg.InflowEveryTicks,
		BaseInflowRate:     s.cfg.BaseInflowRate,
		SnapshotEveryTicks: s.cfg.SnapshotEveryTicks,
		Negotiation:        s.cfg.Negotiation,
		Objective:          s.cfg.Objective,
		Zones:              append([]inflow.Zone(nil), s.scenario.Zones...),
		Hospitals:          make([]ledger.ResourcePool, 0, len(set.Hospitals)),
		Units:              make([]ledger.TransportUnit, 0, len(set.Units)),
		Depot:              *set.Depot,
		Authority:          *set.Authority,
		Patients:           append([]ledger.Patient(nil), s.patients...),
		ActiveAlerts:       s.monitor.Active(),
		AlertHistory:       s.monitor.History(),
		Stats:              *s.stats,
		Initial:            s.initial,
	}
	if rng, err := s.gen.MarshalBinary(); err == nil {
		snap.RNG = rng
	} else {
		s.logger.Printf("snapshot rng: %v", err)
	}
	for _, h := range set.Hospitals {
		snap.Hospitals = append(snap.Hospitals, *h)
	}
	for _, u := range set.Units {
		snap.Units = append(snap.Units, *u)
	}
	snap.Stats.ResponseMinutes = append([]float64(nil), s.stats.ResponseMinutes...)
	snap.Stats.History = append([]stats.TickPoint(nil), s.stats.History...)
	if s.stats.Initial != nil {
		in := *s.stats.Initial
		snap.Stats.Initial = &in
	}
	return snap
}

// Restore rebuilds a session from a snapshot. Operational parameters come from the
// snapshot; cfg supplies the logger, sinks and the remaining tuning.
func Restore(cfg Config, snap snapshot.SnapshotV1) (*Session, error) {
	if snap.Header.Version != snapshot.Version {
		return nil, fmt.Errorf("snapshot version %d not supported", snap.Header.Version)
	}
	hospitals := make([]*ledger.ResourcePool, 0, len(snap.Hospitals))
	for i := range snap.Hospitals {
		h := snap.Hospitals[i]
		hospitals = append(hospitals, h.Clone())
	}
	units := make([]*ledger.TransportUnit, 0, len(snap.Units))
	for i := range snap.Units {
		u := snap.Units[i]
		units = append(units, u.Clone())
	}
	depot := snap.Depot
	authority := snap.Authority
	set, err := ledger.NewSet(hospitals, units, depot.Clone(), authority.Clone())
	if err != nil {
		return nil, fmt.Errorf("snapshot ledgers: %w", err)
	}

	t := cfg.Tuning
	t.Seed = snap.Seed
	t.TickRateHz = snap.TickRateHz
	t.InflowEveryTicks = snap.InflowEveryTicks
	t.BaseInflowRate = snap.BaseInflowRate
	if snap.SnapshotEveryTicks > 0 {
		t.SnapshotEveryTicks = snap.SnapshotEveryTicks
	}
	t.Negotiation = snap.Negotiation
	t.Objective = snap.Objective
	cfg.Tuning = t
	if snap.Header.Scenario != "" {
		cfg.Scenario.Name = snap.Header.Scenario
	}
	cfg.Scenario.Zones = append([]inflow.Zone(nil), snap.Zones...)

	gen := inflow.New(t.Seed, cfg.Scenario.Zones)
	if len(snap.RNG) > 0 {
		if err := gen.UnmarshalBinary(snap.RNG); err != nil {
			return nil, fmt.Errorf("snapshot rng: %w", err)
		}
	}

	s := newSession(cfg, set, gen)
	if snap.Header.SessionID != "" {
		s.id = snap.Header.SessionID
	}
	s.tick = snap.Header.Tick
	s.patients = append([]ledger.Patient(nil), snap.Patients...)
	s.reindex()
	s.monitor = failure.Restore(snap.ActiveAlerts, snap.AlertHistory)
	st := snap.Stats
	st.MaxHistory = s.cfg.HistoryTicks
	s.stats = &st
	s.initial = snap.Initial
	s.publish()
	return s, nil
}
