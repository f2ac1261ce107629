// Package orchestrator drives one simulation session through its per-tick phases:
// inflow, snapshots, policy, matching, validation, commit, entity time-step, failure
// monitoring and reporting.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"savegrid.ai/internal/persistence/snapshot"
	"savegrid.ai/internal/sim/constraints"
	"savegrid.ai/internal/sim/entities"
	"savegrid.ai/internal/sim/failure"
	"savegrid.ai/internal/sim/inflow"
	"savegrid.ai/internal/sim/ledger"
	"savegrid.ai/internal/sim/negotiation"
	"savegrid.ai/internal/sim/objective"
	"savegrid.ai/internal/sim/stats"
	"savegrid.ai/internal/sim/tuning"
)

var (
	ErrNotStarted      = errors.New("simulation not started")
	ErrSessionFailed   = errors.New("session failed")
	ErrInvalidOverride = errors.New("invalid policy override")
)

type StepLogger interface {
	WriteStep(entry StepLogEntry) error
}

type AlertLogger interface {
	WriteAlert(entry AlertLogEntry) error
}

// Indexer receives every step report for the read-model index. It must not block.
type Indexer interface {
	RecordStep(rep StepReport)
}

// Publisher pushes step reports to live clients. It must not block.
type Publisher interface {
	PublishStep(rep StepReport)
}

// Sinks are optional; nil members are skipped.
type Sinks struct {
	Steps     StepLogger
	Alerts    AlertLogger
	Index     Indexer
	Publisher Publisher
	// Snapshots receives a full export every SnapshotEveryTicks. Sends never block.
	Snapshots chan<- snapshot.SnapshotV1
}

type Config struct {
	Tuning   tuning.Tuning
	Scenario tuning.Scenario
	Logger   *log.Logger
	Sinks    Sinks
}

// StepLogEntry is the replayable record of one tick.
type StepLogEntry struct {
	SessionID string                 `json:"session_id"`
	Tick      uint64                 `json:"tick"`
	Overrides []ledger.Override      `json:"overrides,omitempty"`
	Arrivals  int                    `json:"arrivals"`
	Committed []negotiation.Proposal `json:"committed"`
	Rejected  int                    `json:"rejected"`
	Warnings  int                    `json:"warnings"`
	Waiting   int                    `json:"waiting"`
	Digest    string                 `json:"digest"`
}

type AlertLogEntry struct {
	SessionID string        `json:"session_id"`
	Tick      uint64        `json:"tick"`
	Alert     failure.Alert `json:"alert"`
}

// Session owns every ledger of one run. Advance is serialized by mu; readers use View,
// which is replaced wholesale after each tick.
type Session struct {
	mu sync.Mutex

	id       string
	cfg      tuning.Tuning
	scenario tuning.Scenario
	logger   *log.Logger
	sinks    Sinks

	tick     uint64
	set      *ledger.Set
	roster   *entities.Roster
	gen      *inflow.Generator
	engine   *negotiation.Engine
	monitor  *failure.Monitor
	stats    *stats.Tracker
	patients []ledger.Patient
	byID     map[string]int
	pending  []ledger.Override

	initial   objective.Score
	decisions *ring
	last      *StepReport
	failed    error

	view atomic.Pointer[View]
}

// New builds a session from the scenario: fresh ledgers, the seeded opening casualty wave
// and the initial objective baseline.
func New(cfg Config) (*Session, error) {
	set, err := cfg.Scenario.ToLedgers()
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", cfg.Scenario.Name, err)
	}
	s := newSession(cfg, set, inflow.New(cfg.Tuning.Seed, cfg.Scenario.Zones))
	s.patients = s.gen.Initial(cfg.Scenario.InitialCasualties)
	s.reindex()
	s.stats.RecordInitial(0, s.set, s.patients)
	s.initial = s.score()
	s.publish()
	return s, nil
}

func newSession(cfg Config, set *ledger.Set, gen *inflow.Generator) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	t := cfg.Tuning
	t.Normalize()
	st := stats.New()
	st.MaxHistory = t.HistoryTicks
	return &Session{
		id:        uuid.NewString(),
		cfg:       t,
		scenario:  cfg.Scenario,
		logger:    logger,
		sinks:     cfg.Sinks,
		set:       set,
		roster:    entities.NewRoster(set),
		gen:       gen,
		engine:    negotiation.New(t.Negotiation),
		monitor:   failure.NewMonitor(),
		stats:     st,
		decisions: newRing(t.DecisionRing),
	}
}

func (s *Session) ID() string { return s.id }

// Tick is the last completed tick (0 before the first Advance).
func (s *Session) Tick() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tick
}

// ApplyOverride queues an operator policy change; it takes effect at the start of the
// next tick and is recorded in that tick's step log entry.
func (s *Session) ApplyOverride(o ledger.Override) error {
	if err := validateOverride(o); err != nil {
		return err
	}
	c := o
	if o.Severity != nil {
		v := *o.Severity
		c.Severity = &v
	}
	if o.Rules != nil {
		c.Rules = make(map[string]bool, len(o.Rules))
		for k, v := range o.Rules {
			c.Rules[k] = v
		}
	}
	s.mu.Lock()
	s.pending = append(s.pending, c)
	s.mu.Unlock()
	return nil
}

func validateOverride(o ledger.Override) error {
	if o.Severity == nil && len(o.Rules) == 0 {
		return fmt.Errorf("%w: nothing to change", ErrInvalidOverride)
	}
	if o.Severity != nil {
		if v := *o.Severity; math.IsNaN(v) || v < 0 || v > 1 {
			return fmt.Errorf("%w: severity %v outside [0,1]", ErrInvalidOverride, v)
		}
	}
	for k := range o.Rules {
		if !ledger.KnownRule(k) {
			return fmt.Errorf("%w: unknown rule %q", ErrInvalidOverride, k)
		}
	}
	return nil
}

// Advance runs one tick and emits its report to the configured sinks.
func (s *Session) Advance(ctx context.Context) (StepReport, error) {
	if err := ctx.Err(); err != nil {
		return StepReport{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failed != nil {
		return StepReport{}, fmt.Errorf("%w: %v", ErrSessionFailed, s.failed)
	}
	rep, err := s.step(ctx)
	if err != nil {
		s.failed = err
		s.logger.Printf("session %s failed at tick %d: %v", s.id, rep.Tick, err)
		return rep, err
	}
	s.emit(rep)
	return rep, nil
}

// Run advances n ticks, stopping at the first error.
func (s *Session) Run(ctx context.Context, n int) ([]StepReport, error) {
	out := make([]StepReport, 0, n)
	for i := 0; i < n; i++ {
		rep, err := s.Advance(ctx)
		if err != nil {
			return out, err
		}
		out = append(out, rep)
	}
	return out, nil
}

func (s *Session) step(ctx context.Context) (StepReport, error) {
	tick := s.tick + 1
	rep := StepReport{
		SessionID: s.id,
		Tick:      tick,
		Committed: []negotiation.Proposal{},
		Rejected:  []constraints.Rejection{},
		Warnings:  []constraints.Warning{},
		Alerts:    []failure.Alert{},
	}

	// Operator overrides land at the tick boundary.
	pending := s.pending
	s.pending = nil
	for _, o := range pending {
		o.Tick = tick
		if err := s.roster.Authority.Handle(entities.OverridePolicy{Override: o}); err != nil {
			s.logger.Printf("tick=%d override dropped: %v", tick, err)
			continue
		}
		rep.Overrides = append(rep.Overrides, o)
	}

	// 1. Inflow.
	if tick%uint64(s.cfg.InflowEveryTicks) == 0 {
		arrivals := s.gen.Tick(tick, s.cfg.BaseInflowRate, s.set.Authority.Severity)
		if len(arrivals) > 0 {
			s.patients = append(s.patients, arrivals...)
			s.reindex()
		}
		s.stats.RecordArrivals(len(arrivals))
		rep.Arrivals = len(arrivals)
	}
	before := s.score()

	// 2-3. Snapshots and policy.
	hospitals := s.roster.HospitalSnapshots()
	units := s.roster.AmbulanceSnapshots()
	depot := s.roster.Depot.Snapshot()
	policy := s.roster.Authority.Policy(s.set.Hospitals)

	// 4. Negotiation.
	plan := s.engine.Match(s.patients, hospitals, units, depot, policy)
	rep.Unmatched = plan.Unmatched

	// 5. Validation against pre-commit ledgers.
	res := constraints.Validate(plan.Proposals, s.set)
	rep.Rejected = append(rep.Rejected, res.Rejected...)
	rep.Warnings = append(rep.Warnings, res.Warnings...)

	// 6. Commit.
	committed, failed := s.commit(tick, res.Accepted)
	rep.Committed = append(rep.Committed, committed...)
	rep.Rejected = append(rep.Rejected, failed...)

	// 7. Entity time-step.
	events, err := s.stepEntities(ctx, tick)
	if err != nil {
		return rep, err
	}
	s.applyEvents(tick, events)
	rep.Events = events

	// 8. Failure monitor.
	rep.Alerts = append(rep.Alerts, s.monitor.Observe(s.set, tick)...)

	// 9. Report.
	s.tick = tick
	s.prune()
	after := s.score()
	rep.Objective = after
	rep.Comparison = objective.Compare(before, after)
	rep.Waiting = s.waitingCount()

	activated := 0
	for _, a := range rep.Alerts {
		if !a.Resolved {
			activated++
		}
	}
	s.stats.RecordValidation(len(rep.Rejected), len(rep.Warnings))
	s.stats.RecordAlerts(activated)
	s.stats.RecordTick(tick, s.set, rep.Waiting)

	rep.Digest = s.digest()
	s.last = &rep
	s.publish()
	return rep, nil
}

func (s *Session) emit(rep StepReport) {
	if len(rep.Rejected) > 0 {
		s.logger.Printf("tick=%d committed=%d rejected=%d warnings=%d", rep.Tick, len(rep.Committed), len(rep.Rejected), len(rep.Warnings))
	}
	for _, a := range rep.Alerts {
		if a.Resolved {
			s.logger.Printf("tick=%d resolved %s", rep.Tick, a.Type)
		} else {
			s.logger.Printf("tick=%d ALERT %s (%s): %s", rep.Tick, a.Type, a.Severity, a.Message)
		}
	}

	if s.sinks.Steps != nil {
		entry := StepLogEntry{
			SessionID: s.id,
			Tick:      rep.Tick,
			Overrides: rep.Overrides,
			Arrivals:  rep.Arrivals,
			Committed: rep.Committed,
			Rejected:  len(rep.Rejected),
			Warnings:  len(rep.Warnings),
			Waiting:   rep.Waiting,
			Digest:    rep.Digest,
		}
		if err := s.sinks.Steps.WriteStep(entry); err != nil {
			s.logger.Printf("step log: %v", err)
		}
	}
	if s.sinks.Alerts != nil {
		for _, a := range rep.Alerts {
			if err := s.sinks.Alerts.WriteAlert(AlertLogEntry{SessionID: s.id, Tick: rep.Tick, Alert: a}); err != nil {
				s.logger.Printf("alert log: %v", err)
			}
		}
	}
	if s.sinks.Index != nil {
		s.sinks.Index.RecordStep(rep)
	}
	if s.sinks.Publisher != nil {
		s.sinks.Publisher.PublishStep(rep)
	}
	if s.sinks.Snapshots != nil && rep.Tick%uint64(s.cfg.SnapshotEveryTicks) == 0 {
		select {
		case s.sinks.Snapshots <- s.exportLocked():
		default:
			// Drop snapshot if sink is backed up.
		}
	}
}

func (s *Session) score() objective.Score {
	return s.cfg.Objective.Evaluate(objective.Measure(s.set.Hospitals, s.patients, s.stats.ResponseMinutes))
}

func (s *Session) waitingCount() int {
	n := 0
	for _, p := range s.patients {
		if p.Status == ledger.PatientWaiting {
			n++
		}
	}
	return n
}

func (s *Session) reindex() {
	s.byID = make(map[string]int, len(s.patients))
	for i, p := range s.patients {
		s.byID[p.ID] = i
	}
}

func (s *Session) patient(id string) *ledger.Patient {
	i, ok := s.byID[id]
	if !ok {
		return nil
	}
	return &s.patients[i]
}

// prune drops discharged patients, building a new slice rather than editing in place.
func (s *Session) prune() {
	keep := make([]ledger.Patient, 0, len(s.patients))
	for _, p := range s.patients {
		if p.Status != ledger.PatientDischarged {
			keep = append(keep, p)
		}
	}
	if len(keep) != len(s.patients) {
		s.patients = keep
		s.reindex()
	}
}
