package orchestrator

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"savegrid.ai/internal/protocol"
	"savegrid.ai/internal/sim/constraints"
	"savegrid.ai/internal/sim/entities"
	"savegrid.ai/internal/sim/ledger"
	"savegrid.ai/internal/sim/negotiation"
)

// commit applies accepted proposals in order through each target's MessageHandler.
// Validation already checked capacity, so a failure here is reported as E_INTERNAL. When a
// dispatch fails, its already-admitted assignment is unwound and rejected as well; decisions
// for a pair are recorded only once both halves are in.
func (s *Session) commit(tick uint64, accepted []negotiation.Proposal) ([]negotiation.Proposal, []constraints.Rejection) {
	committed := make([]negotiation.Proposal, 0, len(accepted))
	var failed []constraints.Rejection
	pending := map[string]negotiation.Proposal{}

	fail := func(p negotiation.Proposal, err error) {
		s.logger.Printf("tick=%d commit %s %s->%s: %v", tick, p.Kind, p.Subject, p.Target, err)
		failed = append(failed, constraints.Rejection{Proposal: p, Code: protocol.ErrInternal, Reason: err.Error()})
	}
	unwind := func(a negotiation.Proposal, cause error) {
		committed = s.unwindAssignment(committed, a.Subject)
		delete(pending, a.Subject)
		fail(a, fmt.Errorf("assignment unwound: %w", cause))
	}

	for _, p := range accepted {
		switch p.Kind {
		case negotiation.KindPatientAssignment:
			if err := s.admit(tick, p); err != nil {
				fail(p, err)
				continue
			}
			committed = append(committed, p)
			pending[p.Subject] = p
		case negotiation.KindAmbulanceDispatch:
			a, ok := pending[p.Subject]
			if !ok {
				fail(p, fmt.Errorf("dispatch for %s without a committed assignment", p.Subject))
				continue
			}
			if err := s.dispatch(tick, p); err != nil {
				fail(p, err)
				unwind(a, err)
				continue
			}
			delete(pending, p.Subject)
			committed = append(committed, p)
			s.decisions.push(decisionFor(tick, a))
			s.decisions.push(decisionFor(tick, p))
		case negotiation.KindSupplyAllocation:
			if err := s.sendSupply(tick, p); err != nil {
				fail(p, err)
				continue
			}
			committed = append(committed, p)
			s.decisions.push(decisionFor(tick, p))
		default:
			fail(p, fmt.Errorf("unknown proposal kind %q", p.Kind))
		}
	}

	// Assignments whose dispatch never arrived.
	for _, c := range append([]negotiation.Proposal(nil), committed...) {
		if a, ok := pending[c.Subject]; ok && c.Kind == negotiation.KindPatientAssignment {
			unwind(a, fmt.Errorf("no dispatch for %s", a.Subject))
		}
	}
	return committed, failed
}

func (s *Session) admit(tick uint64, p negotiation.Proposal) error {
	h := s.roster.Hospital(p.Target)
	if h == nil {
		return fmt.Errorf("unknown hospital %s", p.Target)
	}
	pt := s.patient(p.Subject)
	if pt == nil || pt.Status != ledger.PatientWaiting {
		return fmt.Errorf("patient %s is not waiting", p.Subject)
	}
	if err := h.Handle(entities.AdmitPatient{PatientID: pt.ID, Acuity: pt.Acuity, Tick: tick}); err != nil {
		return err
	}
	pt.Status = ledger.PatientAssigned
	pt.HospitalID = h.ID()
	return nil
}

func (s *Session) dispatch(tick uint64, p negotiation.Proposal) error {
	a := s.roster.Ambulance(p.Target)
	if a == nil {
		return fmt.Errorf("unknown unit %s", p.Target)
	}
	h := s.roster.Hospital(p.HospitalID)
	if h == nil {
		return fmt.Errorf("unknown hospital %s", p.HospitalID)
	}
	pt := s.patient(p.Subject)
	if pt == nil {
		return fmt.Errorf("unknown patient %s", p.Subject)
	}
	err := a.Handle(entities.StartMission{
		PatientID:  pt.ID,
		Acuity:     pt.Acuity,
		HospitalID: h.ID(),
		Pickup:     pt.Location,
		Hospital:   h.L.Location,
		Tick:       tick,
	})
	if err != nil {
		return err
	}
	pt.UnitID = a.ID()
	pt.ResponseMinutes = p.ETAMinutes
	s.stats.RecordServed(pt.Acuity, p.ETAMinutes)
	if s.nearestHospital(pt.Location) != h.ID() {
		s.stats.RecordReroute()
	}
	return nil
}

// unwindAssignment releases the bed reserved for patientID and drops its assignment from
// the committed list; the patient goes back to waiting.
func (s *Session) unwindAssignment(committed []negotiation.Proposal, patientID string) []negotiation.Proposal {
	pt := s.patient(patientID)
	if pt != nil && pt.HospitalID != "" {
		if h := s.roster.Hospital(pt.HospitalID); h != nil {
			if err := h.Handle(entities.ReleaseAdmission{PatientID: patientID}); err != nil {
				s.logger.Printf("release %s: %v", patientID, err)
			}
		}
		pt.Status = ledger.PatientWaiting
		pt.HospitalID = ""
	}
	out := make([]negotiation.Proposal, 0, len(committed))
	for _, c := range committed {
		if c.Kind == negotiation.KindPatientAssignment && c.Subject == patientID {
			continue
		}
		out = append(out, c)
	}
	return out
}

func (s *Session) sendSupply(tick uint64, p negotiation.Proposal) error {
	if p.Subject != s.roster.Depot.ID() {
		return fmt.Errorf("unknown depot %s", p.Subject)
	}
	h := s.roster.Hospital(p.Target)
	if h == nil {
		return fmt.Errorf("unknown hospital %s", p.Target)
	}
	return s.roster.Depot.Handle(entities.DispatchSupply{
		Kind:          p.Resource,
		Quantity:      p.Quantity,
		DestinationID: h.ID(),
		Destination:   h.L.Location,
		Urgency:       p.Urgency,
		Tick:          tick,
	})
}

func (s *Session) nearestHospital(at ledger.Point) string {
	best, bestD := "", 0.0
	for _, h := range s.set.Hospitals {
		d := ledger.Distance(at, h.Location)
		if best == "" || d < bestD {
			best, bestD = h.ID, d
		}
	}
	return best
}

// stepEntities runs every entity's Step concurrently. Each entity only touches its own
// ledger; events are collected per entity and flattened in roster order.
func (s *Session) stepEntities(ctx context.Context, tick uint64) ([]entities.Event, error) {
	all := s.roster.All()
	out := make([][]entities.Event, len(all))
	g, gctx := errgroup.WithContext(ctx)
	for i, e := range all {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("entity %s step: panic: %v", e.ID(), r)
				}
			}()
			if err := gctx.Err(); err != nil {
				return fmt.Errorf("entity %s step: %w", e.ID(), err)
			}
			out[i] = e.Step(tick)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var events []entities.Event
	for _, evs := range out {
		events = append(events, evs...)
	}
	return events, nil
}

// applyEvents resolves cross-entity effects sequentially, in roster order.
func (s *Session) applyEvents(tick uint64, events []entities.Event) {
	for _, ev := range events {
		switch ev.Kind {
		case entities.EventDelivered:
			if h := s.roster.Hospital(ev.HospitalID); h != nil {
				if err := h.Handle(entities.ReceiveSupply{Kind: ev.Resource, Quantity: ev.Quantity}); err != nil {
					s.logger.Printf("tick=%d delivery %s: %v", tick, ev.DeliveryID, err)
				}
			}
			s.stats.RecordDelivery(ev.Urgency == ledger.UrgencyCritical)
		case entities.EventPickedUp:
			if pt := s.patient(ev.PatientID); pt != nil {
				pt.Status = ledger.PatientEnRoute
			}
		case entities.EventDroppedOff:
			if pt := s.patient(ev.PatientID); pt != nil {
				pt.Status = ledger.PatientAdmitted
			}
			if h := s.roster.Hospital(ev.HospitalID); h != nil {
				if err := h.Handle(entities.PatientArrived{PatientID: ev.PatientID}); err != nil {
					s.logger.Printf("tick=%d drop-off %s: %v", tick, ev.PatientID, err)
				}
			}
		case entities.EventDischarged:
			if pt := s.patient(ev.PatientID); pt != nil {
				pt.Status = ledger.PatientDischarged
			}
			s.stats.RecordDischarge()
		case entities.EventOxygenExhausted:
			s.logger.Printf("tick=%d %s oxygen exhausted", tick, ev.HospitalID)
		case entities.EventFuelExhausted:
			s.logger.Printf("tick=%d %s out of fuel", tick, ev.UnitID)
		}
	}
}
