package orchestrator

import (
	"savegrid.ai/internal/protocol"
	"savegrid.ai/internal/sim/constraints"
	"savegrid.ai/internal/sim/entities"
	"savegrid.ai/internal/sim/failure"
	"savegrid.ai/internal/sim/ledger"
	"savegrid.ai/internal/sim/negotiation"
	"savegrid.ai/internal/sim/objective"
)

// StepReport is everything one tick decided and observed.
type StepReport struct {
	SessionID  string                  `json:"session_id"`
	Tick       uint64                  `json:"tick"`
	Overrides  []ledger.Override       `json:"overrides,omitempty"`
	Arrivals   int                     `json:"arrivals"`
	Committed  []negotiation.Proposal  `json:"committed"`
	Rejected   []constraints.Rejection `json:"rejected"`
	Warnings   []constraints.Warning   `json:"warnings"`
	Unmatched  []negotiation.Unmatched `json:"unmatched,omitempty"`
	Events     []entities.Event        `json:"events,omitempty"`
	Alerts     []failure.Alert         `json:"alerts"`
	Objective  objective.Score         `json:"objective"`
	Comparison objective.Comparison    `json:"comparison"`
	Waiting    int                     `json:"waiting"`
	Digest     string                  `json:"digest"`
}

// Message converts the report to the STEP wire message.
func (r StepReport) Message() protocol.StepMsg {
	m := protocol.StepMsg{
		Type:            protocol.TypeStep,
		ProtocolVersion: protocol.Version,
		SessionID:       r.SessionID,
		Tick:            r.Tick,
		Committed:       make([]protocol.AllocationObs, 0, len(r.Committed)),
		Rejected:        make([]protocol.RejectionObs, 0, len(r.Rejected)),
		Warnings:        make([]protocol.WarningObs, 0, len(r.Warnings)),
		Alerts:          make([]protocol.AlertObs, 0, len(r.Alerts)),
		Objective: protocol.ObjectiveObs{
			Cost:               r.Objective.Cost,
			UnservedCritical:   r.Objective.Inputs.UnservedCritical,
			AvgResponseMinutes: r.Objective.Inputs.AvgResponseMinutes,
			Overloaded:         r.Objective.Inputs.Overloaded,
			LoadVariance:       r.Objective.Inputs.LoadVariance,
		},
		Waiting: r.Waiting,
		Digest:  r.Digest,
	}
	for _, p := range r.Committed {
		m.Committed = append(m.Committed, protocol.AllocationObs{
			Seq:        p.Seq,
			Kind:       string(p.Kind),
			Subject:    p.Subject,
			Target:     p.Target,
			HospitalID: p.HospitalID,
			Resource:   p.Resource,
			Quantity:   p.Quantity,
			Score:      p.Score,
			ETAMinutes: p.ETAMinutes,
			Rationale:  p.Rationale,
		})
	}
	for _, rj := range r.Rejected {
		m.Rejected = append(m.Rejected, protocol.RejectionObs{
			Seq:     rj.Proposal.Seq,
			Kind:    string(rj.Proposal.Kind),
			Subject: rj.Proposal.Subject,
			Target:  rj.Proposal.Target,
			Code:    rj.Code,
			Reason:  rj.Reason,
		})
	}
	for _, w := range r.Warnings {
		m.Warnings = append(m.Warnings, protocol.WarningObs{Code: w.Code, Target: w.Target, Message: w.Message})
	}
	for _, a := range r.Alerts {
		m.Alerts = append(m.Alerts, AlertObs(a))
	}
	return m
}

// AlertObs converts a monitor alert to its wire form.
func AlertObs(a failure.Alert) protocol.AlertObs {
	return protocol.AlertObs{
		Type:     string(a.Type),
		Severity: a.Severity,
		Message:  a.Message,
		Protocol: a.Protocol,
		Actions:  append([]string{}, a.Actions...),
		Tick:     a.Tick,
		Resolved: a.Resolved,
	}
}

// OverrideFrom converts a validated POLICY message to a ledger override.
func OverrideFrom(m protocol.PolicyMsg) ledger.Override {
	return ledger.Override{Severity: m.Severity, Rules: m.Rules, Reason: m.Reason}
}
