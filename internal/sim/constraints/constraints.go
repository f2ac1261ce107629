// Package constraints validates proposals against pre-commit ledgers.
//
// Validate is pure: it never mutates the ledgers, and capacity is re-checked against running
// per-target counters so that proposals in one round cannot jointly overcommit a target.
package constraints

import (
	"fmt"
	"math"

	"savegrid.ai/internal/protocol"
	"savegrid.ai/internal/sim/entities"
	"savegrid.ai/internal/sim/ledger"
	"savegrid.ai/internal/sim/negotiation"
)

// LoadSpreadBand is the maximum tolerated bed-utilization spread across hospitals.
const LoadSpreadBand = 0.40

type Rejection struct {
	Proposal negotiation.Proposal `json:"proposal"`
	Code     string               `json:"code"`
	Reason   string               `json:"reason"`
}

type Warning struct {
	Code    string `json:"code"`
	Target  string `json:"target,omitempty"`
	Message string `json:"message"`
}

type Result struct {
	Accepted []negotiation.Proposal `json:"accepted"`
	Rejected []Rejection            `json:"rejected"`
	Warnings []Warning              `json:"warnings"`
}

type counters struct {
	beds      map[string]int
	icu       map[string]int
	lpm       map[string]float64
	load      map[string]int
	claimed   map[string]bool
	assigned  map[string]bool
	inventory map[string]int
	vehicles  int
}

func newCounters(set *ledger.Set) *counters {
	c := &counters{
		beds:      map[string]int{},
		icu:       map[string]int{},
		lpm:       map[string]float64{},
		load:      map[string]int{},
		claimed:   map[string]bool{},
		assigned:  map[string]bool{},
		inventory: map[string]int{},
	}
	for _, h := range set.Hospitals {
		c.beds[h.ID] = h.AvailableBeds
		c.icu[h.ID] = h.ICUAvailable
		c.lpm[h.ID] = h.OxygenLPM()
	}
	for _, u := range set.Units {
		c.load[u.ID] = u.Load
	}
	if set.Depot != nil {
		for k, v := range set.Depot.Inventory {
			c.inventory[k] = v
		}
		c.vehicles = set.Depot.VehiclesAvailable
	}
	return c
}

type checker struct {
	set    *ledger.Set
	c      *counters
	res    Result
	warned map[string]bool
}

// Validate partitions proposals into accepted and rejected, in input order.
// A patient_assignment and the ambulance_dispatch for the same patient are accepted or
// rejected together, and a patient is accepted at most once per call.
func Validate(proposals []negotiation.Proposal, set *ledger.Set) Result {
	k := &checker{set: set, c: newCounters(set), warned: map[string]bool{}}
	k.res.Accepted = []negotiation.Proposal{}
	k.res.Rejected = []Rejection{}
	k.res.Warnings = []Warning{}

	dispatches := map[string][]int{}
	for i, p := range proposals {
		if p.Kind == negotiation.KindAmbulanceDispatch {
			dispatches[p.Subject] = append(dispatches[p.Subject], i)
		}
	}
	pairOf := map[int]int{}
	paired := map[int]bool{}
	for i, p := range proposals {
		if p.Kind != negotiation.KindPatientAssignment || len(dispatches[p.Subject]) == 0 {
			continue
		}
		j := dispatches[p.Subject][0]
		dispatches[p.Subject] = dispatches[p.Subject][1:]
		pairOf[i] = j
		paired[j] = true
	}

	for i, p := range proposals {
		switch p.Kind {
		case negotiation.KindPatientAssignment:
			j, ok := pairOf[i]
			if !ok {
				k.reject(p, protocol.ErrBadProposal, "assignment without a dispatch")
				continue
			}
			d := proposals[j]
			if k.c.assigned[p.Subject] {
				k.reject(p, protocol.ErrBadProposal, "patient already assigned this round")
				k.reject(d, protocol.ErrBadProposal, "patient already assigned this round")
				continue
			}
			if d.HospitalID != p.Target {
				k.reject(p, protocol.ErrBadProposal, "dispatch drops off at a different hospital")
				k.reject(d, protocol.ErrBadProposal, "dispatch drops off at a different hospital")
				continue
			}
			if code, why := k.checkAssignment(p); code != "" {
				k.reject(p, code, why)
				k.reject(d, protocol.ErrBadProposal, "paired assignment rejected: "+code)
				continue
			}
			if code, why := k.checkDispatch(d); code != "" {
				k.reject(p, protocol.ErrBadProposal, "paired dispatch rejected: "+code)
				k.reject(d, code, why)
				continue
			}
			k.commitAssignment(p)
			k.commitDispatch(d)
			k.res.Accepted = append(k.res.Accepted, p, d)
		case negotiation.KindAmbulanceDispatch:
			if paired[i] {
				continue
			}
			k.reject(p, protocol.ErrBadProposal, "dispatch without an assignment")
		case negotiation.KindSupplyAllocation:
			if code, why := k.checkSupply(p); code != "" {
				k.reject(p, code, why)
				continue
			}
			k.c.inventory[p.Resource] -= p.Quantity
			k.c.vehicles--
			k.res.Accepted = append(k.res.Accepted, p)
		default:
			k.reject(p, protocol.ErrBadProposal, fmt.Sprintf("unknown proposal kind %q", p.Kind))
		}
	}
	k.checkSpread()
	return k.res
}

func (k *checker) reject(p negotiation.Proposal, code, why string) {
	k.res.Rejected = append(k.res.Rejected, Rejection{Proposal: p, Code: code, Reason: why})
}

func (k *checker) warn(code, target, msg string) {
	key := code + "/" + target
	if k.warned[key] {
		return
	}
	k.warned[key] = true
	k.res.Warnings = append(k.res.Warnings, Warning{Code: code, Target: target, Message: msg})
}

func (k *checker) checkAssignment(p negotiation.Proposal) (string, string) {
	h := k.set.Hospital(p.Target)
	if h == nil {
		return protocol.ErrUnknownTarget, fmt.Sprintf("unknown hospital %q", p.Target)
	}
	if !p.Acuity.Valid() {
		return protocol.ErrBadProposal, fmt.Sprintf("invalid acuity %d", p.Acuity)
	}
	switch {
	case p.Acuity.NeedsICU() && p.Resource != negotiation.ResourceICUBed:
		return protocol.ErrICURequired, fmt.Sprintf("acuity %d patient routed to %s", p.Acuity, p.Resource)
	case p.Acuity.NeedsICU():
		if k.c.icu[h.ID] <= 0 {
			return protocol.ErrNoICU, fmt.Sprintf("%s has no ICU slot left", h.ID)
		}
	default:
		if k.c.beds[h.ID] <= 0 {
			return protocol.ErrNoBed, fmt.Sprintf("%s has no bed left", h.ID)
		}
	}
	return "", ""
}

func (k *checker) commitAssignment(p negotiation.Proposal) {
	k.c.assigned[p.Subject] = true
	id := p.Target
	if p.Acuity.NeedsICU() {
		k.c.icu[id]--
	} else {
		k.c.beds[id]--
	}
	k.c.lpm[id] += p.Acuity.OxygenLPM()
	h := k.set.Hospital(id)
	if lpm := k.c.lpm[id]; lpm > 0 {
		hours := h.OxygenLiters / (lpm * 60)
		if hours < ledger.OxygenCriticalHours {
			k.warn(protocol.WarnOxygenReserve, id, fmt.Sprintf("%s oxygen reserve %.1fh after admission", id, hours))
		}
	}
}

func (k *checker) checkDispatch(p negotiation.Proposal) (string, string) {
	u := k.set.Unit(p.Target)
	if u == nil {
		return protocol.ErrUnknownTarget, fmt.Sprintf("unknown unit %q", p.Target)
	}
	if u.Status != ledger.UnitIdle || u.Fuel <= ledger.FuelCritical || k.c.claimed[u.ID] {
		return protocol.ErrUnitUnavailable, fmt.Sprintf("%s not available (status=%s fuel=%.2f)", u.ID, u.Status, u.Fuel)
	}
	if k.c.load[u.ID]+p.Quantity > u.Capacity {
		return protocol.ErrUnitOverload, fmt.Sprintf("%s load %d+%d exceeds capacity %d", u.ID, k.c.load[u.ID], p.Quantity, u.Capacity)
	}
	return "", ""
}

func (k *checker) commitDispatch(p negotiation.Proposal) {
	u := k.set.Unit(p.Target)
	k.c.load[u.ID] += p.Quantity
	k.c.claimed[u.ID] = true

	km := ledger.Distance(u.Location, p.Pickup) + ledger.Distance(p.Pickup, p.Destination)
	ticks := math.Ceil(km / entities.SpeedKmPerTick)
	if after := u.Fuel - ticks*entities.FuelPerTick; after < ledger.FuelCritical {
		k.warn(protocol.WarnLowFuel, u.ID, fmt.Sprintf("%s projected fuel %.2f after %.1f km mission", u.ID, after, km))
	}
}

func (k *checker) checkSupply(p negotiation.Proposal) (string, string) {
	if k.set.Depot == nil || p.Subject != k.set.Depot.ID {
		return protocol.ErrUnknownTarget, fmt.Sprintf("unknown depot %q", p.Subject)
	}
	if k.set.Hospital(p.Target) == nil {
		return protocol.ErrUnknownTarget, fmt.Sprintf("unknown hospital %q", p.Target)
	}
	if p.Quantity <= 0 {
		return protocol.ErrBadProposal, fmt.Sprintf("non-positive quantity %d", p.Quantity)
	}
	have, ok := k.c.inventory[p.Resource]
	if !ok || have < p.Quantity {
		return protocol.ErrNoInventory, fmt.Sprintf("%s: %d requested, %d remaining", p.Resource, p.Quantity, have)
	}
	if k.c.vehicles <= 0 {
		return protocol.ErrNoVehicle, "no delivery vehicle available"
	}
	return "", ""
}

// checkSpread flags post-commit bed utilization spread once per call.
func (k *checker) checkSpread() {
	if len(k.set.Hospitals) < 2 {
		return
	}
	hi, lo := -1.0, 2.0
	var hiID, loID string
	for _, h := range k.set.Hospitals {
		u := 1 - float64(k.c.beds[h.ID])/float64(max(h.TotalBeds, 1))
		if u > hi {
			hi, hiID = u, h.ID
		}
		if u < lo {
			lo, loID = u, h.ID
		}
	}
	if hi-lo > LoadSpreadBand {
		k.warn(protocol.WarnLoadSpread, "", fmt.Sprintf("bed utilization spread %.0f points (%s %.0f%%, %s %.0f%%)",
			(hi-lo)*100, hiID, hi*100, loID, lo*100))
	}
}
