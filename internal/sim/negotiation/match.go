// Package negotiation turns snapshots, waiting patients and policy into an ordered list of
// allocation proposals using an explainable greedy heuristic.
package negotiation

import (
	"fmt"
	"sort"

	"savegrid.ai/internal/sim/ledger"
)

type Config struct {
	DistanceWeight float64 `yaml:"distance_weight" json:"distance_weight"`
	CapacityWeight float64 `yaml:"capacity_weight" json:"capacity_weight"`
	StressWeight   float64 `yaml:"stress_weight" json:"stress_weight"`

	// DistanceScale is the distance (km) at which the distance term reaches zero.
	DistanceScale float64 `yaml:"distance_scale" json:"distance_scale"`
	// CapacityScale is the weighted free capacity at which the capacity term saturates.
	CapacityScale float64 `yaml:"capacity_scale" json:"capacity_scale"`

	MatchBatch  int     `yaml:"match_batch" json:"match_batch"`
	SupplyBatch int     `yaml:"supply_batch" json:"supply_batch"`
	MinFuel     float64 `yaml:"min_fuel" json:"min_fuel"`
}

func DefaultConfig() Config {
	return Config{
		DistanceWeight: 0.4,
		CapacityWeight: 0.4,
		StressWeight:   0.2,
		DistanceScale:  100,
		CapacityScale:  50,
		MatchBatch:     10,
		SupplyBatch:    5,
		MinFuel:        ledger.FuelCritical,
	}
}

type Engine struct {
	cfg Config
}

func New(cfg Config) *Engine {
	d := DefaultConfig()
	if cfg.DistanceScale <= 0 {
		cfg.DistanceScale = d.DistanceScale
	}
	if cfg.CapacityScale <= 0 {
		cfg.CapacityScale = d.CapacityScale
	}
	if cfg.MatchBatch <= 0 {
		cfg.MatchBatch = d.MatchBatch
	}
	if cfg.SupplyBatch <= 0 {
		cfg.SupplyBatch = d.SupplyBatch
	}
	if cfg.DistanceWeight == 0 && cfg.CapacityWeight == 0 && cfg.StressWeight == 0 {
		cfg.DistanceWeight, cfg.CapacityWeight, cfg.StressWeight = d.DistanceWeight, d.CapacityWeight, d.StressWeight
	}
	return &Engine{cfg: cfg}
}

func (e *Engine) Config() Config { return e.cfg }

type tentative struct {
	snap ledger.Snapshot
	beds int
	icu  int
}

// Match never fails: a patient without a feasible hospital and unit simply stays waiting.
// Inputs are not mutated; all decrements happen on local copies.
func (e *Engine) Match(patients []ledger.Patient, hospitals, units []ledger.Snapshot, depot ledger.Snapshot, policy ledger.Policy) Plan {
	var plan Plan
	seq := 0
	emit := func(p Proposal) {
		seq++
		p.Seq = seq
		plan.Proposals = append(plan.Proposals, p)
	}

	hs := make([]*tentative, 0, len(hospitals))
	for _, s := range hospitals {
		hs = append(hs, &tentative{snap: s, beds: s.Capacity.AvailableBeds, icu: s.Capacity.ICUAvailable})
	}
	sort.Slice(hs, func(i, j int) bool { return hs[i].snap.ID < hs[j].snap.ID })

	pool := make([]ledger.Snapshot, 0, len(units))
	for _, u := range units {
		if u.Capacity.Status == ledger.UnitIdle && u.Capacity.AvailableSlots > 0 && u.Capacity.Fuel > e.cfg.MinFuel {
			pool = append(pool, u)
		}
	}
	sort.Slice(pool, func(i, j int) bool { return pool[i].ID < pool[j].ID })

	waiting := make([]ledger.Patient, 0, len(patients))
	for _, p := range patients {
		if p.Status == ledger.PatientWaiting {
			waiting = append(waiting, p)
		}
	}
	ledger.SortForTriage(waiting)

	matched := 0
	for _, p := range waiting {
		if matched >= e.cfg.MatchBatch {
			break
		}
		best, score, dist := e.bestHospital(p, hs, policy)
		if best == nil {
			plan.Unmatched = append(plan.Unmatched, Unmatched{PatientID: p.ID, Acuity: p.Acuity, Reason: ReasonNoCapacity})
			continue
		}
		if len(pool) == 0 {
			// Nobody further down the queue can be served either.
			plan.Unmatched = append(plan.Unmatched, Unmatched{PatientID: p.ID, Acuity: p.Acuity, Reason: ReasonNoTransport})
			break
		}
		ui, eta := nearestUnit(pool, p.Location, best.snap.Location)
		unit := pool[ui]
		pool = append(pool[:ui], pool[ui+1:]...)

		why := fmt.Sprintf("%s patient to %s: %.1f km, %d beds/%d ICU free, stress %.2f, multiplier %.2f, score %.3f",
			p.Acuity.Name(), best.snap.Name, dist, best.beds, best.icu,
			best.snap.PriorityScore, policy.Multiplier(best.snap.ID), score)
		res := ResourceGeneralBed
		if p.Acuity.NeedsICU() {
			best.icu--
			res = ResourceICUBed
		} else {
			best.beds--
		}
		matched++

		emit(Proposal{
			Kind:        KindPatientAssignment,
			Subject:     p.ID,
			Target:      best.snap.ID,
			HospitalID:  best.snap.ID,
			Resource:    res,
			Quantity:    1,
			Score:       score,
			Acuity:      p.Acuity,
			ETAMinutes:  eta,
			Pickup:      p.Location,
			Destination: best.snap.Location,
			Rationale:   why,
		})
		emit(Proposal{
			Kind:        KindAmbulanceDispatch,
			Subject:     p.ID,
			Target:      unit.ID,
			HospitalID:  best.snap.ID,
			Resource:    ResourceTransport,
			Quantity:    1,
			Score:       score,
			Acuity:      p.Acuity,
			ETAMinutes:  eta,
			Pickup:      p.Location,
			Destination: best.snap.Location,
			Rationale: fmt.Sprintf("%s nearest available unit, ETA %.1f min via pickup (fuel %.0f%%)",
				unit.ID, eta, unit.Capacity.Fuel*100),
		})
	}

	for _, pr := range e.matchSupply(hs, depot) {
		emit(pr)
	}
	return plan
}

// bestHospital picks the highest scoring hospital with a free slot of the patient's class.
// Hospitals are scanned in id order and only a strictly better score replaces the
// incumbent, so ties go to the lowest id.
func (e *Engine) bestHospital(p ledger.Patient, hs []*tentative, policy ledger.Policy) (*tentative, float64, float64) {
	var best *tentative
	bestScore, bestDist := -1.0, 0.0
	for _, h := range hs {
		if p.Acuity.NeedsICU() && h.icu <= 0 {
			continue
		}
		if !p.Acuity.NeedsICU() && h.beds <= 0 {
			continue
		}
		d := ledger.Distance(p.Location, h.snap.Location)
		s := e.Score(d, h.beds, h.icu, h.snap.PriorityScore, policy.Multiplier(h.snap.ID))
		if s > bestScore {
			best, bestScore, bestDist = h, s, d
		}
	}
	return best, bestScore, bestDist
}

// Score is (wd·dist + wc·cap + ws·(1−stress)) × multiplier.
func (e *Engine) Score(distKm float64, beds, icu int, stress, multiplier float64) float64 {
	dist := max(0, 1-distKm/e.cfg.DistanceScale)
	capacity := min(1, float64(beds+2*icu)/e.cfg.CapacityScale)
	return (e.cfg.DistanceWeight*dist + e.cfg.CapacityWeight*capacity + e.cfg.StressWeight*(1-stress)) * multiplier
}

// nearestUnit returns the pool index minimizing unit→patient→hospital travel time.
// The pool is sorted by id and only strictly shorter times win.
func nearestUnit(pool []ledger.Snapshot, pickup, hospital ledger.Point) (int, float64) {
	best, bestETA := -1, 0.0
	leg := ledger.Distance(pickup, hospital)
	for i, u := range pool {
		eta := ledger.TravelMinutes(ledger.Distance(u.Location, pickup) + leg)
		if best < 0 || eta < bestETA {
			best, bestETA = i, eta
		}
	}
	return best, bestETA
}

type supplyRequest struct {
	hospital *tentative
	req      ledger.Request
}

func (e *Engine) matchSupply(hs []*tentative, depot ledger.Snapshot) []Proposal {
	if depot.ID == "" || len(depot.Capacity.Inventory) == 0 {
		return nil
	}
	inv := make(map[string]int, len(depot.Capacity.Inventory))
	for k, v := range depot.Capacity.Inventory {
		inv[k] = v
	}
	vehicles := depot.Capacity.VehiclesAvailable

	var reqs []supplyRequest
	for _, h := range hs {
		for _, r := range h.snap.Requests {
			if _, stocked := inv[r.Resource]; !stocked || r.Quantity <= 0 {
				continue
			}
			reqs = append(reqs, supplyRequest{hospital: h, req: r})
		}
	}
	sort.SliceStable(reqs, func(i, j int) bool {
		a, b := reqs[i], reqs[j]
		if a.req.Urgency.Rank() != b.req.Urgency.Rank() {
			return a.req.Urgency.Rank() < b.req.Urgency.Rank()
		}
		if a.hospital.snap.PriorityScore != b.hospital.snap.PriorityScore {
			return a.hospital.snap.PriorityScore > b.hospital.snap.PriorityScore
		}
		return a.hospital.snap.ID < b.hospital.snap.ID
	})
	if len(reqs) > e.cfg.SupplyBatch {
		reqs = reqs[:e.cfg.SupplyBatch]
	}

	var out []Proposal
	for _, r := range reqs {
		if vehicles <= 0 {
			break
		}
		grant := min(r.req.Quantity, inv[r.req.Resource])
		if grant <= 0 {
			continue
		}
		inv[r.req.Resource] -= grant
		vehicles--
		h := r.hospital.snap
		eta := ledger.TravelMinutes(ledger.Distance(depot.Location, h.Location))
		out = append(out, Proposal{
			Kind:        KindSupplyAllocation,
			Subject:     depot.ID,
			Target:      h.ID,
			HospitalID:  h.ID,
			Resource:    r.req.Resource,
			Quantity:    grant,
			Score:       h.PriorityScore,
			ETAMinutes:  eta,
			Urgency:     r.req.Urgency,
			Pickup:      depot.Location,
			Destination: h.Location,
			Rationale: fmt.Sprintf("%s %s request from %s: granted %d of %d, %d left, ETA %.0f min",
				r.req.Urgency, r.req.Resource, h.Name, grant, r.req.Quantity, inv[r.req.Resource], eta),
		})
	}
	return out
}
