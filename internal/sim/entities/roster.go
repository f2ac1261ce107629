package entities

import "savegrid.ai/internal/sim/ledger"

// Roster is the set of live entities bound to a ledger set, in deterministic order.
type Roster struct {
	Hospitals  []*Hospital
	Ambulances []*Ambulance
	Depot      *Depot
	Authority  *Authority

	byID map[string]Entity
}

func NewRoster(s *ledger.Set) *Roster {
	r := &Roster{
		Depot:     NewDepot(s.Depot),
		Authority: NewAuthority(s.Authority),
		byID:      map[string]Entity{},
	}
	for _, h := range s.Hospitals {
		e := NewHospital(h)
		r.Hospitals = append(r.Hospitals, e)
		r.byID[e.ID()] = e
	}
	for _, u := range s.Units {
		e := NewAmbulance(u)
		r.Ambulances = append(r.Ambulances, e)
		r.byID[e.ID()] = e
	}
	r.byID[r.Depot.ID()] = r.Depot
	r.byID[r.Authority.ID()] = r.Authority
	return r
}

// All returns hospitals, ambulances, depot then authority.
func (r *Roster) All() []Entity {
	out := make([]Entity, 0, len(r.Hospitals)+len(r.Ambulances)+2)
	for _, h := range r.Hospitals {
		out = append(out, h)
	}
	for _, a := range r.Ambulances {
		out = append(out, a)
	}
	return append(out, r.Depot, r.Authority)
}

func (r *Roster) Lookup(id string) (Entity, bool) {
	e, ok := r.byID[id]
	return e, ok
}

func (r *Roster) Hospital(id string) *Hospital {
	h, _ := r.byID[id].(*Hospital)
	return h
}

func (r *Roster) Ambulance(id string) *Ambulance {
	a, _ := r.byID[id].(*Ambulance)
	return a
}

// HospitalSnapshots reports every hospital in id order.
func (r *Roster) HospitalSnapshots() []ledger.Snapshot {
	out := make([]ledger.Snapshot, len(r.Hospitals))
	for i, h := range r.Hospitals {
		out[i] = h.Snapshot()
	}
	return out
}

func (r *Roster) AmbulanceSnapshots() []ledger.Snapshot {
	out := make([]ledger.Snapshot, len(r.Ambulances))
	for i, a := range r.Ambulances {
		out[i] = a.Snapshot()
	}
	return out
}
