package orchestrator

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"math"
	"sort"
)

type hashWriter struct {
	h   hash.Hash
	tmp [8]byte
}

func (w *hashWriter) u64(v uint64) {
	binary.LittleEndian.PutUint64(w.tmp[:], v)
	w.h.Write(w.tmp[:])
}

func (w *hashWriter) i64(v int) { w.u64(uint64(int64(v))) }

func (w *hashWriter) f64(v float64) { w.u64(math.Float64bits(v)) }

func (w *hashWriter) str(s string) {
	w.u64(uint64(len(s)))
	w.h.Write([]byte(s))
}

func (w *hashWriter) boolean(b bool) {
	if b {
		w.h.Write([]byte{1})
	} else {
		w.h.Write([]byte{0})
	}
}

func (w *hashWriter) intMap(m map[string]int) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	w.u64(uint64(len(keys)))
	for _, k := range keys {
		w.str(k)
		w.i64(m[k])
	}
}

// digest hashes the canonical session state: tick, seed, RNG state, every ledger and the
// patient set. Two sessions with equal digests continue identically.
func (s *Session) digest() string {
	w := &hashWriter{h: sha256.New()}
	w.u64(s.tick)
	w.u64(s.cfg.Seed)
	if rng, err := s.gen.MarshalBinary(); err == nil {
		w.h.Write(rng)
	}

	for _, h := range s.set.Hospitals {
		w.str(h.ID)
		w.i64(h.TotalBeds)
		w.i64(h.AvailableBeds)
		w.i64(h.ICUBeds)
		w.i64(h.ICUAvailable)
		w.f64(h.OxygenLiters)
		w.u64(uint64(len(h.Admitted)))
		for _, a := range h.Admitted {
			w.str(a.PatientID)
			w.i64(int(a.Acuity))
			w.str(string(a.Unit))
			w.u64(a.AdmittedTick)
			w.boolean(a.Arrived)
		}
		w.intMap(h.Supplies)
	}

	for _, u := range s.set.Units {
		w.str(u.ID)
		w.i64(u.Load)
		w.f64(u.Fuel)
		w.f64(u.Location.X)
		w.f64(u.Location.Y)
		w.str(string(u.Status))
		w.i64(u.Delivered)
		if m := u.Mission; m != nil {
			w.str(m.PatientID)
			w.str(m.HospitalID)
			w.boolean(m.PickedUp)
		} else {
			w.str("")
		}
	}

	d := s.set.Depot
	w.str(d.ID)
	w.intMap(d.Inventory)
	w.i64(d.VehiclesAvailable)
	w.i64(d.Completed)
	w.u64(uint64(len(d.InTransit)))
	for _, dl := range d.InTransit {
		w.str(dl.ID)
		w.str(dl.Kind)
		w.i64(dl.Quantity)
		w.str(dl.DestinationID)
		w.f64(dl.ETAMinutes)
	}

	a := s.set.Authority
	w.str(a.ID)
	w.f64(a.Severity)
	for _, r := range a.ActiveRules() {
		w.str(r)
	}

	w.u64(uint64(len(s.patients)))
	for _, p := range s.patients {
		w.str(p.ID)
		w.i64(int(p.Acuity))
		w.str(string(p.Status))
		w.str(p.HospitalID)
		w.str(p.UnitID)
	}
	return hex.EncodeToString(w.h.Sum(nil))
}
