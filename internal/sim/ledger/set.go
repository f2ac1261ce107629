package ledger

import (
	"fmt"
	"sort"
)

// Set is the collection of all ledgers owned by a session. Slices are kept sorted by id.
type Set struct {
	Hospitals []*ResourcePool  `json:"hospitals"`
	Units     []*TransportUnit `json:"units"`
	Depot     *SupplyDepot     `json:"depot"`
	Authority *AuthorityState  `json:"authority"`
}

// NewSet validates and indexes the ledgers. Any inconsistency is fatal.
func NewSet(hospitals []*ResourcePool, units []*TransportUnit, depot *SupplyDepot, authority *AuthorityState) (*Set, error) {
	s := &Set{
		Hospitals: append([]*ResourcePool(nil), hospitals...),
		Units:     append([]*TransportUnit(nil), units...),
		Depot:     depot,
		Authority: authority,
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	s.sort()
	return s, nil
}

func (s *Set) Validate() error {
	if len(s.Hospitals) == 0 {
		return fmt.Errorf("%w: no hospitals", ErrEmptyScenario)
	}
	if len(s.Units) == 0 {
		return fmt.Errorf("%w: no transport units", ErrEmptyScenario)
	}
	if s.Depot == nil {
		return fmt.Errorf("%w: no supply depot", ErrEmptyScenario)
	}
	if s.Authority == nil {
		return fmt.Errorf("%w: no authority", ErrEmptyScenario)
	}
	seen := map[string]struct{}{}
	claim := func(id string) error {
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateID, id)
		}
		seen[id] = struct{}{}
		return nil
	}
	for _, h := range s.Hospitals {
		if err := h.Validate(); err != nil {
			return err
		}
		if err := claim(h.ID); err != nil {
			return err
		}
	}
	for _, u := range s.Units {
		if err := u.Validate(); err != nil {
			return err
		}
		if err := claim(u.ID); err != nil {
			return err
		}
	}
	if err := s.Depot.Validate(); err != nil {
		return err
	}
	if err := claim(s.Depot.ID); err != nil {
		return err
	}
	if s.Authority.ID == "" {
		return fmt.Errorf("authority: %w", ErrMissingID)
	}
	if err := claim(s.Authority.ID); err != nil {
		return err
	}
	if s.Authority.Severity < 0 || s.Authority.Severity > 1 {
		return fmt.Errorf("authority %s: severity %.2f outside [0,1]", s.Authority.ID, s.Authority.Severity)
	}
	return nil
}

func (s *Set) sort() {
	sort.Slice(s.Hospitals, func(i, j int) bool { return s.Hospitals[i].ID < s.Hospitals[j].ID })
	sort.Slice(s.Units, func(i, j int) bool { return s.Units[i].ID < s.Units[j].ID })
}

func (s *Set) Hospital(id string) *ResourcePool {
	i := sort.Search(len(s.Hospitals), func(i int) bool { return s.Hospitals[i].ID >= id })
	if i < len(s.Hospitals) && s.Hospitals[i].ID == id {
		return s.Hospitals[i]
	}
	return nil
}

func (s *Set) Unit(id string) *TransportUnit {
	i := sort.Search(len(s.Units), func(i int) bool { return s.Units[i].ID >= id })
	if i < len(s.Units) && s.Units[i].ID == id {
		return s.Units[i]
	}
	return nil
}

// Clone deep-copies every ledger.
func (s *Set) Clone() *Set {
	if s == nil {
		return nil
	}
	c := &Set{
		Hospitals: make([]*ResourcePool, len(s.Hospitals)),
		Units:     make([]*TransportUnit, len(s.Units)),
		Depot:     s.Depot.Clone(),
		Authority: s.Authority.Clone(),
	}
	for i, h := range s.Hospitals {
		c.Hospitals[i] = h.Clone()
	}
	for i, u := range s.Units {
		c.Units[i] = u.Clone()
	}
	return c
}

// FreeCapacity sums available beds and ICU slots across hospitals.
func (s *Set) FreeCapacity() (beds, icu int) {
	for _, h := range s.Hospitals {
		beds += h.AvailableBeds
		icu += h.ICUAvailable
	}
	return beds, icu
}

// UtilizationSpread is max minus min bed utilization.
func (s *Set) UtilizationSpread() (spread, hi, lo float64) {
	if len(s.Hospitals) == 0 {
		return 0, 0, 0
	}
	hi, lo = -1, 2
	for _, h := range s.Hospitals {
		u := h.BedUtilization()
		hi = max(hi, u)
		lo = min(lo, u)
	}
	return hi - lo, hi, lo
}
