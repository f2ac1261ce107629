package tuning

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"savegrid.ai/configs"
	"savegrid.ai/internal/sim/inflow"
	"savegrid.ai/internal/sim/ledger"
	"savegrid.ai/schemas"
)

// Scenario is the starting state of a run: resource holders, disaster zones and the size of
// the opening casualty wave.
type Scenario struct {
	Name              string          `yaml:"name" json:"name"`
	InitialCasualties int             `yaml:"initial_casualties" json:"initial_casualties"`
	Hospitals         []HospitalSpec  `yaml:"hospitals" json:"hospitals"`
	Ambulances        []AmbulanceSpec `yaml:"ambulances" json:"ambulances"`
	Depot             DepotSpec       `yaml:"depot" json:"depot"`
	Authority         AuthoritySpec   `yaml:"authority" json:"authority"`
	Zones             []inflow.Zone   `yaml:"zones" json:"zones"`
}

type HospitalSpec struct {
	ID            string       `yaml:"id" json:"id"`
	Name          string       `yaml:"name" json:"name"`
	Location      ledger.Point `yaml:"location" json:"location"`
	TotalBeds     int          `yaml:"total_beds" json:"total_beds"`
	AvailableBeds int          `yaml:"available_beds" json:"available_beds"`
	ICUBeds       int          `yaml:"icu_beds" json:"icu_beds"`
	ICUAvailable  int          `yaml:"icu_available" json:"icu_available"`
	OxygenLiters  float64      `yaml:"oxygen_liters" json:"oxygen_liters"`
	Doctors       int          `yaml:"doctors" json:"doctors"`
	Nurses        int          `yaml:"nurses" json:"nurses"`
	InflowRate    float64      `yaml:"inflow_rate" json:"inflow_rate"`
}

type AmbulanceSpec struct {
	ID       string       `yaml:"id" json:"id"`
	Location ledger.Point `yaml:"location" json:"location"`
	Capacity int          `yaml:"capacity" json:"capacity"`
	Fuel     float64      `yaml:"fuel" json:"fuel"`
}

type DepotSpec struct {
	ID        string         `yaml:"id" json:"id"`
	Name      string         `yaml:"name" json:"name"`
	Location  ledger.Point   `yaml:"location" json:"location"`
	Vehicles  int            `yaml:"vehicles" json:"vehicles"`
	Inventory map[string]int `yaml:"inventory" json:"inventory"`
}

type AuthoritySpec struct {
	ID       string          `yaml:"id" json:"id"`
	Severity float64         `yaml:"severity" json:"severity"`
	Fairness float64         `yaml:"fairness" json:"fairness"`
	Rules    map[string]bool `yaml:"rules" json:"rules"`
}

// LoadScenario reads and validates a scenario file. An empty path loads the embedded
// default scenario.
func LoadScenario(path string) (Scenario, error) {
	raw := configs.Scenario
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Scenario{}, err
		}
		raw = b
	}
	sc, err := ParseScenario(raw)
	if err != nil {
		return sc, fmt.Errorf("scenario.yaml: %w", err)
	}
	return sc, nil
}

// ParseScenario validates raw YAML against scenario.schema.json, decodes it and runs the
// semantic checks.
func ParseScenario(raw []byte) (Scenario, error) {
	var sc Scenario
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return sc, err
	}
	// Round-trip through JSON so the validator sees JSON types only.
	j, err := json.Marshal(doc)
	if err != nil {
		return sc, err
	}
	var generic any
	if err := json.Unmarshal(j, &generic); err != nil {
		return sc, err
	}
	schema, err := schemas.Compile("scenario.schema.json")
	if err != nil {
		return sc, err
	}
	if err := schema.Validate(generic); err != nil {
		return sc, err
	}
	if err := yaml.Unmarshal(raw, &sc); err != nil {
		return sc, err
	}
	if err := sc.Validate(); err != nil {
		return sc, err
	}
	return sc, nil
}

// Validate checks what the schema cannot: consistent capacities, unique ids, zones.
func (sc Scenario) Validate() error {
	if sc.InitialCasualties < 0 {
		return fmt.Errorf("initial_casualties must be >= 0")
	}
	for i, z := range sc.Zones {
		if z.Radius <= 0 {
			return fmt.Errorf("zones[%d]: radius must be > 0", i)
		}
	}
	_, err := sc.ToLedgers()
	return err
}

// ToLedgers builds a fresh, validated ledger set. Every call returns independent ledgers.
func (sc Scenario) ToLedgers() (*ledger.Set, error) {
	hs := make([]*ledger.ResourcePool, 0, len(sc.Hospitals))
	for _, h := range sc.Hospitals {
		p := ledger.NewResourcePool(h.ID, h.Name, h.Location, h.TotalBeds, h.AvailableBeds, h.ICUBeds, h.ICUAvailable, h.OxygenLiters)
		p.Doctors = h.Doctors
		p.Nurses = h.Nurses
		p.InflowRate = h.InflowRate
		hs = append(hs, p)
	}
	us := make([]*ledger.TransportUnit, 0, len(sc.Ambulances))
	for _, a := range sc.Ambulances {
		us = append(us, &ledger.TransportUnit{
			ID:       a.ID,
			Location: a.Location,
			Capacity: a.Capacity,
			Fuel:     a.Fuel,
			Status:   ledger.UnitIdle,
		})
	}
	d := sc.Depot
	depot := ledger.NewSupplyDepot(d.ID, d.Name, d.Location, d.Inventory, d.Vehicles)
	auth := &ledger.AuthorityState{
		ID:       sc.Authority.ID,
		Severity: sc.Authority.Severity,
		Fairness: sc.Authority.Fairness,
		Rules:    map[string]bool{},
	}
	for k, v := range sc.Authority.Rules {
		auth.Rules[k] = v
	}
	return ledger.NewSet(hs, us, depot, auth)
}
