package tuning

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"savegrid.ai/internal/sim/ledger"
)

func TestDefaults(t *testing.T) {
	d := Defaults()
	if d.InflowEveryTicks != 3 || d.BaseInflowRate != 2.0 || d.DecisionRing != 200 {
		t.Fatalf("defaults=%+v", d)
	}
	if d.Negotiation.MatchBatch != 10 || d.Negotiation.SupplyBatch != 5 {
		t.Fatalf("negotiation=%+v", d.Negotiation)
	}
	if d.Objective.UnservedCritical != 10 || d.Objective.Fairness != 3 {
		t.Fatalf("objective=%+v", d.Objective)
	}
	if err := d.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func TestLoad_OverlaysDefaults(t *testing.T) {
	p := filepath.Join(t.TempDir(), "tuning.yaml")
	require.NoError(t, os.WriteFile(p, []byte("seed: 7\nnegotiation:\n  match_batch: 4\n"), 0o644))

	tu, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), tu.Seed)
	assert.Equal(t, 4, tu.Negotiation.MatchBatch)
	assert.Equal(t, 5, tu.Negotiation.SupplyBatch)
	assert.Equal(t, 0.4, tu.Negotiation.DistanceWeight)
}

func TestLoad_Invalid(t *testing.T) {
	p := filepath.Join(t.TempDir(), "tuning.yaml")
	require.NoError(t, os.WriteFile(p, []byte("objective:\n  overload: -1\n"), 0o644))
	_, err := Load(p)
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "tuning.yaml: "), err.Error())
}

func TestLoadScenario_Default(t *testing.T) {
	sc, err := LoadScenario("")
	require.NoError(t, err)
	assert.Equal(t, 120, sc.InitialCasualties)
	require.Len(t, sc.Hospitals, 3)
	require.Len(t, sc.Ambulances, 5)
	require.Len(t, sc.Zones, 3)

	set, err := sc.ToLedgers()
	require.NoError(t, err)
	beds, icu := set.FreeCapacity()
	assert.Equal(t, 75, beds)
	assert.Equal(t, 7, icu)
	assert.Equal(t, 4, set.Depot.VehiclesAvailable)
	assert.Equal(t, 20000, set.Depot.Inventory["oxygen"])
	assert.True(t, set.Authority.Rules["critical_patients_first"])

	// ToLedgers never shares state between calls.
	again, err := sc.ToLedgers()
	require.NoError(t, err)
	set.Hospitals[0].AvailableBeds = 0
	assert.Equal(t, 10, again.Hospitals[0].AvailableBeds)
}

const minimal = `
name: tiny
hospitals:
  - {id: h1, location: {x: 0, y: 0}, total_beds: 10, available_beds: 5, icu_beds: 2, icu_available: 1, oxygen_liters: 100}
ambulances:
  - {id: U1, location: {x: 1, y: 1}, capacity: 2, fuel: 0.5}
depot: {id: d1, location: {x: 5, y: 5}, vehicles: 1, inventory: {oxygen: 10}}
authority: {id: gov, severity: 0.5}
`

func TestParseScenario_SchemaAndSemantics(t *testing.T) {
	_, err := ParseScenario([]byte(minimal))
	require.NoError(t, err)

	cases := map[string]string{
		"fuel out of range":  strings.Replace(minimal, "fuel: 0.5", "fuel: 1.5", 1),
		"unknown field":      strings.Replace(minimal, "name: tiny", "name: tiny\ncolour: red", 1),
		"missing hospitals":  strings.Replace(minimal, "hospitals:\n  - {id: h1, location: {x: 0, y: 0}, total_beds: 10, available_beds: 5, icu_beds: 2, icu_available: 1, oxygen_liters: 100}\n", "", 1),
		"negative inventory": strings.Replace(minimal, "oxygen: 10}", "oxygen: -1}", 1),
	}
	for name, raw := range cases {
		if _, err := ParseScenario([]byte(raw)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}

	over := strings.Replace(minimal, "available_beds: 5", "available_beds: 11", 1)
	_, err = ParseScenario([]byte(over))
	if !errors.Is(err, ledger.ErrInvalidCapacity) {
		t.Fatalf("available > total: got %v", err)
	}

	dup := strings.Replace(minimal, "id: U1", "id: h1", 1)
	_, err = ParseScenario([]byte(dup))
	if !errors.Is(err, ledger.ErrDuplicateID) {
		t.Fatalf("duplicate id: got %v", err)
	}
}

func TestScenarioValidate_AuthorityIDCollision(t *testing.T) {
	sc, err := LoadScenario("")
	require.NoError(t, err)
	sc.Authority.ID = sc.Hospitals[0].ID
	if err := sc.Validate(); !errors.Is(err, ledger.ErrDuplicateID) {
		t.Fatalf("authority reusing %s: got %v", sc.Hospitals[0].ID, err)
	}
}

func TestLoadScenario_WrapsErrors(t *testing.T) {
	p := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(p, []byte("name: [unterminated"), 0o644))
	_, err := LoadScenario(p)
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "scenario.yaml: "), err.Error())
}
