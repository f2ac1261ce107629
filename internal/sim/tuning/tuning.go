package tuning

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"savegrid.ai/configs"
	"savegrid.ai/internal/protocol"
	"savegrid.ai/internal/sim/negotiation"
	"savegrid.ai/internal/sim/objective"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`
	Seed            uint64 `yaml:"seed"`

	TickRateHz   int    `yaml:"tick_rate_hz"`
	AutoStepSpec string `yaml:"auto_step_spec"`

	InflowEveryTicks int     `yaml:"inflow_every_ticks"`
	BaseInflowRate   float64 `yaml:"base_inflow_rate"`

	SnapshotEveryTicks int `yaml:"snapshot_every_ticks"`
	DecisionRing       int `yaml:"decision_ring"`
	HistoryTicks       int `yaml:"history_ticks"`

	Negotiation negotiation.Config `yaml:"negotiation"`
	Objective   objective.Weights  `yaml:"objective"`
}

// Defaults is the embedded configs/tuning.yaml, normalized.
func Defaults() Tuning {
	t := base()
	_ = yaml.Unmarshal(configs.Tuning, &t)
	t.Normalize()
	return t
}

func base() Tuning {
	return Tuning{
		ProtocolVersion:    protocol.Version,
		Seed:               42,
		TickRateHz:         1,
		InflowEveryTicks:   3,
		BaseInflowRate:     2.0,
		SnapshotEveryTicks: 50,
		DecisionRing:       200,
		HistoryTicks:       1000,
		Negotiation:        negotiation.DefaultConfig(),
		Objective:          objective.DefaultWeights(),
	}
}

// Load reads a tuning file over Defaults. An empty path returns Defaults.
func Load(path string) (Tuning, error) {
	t := Defaults()
	if strings.TrimSpace(path) == "" {
		return t, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

// Normalize fills zero values with defaults.
func (t *Tuning) Normalize() {
	b := base()
	if t.ProtocolVersion == "" {
		t.ProtocolVersion = b.ProtocolVersion
	}
	if t.TickRateHz <= 0 {
		t.TickRateHz = b.TickRateHz
	}
	if t.InflowEveryTicks <= 0 {
		t.InflowEveryTicks = b.InflowEveryTicks
	}
	if t.SnapshotEveryTicks <= 0 {
		t.SnapshotEveryTicks = b.SnapshotEveryTicks
	}
	if t.DecisionRing <= 0 {
		t.DecisionRing = b.DecisionRing
	}
	if t.HistoryTicks <= 0 {
		t.HistoryTicks = b.HistoryTicks
	}
	t.AutoStepSpec = strings.TrimSpace(t.AutoStepSpec)
	t.Negotiation = negotiation.New(t.Negotiation).Config()
}

func (t Tuning) Validate() error {
	if t.ProtocolVersion != protocol.Version {
		return fmt.Errorf("protocol_version %q not supported (want %q)", t.ProtocolVersion, protocol.Version)
	}
	if t.BaseInflowRate < 0 {
		return fmt.Errorf("base_inflow_rate must be >= 0")
	}
	n := t.Negotiation
	if n.DistanceWeight < 0 || n.CapacityWeight < 0 || n.StressWeight < 0 {
		return fmt.Errorf("negotiation weights must be >= 0")
	}
	if n.MinFuel < 0 || n.MinFuel > 1 {
		return fmt.Errorf("negotiation.min_fuel must be in [0,1]")
	}
	w := t.Objective
	if w.UnservedCritical < 0 || w.ResponseTime < 0 || w.Overload < 0 || w.Fairness < 0 {
		return fmt.Errorf("objective weights must be >= 0")
	}
	return nil
}
