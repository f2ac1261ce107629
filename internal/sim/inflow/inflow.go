// Package inflow generates seeded casualties: an initial wave around disaster zones and a
// per-tick stream scaled by authority severity.
package inflow

import (
	"fmt"
	"math"
	"math/rand/v2"

	"savegrid.ai/internal/sim/ledger"
)

// Zone is a disaster area casualties cluster around.
type Zone struct {
	Center   ledger.Point `json:"center" yaml:"center"`
	Radius   float64      `json:"radius" yaml:"radius"`
	Severity string       `json:"severity" yaml:"severity"`
}

const (
	DefaultBaseRate = 2.0
	DefaultInitial  = 120

	areaMin = 10.0
	areaMax = 90.0
)

// Generator is deterministic for a given seed. Its PCG state is part of session snapshots.
type Generator struct {
	src   *rand.PCG
	rng   *rand.Rand
	zones []Zone
}

func New(seed uint64, zones []Zone) *Generator {
	src := rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
	return &Generator{
		src:   src,
		rng:   rand.New(src),
		zones: append([]Zone(nil), zones...),
	}
}

// Initial generates the opening wave, each casualty placed uniformly in a random zone's disc.
func (g *Generator) Initial(n int) []ledger.Patient {
	weights := [4]float64{0.15, 0.30, 0.35, 0.20}
	out := make([]ledger.Patient, 0, n)
	for i := 0; i < n; i++ {
		p := ledger.Patient{
			ID:     fmt.Sprintf("patient_%03d", i),
			Status: ledger.PatientWaiting,
		}
		if len(g.zones) > 0 {
			z := g.zones[g.rng.IntN(len(g.zones))]
			angle := g.rng.Float64() * 2 * math.Pi
			r := g.rng.Float64() * z.Radius
			p.Location = ledger.Point{X: z.Center.X + r*math.Cos(angle), Y: z.Center.Y + r*math.Sin(angle)}
			p.Zone = z.Severity
		} else {
			p.Location = g.uniformPoint()
		}
		p.Acuity = g.acuity(weights)
		out = append(out, p)
	}
	return out
}

// Tick generates max(0, int(N(rate·severity, rate·0.3))) casualties at uniform locations.
// Severity raises only the share of acuity-1 arrivals.
func (g *Generator) Tick(tick uint64, rate, severity float64) []ledger.Patient {
	n := int(g.rng.NormFloat64()*rate*0.3 + rate*severity)
	if n <= 0 {
		return nil
	}
	weights := [4]float64{0.10 * severity, 0.25, 0.40, 0.25}
	out := make([]ledger.Patient, 0, n)
	for i := 0; i < n; i++ {
		a := g.acuity(weights)
		loc := g.uniformPoint()
		out = append(out, ledger.Patient{
			ID:          fmt.Sprintf("patient_tick%d_%02d", tick, i),
			Acuity:      a,
			Location:    loc,
			Zone:        g.zoneOf(loc),
			CreatedTick: tick,
			Status:      ledger.PatientWaiting,
		})
	}
	return out
}

func (g *Generator) uniformPoint() ledger.Point {
	return ledger.Point{
		X: areaMin + g.rng.Float64()*(areaMax-areaMin),
		Y: areaMin + g.rng.Float64()*(areaMax-areaMin),
	}
}

// acuity picks 1..4 with the given weights.
func (g *Generator) acuity(w [4]float64) ledger.Acuity {
	total := w[0] + w[1] + w[2] + w[3]
	r := g.rng.Float64() * total
	acc := 0.0
	for i, x := range w {
		acc += x
		if r < acc {
			return ledger.Acuity(i + 1)
		}
	}
	return ledger.AcuityLessUrgent
}

func (g *Generator) zoneOf(p ledger.Point) string {
	for _, z := range g.zones {
		if ledger.Distance(p, z.Center) <= z.Radius {
			return z.Severity
		}
	}
	return ""
}

func (g *Generator) MarshalBinary() ([]byte, error) { return g.src.MarshalBinary() }

func (g *Generator) UnmarshalBinary(b []byte) error {
	if err := g.src.UnmarshalBinary(b); err != nil {
		return fmt.Errorf("inflow: restore rng: %w", err)
	}
	return nil
}
