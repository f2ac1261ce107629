// Package objective scores a system state. Scores are reported for before/after comparison
// only; matching never reads them.
package objective

import (
	"fmt"
	"math"
	"strings"

	"savegrid.ai/internal/sim/ledger"
)

type Weights struct {
	UnservedCritical float64 `yaml:"unserved_critical" json:"unserved_critical"`
	ResponseTime     float64 `yaml:"response_time" json:"response_time"`
	Overload         float64 `yaml:"overload" json:"overload"`
	Fairness         float64 `yaml:"fairness" json:"fairness"`
}

func DefaultWeights() Weights {
	return Weights{UnservedCritical: 10, ResponseTime: 2, Overload: 5, Fairness: 3}
}

type Inputs struct {
	UnservedCritical   int     `json:"unserved_critical"`
	AvgResponseMinutes float64 `json:"avg_response_minutes"`
	Overloaded         int     `json:"overloaded_hospitals"`
	LoadVariance       float64 `json:"load_variance"`
}

type Breakdown struct {
	UnservedCritical float64 `json:"unserved_critical_cost"`
	ResponseTime     float64 `json:"response_time_cost"`
	Overload         float64 `json:"overload_cost"`
	Fairness         float64 `json:"fairness_cost"`
}

type Score struct {
	Cost      float64   `json:"total_cost"`
	Breakdown Breakdown `json:"breakdown"`
	Inputs    Inputs    `json:"inputs"`
}

// Evaluate is the weighted cost; lower is better.
func (w Weights) Evaluate(in Inputs) Score {
	b := Breakdown{
		UnservedCritical: float64(in.UnservedCritical) * w.UnservedCritical,
		ResponseTime:     in.AvgResponseMinutes * w.ResponseTime,
		Overload:         float64(in.Overloaded) * w.Overload,
		Fairness:         in.LoadVariance * w.Fairness,
	}
	return Score{
		Cost:      b.UnservedCritical + b.ResponseTime + b.Overload + b.Fairness,
		Breakdown: b,
		Inputs:    in,
	}
}

// Measure derives objective inputs from hospital ledgers, the patient set and the response
// times of dispatches made so far.
func Measure(hospitals []*ledger.ResourcePool, patients []ledger.Patient, responseMinutes []float64) Inputs {
	var in Inputs
	for _, p := range patients {
		if p.Status == ledger.PatientWaiting && p.Acuity.Critical() {
			in.UnservedCritical++
		}
	}
	if len(responseMinutes) > 0 {
		sum := 0.0
		for _, m := range responseMinutes {
			sum += m
		}
		in.AvgResponseMinutes = sum / float64(len(responseMinutes))
	}
	if len(hospitals) == 0 {
		return in
	}
	loads := make([]float64, len(hospitals))
	mean := 0.0
	for i, h := range hospitals {
		loads[i] = h.BedUtilization()
		mean += loads[i]
		if h.Overloaded() {
			in.Overloaded++
		}
	}
	mean /= float64(len(loads))
	for _, l := range loads {
		in.LoadVariance += (l - mean) * (l - mean)
	}
	in.LoadVariance /= float64(len(loads))
	return in
}

type Comparison struct {
	Before        Score    `json:"before"`
	After         Score    `json:"after"`
	Delta         float64  `json:"improvement"`
	DeltaPct      float64  `json:"improvement_percentage"`
	ImprovedTerms []string `json:"improved_metrics"`
	Better        bool     `json:"is_better"`
	Explanation   string   `json:"explanation"`
}

// Compare reports before − after; a positive delta is an improvement.
func Compare(before, after Score) Comparison {
	c := Comparison{
		Before:        before,
		After:         after,
		Delta:         before.Cost - after.Cost,
		ImprovedTerms: []string{},
		Better:        after.Cost < before.Cost,
	}
	if before.Cost > 0 {
		c.DeltaPct = c.Delta / before.Cost * 100
	}
	terms := []struct {
		name          string
		before, after float64
	}{
		{"unserved critical", before.Breakdown.UnservedCritical, after.Breakdown.UnservedCritical},
		{"response time", before.Breakdown.ResponseTime, after.Breakdown.ResponseTime},
		{"overload", before.Breakdown.Overload, after.Breakdown.Overload},
		{"fairness", before.Breakdown.Fairness, after.Breakdown.Fairness},
	}
	for _, t := range terms {
		if t.after < t.before {
			c.ImprovedTerms = append(c.ImprovedTerms, t.name)
		}
	}
	c.Explanation = explain(before.Inputs, after.Inputs, c.Delta)
	return c
}

func explain(before, after Inputs, delta float64) string {
	if delta <= 0 {
		return "No improvement in this round."
	}
	var parts []string
	if d := before.UnservedCritical - after.UnservedCritical; d > 0 {
		parts = append(parts, fmt.Sprintf("%d critical patient(s) now receiving care", d))
	}
	if d := before.AvgResponseMinutes - after.AvgResponseMinutes; d > 0 {
		parts = append(parts, fmt.Sprintf("Response time reduced by %.1f minutes", d))
	}
	if d := before.Overloaded - after.Overloaded; d > 0 {
		parts = append(parts, fmt.Sprintf("%d hospital(s) no longer overloaded", d))
	}
	if len(parts) == 0 {
		return fmt.Sprintf("Overall system efficiency improved by %.1f points.", math.Round(delta*10)/10)
	}
	return strings.Join(parts, ". ") + "."
}
