// Package stats keeps the running counters shown on dashboards and in /v1/metrics.
package stats

import (
	"fmt"
	"math"
	"strings"

	"savegrid.ai/internal/sim/ledger"
)

// Overload-prevention band: a hospital between these utilizations was kept below overload.
const (
	PreventedLow  = 0.80
	PreventedHigh = 0.90
)

type Initial struct {
	Tick             uint64 `json:"tick"`
	TotalPatients    int    `json:"total_patients"`
	CriticalPatients int    `json:"critical_patients"`
	TotalBeds        int    `json:"total_beds"`
	AvailableBeds    int    `json:"available_beds"`
	Overloaded       int    `json:"hospitals_overloaded"`
}

type TickPoint struct {
	Tick                 uint64  `json:"tick"`
	AvgResponseMinutes   float64 `json:"avg_response_time"`
	PatientsServed       int     `json:"patients_served"`
	CriticalServed       int     `json:"critical_served"`
	OverloadsPrevented   int     `json:"overloads_prevented"`
	BedUtilization       float64 `json:"bed_utilization"`
	AmbulanceUtilization float64 `json:"ambulance_utilization"`
	Waiting              int     `json:"waiting"`
}

// Tracker is owned by a session and mutated only from the tick goroutine.
type Tracker struct {
	Initial *Initial `json:"initial,omitempty"`

	PatientsReceived   int       `json:"patients_received"`
	CriticalServed     int       `json:"critical_served"`
	ResponseMinutes    []float64 `json:"response_minutes"`
	Deliveries         int       `json:"deliveries"`
	OverloadsPrevented int       `json:"overloads_prevented"`
	Reroutes           int       `json:"reroutes"`
	ShortagesAvoided   int       `json:"shortages_avoided"`
	Discharged         int       `json:"discharged"`
	Rejections         int       `json:"rejections"`
	Warnings           int       `json:"warnings"`
	Alerts             int       `json:"alerts"`

	History    []TickPoint `json:"history"`
	MaxHistory int         `json:"-"`
}

func New() *Tracker { return &Tracker{MaxHistory: 1000} }

func (t *Tracker) RecordInitial(tick uint64, s *ledger.Set, patients []ledger.Patient) {
	in := &Initial{Tick: tick, TotalPatients: len(patients)}
	for _, p := range patients {
		if p.Acuity.Critical() {
			in.CriticalPatients++
		}
	}
	for _, h := range s.Hospitals {
		in.TotalBeds += h.TotalBeds
		in.AvailableBeds += h.AvailableBeds
		if h.Overloaded() {
			in.Overloaded++
		}
	}
	t.Initial = in
	t.PatientsReceived = len(patients)
}

func (t *Tracker) RecordArrivals(n int) { t.PatientsReceived += n }

// RecordServed counts a committed dispatch; critical patients count as lives saved.
func (t *Tracker) RecordServed(a ledger.Acuity, responseMinutes float64) {
	t.ResponseMinutes = append(t.ResponseMinutes, responseMinutes)
	if a.Critical() {
		t.CriticalServed++
	}
}

func (t *Tracker) RecordReroute()   { t.Reroutes++ }
func (t *Tracker) RecordDischarge() { t.Discharged++ }

// RecordDelivery counts a completed delivery; deliveries answering a critical request
// count as shortages avoided.
func (t *Tracker) RecordDelivery(critical bool) {
	t.Deliveries++
	if critical {
		t.ShortagesAvoided++
	}
}

func (t *Tracker) RecordValidation(rejected, warnings int) {
	t.Rejections += rejected
	t.Warnings += warnings
}

func (t *Tracker) RecordAlerts(n int) { t.Alerts += n }

// RecordTick appends a history point and counts hospitals inside the prevention band.
func (t *Tracker) RecordTick(tick uint64, s *ledger.Set, waiting int) {
	total, avail := 0, 0
	for _, h := range s.Hospitals {
		total += h.TotalBeds
		avail += h.AvailableBeds
		if u := h.BedUtilization(); u > PreventedLow && u < PreventedHigh {
			t.OverloadsPrevented++
		}
	}
	busy := 0
	for _, u := range s.Units {
		if u.Status != ledger.UnitIdle {
			busy++
		}
	}
	p := TickPoint{
		Tick:               tick,
		AvgResponseMinutes: t.AvgResponse(),
		PatientsServed:     len(t.ResponseMinutes),
		CriticalServed:     t.CriticalServed,
		OverloadsPrevented: t.OverloadsPrevented,
		Waiting:            waiting,
	}
	if total > 0 {
		p.BedUtilization = round1((1 - float64(avail)/float64(total)) * 100)
	}
	if len(s.Units) > 0 {
		p.AmbulanceUtilization = round1(float64(busy) / float64(len(s.Units)) * 100)
	}
	t.History = append(t.History, p)
	if t.MaxHistory > 0 && len(t.History) > t.MaxHistory {
		t.History = append([]TickPoint(nil), t.History[len(t.History)-t.MaxHistory:]...)
	}
}

func (t *Tracker) AvgResponse() float64 {
	if len(t.ResponseMinutes) == 0 {
		return 0
	}
	sum := 0.0
	for _, m := range t.ResponseMinutes {
		sum += m
	}
	return round1(sum / float64(len(t.ResponseMinutes)))
}

type Metrics struct {
	LivesSaved         int     `json:"lives_saved"`
	TotalPatients      int     `json:"total_patients"`
	PatientsServed     int     `json:"patients_served"`
	CriticalServed     int     `json:"critical_patients_served"`
	PatientsWaiting    int     `json:"patients_waiting"`
	AvgResponseMinutes float64 `json:"average_response_time_min"`
	OverloadsPrevented int     `json:"overloads_prevented"`
	Reroutes           int     `json:"reroutes_performed"`
	Deliveries         int     `json:"supply_deliveries"`
	ShortagesAvoided   int     `json:"shortages_avoided"`
	Discharged         int     `json:"discharged"`
	Rejections         int     `json:"rejections"`
	Warnings           int     `json:"warnings"`
	Alerts             int     `json:"alerts"`
}

func (t *Tracker) Current(waiting int) Metrics {
	return Metrics{
		LivesSaved:         t.CriticalServed,
		TotalPatients:      t.PatientsReceived,
		PatientsServed:     len(t.ResponseMinutes),
		CriticalServed:     t.CriticalServed,
		PatientsWaiting:    waiting,
		AvgResponseMinutes: t.AvgResponse(),
		OverloadsPrevented: t.OverloadsPrevented,
		Reroutes:           t.Reroutes,
		Deliveries:         t.Deliveries,
		ShortagesAvoided:   t.ShortagesAvoided,
		Discharged:         t.Discharged,
		Rejections:         t.Rejections,
		Warnings:           t.Warnings,
		Alerts:             t.Alerts,
	}
}

type Improvement struct {
	InitialPatients    int     `json:"initial_patients"`
	PatientsServed     int     `json:"patients_served"`
	HandledPct         float64 `json:"patients_handled_percentage"`
	InitialCritical    int     `json:"initial_critical"`
	CriticalServed     int     `json:"critical_served"`
	CriticalSavedPct   float64 `json:"critical_saved_percentage"`
	LivesSaved         int     `json:"lives_saved"`
	OverloadsPrevented int     `json:"overloads_prevented"`
	AvgResponseMinutes float64 `json:"average_response_time"`
}

// Improvement compares against the initial state; ok is false before RecordInitial.
func (t *Tracker) Improvement() (Improvement, bool) {
	if t.Initial == nil {
		return Improvement{}, false
	}
	im := Improvement{
		InitialPatients:    t.Initial.TotalPatients,
		PatientsServed:     len(t.ResponseMinutes),
		InitialCritical:    t.Initial.CriticalPatients,
		CriticalServed:     t.CriticalServed,
		LivesSaved:         t.CriticalServed,
		OverloadsPrevented: t.OverloadsPrevented,
		AvgResponseMinutes: t.AvgResponse(),
	}
	if im.InitialPatients > 0 {
		im.HandledPct = round1(float64(im.PatientsServed) / float64(im.InitialPatients) * 100)
	}
	if im.InitialCritical > 0 {
		im.CriticalSavedPct = round1(float64(im.CriticalServed) / float64(im.InitialCritical) * 100)
	}
	return im, true
}

// Summary is a one-line human summary of the run so far.
func (t *Tracker) Summary() string {
	var parts []string
	if t.CriticalServed > 0 {
		parts = append(parts, fmt.Sprintf("%d lives saved by prioritizing critical patients", t.CriticalServed))
	}
	if t.OverloadsPrevented > 0 {
		parts = append(parts, fmt.Sprintf("%d hospital overloads prevented through load balancing", t.OverloadsPrevented))
	}
	if t.Reroutes > 0 {
		parts = append(parts, fmt.Sprintf("%d patients rerouted to better facilities", t.Reroutes))
	}
	if avg := t.AvgResponse(); avg > 0 {
		parts = append(parts, fmt.Sprintf("%.1f min average response time", avg))
	}
	if im, ok := t.Improvement(); ok && im.HandledPct > 0 {
		parts = append(parts, fmt.Sprintf("%.1f%% of patients served", im.HandledPct))
	}
	if len(parts) == 0 {
		return "Simulation in progress..."
	}
	return strings.Join(parts, " | ")
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
