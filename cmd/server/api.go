package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"savegrid.ai/internal/persistence/indexdb"
	"savegrid.ai/internal/protocol"
	"savegrid.ai/internal/sim/failure"
	"savegrid.ai/internal/sim/ledger"
	"savegrid.ai/internal/sim/orchestrator"
)

const maxRunTicks = 20

type historySource interface {
	History(ctx context.Context, sessionID string, limit int) ([]indexdb.StepRow, error)
}

type api struct {
	ctrl  *orchestrator.Controller
	index historySource
	log   *log.Logger
}

func (a *api) routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/simulate/start", a.handleStart)
	mux.HandleFunc("POST /v1/simulate/reset", a.handleReset)
	mux.HandleFunc("POST /v1/simulate/step", a.handleStep)
	mux.HandleFunc("POST /v1/simulate/run/{ticks}", a.handleRun)
	mux.HandleFunc("POST /v1/policy", a.handlePolicy)

	mux.HandleFunc("GET /v1/state", a.handleState)
	mux.HandleFunc("GET /v1/metrics", a.handleMetrics)
	mux.HandleFunc("GET /v1/decisions", a.handleDecisions)
	mux.HandleFunc("GET /v1/comparison", a.handleComparison)
	mux.HandleFunc("GET /v1/failures", a.handleFailures)
	mux.HandleFunc("GET /v1/timeline", a.handleTimeline)
	mux.HandleFunc("GET /v1/hospitals", a.handleHospitals)
	mux.HandleFunc("GET /v1/ambulances", a.handleAmbulances)
	mux.HandleFunc("GET /v1/supply", a.handleSupply)
	mux.HandleFunc("GET /v1/authority", a.handleAuthority)
	mux.HandleFunc("GET /v1/history", a.handleHistory)
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func writeError(rw http.ResponseWriter, err error) {
	status, code := http.StatusInternalServerError, protocol.ErrInternal
	switch {
	case errors.Is(err, orchestrator.ErrNotStarted):
		status, code = http.StatusConflict, protocol.ErrSessionBusy
	case errors.Is(err, orchestrator.ErrInvalidOverride):
		status, code = http.StatusBadRequest, protocol.ErrBadRequest
	case errors.Is(err, orchestrator.ErrSessionFailed):
		status = http.StatusServiceUnavailable
	}
	writeJSON(rw, status, map[string]any{"success": false, "code": code, "error": err.Error()})
}

func (a *api) view(rw http.ResponseWriter) (*orchestrator.View, bool) {
	v, err := a.ctrl.View()
	if err != nil {
		writeError(rw, err)
		return nil, false
	}
	return v, true
}

func (a *api) handleStart(rw http.ResponseWriter, r *http.Request) {
	s, err := a.ctrl.Start()
	if err != nil {
		writeError(rw, err)
		return
	}
	v := s.View()
	writeJSON(rw, http.StatusOK, map[string]any{
		"success":    true,
		"message":    "Simulation initialized",
		"session_id": v.SessionID,
		"scenario":   v.Scenario,
		"tick":       v.Tick,
		"patients":   v.Patients,
		"objective":  v.Objective,
	})
}

func (a *api) handleReset(rw http.ResponseWriter, r *http.Request) {
	s, err := a.ctrl.Reset()
	if err != nil {
		writeError(rw, err)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"success": true, "message": "Simulation reset", "session_id": s.ID()})
}

func (a *api) handleStep(rw http.ResponseWriter, r *http.Request) {
	rep, err := a.ctrl.Advance(r.Context())
	if err != nil {
		writeError(rw, err)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"success": true, "step": rep})
}

func (a *api) handleRun(rw http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(r.PathValue("ticks"))
	if err != nil || n < 1 || n > maxRunTicks {
		writeJSON(rw, http.StatusBadRequest, map[string]any{"success": false, "code": protocol.ErrBadRequest, "error": "ticks must be between 1 and 20"})
		return
	}
	reps, err := a.ctrl.Run(r.Context(), n)
	if err != nil {
		writeError(rw, err)
		return
	}
	var final uint64
	if len(reps) > 0 {
		final = reps[len(reps)-1].Tick
	}
	writeJSON(rw, http.StatusOK, map[string]any{
		"success":        true,
		"ticks_executed": len(reps),
		"final_tick":     final,
		"results":        reps,
	})
}

func (a *api) handlePolicy(rw http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, 64*1024))
	if err != nil {
		writeJSON(rw, http.StatusBadRequest, protocol.Ack("", 0, protocol.ErrBadRequest, err.Error()))
		return
	}
	var tick uint64
	if v, err := a.ctrl.View(); err == nil {
		tick = v.Tick
	}
	m, err := protocol.DecodePolicy(raw)
	if err != nil {
		writeJSON(rw, http.StatusBadRequest, protocol.Ack("", tick, protocol.ErrProtoBadRequest, err.Error()))
		return
	}
	if err := a.ctrl.ApplyOverride(orchestrator.OverrideFrom(m)); err != nil {
		status, code := http.StatusBadRequest, protocol.ErrBadRequest
		if errors.Is(err, orchestrator.ErrNotStarted) {
			status, code = http.StatusConflict, protocol.ErrSessionBusy
		}
		writeJSON(rw, status, protocol.Ack(m.ReqID, tick, code, err.Error()))
		return
	}
	if a.log != nil {
		a.log.Printf("policy override %s queued (reason=%q)", m.ReqID, m.Reason)
	}
	writeJSON(rw, http.StatusAccepted, protocol.Ack(m.ReqID, tick, "", "applies at next tick"))
}

func (a *api) handleState(rw http.ResponseWriter, r *http.Request) {
	v, ok := a.view(rw)
	if !ok {
		return
	}
	beds, icu := v.Ledgers.FreeCapacity()
	writeJSON(rw, http.StatusOK, map[string]any{
		"success":        true,
		"session_id":     v.SessionID,
		"scenario":       v.Scenario,
		"tick":           v.Tick,
		"patients":       v.Patients,
		"waiting":        v.Waiting,
		"severity_level": v.SeverityLevel,
		"free_beds":      beds,
		"free_icu":       icu,
		"ledgers":        v.Ledgers,
		"objective":      v.Objective,
		"active_alerts":  nonNil(v.ActiveAlerts),
	})
}

func (a *api) handleMetrics(rw http.ResponseWriter, r *http.Request) {
	v, ok := a.view(rw)
	if !ok {
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{
		"success":     true,
		"current":     v.Metrics,
		"improvement": v.Improvement,
		"summary":     v.Summary,
	})
}

func (a *api) handleDecisions(rw http.ResponseWriter, r *http.Request) {
	v, ok := a.view(rw)
	if !ok {
		return
	}
	limit := queryInt(r, "limit", 20)
	ds := v.LatestDecisions(limit)
	writeJSON(rw, http.StatusOK, map[string]any{"success": true, "count": len(ds), "decisions": ds})
}

func (a *api) handleComparison(rw http.ResponseWriter, r *http.Request) {
	v, ok := a.view(rw)
	if !ok {
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{
		"success":   true,
		"last_tick": v.LastTick,
		"overall":   v.Overall,
	})
}

func (a *api) handleFailures(rw http.ResponseWriter, r *http.Request) {
	v, ok := a.view(rw)
	if !ok {
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{
		"success":       true,
		"healthy":       len(v.ActiveAlerts) == 0,
		"active_alerts": nonNil(v.ActiveAlerts),
		"history":       nonNil(v.AlertHistory),
	})
}

func (a *api) handleTimeline(rw http.ResponseWriter, r *http.Request) {
	v, ok := a.view(rw)
	if !ok {
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"success": true, "timeline": v.History})
}

func (a *api) handleHospitals(rw http.ResponseWriter, r *http.Request) {
	v, ok := a.view(rw)
	if !ok {
		return
	}
	out := make([]hospitalState, 0, len(v.Ledgers.Hospitals))
	for _, h := range v.Ledgers.Hospitals {
		out = append(out, hospitalState{
			ResourcePool:   h,
			BedUtilization: h.BedUtilization(),
			ICUUtilization: h.ICUUtilization(),
			OxygenHours:    h.OxygenHours(),
			OxygenStatus:   h.OxygenStatus(),
			Status:         h.StatusLevel(),
		})
	}
	writeJSON(rw, http.StatusOK, map[string]any{"success": true, "count": len(out), "hospitals": out})
}

func (a *api) handleAmbulances(rw http.ResponseWriter, r *http.Request) {
	v, ok := a.view(rw)
	if !ok {
		return
	}
	out := make([]unitState, 0, len(v.Ledgers.Units))
	for _, u := range v.Ledgers.Units {
		out = append(out, unitState{TransportUnit: u, FuelStatus: u.FuelStatus(), ETAMinutes: u.ETAMinutes()})
	}
	writeJSON(rw, http.StatusOK, map[string]any{"success": true, "count": len(out), "ambulances": out})
}

func (a *api) handleSupply(rw http.ResponseWriter, r *http.Request) {
	v, ok := a.view(rw)
	if !ok {
		return
	}
	d := v.Ledgers.Depot
	stock := map[string]string{}
	for _, k := range d.Kinds() {
		stock[k] = d.StockStatus(k)
	}
	writeJSON(rw, http.StatusOK, map[string]any{"success": true, "depot": d, "stock_status": stock})
}

func (a *api) handleAuthority(rw http.ResponseWriter, r *http.Request) {
	v, ok := a.view(rw)
	if !ok {
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{
		"success":        true,
		"authority":      v.Ledgers.Authority,
		"severity_level": v.SeverityLevel,
		"active_rules":   v.Ledgers.Authority.ActiveRules(),
	})
}

func (a *api) handleHistory(rw http.ResponseWriter, r *http.Request) {
	if a.index == nil {
		writeJSON(rw, http.StatusServiceUnavailable, map[string]any{"success": false, "error": "index disabled"})
		return
	}
	session := r.URL.Query().Get("session")
	if session == "" {
		if v, err := a.ctrl.View(); err == nil {
			session = v.SessionID
		}
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	rows, err := a.index.History(ctx, session, queryInt(r, "limit", 100))
	if err != nil {
		writeError(rw, err)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"success": true, "session_id": session, "count": len(rows), "steps": rows})
}

type hospitalState struct {
	*ledger.ResourcePool
	BedUtilization float64 `json:"bed_utilization"`
	ICUUtilization float64 `json:"icu_utilization"`
	OxygenHours    float64 `json:"oxygen_hours"`
	OxygenStatus   string  `json:"oxygen_status"`
	Status         string  `json:"status"`
}

type unitState struct {
	*ledger.TransportUnit
	FuelStatus string  `json:"fuel_status"`
	ETAMinutes float64 `json:"eta_minutes"`
}

func queryInt(r *http.Request, key string, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func nonNil(as []failure.Alert) []failure.Alert {
	if as == nil {
		return []failure.Alert{}
	}
	return as
}
