package main

import (
	"fmt"
	"io"
	"net/http"

	"savegrid.ai/internal/sim/orchestrator"
	"savegrid.ai/internal/transport/ws"
)

func metricsHandler(ctrl *orchestrator.Controller, hub *ws.Hub, idx runtimeIndex) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		if v, err := ctrl.View(); err == nil {
			writeSessionMetrics(rw, v)
		}

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP savegrid_ws_clients Current number of connected websocket clients.\n")
		fmt.Fprintf(rw, "# TYPE savegrid_ws_clients gauge\n")
		fmt.Fprintf(rw, "savegrid_ws_clients %d\n", hub.Clients())

		fmt.Fprintf(rw, "# HELP savegrid_ws_messages_total Websocket messages by outcome.\n")
		fmt.Fprintf(rw, "# TYPE savegrid_ws_messages_total counter\n")
		fmt.Fprintf(rw, "savegrid_ws_messages_total{outcome=%q} %d\n", "sent", hub.Sent())
		fmt.Fprintf(rw, "savegrid_ws_messages_total{outcome=%q} %d\n", "dropped", hub.Dropped())

		if idx != nil {
			s := idx.Stats()
			fmt.Fprintf(rw, "# HELP savegrid_index_queue_depth Index writer queue depth.\n")
			fmt.Fprintf(rw, "# TYPE savegrid_index_queue_depth gauge\n")
			fmt.Fprintf(rw, "savegrid_index_queue_depth %d\n", s.QueueDepth)
			fmt.Fprintf(rw, "savegrid_index_queue_capacity %d\n", s.QueueCapacity)

			fmt.Fprintf(rw, "# HELP savegrid_index_dropped_total Index requests dropped because the queue was full.\n")
			fmt.Fprintf(rw, "# TYPE savegrid_index_dropped_total counter\n")
			fmt.Fprintf(rw, "savegrid_index_dropped_total{kind=%q} %d\n", "step", s.DropStepTotal)
			fmt.Fprintf(rw, "savegrid_index_dropped_total{kind=%q} %d\n", "snapshot", s.DropSnapshotTotal)
			fmt.Fprintf(rw, "savegrid_index_write_fail_total %d\n", s.WriteFailTotal)
		}
	}
}

func writeSessionMetrics(w io.Writer, v *orchestrator.View) {
	m := v.Metrics
	fmt.Fprintf(w, "# HELP savegrid_session_tick Current session tick.\n")
	fmt.Fprintf(w, "# TYPE savegrid_session_tick gauge\n")
	fmt.Fprintf(w, "savegrid_session_tick{session=%q} %d\n", v.SessionID, v.Tick)

	fmt.Fprintf(w, "# HELP savegrid_patients Patients by state.\n")
	fmt.Fprintf(w, "# TYPE savegrid_patients gauge\n")
	fmt.Fprintf(w, "savegrid_patients{session=%q,state=%q} %d\n", v.SessionID, "waiting", v.Waiting)
	fmt.Fprintf(w, "savegrid_patients{session=%q,state=%q} %d\n", v.SessionID, "tracked", v.Patients)

	fmt.Fprintf(w, "# HELP savegrid_objective_cost Weighted objective cost (lower is better).\n")
	fmt.Fprintf(w, "# TYPE savegrid_objective_cost gauge\n")
	fmt.Fprintf(w, "savegrid_objective_cost{session=%q} %.6f\n", v.SessionID, v.Objective.Cost)

	fmt.Fprintf(w, "# HELP savegrid_avg_response_minutes Mean dispatch ETA of served patients.\n")
	fmt.Fprintf(w, "# TYPE savegrid_avg_response_minutes gauge\n")
	fmt.Fprintf(w, "savegrid_avg_response_minutes{session=%q} %.3f\n", v.SessionID, m.AvgResponseMinutes)

	fmt.Fprintf(w, "# HELP savegrid_session_total Session counters.\n")
	fmt.Fprintf(w, "# TYPE savegrid_session_total counter\n")
	for _, c := range []struct {
		name string
		n    int
	}{
		{"patients_received", m.TotalPatients},
		{"patients_served", m.PatientsServed},
		{"critical_served", m.CriticalServed},
		{"overloads_prevented", m.OverloadsPrevented},
		{"reroutes", m.Reroutes},
		{"supply_deliveries", m.Deliveries},
		{"shortages_avoided", m.ShortagesAvoided},
		{"discharged", m.Discharged},
		{"rejections", m.Rejections},
		{"warnings", m.Warnings},
		{"alerts", m.Alerts},
	} {
		fmt.Fprintf(w, "savegrid_session_total{session=%q,metric=%q} %d\n", v.SessionID, c.name, c.n)
	}

	fmt.Fprintf(w, "# HELP savegrid_active_alerts Currently active failure alerts.\n")
	fmt.Fprintf(w, "# TYPE savegrid_active_alerts gauge\n")
	fmt.Fprintf(w, "savegrid_active_alerts{session=%q} %d\n", v.SessionID, len(v.ActiveAlerts))
}
