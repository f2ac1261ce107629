package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (optional; defaults to <data>/index/savegrid.sqlite)")
	session := fs.String("session", "", "session id filter (optional; defaults to the latest indexed session)")
	limit := fs.Int("limit", 20, "result limit")
	subject := fs.String("subject", "", "patient/unit/hospital id filter (allocations)")
	_ = fs.Parse(args)

	q := "steps"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "index", "savegrid.sqlite")
	}
	db, err := openReadOnly(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	if *limit <= 0 {
		*limit = 20
	}
	sid := strings.TrimSpace(*session)
	if sid == "" && q != "configs" {
		sid, err = latestSession(db)
		if err != nil {
			fmt.Fprintln(os.Stderr, "latest session:", err)
			os.Exit(1)
		}
		if sid == "" {
			fmt.Fprintln(os.Stderr, "no indexed steps found")
			os.Exit(2)
		}
	}

	switch q {
	case "snapshots":
		err = queryRows(db, func(scan func(...any) error) (any, error) {
			var r struct {
				SessionID string `json:"session_id"`
				Tick      int64  `json:"tick"`
				Path      string `json:"path"`
				Seed      int64  `json:"seed"`
				Hospitals int    `json:"hospitals"`
				Units     int    `json:"units"`
				Patients  int    `json:"patients"`
				Alerts    int    `json:"alerts"`
			}
			err := scan(&r.SessionID, &r.Tick, &r.Path, &r.Seed, &r.Hospitals, &r.Units, &r.Patients, &r.Alerts)
			return r, err
		}, `SELECT session_id,tick,path,seed,hospitals,units,patients,alerts FROM snapshots WHERE session_id=? ORDER BY tick DESC LIMIT ?`, sid, *limit)

	case "steps":
		err = queryRows(db, func(scan func(...any) error) (any, error) {
			var r struct {
				Tick      int64   `json:"tick"`
				Arrivals  int     `json:"arrivals"`
				Committed int     `json:"committed"`
				Rejected  int     `json:"rejected"`
				Warnings  int     `json:"warnings"`
				Alerts    int     `json:"alerts"`
				Waiting   int     `json:"waiting"`
				Cost      float64 `json:"cost"`
				Digest    string  `json:"digest"`
			}
			err := scan(&r.Tick, &r.Arrivals, &r.Committed, &r.Rejected, &r.Warnings, &r.Alerts, &r.Waiting, &r.Cost, &r.Digest)
			return r, err
		}, `SELECT tick,arrivals,committed,rejected,warnings,alerts,waiting,cost,digest FROM steps WHERE session_id=? ORDER BY tick DESC LIMIT ?`, sid, *limit)

	case "allocations":
		err = queryRows(db, func(scan func(...any) error) (any, error) {
			var r struct {
				Tick       int64   `json:"tick"`
				Seq        int     `json:"seq"`
				Kind       string  `json:"kind"`
				Subject    string  `json:"subject"`
				Target     string  `json:"target"`
				HospitalID *string `json:"hospital_id,omitempty"`
				Resource   string  `json:"resource"`
				Quantity   int     `json:"quantity"`
				Score      float64 `json:"score"`
				ETAMinutes float64 `json:"eta_minutes"`
				Rationale  string  `json:"rationale"`
			}
			err := scan(&r.Tick, &r.Seq, &r.Kind, &r.Subject, &r.Target, &r.HospitalID, &r.Resource, &r.Quantity, &r.Score, &r.ETAMinutes, &r.Rationale)
			return r, err
		}, `SELECT tick,seq,kind,subject,target,hospital_id,resource,quantity,score,eta_minutes,rationale FROM allocations
			WHERE session_id=? AND (?='' OR subject=? OR target=? OR hospital_id=?)
			ORDER BY tick DESC, seq LIMIT ?`, sid, *subject, *subject, *subject, *subject, *limit)

	case "rejections":
		err = queryRows(db, func(scan func(...any) error) (any, error) {
			var r struct {
				Code  string `json:"code"`
				Count int    `json:"count"`
				Last  int64  `json:"last_tick"`
			}
			err := scan(&r.Code, &r.Count, &r.Last)
			return r, err
		}, `SELECT code,COUNT(*),MAX(tick) FROM rejections WHERE session_id=? GROUP BY code ORDER BY COUNT(*) DESC, code LIMIT ?`, sid, *limit)

	case "alerts":
		err = queryRows(db, func(scan func(...any) error) (any, error) {
			var r struct {
				Tick     int64  `json:"tick"`
				Type     string `json:"type"`
				Severity string `json:"severity"`
				Message  string `json:"message"`
				Resolved bool   `json:"resolved"`
			}
			err := scan(&r.Tick, &r.Type, &r.Severity, &r.Message, &r.Resolved)
			return r, err
		}, `SELECT tick,type,severity,message,resolved FROM alerts WHERE session_id=? ORDER BY tick DESC, seq LIMIT ?`, sid, *limit)

	case "configs":
		err = queryRows(db, func(scan func(...any) error) (any, error) {
			var r struct {
				Name      string `json:"name"`
				Digest    string `json:"digest"`
				UpdatedAt string `json:"updated_at"`
			}
			err := scan(&r.Name, &r.Digest, &r.UpdatedAt)
			return r, err
		}, `SELECT name,digest,updated_at FROM configs ORDER BY name`)

	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q)
		fmt.Fprintln(os.Stderr, "usage: admin db [-data ./data|-db PATH] [-session ID] [-limit N] steps|snapshots|allocations|rejections|alerts|configs")
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(1)
	}
}

func openReadOnly(path string) (*sql.DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	return sql.Open("sqlite", "file:"+path+"?mode=ro")
}

func latestSession(db *sql.DB) (string, error) {
	var sid sql.NullString
	err := db.QueryRow(`SELECT session_id FROM steps ORDER BY rowid DESC LIMIT 1`).Scan(&sid)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return sid.String, nil
}

// queryRows prints one JSON line per row.
func queryRows(db *sql.DB, row func(scan func(...any) error) (any, error), query string, args ...any) error {
	rows, err := db.Query(query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		v, err := row(rows.Scan)
		if err != nil {
			return err
		}
		printJSON(v)
	}
	return rows.Err()
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
