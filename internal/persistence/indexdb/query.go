package indexdb

import (
	"context"
	"fmt"
)

// StepRow is one indexed tick.
type StepRow struct {
	SessionID string  `json:"session_id"`
	Tick      uint64  `json:"tick"`
	Digest    string  `json:"digest"`
	Arrivals  int     `json:"arrivals"`
	Committed int     `json:"committed"`
	Rejected  int     `json:"rejected"`
	Warnings  int     `json:"warnings"`
	Alerts    int     `json:"alerts"`
	Waiting   int     `json:"waiting"`
	Cost      float64 `json:"cost"`
}

// RejectionCount aggregates rejections by reason code.
type RejectionCount struct {
	Code  string `json:"code"`
	Count int    `json:"count"`
}

const maxHistory = 1000

// History returns the latest indexed steps for a session, newest first. An empty sessionID
// matches every session.
func (s *SQLiteIndex) History(ctx context.Context, sessionID string, limit int) ([]StepRow, error) {
	if s == nil {
		return nil, fmt.Errorf("index not open")
	}
	if limit <= 0 || limit > maxHistory {
		limit = maxHistory
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, tick, digest, arrivals, committed, rejected, warnings, alerts, waiting, cost
		FROM steps
		WHERE (? = '' OR session_id = ?)
		ORDER BY tick DESC, session_id
		LIMIT ?`, sessionID, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []StepRow{}
	for rows.Next() {
		var r StepRow
		var tick int64
		if err := rows.Scan(&r.SessionID, &tick, &r.Digest, &r.Arrivals, &r.Committed, &r.Rejected, &r.Warnings, &r.Alerts, &r.Waiting, &r.Cost); err != nil {
			return nil, err
		}
		r.Tick = uint64(tick)
		out = append(out, r)
	}
	return out, rows.Err()
}

// RejectionsByCode counts rejections per reason code for a session.
func (s *SQLiteIndex) RejectionsByCode(ctx context.Context, sessionID string) ([]RejectionCount, error) {
	if s == nil {
		return nil, fmt.Errorf("index not open")
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT code, COUNT(*) FROM rejections
		WHERE (? = '' OR session_id = ?)
		GROUP BY code ORDER BY code`, sessionID, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []RejectionCount{}
	for rows.Next() {
		var r RejectionCount
		if err := rows.Scan(&r.Code, &r.Count); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
