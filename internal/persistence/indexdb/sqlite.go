package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"savegrid.ai/internal/persistence/snapshot"
	"savegrid.ai/internal/sim/orchestrator"
	"savegrid.ai/internal/sim/tuning"
)

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropStep     atomic.Uint64
	dropSnapshot atomic.Uint64
	writeFail    atomic.Uint64
}

type reqKind int

const (
	reqStep reqKind = iota + 1
	reqSnapshot
)

type req struct {
	kind reqKind

	step     orchestrator.StepReport
	snapshot snapshotRow
}

type snapshotRow struct {
	SessionID string
	Tick      uint64
	Path      string
	Seed      uint64
	Hospitals int
	Units     int
	Patients  int
	Alerts    int
}

// QueueStats reports the writer queue and how many records were dropped because it was full.
type QueueStats struct {
	QueueDepth        int    `json:"queue_depth"`
	QueueCapacity     int    `json:"queue_capacity"`
	DropStepTotal     uint64 `json:"drop_step_total"`
	DropSnapshotTotal uint64 `json:"drop_snapshot_total"`
	WriteFailTotal    uint64 `json:"write_fail_total"`
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 8192),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads.
	// NORMAL is a decent durability/perf tradeoff for a secondary index.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS configs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS steps (
			session_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			digest TEXT NOT NULL,
			arrivals INTEGER NOT NULL,
			committed INTEGER NOT NULL,
			rejected INTEGER NOT NULL,
			warnings INTEGER NOT NULL,
			alerts INTEGER NOT NULL,
			waiting INTEGER NOT NULL,
			cost REAL NOT NULL,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (session_id, tick)
		);`,
		`CREATE TABLE IF NOT EXISTS allocations (
			session_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			kind TEXT NOT NULL,
			subject TEXT NOT NULL,
			target TEXT NOT NULL,
			hospital_id TEXT,
			resource TEXT NOT NULL,
			quantity INTEGER NOT NULL,
			score REAL NOT NULL,
			eta_minutes REAL NOT NULL,
			rationale TEXT NOT NULL,
			PRIMARY KEY (session_id, tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_allocations_subject ON allocations(subject, tick);`,
		`CREATE INDEX IF NOT EXISTS idx_allocations_target ON allocations(target, tick);`,
		`CREATE TABLE IF NOT EXISTS rejections (
			session_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			kind TEXT NOT NULL,
			subject TEXT NOT NULL,
			target TEXT NOT NULL,
			code TEXT NOT NULL,
			reason TEXT NOT NULL,
			PRIMARY KEY (session_id, tick, seq, code)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_rejections_code ON rejections(code, tick);`,
		`CREATE TABLE IF NOT EXISTS alerts (
			session_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			type TEXT NOT NULL,
			severity TEXT NOT NULL,
			message TEXT NOT NULL,
			resolved INTEGER NOT NULL,
			PRIMARY KEY (session_id, tick, seq)
		);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			session_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			path TEXT NOT NULL,
			seed INTEGER NOT NULL,
			hospitals INTEGER NOT NULL,
			units INTEGER NOT NULL,
			patients INTEGER NOT NULL,
			alerts INTEGER NOT NULL,
			PRIMARY KEY (session_id, tick)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// RecordStep queues a step report. It never blocks the tick.
func (s *SQLiteIndex) RecordStep(rep orchestrator.StepReport) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqStep, step: rep}:
	default:
		// Drop if the indexer falls behind; JSONL logs remain the source of truth.
		s.dropStep.Add(1)
	}
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil || s.closed.Load() {
		return
	}
	r := snapshotRow{
		SessionID: snap.Header.SessionID,
		Tick:      snap.Header.Tick,
		Path:      path,
		Seed:      snap.Seed,
		Hospitals: len(snap.Hospitals),
		Units:     len(snap.Units),
		Patients:  len(snap.Patients),
		Alerts:    len(snap.ActiveAlerts),
	}
	select {
	case s.ch <- req{kind: reqSnapshot, snapshot: r}:
	default:
		s.dropSnapshot.Add(1)
	}
}

func (s *SQLiteIndex) Stats() QueueStats {
	if s == nil {
		return QueueStats{}
	}
	return QueueStats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropStepTotal:     s.dropStep.Load(),
		DropSnapshotTotal: s.dropSnapshot.Load(),
		WriteFailTotal:    s.writeFail.Load(),
	}
}

// UpsertConfig stores the scenario and tuning actually applied, keyed by content digest.
func (s *SQLiteIndex) UpsertConfig(sc tuning.Scenario, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	type kv struct {
		name   string
		digest string
		json   []byte
	}
	var rows []kv
	for name, v := range map[string]any{"scenario": sc, "tuning": tune} {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		sum := sha256.Sum256(b)
		rows = append(rows, kv{name: name, digest: hex.EncodeToString(sum[:]), json: b})
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO configs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if _, err := stmt.Exec(r.name, r.digest, string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	// Prepared statements (on db; executed within tx).
	insertStep, _ := s.db.Prepare(`INSERT OR REPLACE INTO steps(session_id,tick,digest,arrivals,committed,rejected,warnings,alerts,waiting,cost,raw_json) VALUES(?,?,?,?,?,?,?,?,?,?,?)`)
	insertAlloc, _ := s.db.Prepare(`INSERT OR REPLACE INTO allocations(session_id,tick,seq,kind,subject,target,hospital_id,resource,quantity,score,eta_minutes,rationale) VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`)
	insertReject, _ := s.db.Prepare(`INSERT OR REPLACE INTO rejections(session_id,tick,seq,kind,subject,target,code,reason) VALUES(?,?,?,?,?,?,?,?)`)
	insertAlert, _ := s.db.Prepare(`INSERT OR REPLACE INTO alerts(session_id,tick,seq,type,severity,message,resolved) VALUES(?,?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(session_id,tick,path,seed,hospitals,units,patients,alerts) VALUES(?,?,?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertStep, insertAlloc, insertReject, insertAlert, insertSnapshot} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 500 * time.Millisecond
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			// If we can't start a tx, we can't do much; sleep a bit.
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			s.writeFail.Add(1)
		}
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		s.writeFail.Add(1)
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) bool {
		if st == nil || tx == nil {
			return false
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return false
		}
		opCount++
		return true
	}

	// An idle open tx would hold the only connection; commit on a timer as well.
	ticker := time.NewTicker(commitMaxWait)
	defer ticker.Stop()

	for {
		var r req
		select {
		case rr, ok := <-s.ch:
			if !ok {
				commit()
				return
			}
			r = rr
		case <-ticker.C:
			if tx != nil && time.Since(lastCommit) >= commitMaxWait {
				commit()
			}
			continue
		}

		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqStep:
			s.writeStep(r.step, exec, insertStep, insertAlloc, insertReject, insertAlert)
		case reqSnapshot:
			sn := r.snapshot
			exec(insertSnapshot, sn.SessionID, int64(sn.Tick), sn.Path, int64(sn.Seed), sn.Hospitals, sn.Units, sn.Patients, sn.Alerts)
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}
}

func (s *SQLiteIndex) writeStep(rep orchestrator.StepReport, exec func(*sql.Stmt, ...any) bool, insertStep, insertAlloc, insertReject, insertAlert *sql.Stmt) {
	raw, _ := json.Marshal(rep.Message())
	tick := int64(rep.Tick)
	if !exec(insertStep,
		rep.SessionID,
		tick,
		rep.Digest,
		rep.Arrivals,
		len(rep.Committed),
		len(rep.Rejected),
		len(rep.Warnings),
		len(rep.Alerts),
		rep.Waiting,
		rep.Objective.Cost,
		string(raw),
	) {
		return
	}
	for _, p := range rep.Committed {
		if !exec(insertAlloc, rep.SessionID, tick, p.Seq, string(p.Kind), p.Subject, p.Target, p.HospitalID, p.Resource, p.Quantity, p.Score, p.ETAMinutes, p.Rationale) {
			return
		}
	}
	for _, rj := range rep.Rejected {
		p := rj.Proposal
		if !exec(insertReject, rep.SessionID, tick, p.Seq, string(p.Kind), p.Subject, p.Target, rj.Code, rj.Reason) {
			return
		}
	}
	for i, a := range rep.Alerts {
		if !exec(insertAlert, rep.SessionID, tick, i, string(a.Type), a.Severity, a.Message, a.Resolved) {
			return
		}
	}
}
