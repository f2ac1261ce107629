package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"savegrid.ai/internal/sim/orchestrator"
)

// SegmentTicks bounds how many ticks one segment file covers before the writer rolls over.
const SegmentTicks = 1000

const segmentTimeLayout = "20060102T150405.000000000Z"

// SessionLog appends JSONL records to zstd segments laid out as
// <baseDir>/<session_id>/<prefix>-<opened at>-t<first tick>.jsonl.zst.
//
// A new segment starts when the session changes or the current one spans SegmentTicks.
// Segment names sort in write order, so a session resumed from an older snapshot simply
// adds a later segment; ReadSteps lets later ticks supersede earlier ones.
type SessionLog struct {
	baseDir string
	prefix  string
	now     func() time.Time

	mu        sync.Mutex
	session   string
	firstTick uint64
	f         *os.File
	enc       *zstd.Encoder
	w         *bufio.Writer
}

func NewSessionLog(baseDir, prefix string) *SessionLog {
	return &SessionLog{baseDir: baseDir, prefix: prefix, now: time.Now}
}

func (l *SessionLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closeLocked()
}

// Write appends v to sessionID's current segment.
func (l *SessionLog) Write(sessionID string, tick uint64, v any) error {
	if sessionID == "" {
		return fmt.Errorf("%s log: empty session id", l.prefix)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.w == nil || sessionID != l.session || tick < l.firstTick || tick-l.firstTick >= SegmentTicks {
		if err := l.openLocked(sessionID, tick); err != nil {
			return err
		}
	}
	if _, err := l.w.Write(b); err != nil {
		return err
	}
	if err := l.w.WriteByte('\n'); err != nil {
		return err
	}
	return l.w.Flush()
}

func (l *SessionLog) openLocked(sessionID string, tick uint64) error {
	if err := l.closeLocked(); err != nil {
		return err
	}
	dir := filepath.Join(l.baseDir, sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	name := fmt.Sprintf("%s-%s-t%d.jsonl.zst", l.prefix, l.now().UTC().Format(segmentTimeLayout), tick)
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	l.f = f
	l.enc = enc
	l.w = bufio.NewWriterSize(enc, 64*1024)
	l.session = sessionID
	l.firstTick = tick
	return nil
}

func (l *SessionLog) closeLocked() error {
	var err error
	if l.w != nil {
		err = l.w.Flush()
	}
	if l.enc != nil {
		if cerr := l.enc.Close(); err == nil {
			err = cerr
		}
	}
	if l.f != nil {
		if cerr := l.f.Close(); err == nil {
			err = cerr
		}
	}
	l.f, l.enc, l.w = nil, nil, nil
	return err
}

// StepLogger writes one entry per tick under <data>/steps/<session_id>/.
type StepLogger struct{ l *SessionLog }

func NewStepLogger(dataDir string) *StepLogger {
	return &StepLogger{l: NewSessionLog(filepath.Join(dataDir, "steps"), "steps")}
}

func (s *StepLogger) WriteStep(e orchestrator.StepLogEntry) error {
	return s.l.Write(e.SessionID, e.Tick, e)
}
func (s *StepLogger) Close() error { return s.l.Close() }

// AlertLogger writes alert activations and resolutions under <data>/alerts/<session_id>/.
type AlertLogger struct{ l *SessionLog }

func NewAlertLogger(dataDir string) *AlertLogger {
	return &AlertLogger{l: NewSessionLog(filepath.Join(dataDir, "alerts"), "alerts")}
}

func (a *AlertLogger) WriteAlert(e orchestrator.AlertLogEntry) error {
	return a.l.Write(e.SessionID, e.Tick, e)
}
func (a *AlertLogger) Close() error { return a.l.Close() }
