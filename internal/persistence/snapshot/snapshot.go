package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"savegrid.ai/internal/sim/failure"
	"savegrid.ai/internal/sim/inflow"
	"savegrid.ai/internal/sim/ledger"
	"savegrid.ai/internal/sim/negotiation"
	"savegrid.ai/internal/sim/objective"
	"savegrid.ai/internal/sim/stats"
)

const Version = 1

type Header struct {
	Version   int    `json:"version"`
	SessionID string `json:"session_id"`
	Scenario  string `json:"scenario"`
	Tick      uint64 `json:"tick"`
}

type SnapshotV1 struct {
	Header Header `json:"header"`

	// Operational parameters (captured for deterministic replay/resume).
	Seed               uint64             `json:"seed"`
	TickRateHz         int                `json:"tick_rate_hz"`
	InflowEveryTicks   int                `json:"inflow_every_ticks"`
	BaseInflowRate     float64            `json:"base_inflow_rate"`
	SnapshotEveryTicks int                `json:"snapshot_every_ticks,omitempty"`
	Negotiation        negotiation.Config `json:"negotiation"`
	Objective          objective.Weights  `json:"objective"`
	Zones              []inflow.Zone      `json:"zones,omitempty"`

	// RNG is the marshaled casualty generator state.
	RNG []byte `json:"rng"`

	Hospitals []ledger.ResourcePool  `json:"hospitals"`
	Units     []ledger.TransportUnit `json:"units"`
	Depot     ledger.SupplyDepot     `json:"depot"`
	Authority ledger.AuthorityState  `json:"authority"`
	Patients  []ledger.Patient       `json:"patients"`

	ActiveAlerts []failure.Alert `json:"active_alerts,omitempty"`
	AlertHistory []failure.Alert `json:"alert_history,omitempty"`
	Stats        stats.Tracker   `json:"stats"`
	Initial      objective.Score `json:"initial_objective"`
}

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	defer enc.Close()

	bw := bufio.NewWriterSize(enc, 256*1024)
	defer bw.Flush()

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}

	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	return nil
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// The header line is for tooling; gob also carries it.
	_, _ = br.ReadBytes('\n')

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("snapshot version %d not supported", snap.Header.Version)
	}
	return snap, nil
}

// ReadHeader reads only the JSON header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, err
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("snapshot header: %w", err)
	}
	return h, nil
}

// PathFor is the conventional snapshot file for a tick under dir.
func PathFor(dir string, tick uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%d.snap.zst", tick))
}
