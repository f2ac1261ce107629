package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"savegrid.ai/internal/persistence/indexdb"
	"savegrid.ai/internal/persistence/snapshot"
	"savegrid.ai/internal/sim/orchestrator"
	"savegrid.ai/internal/sim/tuning"
)

type runtimeIndex interface {
	orchestrator.Indexer
	Close() error
	UpsertConfig(sc tuning.Scenario, tune tuning.Tuning) error
	RecordSnapshot(path string, snap snapshot.SnapshotV1)
	Stats() indexdb.QueueStats
	History(ctx context.Context, sessionID string, limit int) ([]indexdb.StepRow, error)
}

func openRuntimeIndex(dataDir string, disableDB bool) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("SAVEGRID_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		idx, err := indexdb.OpenSQLite(filepath.Join(dataDir, "index", "savegrid.sqlite"))
		if err != nil {
			return nil, err
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unsupported SAVEGRID_INDEX_BACKEND: %s", backend)
	}
}
