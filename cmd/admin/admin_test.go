package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"savegrid.ai/internal/persistence/indexdb"
	"savegrid.ai/internal/sim/orchestrator"
	"savegrid.ai/internal/sim/tuning"
)

func TestSnapshotPaths_SortedByTick(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"100.snap.zst", "9.snap.zst", "50.snap.zst", "x.snap.zst", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	got, err := snapshotPaths(dir)
	require.NoError(t, err)
	require.Equal(t, []string{
		filepath.Join(dir, "9.snap.zst"),
		filepath.Join(dir, "50.snap.zst"),
		filepath.Join(dir, "100.snap.zst"),
	}, got)
}

func TestSplitList(t *testing.T) {
	require.Equal(t, []string{"a", "b"}, splitList(" a, ,b,"))
	require.Nil(t, splitList(""))
}

func TestLatestSession(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.sqlite")
	idx, err := indexdb.OpenSQLite(path)
	require.NoError(t, err)

	sc, err := tuning.LoadScenario("")
	require.NoError(t, err)
	s, err := orchestrator.New(orchestrator.Config{Tuning: tuning.Defaults(), Scenario: sc, Sinks: orchestrator.Sinks{Index: idx}})
	require.NoError(t, err)
	_, err = s.Run(context.Background(), 2)
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	db, err := openReadOnly(path)
	require.NoError(t, err)
	defer db.Close()
	sid, err := latestSession(db)
	require.NoError(t, err)
	require.Equal(t, s.ID(), sid)

	var n int
	require.NoError(t, queryRows(db, func(scan func(...any) error) (any, error) {
		n++
		var tick int64
		return tick, scan(&tick)
	}, `SELECT tick FROM steps WHERE session_id=?`, sid))
	require.Equal(t, 2, n)

	_, err = openReadOnly(filepath.Join(t.TempDir(), "missing.sqlite"))
	require.Error(t, err)
}
