package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"savegrid.ai/internal/persistence/snapshot"
	"savegrid.ai/internal/sim/ledger"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "inspect":
			inspectCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "step", "reset":
			simulateCmd(os.Args[1], os.Args[2:])
			return
		case "policy":
			policyCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

// listCmd prints one line per snapshot in the data dir, oldest first.
func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	paths, err := snapshotPaths(filepath.Join(*dataDir, "snapshots"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, p := range paths {
		h, err := snapshot.ReadHeader(p)
		if err != nil {
			fmt.Printf("%s\t(unreadable: %v)\n", filepath.Base(p), err)
			continue
		}
		fmt.Printf("%s\tsession=%s scenario=%s tick=%d\n", filepath.Base(p), h.SessionID, h.Scenario, h.Tick)
	}
}

func inspectCmd(args []string) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	snapPath := fs.String("snapshot", "", "snapshot path (optional; defaults to latest)")
	_ = fs.Parse(args)

	path := strings.TrimSpace(*snapPath)
	if path == "" {
		paths, _ := snapshotPaths(filepath.Join(*dataDir, "snapshots"))
		if len(paths) == 0 {
			fmt.Fprintln(os.Stderr, "no snapshot found; provide -snapshot or run server until it writes one")
			os.Exit(2)
		}
		path = paths[len(paths)-1]
	}
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}

	type hospitalRow struct {
		ID           string  `json:"id"`
		FreeBeds     int     `json:"free_beds"`
		FreeICU      int     `json:"free_icu"`
		OxygenLiters float64 `json:"oxygen_liters"`
		Admitted     int     `json:"admitted"`
	}
	hs := make([]hospitalRow, 0, len(snap.Hospitals))
	for _, h := range snap.Hospitals {
		hs = append(hs, hospitalRow{ID: h.ID, FreeBeds: h.AvailableBeds, FreeICU: h.ICUAvailable, OxygenLiters: h.OxygenLiters, Admitted: len(h.Admitted)})
	}
	waiting := 0
	for _, p := range snap.Patients {
		if p.Status == ledger.PatientWaiting {
			waiting++
		}
	}
	printJSON(map[string]any{
		"path":          path,
		"header":        snap.Header,
		"seed":          snap.Seed,
		"severity":      snap.Authority.Severity,
		"rules":         snap.Authority.Rules,
		"patients":      len(snap.Patients),
		"waiting":       waiting,
		"hospitals":     hs,
		"units":         len(snap.Units),
		"inventory":     snap.Depot.Inventory,
		"active_alerts": len(snap.ActiveAlerts),
	})
}

func snapshotPaths(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	type entry struct {
		tick uint64
		path string
	}
	var out []entry
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		tick, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		out = append(out, entry{tick: tick, path: filepath.Join(dir, name)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].tick < out[j].tick })
	paths := make([]string, 0, len(out))
	for _, e := range out {
		paths = append(paths, e.path)
	}
	return paths, nil
}
