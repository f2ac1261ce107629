package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	persistlog "savegrid.ai/internal/persistence/log"
	"savegrid.ai/internal/persistence/snapshot"
	"savegrid.ai/internal/sim/orchestrator"
	"savegrid.ai/internal/sim/tuning"
	"savegrid.ai/internal/transport/ws"
)

func main() {
	// A missing .env is normal outside local dev.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("[server] .env: %v", err)
	}

	var (
		addr         = flag.String("addr", envString("SAVEGRID_ADDR", ":8080"), "http listen address")
		scenarioPath = flag.String("scenario", envString("SAVEGRID_SCENARIO", ""), "path to scenario.yaml (default: embedded)")
		tuningPath   = flag.String("tuning", envString("SAVEGRID_TUNING", ""), "path to tuning.yaml (default: embedded)")
		dataDir      = flag.String("data", envString("SAVEGRID_DATA_DIR", "./data"), "runtime data directory")
		disableDB    = flag.Bool("disable_db", envBool("SAVEGRID_DISABLE_DB", false), "disable the sqlite read-model index")

		snapPath   = flag.String("snapshot", "", "path to snapshot to resume from (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", envBool("SAVEGRID_LOAD_LATEST", false), "resume from the latest snapshot in the data dir (when -snapshot is empty)")
		autoStep   = flag.String("auto_step", envString("SAVEGRID_AUTO_STEP", ""), "cron spec that advances the session (e.g. \"@every 2s\"); overrides tuning auto_step_spec")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		logger.Fatalf("load tuning: %v", err)
	}
	if s := strings.TrimSpace(*autoStep); s != "" {
		tune.AutoStepSpec = s
	}
	sc, err := tuning.LoadScenario(*scenarioPath)
	if err != nil {
		logger.Fatalf("load scenario: %v", err)
	}
	_ = os.MkdirAll(*dataDir, 0o755)

	// Optional: read-model index backend (does not affect sim determinism).
	idx, err := openRuntimeIndex(*dataDir, *disableDB)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertConfig(sc, tune); err != nil {
			logger.Printf("index backend: upsert config: %v", err)
		}
	}

	ctx, cancel := signalContext()
	defer cancel()

	stepLog := persistlog.NewStepLogger(*dataDir)
	alertLog := persistlog.NewAlertLogger(*dataDir)
	defer stepLog.Close()
	defer alertLog.Close()

	hub := ws.NewHub()
	snapCh := make(chan snapshot.SnapshotV1, 2)
	ctrl := orchestrator.NewController(orchestrator.Config{
		Tuning:   tune,
		Scenario: sc,
		Logger:   logger,
		Sinks: orchestrator.Sinks{
			Steps:     stepLog,
			Alerts:    alertLog,
			Index:     idx,
			Publisher: hub,
			Snapshots: snapCh,
		},
	})

	snapDir := filepath.Join(*dataDir, "snapshots")
	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad = latestSnapshot(snapDir)
	}
	if snapshotToLoad != "" {
		snap, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			logger.Fatalf("read snapshot: %v", err)
		}
		if _, err := ctrl.Resume(snap); err != nil {
			logger.Fatalf("resume: %v", err)
		}
		logger.Printf("resumed from snapshot=%s", filepath.Base(snapshotToLoad))
	} else if _, err := ctrl.Start(); err != nil {
		logger.Fatalf("start: %v", err)
	}

	// Snapshot writer.
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case snap := <-snapCh:
				path := snapshot.PathFor(snapDir, snap.Header.Tick)
				if err := snapshot.WriteSnapshot(path, snap); err != nil {
					logger.Printf("snapshot write: %v", err)
					continue
				}
				if idx != nil {
					idx.RecordSnapshot(path, snap)
				}
			}
		}
	}()

	if tune.AutoStepSpec != "" {
		c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.VerbosePrintfLogger(logger))))
		if _, err := c.AddFunc(tune.AutoStepSpec, func() {
			if _, err := ctrl.Advance(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Printf("auto step: %v", err)
			}
		}); err != nil {
			logger.Fatalf("auto step spec %q: %v", tune.AutoStepSpec, err)
		}
		c.Start()
		defer c.Stop()
		logger.Printf("auto step enabled (%s)", tune.AutoStepSpec)
	}

	mux := newMux(ctrl, hub, idx, ws.NewServer(hub, ctrl, sc, tune.Seed, logger), logger)
	if envBool("SAVEGRID_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	} else {
		logger.Printf("pprof endpoints disabled (SAVEGRID_ENABLE_PPROF_HTTP=false)")
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s (scenario=%s)", *addr, sc.Name)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

func newMux(ctrl *orchestrator.Controller, hub *ws.Hub, idx runtimeIndex, wsSrv *ws.Server, logger *log.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /metrics", metricsHandler(ctrl, hub, idx))

	a := &api{ctrl: ctrl, log: logger}
	if idx != nil {
		a.index = idx
	}
	a.routes(mux)
	mux.HandleFunc("/v1/ws", wsSrv.Handler())
	return mux
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func latestSnapshot(dir string) string {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestTick uint64
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
		if best == "" || tick > bestTick {
			bestTick = tick
			best = filepath.Join(dir, name)
		}
	}
	return best
}
