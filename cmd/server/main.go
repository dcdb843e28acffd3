package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"gladekeep.gg/internal/persistence/indexdb"
	persistlog "gladekeep.gg/internal/persistence/log"
	"gladekeep.gg/internal/sim/scene"
	"gladekeep.gg/internal/sim/tuning"
	"gladekeep.gg/internal/sim/world"
	"gladekeep.gg/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		worldID    = flag.String("world", "world_1", "world id")
		seed       = flag.Int64("seed", 0, "world seed (overrides tuning when non-zero)")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "./configs/tuning.yaml", "path to tuning.yaml")
		disableDB  = flag.Bool("disable_db", false, "disable the telemetry index")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Printf("tuning not found (%s); using defaults", *tuningPath)
			tune = tuning.Defaults()
		} else {
			logger.Fatalf("load tuning: %v", err)
		}
	}
	if *seed != 0 {
		tune.WorldSeed = *seed
	}

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	if err := os.MkdirAll(worldDir, 0o755); err != nil {
		logger.Fatalf("data dir: %v", err)
	}

	sc := scene.New()
	grid := world.Grid{Size: tune.ChunkSize}
	loader := scene.NewLoader(sc, grid, tune.WorldSeed, tune.WorldBoundaryR, tune.Content)

	w, err := world.New(world.Config{
		ID:         *worldID,
		TickRateHz: tune.TickRateHz,
		ChunkSize:  tune.ChunkSize,
		Seed:       tune.WorldSeed,
		BoundaryR:  tune.WorldBoundaryR,
		Streaming: world.StreamingConfig{
			ActiveRadius:      tune.Streaming.ActiveRadius,
			Hysteresis:        tune.Streaming.Hysteresis,
			LoadCapPerFrame:   tune.Streaming.LoadCapPerFrame,
			UnloadCapPerFrame: tune.Streaming.UnloadCapPerFrame,
		},
		Mins: world.StreamingMins{
			ActiveRadius:      tune.Streaming.MinActiveRadius,
			Hysteresis:        tune.Streaming.MinHysteresis,
			LoadCapPerFrame:   tune.Streaming.MinLoadCapPerFrame,
			UnloadCapPerFrame: tune.Streaming.MinUnloadCapPerFrame,
		},
	}, loader, log.New(os.Stdout, "[world] ", log.LstdFlags|log.Lmicroseconds))
	if err != nil {
		logger.Fatalf("world: %v", err)
	}

	tickLog := persistlog.NewTickLogger(worldDir)
	defer tickLog.Close()
	auditLog := persistlog.NewAuditLogger(worldDir)
	defer auditLog.Close()

	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(worldDir, "index.db"))
		if err != nil {
			logger.Fatalf("open telemetry index: %v", err)
		}
		defer idx.Close()
	}

	w.SetTickLogger(tickFanout{tickLog, idx})
	w.SetAuditLogger(auditFanout{auditLog, idx})

	wsServer := ws.NewServer(w, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/ws", wsServer.Handler())
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, _ *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, _ *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(w.Metrics())
	})
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)

	httpServer := &http.Server{Addr: *addr, Handler: mux}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Printf("world %s: seed=%d chunk_size=%v radius=%d hysteresis=%d",
			*worldID, tune.WorldSeed, tune.ChunkSize,
			tune.Streaming.ActiveRadius, tune.Streaming.Hysteresis)
		err := w.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		logger.Printf("listening on %s", *addr)
		err := httpServer.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !strings.Contains(err.Error(), "context canceled") {
		logger.Fatalf("shutdown: %v", err)
	}
	logger.Printf("bye")
}

// tickFanout writes one tick entry to the JSONL log and, when enabled, the
// telemetry index.
type tickFanout struct {
	jsonl *persistlog.TickLogger
	idx   *indexdb.SQLiteIndex
}

func (f tickFanout) WriteTick(e world.TickLogEntry) error {
	err := f.jsonl.WriteTick(e)
	if f.idx != nil {
		_ = f.idx.WriteTick(e)
	}
	return err
}

type auditFanout struct {
	jsonl *persistlog.AuditLogger
	idx   *indexdb.SQLiteIndex
}

func (f auditFanout) WriteFailure(e world.FailureEntry) error {
	err := f.jsonl.WriteFailure(e)
	if f.idx != nil {
		_ = f.idx.WriteFailure(e)
	}
	return err
}
