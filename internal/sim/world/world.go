package world

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"gladekeep.gg/internal/protocol"
)

type Config struct {
	ID         string
	TickRateHz int
	ChunkSize  float64
	Seed       int64
	BoundaryR  int

	Streaming StreamingConfig
	Mins      StreamingMins
}

type JoinRequest struct {
	Name string
	Out  chan []byte
	Resp chan JoinResponse
}

type JoinResponse struct {
	SessionID string
	Welcome   protocol.WelcomeMsg
}

// TuneRequest bumps one streaming parameter by a signed delta. Applied and
// clamped on the world loop; effective from the next tick's planning pass.
type TuneRequest struct {
	Field string
	Delta int
}

// TickLogger receives one entry per tick. Implemented in
// internal/persistence; may be nil.
type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

// AuditLogger receives one entry per collaborator failure; may be nil.
type AuditLogger interface {
	WriteFailure(entry FailureEntry) error
}

// FailureEntry is the audit record for one load/unload failure.
type FailureEntry struct {
	Tick     uint64 `json:"tick"`
	Kind     string `json:"kind"`
	CX       int    `json:"cx"`
	CZ       int    `json:"cz"`
	Attempts int    `json:"attempts,omitempty"`
	Cause    string `json:"cause"`
}

// TickLogEntry is the per-tick streaming record written to the event log
// and the telemetry index.
type TickLogEntry struct {
	Tick          uint64     `json:"tick"`
	ObserverChunk [2]int     `json:"observer_chunk"`
	Observer      [2]float64 `json:"observer"`

	Loads           int `json:"loads"`
	Unloads         int `json:"unloads"`
	Cancels         int `json:"cancels"`
	LoadFailures    int `json:"load_failures"`
	UnloadFailures  int `json:"unload_failures"`
	DeferredLoads   int `json:"deferred_loads"`
	DeferredUnloads int `json:"deferred_unloads"`

	Resident      int `json:"resident"`
	Pending       int `json:"pending"`
	PendingUnload int `json:"pending_unload"`

	LoadCapPerFrame   int `json:"load_cap_per_frame"`
	UnloadCapPerFrame int `json:"unload_cap_per_frame"`
	ActiveRadius      int `json:"active_radius"`
	Hysteresis        int `json:"hysteresis"`

	LoadedCoords   [][2]int `json:"loaded_coords,omitempty"`
	UnloadedCoords [][2]int `json:"unloaded_coords,omitempty"`

	StepMS float64 `json:"step_ms"`
}

// World drives the streaming manager from a fixed-rate tick. All mutable
// state is owned by the world loop goroutine; channels are the only way in.
type World struct {
	cfg Config

	tick atomic.Uint64

	grid     Grid
	reg      *Registry
	streamer *Streamer

	// Live-tunable streaming config. World-loop-owned; snapshots of it are
	// passed by value into each step.
	streaming StreamingConfig

	observer Vec2

	sessions   map[string]chan []byte
	nextSessID atomic.Uint64

	join  chan JoinRequest
	leave chan string
	move  chan Vec2
	tune  chan TuneRequest
	stop  chan struct{}

	totals protocol.StepCounts

	metrics atomic.Value // WorldMetrics

	tickLogger  TickLogger
	auditLogger AuditLogger
	logger      *log.Logger
}

func New(cfg Config, loader ChunkLoader, logger *log.Logger) (*World, error) {
	if cfg.TickRateHz <= 0 {
		return nil, fmt.Errorf("world %q: tick rate %d", cfg.ID, cfg.TickRateHz)
	}
	if cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("world %q: chunk size %v", cfg.ID, cfg.ChunkSize)
	}
	if loader == nil {
		return nil, fmt.Errorf("world %q: nil loader", cfg.ID)
	}
	cfg.Streaming = cfg.Streaming.Clamped(cfg.Mins)

	grid := Grid{Size: cfg.ChunkSize}
	reg := NewRegistry()
	w := &World{
		cfg:       cfg,
		grid:      grid,
		reg:       reg,
		streamer:  NewStreamer(grid, reg, loader, logger),
		streaming: cfg.Streaming,
		sessions:  map[string]chan []byte{},
		join:      make(chan JoinRequest, 64),
		leave:     make(chan string, 64),
		move:      make(chan Vec2, 256),
		tune:      make(chan TuneRequest, 64),
		stop:      make(chan struct{}),
		logger:    logger,
	}
	return w, nil
}

func (w *World) SetTickLogger(l TickLogger)   { w.tickLogger = l }
func (w *World) SetAuditLogger(l AuditLogger) { w.auditLogger = l }

func (w *World) Join() chan<- JoinRequest { return w.join }
func (w *World) Leave() chan<- string     { return w.leave }
func (w *World) Move() chan<- Vec2        { return w.move }
func (w *World) Tune() chan<- TuneRequest { return w.tune }

func (w *World) CurrentTick() uint64 { return w.tick.Load() }

func (w *World) Run(ctx context.Context) error {
	w.loadInitial()

	interval := time.Second / time.Duration(w.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case req := <-w.join:
			w.handleJoin(req)
		case id := <-w.leave:
			delete(w.sessions, id)
		case p := <-w.move:
			w.observer = p
		case req := <-w.tune:
			w.applyTune(req)
		case <-ticker.C:
			w.step()
		}
	}
}

func (w *World) Stop() { close(w.stop) }

// loadInitial brings up the origin chunk and its eight neighbours before
// the first tick, uncapped, so the player never spawns into an empty world.
func (w *World) loadInitial() {
	for dz := -1; dz <= 1; dz++ {
		for dx := -1; dx <= 1; dx++ {
			c := ChunkCoord{X: dx, Z: dz}
			if _, tracked := w.reg.State(c); tracked {
				continue
			}
			if err := w.reg.CommitLoad(c, w.streamer.loader, 0); err != nil {
				w.printf("initial load %s failed: %v", c, err)
				continue
			}
			w.totals.Loads++
		}
	}
	w.publishMetrics(StepReport{}, 0)
}

func (w *World) handleJoin(req JoinRequest) {
	id := fmt.Sprintf("S%d", w.nextSessID.Add(1))
	if req.Out != nil {
		w.sessions[id] = req.Out
	}
	resp := JoinResponse{
		SessionID: id,
		Welcome: protocol.WelcomeMsg{
			Type:            protocol.TypeWelcome,
			ProtocolVersion: protocol.Version,
			SessionID:       id,
			WorldParams: protocol.WorldParams{
				TickRateHz:     w.cfg.TickRateHz,
				ChunkSize:      w.cfg.ChunkSize,
				Seed:           w.cfg.Seed,
				WorldBoundaryR: w.cfg.BoundaryR,
			},
			Streaming: streamingParams(w.streaming),
		},
	}
	if req.Resp != nil {
		req.Resp <- resp
	}
}

func (w *World) applyTune(req TuneRequest) {
	c := w.streaming
	switch req.Field {
	case protocol.FieldActiveRadius:
		c.ActiveRadius += req.Delta
	case protocol.FieldHysteresis:
		c.Hysteresis += req.Delta
	case protocol.FieldLoadCapPerFrame:
		c.LoadCapPerFrame += req.Delta
	case protocol.FieldUnloadCapPerFrame:
		c.UnloadCapPerFrame += req.Delta
	default:
		w.printf("tune: unknown field %q", req.Field)
		return
	}
	w.streaming = c.Clamped(w.cfg.Mins)
	w.printf("tune: %s %+d -> radius=%d hysteresis=%d load_cap=%d unload_cap=%d",
		req.Field, req.Delta, w.streaming.ActiveRadius, w.streaming.Hysteresis,
		w.streaming.LoadCapPerFrame, w.streaming.UnloadCapPerFrame)
}

func (w *World) step() {
	frame := w.tick.Add(1)
	start := time.Now()

	rep := w.streamer.Step(frame, w.observer, w.streaming, w.cfg.Mins)
	stepMS := float64(time.Since(start).Microseconds()) / 1000.0

	w.totals.Loads += rep.Loads
	w.totals.Unloads += rep.Unloads
	w.totals.Cancels += rep.Cancels
	w.totals.LoadFailures += rep.LoadFailures
	w.totals.UnloadFailures += rep.UnloadFailures

	w.publishMetrics(rep, stepMS)

	if w.tickLogger != nil {
		if err := w.tickLogger.WriteTick(w.tickEntry(rep, stepMS)); err != nil {
			w.printf("tick log: %v", err)
		}
	}

	if w.auditLogger != nil {
		for _, f := range rep.Failures {
			entry := FailureEntry{
				Tick: rep.Frame, Kind: f.Kind,
				CX: f.Coord.X, CZ: f.Coord.Z,
				Attempts: f.Attempts, Cause: f.Cause,
			}
			if err := w.auditLogger.WriteFailure(entry); err != nil {
				w.printf("audit log: %v", err)
			}
		}
	}

	if len(w.sessions) > 0 {
		if b := w.stateMessage(rep, stepMS); b != nil {
			for _, out := range w.sessions {
				sendLatest(out, b)
			}
		}
	}
}

func (w *World) tickEntry(rep StepReport, stepMS float64) TickLogEntry {
	counts := w.reg.Counts()
	e := TickLogEntry{
		Tick:          rep.Frame,
		ObserverChunk: [2]int{rep.ObserverChunk.X, rep.ObserverChunk.Z},
		Observer:      [2]float64{w.observer.X, w.observer.Z},

		Loads:           rep.Loads,
		Unloads:         rep.Unloads,
		Cancels:         rep.Cancels,
		LoadFailures:    rep.LoadFailures,
		UnloadFailures:  rep.UnloadFailures,
		DeferredLoads:   rep.DeferredLoads,
		DeferredUnloads: rep.DeferredUnloads,

		Resident:      counts.Resident,
		Pending:       counts.Pending,
		PendingUnload: counts.PendingUnload,

		LoadCapPerFrame:   w.streaming.LoadCapPerFrame,
		UnloadCapPerFrame: w.streaming.UnloadCapPerFrame,
		ActiveRadius:      w.streaming.ActiveRadius,
		Hysteresis:        w.streaming.Hysteresis,

		StepMS: stepMS,
	}
	for _, c := range rep.LoadedCoords {
		e.LoadedCoords = append(e.LoadedCoords, [2]int{c.X, c.Z})
	}
	for _, c := range rep.UnloadedCoords {
		e.UnloadedCoords = append(e.UnloadedCoords, [2]int{c.X, c.Z})
	}
	return e
}

func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one stale frame, then try once more.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}

func streamingParams(c StreamingConfig) protocol.StreamingParams {
	return protocol.StreamingParams{
		ActiveRadius:      c.ActiveRadius,
		Hysteresis:        c.Hysteresis,
		LoadCapPerFrame:   c.LoadCapPerFrame,
		UnloadCapPerFrame: c.UnloadCapPerFrame,
	}
}

func (w *World) printf(format string, args ...any) {
	if w.logger != nil {
		w.logger.Printf(format, args...)
	}
}
