package world

import (
	"errors"
	"log"
)

// unloadEscalateAttempts is how many failed teardown attempts a chunk gets
// before retries are logged at error weight instead of warn weight.
const unloadEscalateAttempts = 3

// StepReport summarizes one planning+commit pass.
type StepReport struct {
	Frame         uint64     `json:"frame"`
	ObserverChunk ChunkCoord `json:"observer_chunk"`

	Loads   int `json:"loads"`
	Unloads int `json:"unloads"`
	Cancels int `json:"cancels"`

	LoadFailures   int `json:"load_failures"`
	UnloadFailures int `json:"unload_failures"`

	DeferredLoads   int `json:"deferred_loads"`
	DeferredUnloads int `json:"deferred_unloads"`

	LoadedCoords   []ChunkCoord `json:"loaded_coords,omitempty"`
	UnloadedCoords []ChunkCoord `json:"unloaded_coords,omitempty"`

	Failures []FailureRecord `json:"failures,omitempty"`
}

// FailureRecord captures one collaborator failure for the audit trail.
type FailureRecord struct {
	Kind     string     `json:"kind"` // "LOAD" or "UNLOAD"
	Coord    ChunkCoord `json:"coord"`
	Attempts int        `json:"attempts,omitempty"`
	Cause    string     `json:"cause"`
}

// Streamer runs the per-frame streaming pass: plan, budget, commit. It
// owns no chunk state itself; the registry does. Runs on the world loop
// goroutine only and never blocks mid-pass.
type Streamer struct {
	grid   Grid
	reg    *Registry
	loader ChunkLoader
	logger *log.Logger
}

func NewStreamer(grid Grid, reg *Registry, loader ChunkLoader, logger *log.Logger) *Streamer {
	return &Streamer{grid: grid, reg: reg, loader: loader, logger: logger}
}

func (s *Streamer) Registry() *Registry { return s.reg }
func (s *Streamer) Grid() Grid          { return s.grid }

// Step performs one frame of streaming around the observer position.
// cfg is taken by value each call so live tuning applies next frame.
func (s *Streamer) Step(frame uint64, observer Vec2, cfg StreamingConfig, mins StreamingMins) StepReport {
	cfg = cfg.Clamped(mins)
	center := s.grid.WorldToChunk(observer)
	rep := StepReport{Frame: frame, ObserverChunk: center}

	s.reg.SweepBackoff(frame)
	plan := PlanStreaming(center, s.reg, cfg, frame)

	// Cancels are free: no collaborator call, so no budget charge.
	for _, c := range plan.ToCancel {
		if s.reg.CancelUnload(c) {
			rep.Cancels++
		}
	}

	loads, deferredLoads := admit(plan.ToLoad, cfg.LoadCapPerFrame)
	rep.DeferredLoads = len(deferredLoads)
	for _, c := range loads {
		if err := s.reg.CommitLoad(c, s.loader, frame); err != nil {
			// Failed coord entered backoff; it is not retried this frame,
			// so one bad region cannot starve the whole load budget.
			rep.LoadFailures++
			rep.Failures = append(rep.Failures, FailureRecord{Kind: "LOAD", Coord: c, Cause: err.Error()})
			s.printf("load chunk %s failed: %v", c, err)
			continue
		}
		rep.Loads++
		rep.LoadedCoords = append(rep.LoadedCoords, c)
	}

	unloads, deferredUnloads := admit(plan.ToUnload, cfg.UnloadCapPerFrame)
	rep.DeferredUnloads = len(deferredUnloads)
	for _, c := range unloads {
		if err := s.reg.CommitUnload(c, s.loader, frame); err != nil {
			rep.UnloadFailures++
			attempts := 0
			var ue *UnloadError
			if errors.As(err, &ue) {
				attempts = ue.Attempts
			}
			rep.Failures = append(rep.Failures, FailureRecord{Kind: "UNLOAD", Coord: c, Attempts: attempts, Cause: err.Error()})
			if attempts >= unloadEscalateAttempts {
				s.printf("ERROR: chunk %s teardown still failing after %d attempts: %v", c, attempts, err)
			} else {
				s.printf("unload chunk %s failed, will retry: %v", c, err)
			}
			continue
		}
		rep.Unloads++
		rep.UnloadedCoords = append(rep.UnloadedCoords, c)
	}

	return rep
}

func (s *Streamer) printf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}
