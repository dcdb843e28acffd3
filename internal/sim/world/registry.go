package world

import "fmt"

// ChunkState tracks where a chunk is in its load/unload lifecycle.
// A coord with no registry entry is unloaded; completed unloads delete the
// entry rather than mark it, so the registry stays bounded by the
// active+hysteresis envelope instead of growing with every chunk ever seen.
type ChunkState uint8

const (
	StatePending ChunkState = iota + 1
	StateResident
	StatePendingUnload
)

func (s ChunkState) String() string {
	switch s {
	case StatePending:
		return "PENDING"
	case StateResident:
		return "RESIDENT"
	case StatePendingUnload:
		return "PENDING_UNLOAD"
	default:
		return "UNLOADED"
	}
}

type chunkEntry struct {
	state   ChunkState
	content ContentHandle

	// unloadAttempts counts failed unloader calls for this entry.
	unloadAttempts int
}

type loadBackoff struct {
	failures  int
	nextFrame uint64
}

// Load-failure backoff: first retry after backoffBaseFrames, doubling per
// consecutive failure up to backoffMaxFrames. Entries are swept once the
// retry frame is long past so a wandering observer cannot grow the map.
const (
	backoffBaseFrames  = 8
	backoffMaxFrames   = 512
	backoffSweepMargin = 4 * backoffMaxFrames
)

// Registry is the single source of truth for chunk residency. Accessed only
// from the world loop goroutine; nothing else may mutate entries or touch
// the content handles it owns.
type Registry struct {
	entries map[ChunkCoord]*chunkEntry
	backoff map[ChunkCoord]*loadBackoff
}

func NewRegistry() *Registry {
	return &Registry{
		entries: map[ChunkCoord]*chunkEntry{},
		backoff: map[ChunkCoord]*loadBackoff{},
	}
}

// State returns the lifecycle state for a coord; ok is false for unloaded
// coords (no entry).
func (r *Registry) State(c ChunkCoord) (ChunkState, bool) {
	e, ok := r.entries[c]
	if !ok {
		return 0, false
	}
	return e.state, true
}

// Tracked calls fn for every registry entry, in map order. Callers that
// need determinism sort the coords they collect.
func (r *Registry) Tracked(fn func(c ChunkCoord, s ChunkState)) {
	for c, e := range r.entries {
		fn(c, e.state)
	}
}

// StateCounts is the per-state census exposed to the HUD.
type StateCounts struct {
	Pending       int `json:"pending"`
	Resident      int `json:"resident"`
	PendingUnload int `json:"pending_unload"`
}

func (r *Registry) Counts() StateCounts {
	var n StateCounts
	for _, e := range r.entries {
		switch e.state {
		case StatePending:
			n.Pending++
		case StateResident:
			n.Resident++
		case StatePendingUnload:
			n.PendingUnload++
		}
	}
	return n
}

// RetryBlocked reports whether a coord is still inside its load-failure
// backoff window at the given frame.
func (r *Registry) RetryBlocked(c ChunkCoord, frame uint64) bool {
	b, ok := r.backoff[c]
	return ok && frame < b.nextFrame
}

// SweepBackoff drops backoff entries whose retry frame is long past.
func (r *Registry) SweepBackoff(frame uint64) {
	for c, b := range r.backoff {
		if frame > b.nextFrame+backoffSweepMargin {
			delete(r.backoff, c)
		}
	}
}

// CommitLoad drives Unloaded -> Pending -> Resident for one coord, calling
// the loader synchronously. On loader failure the entry is removed (back to
// unloaded) and the coord enters a retry backoff; the failure is returned as
// a *LoadError for diagnostics, never fatal.
func (r *Registry) CommitLoad(c ChunkCoord, loader ChunkLoader, frame uint64) error {
	if e, ok := r.entries[c]; ok {
		return fmt.Errorf("load chunk %s: already %s", c, e.state)
	}
	e := &chunkEntry{state: StatePending}
	r.entries[c] = e

	h, err := loader.Load(c)
	if err != nil {
		delete(r.entries, c)
		b := r.backoff[c]
		if b == nil {
			b = &loadBackoff{}
			r.backoff[c] = b
		}
		b.failures++
		delay := uint64(backoffBaseFrames) << uint(b.failures-1)
		if delay > backoffMaxFrames {
			delay = backoffMaxFrames
		}
		b.nextFrame = frame + delay
		return &LoadError{Coord: c, Err: err}
	}

	delete(r.backoff, c)
	e.state = StateResident
	e.content = h
	return nil
}

// CommitUnload drives Resident -> PendingUnload -> removed for one coord,
// calling the unloader synchronously. On unloader failure the entry stays
// in PendingUnload (keeping the handle is better than leaking it) and the
// failure is returned as an *UnloadError carrying the attempt count.
func (r *Registry) CommitUnload(c ChunkCoord, loader ChunkLoader, _ uint64) error {
	e, ok := r.entries[c]
	if !ok {
		return fmt.Errorf("unload chunk %s: not tracked", c)
	}
	if e.state != StateResident && e.state != StatePendingUnload {
		return fmt.Errorf("unload chunk %s: unexpected state %s", c, e.state)
	}
	e.state = StatePendingUnload

	if err := loader.Unload(e.content); err != nil {
		e.unloadAttempts++
		return &UnloadError{Coord: c, Attempts: e.unloadAttempts, Err: err}
	}
	delete(r.entries, c)
	return nil
}

// CancelUnload flips a PendingUnload entry back to Resident when the
// observer returns before teardown succeeded. This is what makes hysteresis
// actually prevent thrash instead of merely delaying it.
func (r *Registry) CancelUnload(c ChunkCoord) bool {
	e, ok := r.entries[c]
	if !ok || e.state != StatePendingUnload {
		return false
	}
	e.state = StateResident
	e.unloadAttempts = 0
	return true
}
