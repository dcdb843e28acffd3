package protocol

// HelloMsg opens a session. Clients that only want the HUD stream may
// leave ClientName empty.
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ClientName      string `json:"client_name,omitempty"`
}

type WorldParams struct {
	TickRateHz     int     `json:"tick_rate_hz"`
	ChunkSize      float64 `json:"chunk_size"`
	Seed           int64   `json:"seed"`
	WorldBoundaryR int     `json:"world_boundary_r"`
}

type WelcomeMsg struct {
	Type            string          `json:"type"`
	ProtocolVersion string          `json:"protocol_version"`
	SessionID       string          `json:"session_id"`
	WorldParams     WorldParams     `json:"world_params"`
	Streaming       StreamingParams `json:"streaming"`
}

// StreamingParams mirrors the live streaming config.
type StreamingParams struct {
	ActiveRadius      int `json:"active_radius"`
	Hysteresis        int `json:"hysteresis"`
	LoadCapPerFrame   int `json:"load_cap_per_frame"`
	UnloadCapPerFrame int `json:"unload_cap_per_frame"`
}

// MoveMsg reports the observer's current world position. The world treats
// the latest MOVE before a tick as that tick's observer position.
type MoveMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	Pos             [2]float64 `json:"pos"`
}

// Tunable field names accepted by TUNE.
const (
	FieldActiveRadius      = "active_radius"
	FieldHysteresis        = "hysteresis"
	FieldLoadCapPerFrame   = "load_cap_per_frame"
	FieldUnloadCapPerFrame = "unload_cap_per_frame"
)

// TuneMsg bumps one streaming parameter by a signed delta, clamped to its
// configured floor server-side. This is the debug-key surface.
type TuneMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Field           string `json:"field"`
	Delta           int    `json:"delta"`
}

func KnownTuneField(f string) bool {
	switch f {
	case FieldActiveRadius, FieldHysteresis, FieldLoadCapPerFrame, FieldUnloadCapPerFrame:
		return true
	}
	return false
}

// StateMsg is the per-tick HUD readout: a pure observation of the
// streaming manager, never a mutation channel.
type StateMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	Tick          uint64     `json:"tick"`
	Observer      [2]float64 `json:"observer"`
	ObserverChunk [2]int     `json:"observer_chunk"`

	Counts    ChunkCounts     `json:"counts"`
	Streaming StreamingParams `json:"streaming"`
	LastStep  StepCounts      `json:"last_step"`
	Totals    StepCounts      `json:"totals"`
	StepMS    float64         `json:"step_ms"`
}

type ChunkCounts struct {
	Pending       int `json:"pending"`
	Resident      int `json:"resident"`
	PendingUnload int `json:"pending_unload"`
}

type StepCounts struct {
	Loads           int `json:"loads"`
	Unloads         int `json:"unloads"`
	Cancels         int `json:"cancels"`
	LoadFailures    int `json:"load_failures"`
	UnloadFailures  int `json:"unload_failures"`
	DeferredLoads   int `json:"deferred_loads"`
	DeferredUnloads int `json:"deferred_unloads"`
}
