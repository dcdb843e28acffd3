package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	TickRateHz int     `yaml:"tick_rate_hz"`
	ChunkSize  float64 `yaml:"chunk_size"`
	WorldSeed  int64   `yaml:"world_seed"`

	// WorldBoundaryR bounds the world in chunk rings around the origin.
	// Zero means unbounded.
	WorldBoundaryR int `yaml:"world_boundary_r"`

	Streaming Streaming `yaml:"streaming"`
	Content   Content   `yaml:"content"`
}

// Streaming holds the live-tunable chunk streaming parameters and the
// floors the tune surface clamps against.
type Streaming struct {
	ActiveRadius      int `yaml:"active_radius"`
	Hysteresis        int `yaml:"hysteresis"`
	LoadCapPerFrame   int `yaml:"load_cap_per_frame"`
	UnloadCapPerFrame int `yaml:"unload_cap_per_frame"`

	MinActiveRadius      int `yaml:"min_active_radius"`
	MinHysteresis        int `yaml:"min_hysteresis"`
	MinLoadCapPerFrame   int `yaml:"min_load_cap_per_frame"`
	MinUnloadCapPerFrame int `yaml:"min_unload_cap_per_frame"`
}

// Content tunes the per-chunk scenery the loader instantiates.
type Content struct {
	TreesMin         int `yaml:"trees_min"`
	TreesMax         int `yaml:"trees_max"`
	RocksMin         int `yaml:"rocks_min"`
	RocksMax         int `yaml:"rocks_max"`
	BigTreePermille  int `yaml:"big_tree_permille"`
	SpawnClearRadius int `yaml:"spawn_clear_radius"`
}

func Load(path string) (Tuning, error) {
	var t Tuning
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.fillZero()
	return t, nil
}

// Defaults returns the tuning used when no tuning.yaml is present.
func Defaults() Tuning {
	var t Tuning
	t.Streaming.Hysteresis = 1
	t.fillZero()
	return t
}

func (t *Tuning) fillZero() {
	if t.ProtocolVersion == "" {
		t.ProtocolVersion = "1.0"
	}
	if t.TickRateHz <= 0 {
		t.TickRateHz = 30
	}
	if t.ChunkSize <= 0 {
		t.ChunkSize = 128
	}
	if t.WorldSeed == 0 {
		t.WorldSeed = 1337
	}

	s := &t.Streaming
	if s.ActiveRadius <= 0 {
		s.ActiveRadius = 2
	}
	if s.Hysteresis < 0 {
		s.Hysteresis = 1
	}
	if s.LoadCapPerFrame <= 0 {
		s.LoadCapPerFrame = 4
	}
	if s.UnloadCapPerFrame <= 0 {
		s.UnloadCapPerFrame = 4
	}
	if s.MinActiveRadius <= 0 {
		s.MinActiveRadius = 1
	}
	if s.MinHysteresis < 0 {
		s.MinHysteresis = 0
	}
	if s.MinLoadCapPerFrame <= 0 {
		s.MinLoadCapPerFrame = 1
	}
	if s.MinUnloadCapPerFrame <= 0 {
		s.MinUnloadCapPerFrame = 1
	}

	c := &t.Content
	if c.TreesMax <= 0 {
		c.TreesMin, c.TreesMax = 3, 8
	}
	if c.RocksMax <= 0 {
		c.RocksMin, c.RocksMax = 1, 4
	}
	if c.BigTreePermille <= 0 {
		c.BigTreePermille = 150
	}
	if c.SpawnClearRadius <= 0 {
		c.SpawnClearRadius = 12
	}
}
