package world

import "sort"

// StreamingConfig is the live-tunable streaming parameter set. It is owned
// by the world loop and passed by value into planning each frame, so a
// mid-session change takes effect on the very next pass.
type StreamingConfig struct {
	ActiveRadius      int `json:"active_radius"`
	Hysteresis        int `json:"hysteresis"`
	LoadCapPerFrame   int `json:"load_cap_per_frame"`
	UnloadCapPerFrame int `json:"unload_cap_per_frame"`
}

// StreamingMins are the floors the tune surface clamps against.
type StreamingMins struct {
	ActiveRadius      int
	Hysteresis        int
	LoadCapPerFrame   int
	UnloadCapPerFrame int
}

// Clamped enforces the config invariants: every value at or above its
// floor and never negative. Reachable from live user input, so clamp,
// don't error. The unload boundary (radius+hysteresis) stays >= the load
// boundary because hysteresis cannot go below zero.
func (c StreamingConfig) Clamped(min StreamingMins) StreamingConfig {
	clamp := func(v, floor int) int {
		if floor < 0 {
			floor = 0
		}
		if v < floor {
			return floor
		}
		return v
	}
	c.ActiveRadius = clamp(c.ActiveRadius, min.ActiveRadius)
	c.Hysteresis = clamp(c.Hysteresis, min.Hysteresis)
	c.LoadCapPerFrame = clamp(c.LoadCapPerFrame, min.LoadCapPerFrame)
	c.UnloadCapPerFrame = clamp(c.UnloadCapPerFrame, min.UnloadCapPerFrame)
	return c
}

// Plan is one frame's desired residency diff. ToLoad is nearest-first;
// ToUnload and ToCancel are coordinate-sorted for deterministic output.
type Plan struct {
	ToLoad   []ChunkCoord
	ToUnload []ChunkCoord
	ToCancel []ChunkCoord
}

// PlanStreaming computes the candidate sets for one frame: coords within
// ActiveRadius of center that are not tracked become loads, tracked coords
// beyond ActiveRadius+Hysteresis become unloads, and PendingUnload coords
// back inside ActiveRadius become cancels. Pure: no registry mutation, no
// loading; calling it twice with unchanged inputs yields identical plans.
func PlanStreaming(center ChunkCoord, reg *Registry, cfg StreamingConfig, frame uint64) Plan {
	var p Plan

	r := cfg.ActiveRadius
	for dz := -r; dz <= r; dz++ {
		for dx := -r; dx <= r; dx++ {
			c := ChunkCoord{X: center.X + dx, Z: center.Z + dz}
			s, tracked := reg.State(c)
			if !tracked {
				if !reg.RetryBlocked(c, frame) {
					p.ToLoad = append(p.ToLoad, c)
				}
				continue
			}
			if s == StatePendingUnload {
				p.ToCancel = append(p.ToCancel, c)
			}
		}
	}

	keep := r + cfg.Hysteresis
	reg.Tracked(func(c ChunkCoord, s ChunkState) {
		if s != StateResident && s != StatePendingUnload {
			return
		}
		if ChebyshevDist(center, c) > keep {
			p.ToUnload = append(p.ToUnload, c)
		}
	})

	sortNearestFirst(p.ToLoad, center)
	sortByCoord(p.ToUnload)
	sortByCoord(p.ToCancel)
	return p
}

// sortNearestFirst orders coords by ascending Chebyshev distance from
// center; ties break on (X,Z) so the order is stable across runs. The
// player notices a missing nearby chunk long before a missing distant one.
func sortNearestFirst(cs []ChunkCoord, center ChunkCoord) {
	sort.Slice(cs, func(i, j int) bool {
		di, dj := ChebyshevDist(center, cs[i]), ChebyshevDist(center, cs[j])
		if di != dj {
			return di < dj
		}
		if cs[i].X != cs[j].X {
			return cs[i].X < cs[j].X
		}
		return cs[i].Z < cs[j].Z
	})
}

func sortByCoord(cs []ChunkCoord) {
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].X != cs[j].X {
			return cs[i].X < cs[j].X
		}
		return cs[i].Z < cs[j].Z
	})
}
