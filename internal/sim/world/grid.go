package world

import (
	"fmt"
	"math"

	"gladekeep.gg/internal/sim/mathx"
)

// ChunkCoord identifies a chunk on the infinite ground grid. Plain value
// type: compare and hash by value.
type ChunkCoord struct {
	X int `json:"x"`
	Z int `json:"z"`
}

func (c ChunkCoord) String() string { return fmt.Sprintf("(%d,%d)", c.X, c.Z) }

// Vec2 is a world-space position on the ground plane.
type Vec2 struct {
	X float64 `json:"x"`
	Z float64 `json:"z"`
}

// Grid maps continuous world positions to chunk coordinates. Size is the
// chunk side length in world units. Pure math, no state beyond Size.
type Grid struct {
	Size float64
}

// WorldToChunk floor-divides a position into the chunk containing it.
// Positions exactly on a boundary belong to the higher chunk.
func (g Grid) WorldToChunk(p Vec2) ChunkCoord {
	return ChunkCoord{
		X: int(math.Floor(p.X / g.Size)),
		Z: int(math.Floor(p.Z / g.Size)),
	}
}

// ChunkCenter returns the center point of a chunk (not its corner).
func (g Grid) ChunkCenter(c ChunkCoord) Vec2 {
	return Vec2{
		X: (float64(c.X) + 0.5) * g.Size,
		Z: (float64(c.Z) + 0.5) * g.Size,
	}
}

// ChebyshevDist is the grid-ring distance between two chunk coordinates:
// the max absolute per-axis difference. A square "radius" region matches
// square chunks and gives uniform cost per newly entered ring.
func ChebyshevDist(a, b ChunkCoord) int {
	return mathx.MaxInt(mathx.AbsInt(a.X-b.X), mathx.AbsInt(a.Z-b.Z))
}
