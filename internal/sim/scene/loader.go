package scene

import (
	"fmt"

	"gladekeep.gg/internal/sim/mathx"
	"gladekeep.gg/internal/sim/tuning"
	"gladekeep.gg/internal/sim/world"
)

// ChunkContent is the handle the loader returns for one chunk: a root
// entity plus the scenery spawned under it. Owned by the registry between
// Load and Unload.
type ChunkContent struct {
	Coord    world.ChunkCoord
	Root     EntityID
	Entities []EntityID
}

// Loader instantiates deterministic per-chunk scenery (trees, big trees,
// rocks) seeded by (world seed, chunk coord). The same seed always
// reproduces the same chunk, so reloading after an unload is lossless.
type Loader struct {
	scene *Scene
	grid  world.Grid
	seed  int64

	// boundaryR bounds the world in chunk rings around the origin; loads
	// beyond it fail. Zero means unbounded.
	boundaryR int

	content tuning.Content
}

var _ world.ChunkLoader = (*Loader)(nil)

func NewLoader(s *Scene, grid world.Grid, seed int64, boundaryR int, content tuning.Content) *Loader {
	return &Loader{scene: s, grid: grid, seed: seed, boundaryR: boundaryR, content: content}
}

func (l *Loader) Load(c world.ChunkCoord) (world.ContentHandle, error) {
	if l.boundaryR > 0 && world.ChebyshevDist(c, world.ChunkCoord{}) > l.boundaryR {
		return nil, fmt.Errorf("chunk %s outside world boundary (r=%d)", c, l.boundaryR)
	}

	center := l.grid.ChunkCenter(c)
	root := l.scene.Spawn(KindChunkRoot, 0, center.X, center.Z)
	content := &ChunkContent{Coord: c, Root: root}

	size := l.grid.Size
	origin := world.Vec2{X: float64(c.X) * size, Z: float64(c.Z) * size}

	h := mathx.Hash2(l.seed, c.X, c.Z)
	trees := spanCount(h, l.content.TreesMin, l.content.TreesMax)
	rocks := spanCount(h>>16, l.content.RocksMin, l.content.RocksMax)

	for i := 0; i < trees; i++ {
		hp := mathx.Hash3(l.seed, c.X, i, c.Z)
		x := origin.X + offsetIn(hp, size)
		z := origin.Z + offsetIn(hp>>24, size)
		if l.insideSpawnClear(x, z) {
			continue
		}
		kind := KindTree
		if int(hp%1000) < l.content.BigTreePermille {
			kind = KindBigTree
		}
		id := l.scene.Spawn(kind, root, x, z)
		content.Entities = append(content.Entities, id)
	}

	for i := 0; i < rocks; i++ {
		hp := mathx.Hash3(l.seed, c.X, 1000+i, c.Z)
		x := origin.X + offsetIn(hp, size)
		z := origin.Z + offsetIn(hp>>24, size)
		if l.insideSpawnClear(x, z) {
			continue
		}
		id := l.scene.Spawn(KindRock, root, x, z)
		content.Entities = append(content.Entities, id)
	}

	return content, nil
}

func (l *Loader) Unload(h world.ContentHandle) error {
	content, ok := h.(*ChunkContent)
	if !ok {
		return fmt.Errorf("unload: unexpected handle %T", h)
	}
	for _, id := range content.Entities {
		if err := l.scene.Despawn(id); err != nil {
			return fmt.Errorf("chunk %s: %w", content.Coord, err)
		}
	}
	content.Entities = nil
	if err := l.scene.Despawn(content.Root); err != nil {
		return fmt.Errorf("chunk %s root: %w", content.Coord, err)
	}
	return nil
}

// insideSpawnClear keeps a scenery-free disc around the town square at the
// origin.
func (l *Loader) insideSpawnClear(x, z float64) bool {
	r := float64(l.content.SpawnClearRadius)
	if r <= 0 {
		return false
	}
	return x*x+z*z <= r*r
}

func spanCount(h uint64, min, max int) int {
	if max <= min {
		return min
	}
	return min + int(h%uint64(max-min+1))
}

func offsetIn(h uint64, size float64) float64 {
	// 10 bits of hash -> [0, size).
	return float64(h%1024) / 1024.0 * size
}
