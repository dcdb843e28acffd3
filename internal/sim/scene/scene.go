// Package scene is a minimal entity store standing in for the host
// engine's scene graph: the streaming registry spawns and despawns chunk
// content through it via the loader in this package.
package scene

import "fmt"

type EntityID uint64

type Kind string

const (
	KindChunkRoot Kind = "CHUNK_ROOT"
	KindTree      Kind = "TREE"
	KindBigTree   Kind = "BIG_TREE"
	KindRock      Kind = "ROCK"
)

type Entity struct {
	ID     EntityID
	Kind   Kind
	Parent EntityID // zero for roots
	X, Z   float64
}

// Scene is not goroutine-safe: like the registry it is driven only from
// the world loop.
type Scene struct {
	nextID   EntityID
	entities map[EntityID]*Entity
}

func New() *Scene {
	return &Scene{entities: map[EntityID]*Entity{}}
}

func (s *Scene) Spawn(kind Kind, parent EntityID, x, z float64) EntityID {
	s.nextID++
	id := s.nextID
	s.entities[id] = &Entity{ID: id, Kind: kind, Parent: parent, X: x, Z: z}
	return id
}

func (s *Scene) Despawn(id EntityID) error {
	if _, ok := s.entities[id]; !ok {
		return fmt.Errorf("despawn: entity %d not found", id)
	}
	delete(s.entities, id)
	return nil
}

func (s *Scene) Get(id EntityID) (Entity, bool) {
	e, ok := s.entities[id]
	if !ok {
		return Entity{}, false
	}
	return *e, true
}

func (s *Scene) Count() int { return len(s.entities) }
