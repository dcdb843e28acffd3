package world

import "fmt"

// ContentHandle is the opaque content a ChunkLoader created for one chunk.
// The registry is the sole owner of handles between Load and Unload.
type ContentHandle any

// ChunkLoader instantiates and tears down the content backing a chunk.
// Both calls are synchronous: they complete within the frame that commits
// them. Implemented outside this package (internal/sim/scene in the server,
// fakes in tests).
type ChunkLoader interface {
	Load(c ChunkCoord) (ContentHandle, error)
	Unload(h ContentHandle) error
}

// LoadError reports that the loader could not produce content for a coord.
// Recoverable: the coord returns to unloaded and is retried after a backoff.
type LoadError struct {
	Coord ChunkCoord
	Err   error
}

func (e *LoadError) Error() string { return fmt.Sprintf("load chunk %s: %v", e.Coord, e.Err) }
func (e *LoadError) Unwrap() error { return e.Err }

// UnloadError reports that the unloader could not tear down content.
// The chunk stays in PendingUnload and is retried; dropping the handle
// would leak it.
type UnloadError struct {
	Coord    ChunkCoord
	Attempts int
	Err      error
}

func (e *UnloadError) Error() string {
	return fmt.Sprintf("unload chunk %s (attempt %d): %v", e.Coord, e.Attempts, e.Err)
}
func (e *UnloadError) Unwrap() error { return e.Err }
