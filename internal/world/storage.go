package world

import (
	"errors"
	"fmt"
)

// ErrChunkNotFound is returned when a requested chunk has not been stored.
var ErrChunkNotFound = errors.New("chunk not found")

// ChunkStore keeps generated chunks so they are never regenerated.
type ChunkStore interface {
	Load(coord ChunkCoord) (*ChunkData, bool, error)
	Save(chunk *ChunkData) error
	Delete(coord ChunkCoord) error
	ForEach(fn func(chunk *ChunkData) bool) error
	Close() error
}

const (
	StoreMemory = "memory"
	StoreDisk   = "disk"
)

// OpenStore creates a store for the named backend. Disk stores persist to path.
func OpenStore(backend, path string) (ChunkStore, error) {
	switch backend {
	case "", StoreMemory:
		return NewMemoryStore(), nil
	case StoreDisk:
		if path == "" {
			return nil, fmt.Errorf("disk store requires a path")
		}
		return OpenDiskStore(path)
	}
	return nil, fmt.Errorf("unknown chunk store backend %q", backend)
}

// SharedStore wraps a store owned by someone else. Closing the wrapper
// leaves the underlying store open.
func SharedStore(store ChunkStore) ChunkStore {
	return sharedStore{store}
}

type sharedStore struct {
	ChunkStore
}

func (sharedStore) Close() error {
	return nil
}
