package world

import (
	"sort"
	"sync"
)

type memoryStore struct {
	mu     sync.RWMutex
	chunks map[ChunkCoord]*ChunkData
}

func NewMemoryStore() ChunkStore {
	return &memoryStore{
		chunks: make(map[ChunkCoord]*ChunkData),
	}
}

func (m *memoryStore) Load(coord ChunkCoord) (*ChunkData, bool, error) {
	m.mu.RLock()
	chunk, ok := m.chunks[coord]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	return chunk.Clone(), true, nil
}

func (m *memoryStore) Save(chunk *ChunkData) error {
	m.mu.Lock()
	m.chunks[chunk.Coord()] = chunk.Clone()
	m.mu.Unlock()
	return nil
}

func (m *memoryStore) Delete(coord ChunkCoord) error {
	m.mu.Lock()
	delete(m.chunks, coord)
	m.mu.Unlock()
	return nil
}

func (m *memoryStore) ForEach(fn func(chunk *ChunkData) bool) error {
	m.mu.RLock()
	coords := make([]ChunkCoord, 0, len(m.chunks))
	for coord := range m.chunks {
		coords = append(coords, coord)
	}
	m.mu.RUnlock()

	sortCoords(coords)
	for _, coord := range coords {
		chunk, ok, err := m.Load(coord)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if !fn(chunk) {
			break
		}
	}
	return nil
}

func (m *memoryStore) Close() error {
	return nil
}

func sortCoords(coords []ChunkCoord) {
	sort.Slice(coords, func(i, j int) bool {
		if coords[i].Z == coords[j].Z {
			return coords[i].X < coords[j].X
		}
		return coords[i].Z < coords[j].Z
	})
}
