package world

import (
	"context"
	"fmt"
	"log"
	"runtime"
	"sort"
	"sync"

	"github.com/go-gl/mathgl/mgl64"
)

// DefaultRenderDistance is the chunk radius kept around the viewpoint.
const DefaultRenderDistance = 2

// Generator describes chunk population.
type Generator interface {
	Generate(ctx context.Context, coord ChunkCoord) (*ChunkData, error)
}

// orderDependent is implemented by generators whose output depends on the
// order in which chunks are requested.
type orderDependent interface {
	OrderDependent() bool
}

type StreamerOptions struct {
	RenderDistance int
	Workers        int
	Store          ChunkStore
	PreviewDir     string
	Logger         *log.Logger
}

// StreamUpdate reports how the active set changed for one viewpoint.
type StreamUpdate struct {
	Center  ChunkCoord   `json:"center"`
	Loaded  []*ChunkData `json:"loaded"`
	Evicted []ChunkCoord `json:"evicted"`
}

// Streamer keeps the chunks around a moving viewpoint materialised. Every
// chunk is generated at most once; later visits are served from the store.
type Streamer struct {
	generator      Generator
	store          ChunkStore
	renderDistance int
	workers        int
	sequential     bool
	previewDir     string
	logger         *log.Logger

	mu     sync.RWMutex
	active map[ChunkCoord]*ChunkData

	// seqMu serialises generation for order dependent generators.
	seqMu    sync.Mutex
	previews sync.WaitGroup
}

func NewStreamer(generator Generator, opts StreamerOptions) *Streamer {
	if opts.RenderDistance <= 0 {
		opts.RenderDistance = DefaultRenderDistance
	}
	if opts.Store == nil {
		opts.Store = NewMemoryStore()
	}
	if opts.Logger == nil {
		opts.Logger = log.New(log.Writer(), "streamer ", log.LstdFlags|log.Lmicroseconds)
	}
	sequential := false
	if od, ok := generator.(orderDependent); ok && od.OrderDependent() {
		sequential = true
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0) * 2
	}
	if workers <= 0 || sequential {
		workers = 1
	}
	return &Streamer{
		generator:      generator,
		store:          opts.Store,
		renderDistance: opts.RenderDistance,
		workers:        workers,
		sequential:     sequential,
		previewDir:     opts.PreviewDir,
		logger:         opts.Logger,
		active:         make(map[ChunkCoord]*ChunkData),
	}
}

func (s *Streamer) RenderDistance() int {
	return s.renderDistance
}

func (s *Streamer) Workers() int {
	return s.workers
}

// VisibleSet lists the chunks within the render distance of the viewpoint,
// nearest ring first and then by (z, x).
func (s *Streamer) VisibleSet(viewpoint mgl64.Vec3) []ChunkCoord {
	return VisibleAround(ChunkCoordAt(viewpoint), s.renderDistance)
}

// VisibleAround lists the (2r+1)² chunks centred on center in streaming
// order.
func VisibleAround(center ChunkCoord, radius int) []ChunkCoord {
	if radius < 0 {
		radius = 0
	}
	side := 2*radius + 1
	coords := make([]ChunkCoord, 0, side*side)
	for dz := -radius; dz <= radius; dz++ {
		for dx := -radius; dx <= radius; dx++ {
			coords = append(coords, ChunkCoord{X: center.X + dx, Z: center.Z + dz})
		}
	}
	sort.SliceStable(coords, func(i, j int) bool {
		di, dj := ringDistance(coords[i], center), ringDistance(coords[j], center)
		if di != dj {
			return di < dj
		}
		if coords[i].Z != coords[j].Z {
			return coords[i].Z < coords[j].Z
		}
		return coords[i].X < coords[j].X
	})
	return coords
}

// Update materialises every visible chunk that is not active yet and
// evicts active chunks that fell out of range.
func (s *Streamer) Update(ctx context.Context, viewpoint mgl64.Vec3) (StreamUpdate, error) {
	center := ChunkCoordAt(viewpoint)
	visible := VisibleAround(center, s.renderDistance)

	s.mu.RLock()
	missing := make([]ChunkCoord, 0, len(visible))
	for _, coord := range visible {
		if _, ok := s.active[coord]; !ok {
			missing = append(missing, coord)
		}
	}
	s.mu.RUnlock()

	loaded, err := s.materialiseAll(ctx, missing)
	if err != nil {
		return StreamUpdate{}, err
	}

	inView := make(map[ChunkCoord]struct{}, len(visible))
	for _, coord := range visible {
		inView[coord] = struct{}{}
	}

	update := StreamUpdate{Center: center, Loaded: make([]*ChunkData, 0, len(loaded))}

	s.mu.Lock()
	for _, chunk := range loaded {
		coord := chunk.Coord()
		if _, ok := s.active[coord]; ok {
			continue
		}
		s.active[coord] = chunk
		update.Loaded = append(update.Loaded, chunk.Clone())
	}
	for coord := range s.active {
		if _, ok := inView[coord]; !ok {
			delete(s.active, coord)
			update.Evicted = append(update.Evicted, coord)
		}
	}
	s.mu.Unlock()

	sortCoords(update.Evicted)
	if len(update.Loaded) > 0 || len(update.Evicted) > 0 {
		s.logger.Printf("viewpoint chunk %s: loaded %d, evicted %d", center, len(update.Loaded), len(update.Evicted))
	}
	return update, nil
}

// Chunk returns a single chunk, loading or generating it when needed. It
// does not change the active set.
func (s *Streamer) Chunk(ctx context.Context, coord ChunkCoord) (*ChunkData, error) {
	s.mu.RLock()
	chunk, ok := s.active[coord]
	s.mu.RUnlock()
	if ok {
		return chunk.Clone(), nil
	}
	chunk, err := s.materialise(ctx, coord)
	if err != nil {
		return nil, err
	}
	return chunk.Clone(), nil
}

// Cached returns a chunk only if it was materialised before.
func (s *Streamer) Cached(coord ChunkCoord) (*ChunkData, error) {
	s.mu.RLock()
	chunk, ok := s.active[coord]
	s.mu.RUnlock()
	if ok {
		return chunk.Clone(), nil
	}
	stored, ok, err := s.store.Load(coord)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrChunkNotFound, coord)
	}
	return stored, nil
}

// Active lists the active chunk coordinates ordered by (z, x).
func (s *Streamer) Active() []ChunkCoord {
	s.mu.RLock()
	coords := make([]ChunkCoord, 0, len(s.active))
	for coord := range s.active {
		coords = append(coords, coord)
	}
	s.mu.RUnlock()
	sortCoords(coords)
	return coords
}

// Close waits for pending previews and closes the store.
func (s *Streamer) Close() error {
	s.previews.Wait()
	return s.store.Close()
}

func (s *Streamer) materialise(ctx context.Context, coord ChunkCoord) (*ChunkData, error) {
	if s.sequential {
		s.seqMu.Lock()
		defer s.seqMu.Unlock()
	}

	chunk, ok, err := s.store.Load(coord)
	if err != nil {
		return nil, fmt.Errorf("load chunk %s: %w", coord, err)
	}
	if ok {
		return chunk, nil
	}

	chunk, err = s.generator.Generate(ctx, coord)
	if err != nil {
		return nil, fmt.Errorf("generate chunk %s: %w", coord, err)
	}
	if err := s.store.Save(chunk); err != nil {
		return nil, fmt.Errorf("store chunk %s: %w", coord, err)
	}
	s.schedulePreview(chunk)
	return chunk, nil
}

func (s *Streamer) materialiseAll(ctx context.Context, coords []ChunkCoord) ([]*ChunkData, error) {
	if len(coords) == 0 {
		return nil, nil
	}

	workers := s.workers
	if workers > len(coords) {
		workers = len(coords)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type chunkResult struct {
		index int
		chunk *ChunkData
		err   error
	}

	tasks := make(chan int, workers)
	results := make(chan chunkResult, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for index := range tasks {
				if err := ctx.Err(); err != nil {
					select {
					case results <- chunkResult{index: index, err: err}:
					default:
					}
					return
				}
				chunk, err := s.materialise(ctx, coords[index])
				select {
				case results <- chunkResult{index: index, chunk: chunk, err: err}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	go func() {
		defer close(tasks)
		for i := range coords {
			select {
			case <-ctx.Done():
				return
			case tasks <- i:
			}
		}
	}()

	chunks := make([]*ChunkData, len(coords))
	var firstErr error
	for result := range results {
		if result.err != nil {
			if firstErr == nil {
				firstErr = result.err
				cancel()
			}
			continue
		}
		chunks[result.index] = result.chunk
	}
	if firstErr != nil {
		return nil, firstErr
	}
	for i, chunk := range chunks {
		if chunk == nil {
			// The producer stopped early; only cancellation does that.
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return nil, fmt.Errorf("chunk %s was not materialised", coords[i])
		}
	}
	return chunks, nil
}

func (s *Streamer) schedulePreview(chunk *ChunkData) {
	if s.previewDir == "" {
		return
	}
	snapshot := chunk.Clone()
	s.previews.Add(1)
	go func() {
		defer s.previews.Done()
		if err := SaveChunkPreview(snapshot, s.previewDir); err != nil {
			s.logger.Printf("preview chunk %s: %v", snapshot.Coord(), err)
		}
	}()
}
