package world

import (
	"context"
	"errors"
	"image/png"
	"io"
	"log"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
)

type countingGenerator struct {
	mu     sync.Mutex
	calls  map[ChunkCoord]int
	order  []ChunkCoord
	fail   ChunkCoord
	failOn bool
	legacy bool
}

func newCountingGenerator() *countingGenerator {
	return &countingGenerator{calls: make(map[ChunkCoord]int)}
}

func (g *countingGenerator) Generate(ctx context.Context, coord ChunkCoord) (*ChunkData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	g.calls[coord]++
	g.order = append(g.order, coord)
	g.mu.Unlock()
	if g.failOn && coord == g.fail {
		return nil, errors.New("boom")
	}
	return sampleChunk(coord.X, coord.Z, 2), nil
}

func (g *countingGenerator) OrderDependent() bool {
	return g.legacy
}

func (g *countingGenerator) total() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		n += c
	}
	return n
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestVisibleSetOrdersByRingThenZX(t *testing.T) {
	s := NewStreamer(newCountingGenerator(), StreamerOptions{RenderDistance: 1, Logger: quietLogger()})
	got := s.VisibleSet(mgl64.Vec3{40, 0, -5})
	want := []ChunkCoord{
		{X: 1, Z: -1},
		{X: 0, Z: -2}, {X: 1, Z: -2}, {X: 2, Z: -2},
		{X: 0, Z: -1}, {X: 2, Z: -1},
		{X: 0, Z: 0}, {X: 1, Z: 0}, {X: 2, Z: 0},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("VisibleSet = %v, want %v", got, want)
	}
}

func TestStreamerDefaults(t *testing.T) {
	s := NewStreamer(newCountingGenerator(), StreamerOptions{Logger: quietLogger()})
	if s.RenderDistance() != DefaultRenderDistance {
		t.Fatalf("RenderDistance = %d", s.RenderDistance())
	}
	if s.Workers() < 1 {
		t.Fatalf("Workers = %d", s.Workers())
	}
	if got := len(s.VisibleSet(mgl64.Vec3{})); got != 25 {
		t.Fatalf("visible chunks = %d, want 25", got)
	}
}

func TestStreamerNeverRegeneratesChunks(t *testing.T) {
	gen := newCountingGenerator()
	s := NewStreamer(gen, StreamerOptions{RenderDistance: 1, Workers: 4, Logger: quietLogger()})
	defer s.Close()
	ctx := context.Background()

	update, err := s.Update(ctx, mgl64.Vec3{0, 0, 0})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(update.Loaded) != 9 || len(update.Evicted) != 0 {
		t.Fatalf("first update loaded %d evicted %d", len(update.Loaded), len(update.Evicted))
	}

	update, err = s.Update(ctx, mgl64.Vec3{10, 0, 10})
	if err != nil {
		t.Fatalf("Update same chunk: %v", err)
	}
	if len(update.Loaded) != 0 || len(update.Evicted) != 0 {
		t.Fatalf("same chunk update changed set: %+v", update)
	}

	// Move three chunks east, then come back.
	update, err = s.Update(ctx, mgl64.Vec3{3 * ChunkSize, 0, 0})
	if err != nil {
		t.Fatalf("Update east: %v", err)
	}
	if len(update.Evicted) != 9 || len(update.Loaded) != 9 {
		t.Fatalf("east update loaded %d evicted %d", len(update.Loaded), len(update.Evicted))
	}
	update, err = s.Update(ctx, mgl64.Vec3{0, 0, 0})
	if err != nil {
		t.Fatalf("Update back: %v", err)
	}
	if len(update.Loaded) != 9 {
		t.Fatalf("return update loaded %d", len(update.Loaded))
	}

	if total := gen.total(); total != 18 {
		t.Fatalf("generator calls = %d, want 18", total)
	}
	for coord, n := range gen.calls {
		if n != 1 {
			t.Fatalf("chunk %s generated %d times", coord, n)
		}
	}

	if _, err := s.Chunk(ctx, ChunkCoord{X: 3, Z: 1}); err != nil {
		t.Fatalf("Chunk: %v", err)
	}
	if total := gen.total(); total != 18 {
		t.Fatalf("Chunk regenerated a stored chunk: %d calls", total)
	}
}

func TestStreamerActiveAndEvictionOrder(t *testing.T) {
	s := NewStreamer(newCountingGenerator(), StreamerOptions{RenderDistance: 1, Logger: quietLogger()})
	defer s.Close()
	ctx := context.Background()

	if _, err := s.Update(ctx, mgl64.Vec3{}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	update, err := s.Update(ctx, mgl64.Vec3{ChunkSize, 0, 0})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	wantEvicted := []ChunkCoord{{X: -1, Z: -1}, {X: -1, Z: 0}, {X: -1, Z: 1}}
	if !reflect.DeepEqual(update.Evicted, wantEvicted) {
		t.Fatalf("Evicted = %v, want %v", update.Evicted, wantEvicted)
	}
	if update.Center != (ChunkCoord{X: 1, Z: 0}) {
		t.Fatalf("Center = %v", update.Center)
	}
	active := s.Active()
	if len(active) != 9 || active[0] != (ChunkCoord{X: 0, Z: -1}) {
		t.Fatalf("Active = %v", active)
	}
}

func TestStreamerLoadsInVisibleOrder(t *testing.T) {
	gen := newCountingGenerator()
	gen.legacy = true
	s := NewStreamer(gen, StreamerOptions{RenderDistance: 1, Workers: 8, Logger: quietLogger()})
	defer s.Close()

	if s.Workers() != 1 {
		t.Fatalf("order dependent generator got %d workers", s.Workers())
	}
	update, err := s.Update(context.Background(), mgl64.Vec3{})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	visible := s.VisibleSet(mgl64.Vec3{})
	if !reflect.DeepEqual(gen.order, visible) {
		t.Fatalf("generation order = %v, want %v", gen.order, visible)
	}
	for i, chunk := range update.Loaded {
		if chunk.Coord() != visible[i] {
			t.Fatalf("Loaded[%d] = %s, want %s", i, chunk.Coord(), visible[i])
		}
	}
}

func TestStreamerPropagatesGeneratorErrors(t *testing.T) {
	gen := newCountingGenerator()
	gen.failOn = true
	gen.fail = ChunkCoord{X: 1, Z: 1}
	s := NewStreamer(gen, StreamerOptions{RenderDistance: 1, Workers: 3, Logger: quietLogger()})
	defer s.Close()

	if _, err := s.Update(context.Background(), mgl64.Vec3{}); err == nil {
		t.Fatalf("expected generator error")
	}
	if len(s.Active()) != 0 {
		t.Fatalf("failed update changed active set: %v", s.Active())
	}
}

func TestStreamerHonoursCancellation(t *testing.T) {
	s := NewStreamer(newCountingGenerator(), StreamerOptions{RenderDistance: 2, Logger: quietLogger()})
	defer s.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Update(ctx, mgl64.Vec3{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("Update error = %v, want context.Canceled", err)
	}
}

func TestStreamerCachedLookup(t *testing.T) {
	s := NewStreamer(newCountingGenerator(), StreamerOptions{RenderDistance: 1, Logger: quietLogger()})
	defer s.Close()
	if _, err := s.Cached(ChunkCoord{X: 7, Z: 7}); !errors.Is(err, ErrChunkNotFound) {
		t.Fatalf("Cached missing = %v, want ErrChunkNotFound", err)
	}
	if _, err := s.Chunk(context.Background(), ChunkCoord{X: 7, Z: 7}); err != nil {
		t.Fatalf("Chunk: %v", err)
	}
	if _, err := s.Cached(ChunkCoord{X: 7, Z: 7}); err != nil {
		t.Fatalf("Cached after Chunk: %v", err)
	}
}

func TestStreamerWritesPreviews(t *testing.T) {
	dir := t.TempDir()
	s := NewStreamer(newCountingGenerator(), StreamerOptions{RenderDistance: 1, PreviewDir: dir, Logger: quietLogger()})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := s.Chunk(ctx, ChunkCoord{X: -1, Z: 2}); err != nil {
		t.Fatalf("Chunk: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	file, err := os.Open(filepath.Join(dir, "chunk_-1_2.png"))
	if err != nil {
		t.Fatalf("open preview: %v", err)
	}
	defer file.Close()
	img, err := png.Decode(file)
	if err != nil {
		t.Fatalf("decode preview: %v", err)
	}
	if b := img.Bounds(); b.Dx() != ChunkSize*previewPixelsPerUnit || b.Dy() != b.Dx() {
		t.Fatalf("preview bounds = %v", b)
	}
}

func TestSaveChunkPreviewColoursObjects(t *testing.T) {
	dir := t.TempDir()
	chunk := &ChunkData{X: 0, Z: 0, Objects: []WorldObject{{
		ID:       "0_0_0",
		Kind:     KindTree,
		Position: mgl64.Vec3{16, 0, 16},
		Scale:    mgl64.Vec3{1, 1, 1},
	}}}
	if err := SaveChunkPreview(chunk, dir); err != nil {
		t.Fatalf("SaveChunkPreview: %v", err)
	}
	file, err := os.Open(filepath.Join(dir, "chunk_0_0.png"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer file.Close()
	img, err := png.Decode(file)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	// Sample just off centre to avoid the yaw tick.
	r, g, b, _ := img.At(16*previewPixelsPerUnit, 16*previewPixelsPerUnit+3).RGBA()
	want, _ := parseHexColor(kindAppearance[KindTree])
	if uint8(r>>8) != want.R || uint8(g>>8) != want.G || uint8(b>>8) != want.B {
		t.Fatalf("disc colour = %d,%d,%d, want %v", r>>8, g>>8, b>>8, want)
	}

	if err := SaveChunkPreview(nil, dir); err == nil {
		t.Fatalf("nil chunk accepted")
	}
	if err := SaveChunkPreview(chunk, ""); err == nil {
		t.Fatalf("empty directory accepted")
	}
}
