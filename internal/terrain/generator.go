package terrain

import (
	"context"
	"fmt"
	"log"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/go-gl/mathgl/mgl64"

	"goblet/internal/rng"
	"goblet/internal/world"
)

const (
	minObjects       = 5
	maxObjects       = 15
	densityScale     = 0.05
	densityThreshold = 0.2
	grassThreshold   = 0.9
	rockThreshold    = 0.7
	minObjectScale   = 0.8
	maxObjectScale   = 1.5
)

// SeedingMode selects how the chunk-local random stream is derived.
type SeedingMode string

const (
	// SeedingPure derives every chunk stream from (seed, cx, cz) only.
	SeedingPure SeedingMode = "pure"
	// SeedingLegacy consumes one draw of the shared base stream per chunk,
	// so chunk content depends on generation order.
	SeedingLegacy SeedingMode = "legacy"
)

// ParseSeedingMode validates a mode name. The empty string selects pure.
func ParseSeedingMode(name string) (SeedingMode, error) {
	switch SeedingMode(name) {
	case "", SeedingPure:
		return SeedingPure, nil
	case SeedingLegacy:
		return SeedingLegacy, nil
	}
	return "", fmt.Errorf("%w: unknown seeding mode %q", ErrInvalidArgument, name)
}

// Generator maps chunk coordinates to placed scenery.
type Generator struct {
	seed   rng.Seed
	field  *Field
	mode   SeedingMode
	logger *log.Logger
	debug  bool

	// firstDraw is the base stream's first value, used by pure seeding.
	firstDraw float64

	mu   sync.Mutex
	base *rng.Random
}

type settings struct {
	algorithm Algorithm
	mode      SeedingMode
	logger    *log.Logger
	debug     bool
}

type Option func(*settings)

func WithAlgorithm(a Algorithm) Option {
	return func(s *settings) { s.algorithm = a }
}

func WithSeeding(mode SeedingMode) Option {
	return func(s *settings) { s.mode = mode }
}

func WithLogger(logger *log.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// WithDebugLogging logs every generated chunk.
func WithDebugLogging(enabled bool) Option {
	return func(s *settings) { s.debug = enabled }
}

// NewGenerator creates the session's noise field and base stream from seed.
func NewGenerator(seed rng.Seed, opts ...Option) (*Generator, error) {
	cfg := settings{algorithm: AlgorithmSimplex, mode: SeedingPure}
	for _, opt := range opts {
		opt(&cfg)
	}
	mode, err := ParseSeedingMode(string(cfg.mode))
	if err != nil {
		return nil, err
	}
	field, err := NewField(seed, cfg.algorithm)
	if err != nil {
		return nil, err
	}
	if cfg.logger == nil {
		cfg.logger = log.New(log.Writer(), "terrain ", log.LstdFlags|log.Lmicroseconds)
	}
	return &Generator{
		seed:      seed,
		field:     field,
		mode:      mode,
		logger:    cfg.logger,
		debug:     cfg.debug,
		firstDraw: rng.New(seed).Next(),
		base:      rng.New(seed),
	}, nil
}

func (g *Generator) Seed() rng.Seed {
	return g.seed
}

func (g *Generator) Mode() SeedingMode {
	return g.mode
}

func (g *Generator) Field() *Field {
	return g.field
}

// OrderDependent reports whether chunk content depends on call order.
// Streamers must generate sequentially when it does.
func (g *Generator) OrderDependent() bool {
	return g.mode == SeedingLegacy
}

// ChunkKey returns the canonical "cx,cz" key.
func (g *Generator) ChunkKey(cx, cz int) string {
	return world.ChunkCoord{X: cx, Z: cz}.Key()
}

// GenerateChunk produces the objects of chunk (cx, cz). In pure mode the
// result depends only on the seed and coordinates; in legacy mode it also
// consumes one draw from the shared base stream.
func (g *Generator) GenerateChunk(cx, cz int) world.ChunkData {
	local := rng.New(rng.StringSeed(chunkSeed(g.baseDraw(), cx, cz)))
	return populateChunk(g.field, local, cx, cz)
}

// Generate satisfies world.Generator.
func (g *Generator) Generate(ctx context.Context, coord world.ChunkCoord) (*world.ChunkData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	chunk := g.GenerateChunk(coord.X, coord.Z)
	if g.debug {
		counts := chunk.CountByKind()
		g.logger.Printf("chunk %s generated: %d objects (tree %d, rock %d, grass %d)",
			coord.Key(), len(chunk.Objects), counts[world.KindTree], counts[world.KindRock], counts[world.KindGrass])
	}
	return &chunk, nil
}

func (g *Generator) baseDraw() float64 {
	if g.mode != SeedingLegacy {
		return g.firstDraw
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.base.Next()
}

// chunkSeed builds "{draw}_{cx}_{cz}" with the draw printed the way a
// JavaScript runtime prints numbers, so string hashes match other clients.
func chunkSeed(draw float64, cx, cz int) string {
	return formatNumber(draw) + "_" + strconv.Itoa(cx) + "_" + strconv.Itoa(cz)
}

// formatNumber prints the shortest round-trip decimal, switching to
// exponent form below 1e-6 with an unpadded exponent ("2.5e-7").
func formatNumber(v float64) string {
	if v == 0 {
		return "0"
	}
	abs := math.Abs(v)
	if abs >= 1e-6 && abs < 1e21 {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	s := strconv.FormatFloat(v, 'e', -1, 64)
	mantissa, exp, _ := strings.Cut(s, "e")
	sign, digits := exp[:1], strings.TrimLeft(exp[1:], "0")
	if digits == "" {
		digits = "0"
	}
	return mantissa + "e" + sign + digits
}

type densityField interface {
	Sample(x, y, scale float64) float64
}

type drawer interface {
	Next() float64
	Range(min, max float64) float64
}

func populateChunk(field densityField, draws drawer, cx, cz int) world.ChunkData {
	count := int(math.Floor(draws.Range(minObjects, maxObjects)))
	chunk := world.ChunkData{X: cx, Z: cz, Objects: make([]world.WorldObject, 0, count)}

	for i := 0; i < count; i++ {
		lx := draws.Range(0, world.ChunkSize)
		lz := draws.Range(0, world.ChunkSize)
		wx := float64(cx*world.ChunkSize) + lx
		wz := float64(cz*world.ChunkSize) + lz

		if field.Sample(wx, wz, densityScale) <= densityThreshold {
			continue
		}

		kind := classifyObject(draws.Next())
		scale := mgl64.Vec3{
			draws.Range(minObjectScale, maxObjectScale),
			draws.Range(minObjectScale, maxObjectScale),
			draws.Range(minObjectScale, maxObjectScale),
		}
		yaw := draws.Range(0, 2*math.Pi)

		chunk.Objects = append(chunk.Objects, world.WorldObject{
			ID:       objectID(cx, cz, i),
			Kind:     kind,
			Position: mgl64.Vec3{wx, 0, wz},
			Scale:    scale,
			Rotation: mgl64.Vec3{0, yaw, 0},
		})
	}
	return chunk
}

// classifyObject maps a type draw to a kind. Grass is checked before rock;
// the thresholds are kept literally for compatibility.
func classifyObject(v float64) world.ObjectKind {
	switch {
	case v > grassThreshold:
		return world.KindGrass
	case v > rockThreshold:
		return world.KindRock
	default:
		return world.KindTree
	}
}

func objectID(cx, cz, i int) string {
	return strconv.Itoa(cx) + "_" + strconv.Itoa(cz) + "_" + strconv.Itoa(i)
}
