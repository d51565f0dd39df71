package terrain

import (
	"errors"
	"fmt"
	"math"

	"github.com/aquilax/go-perlin"
	"github.com/ojrac/opensimplex-go"

	"goblet/internal/rng"
)

var (
	// ErrInvalidArgument marks caller errors such as a non-positive octave count.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrUnknownAlgorithm is returned for unrecognised noise algorithm names.
	ErrUnknownAlgorithm = errors.New("unknown noise algorithm")
)

// DefaultScale is the sampling scale used when callers have no preference.
// Smaller scales give larger, smoother features.
const DefaultScale = 0.01

// Algorithm names a coherent-noise implementation.
type Algorithm string

const (
	// AlgorithmSimplex is the reference algorithm; chunk content is only
	// comparable across implementations when it is used.
	AlgorithmSimplex     Algorithm = "simplex"
	AlgorithmOpenSimplex Algorithm = "opensimplex"
	AlgorithmPerlin      Algorithm = "perlin"
)

// Algorithms lists the supported algorithm names.
func Algorithms() []Algorithm {
	return []Algorithm{AlgorithmSimplex, AlgorithmOpenSimplex, AlgorithmPerlin}
}

// ParseAlgorithm validates an algorithm name. The empty string selects simplex.
func ParseAlgorithm(name string) (Algorithm, error) {
	if name == "" {
		return AlgorithmSimplex, nil
	}
	for _, a := range Algorithms() {
		if string(a) == name {
			return a, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAlgorithm, name)
}

type sampler interface {
	Noise2D(x, y float64) float64
}

// Field samples 2D coherent noise from a table fixed at construction.
// It holds no mutable state and is safe for concurrent use.
type Field struct {
	algorithm Algorithm
	source    sampler
}

// NewField builds a noise field for seed using the named algorithm.
func NewField(seed rng.Seed, algorithm Algorithm) (*Field, error) {
	if algorithm == "" {
		algorithm = AlgorithmSimplex
	}
	var source sampler
	switch algorithm {
	case AlgorithmSimplex:
		source = newSimplex(rng.New(seed))
	case AlgorithmOpenSimplex:
		source = clampedSampler{openSimplexSampler{noise: opensimplex.New(int64(seed.State()))}}
	case AlgorithmPerlin:
		source = clampedSampler{perlin.NewPerlin(2, 2, 3, int64(seed.State()))}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, algorithm)
	}
	return &Field{algorithm: algorithm, source: source}, nil
}

func (f *Field) Algorithm() Algorithm {
	return f.algorithm
}

// Sample returns noise at (x*scale, y*scale), nominally in [-1, 1].
func (f *Field) Sample(x, y, scale float64) float64 {
	return f.source.Noise2D(x*scale, y*scale)
}

// FbmOptions configures fractal sampling.
type FbmOptions struct {
	Octaves     int
	Persistence float64
	Lacunarity  float64
	Scale       float64
}

func DefaultFbmOptions() FbmOptions {
	return FbmOptions{
		Octaves:     4,
		Persistence: 0.5,
		Lacunarity:  2,
		Scale:       DefaultScale,
	}
}

// Fbm sums opts.Octaves samples with geometrically growing frequency and
// shrinking amplitude, normalised by the summed amplitude. A non-positive
// octave count is rejected.
func (f *Field) Fbm(x, y float64, opts FbmOptions) (float64, error) {
	if opts.Octaves <= 0 {
		return 0, fmt.Errorf("%w: octaves must be positive, got %d", ErrInvalidArgument, opts.Octaves)
	}

	frequency := opts.Scale
	amplitude := 1.0
	noiseSum := 0.0
	maxAmplitude := 0.0

	for i := 0; i < opts.Octaves; i++ {
		noiseSum += f.source.Noise2D(x*frequency, y*frequency) * amplitude
		maxAmplitude += amplitude
		amplitude *= opts.Persistence
		frequency *= opts.Lacunarity
	}

	if maxAmplitude == 0 {
		return 0, nil
	}
	return noiseSum / maxAmplitude, nil
}

var (
	sqrt3    = math.Sqrt(3.0)
	skewF2   = 0.5 * (sqrt3 - 1.0)
	unskewG2 = (3.0 - sqrt3) / 6.0
)

var grad2 = [24]float64{
	1, 1, -1, 1, 1, -1, -1, -1,
	1, 0, -1, 0, 1, 0, -1, 0,
	0, 1, 0, -1, 0, 1, 0, -1,
}

// simplex is 2D simplex noise over a permutation shuffled by the seeded
// LCG. Arithmetic order is kept stable so outputs match bit for bit on
// platforms without fused multiply-add.
type simplex struct {
	perm  [512]uint8
	gradX [512]float64
	gradY [512]float64
}

func newSimplex(r *rng.Random) *simplex {
	s := &simplex{}
	for i := 0; i < 256; i++ {
		s.perm[i] = uint8(i)
	}
	for i := 0; i < 255; i++ {
		j := i + int(r.Next()*float64(256-i))
		s.perm[i], s.perm[j] = s.perm[j], s.perm[i]
	}
	for i := 256; i < 512; i++ {
		s.perm[i] = s.perm[i-256]
	}
	for i, v := range s.perm {
		s.gradX[i] = grad2[int(v%12)*2]
		s.gradY[i] = grad2[int(v%12)*2+1]
	}
	return s
}

func (s *simplex) Noise2D(x, y float64) float64 {
	var n0, n1, n2 float64

	skew := (x + y) * skewF2
	i := int(math.Floor(x + skew))
	j := int(math.Floor(y + skew))
	t := float64(i+j) * unskewG2
	x0 := x - (float64(i) - t)
	y0 := y - (float64(j) - t)

	i1, j1 := 0, 1
	if x0 > y0 {
		i1, j1 = 1, 0
	}

	x1 := x0 - float64(i1) + unskewG2
	y1 := y0 - float64(j1) + unskewG2
	x2 := x0 - 1.0 + 2.0*unskewG2
	y2 := y0 - 1.0 + 2.0*unskewG2

	ii := i & 255
	jj := j & 255

	if t0 := 0.5 - x0*x0 - y0*y0; t0 >= 0 {
		gi := ii + int(s.perm[jj])
		t0 *= t0
		n0 = t0 * t0 * (s.gradX[gi]*x0 + s.gradY[gi]*y0)
	}
	if t1 := 0.5 - x1*x1 - y1*y1; t1 >= 0 {
		gi := ii + i1 + int(s.perm[jj+j1])
		t1 *= t1
		n1 = t1 * t1 * (s.gradX[gi]*x1 + s.gradY[gi]*y1)
	}
	if t2 := 0.5 - x2*x2 - y2*y2; t2 >= 0 {
		gi := ii + 1 + int(s.perm[jj+1])
		t2 *= t2
		n2 = t2 * t2 * (s.gradX[gi]*x2 + s.gradY[gi]*y2)
	}

	return 70.0 * (n0 + n1 + n2)
}

type openSimplexSampler struct {
	noise opensimplex.Noise
}

func (o openSimplexSampler) Noise2D(x, y float64) float64 {
	return o.noise.Eval2(x, y)
}

// clampedSampler keeps library outputs inside the [-1, 1] contract.
type clampedSampler struct {
	sampler
}

func (c clampedSampler) Noise2D(x, y float64) float64 {
	v := c.sampler.Noise2D(x, y)
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}
