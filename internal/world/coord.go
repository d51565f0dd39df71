package world

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
)

// ChunkCoord identifies a chunk on the infinite XZ grid.
type ChunkCoord struct {
	X int `json:"x"`
	Z int `json:"z"`
}

// Key returns the canonical "x,z" chunk key.
func (c ChunkCoord) Key() string {
	return strconv.Itoa(c.X) + "," + strconv.Itoa(c.Z)
}

func (c ChunkCoord) String() string {
	return c.Key()
}

// ParseChunkKey is the inverse of ChunkCoord.Key.
func ParseChunkKey(key string) (ChunkCoord, error) {
	xs, zs, ok := strings.Cut(key, ",")
	if !ok {
		return ChunkCoord{}, fmt.Errorf("chunk key %q: missing separator", key)
	}
	x, err := strconv.Atoi(xs)
	if err != nil {
		return ChunkCoord{}, fmt.Errorf("chunk key %q: %w", key, err)
	}
	z, err := strconv.Atoi(zs)
	if err != nil {
		return ChunkCoord{}, fmt.Errorf("chunk key %q: %w", key, err)
	}
	return ChunkCoord{X: x, Z: z}, nil
}

// Origin returns the world position of the chunk's minimum corner.
func (c ChunkCoord) Origin() mgl64.Vec3 {
	return mgl64.Vec3{float64(c.X * ChunkSize), 0, float64(c.Z * ChunkSize)}
}

// Contains reports whether a world position falls inside the chunk.
func (c ChunkCoord) Contains(position mgl64.Vec3) bool {
	return ChunkCoordAt(position) == c
}

// ChunkCoordAt locates the chunk holding a world position.
func ChunkCoordAt(position mgl64.Vec3) ChunkCoord {
	return ChunkCoord{
		X: int(math.Floor(position.X() / ChunkSize)),
		Z: int(math.Floor(position.Z() / ChunkSize)),
	}
}

// ringDistance is the Chebyshev distance between two chunks.
func ringDistance(a, b ChunkCoord) int {
	dx := a.X - b.X
	if dx < 0 {
		dx = -dx
	}
	dz := a.Z - b.Z
	if dz < 0 {
		dz = -dz
	}
	if dx > dz {
		return dx
	}
	return dz
}
