package world

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/invopop/jsonschema"
)

// ChunkSize is the side length of a chunk in world units.
const ChunkSize = 32

// ObjectKind enumerates the scenery placed by the generator. The set is
// closed: renderers can switch over it without a default case.
type ObjectKind uint8

const (
	KindTree ObjectKind = iota
	KindRock
	KindGrass
)

var objectKindNames = [...]string{
	KindTree:  "tree",
	KindRock:  "rock",
	KindGrass: "grass",
}

// ObjectKinds lists every kind in declaration order.
func ObjectKinds() []ObjectKind {
	return []ObjectKind{KindTree, KindRock, KindGrass}
}

func (k ObjectKind) String() string {
	if int(k) < len(objectKindNames) {
		return objectKindNames[k]
	}
	return fmt.Sprintf("ObjectKind(%d)", uint8(k))
}

// ParseObjectKind maps a kind name back to its value.
func ParseObjectKind(name string) (ObjectKind, error) {
	for i, n := range objectKindNames {
		if n == name {
			return ObjectKind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown object kind %q", name)
}

// MarshalText encodes the kind by name. JSON and gob both use it.
func (k ObjectKind) MarshalText() ([]byte, error) {
	if int(k) >= len(objectKindNames) {
		return nil, fmt.Errorf("unknown object kind %d", uint8(k))
	}
	return []byte(objectKindNames[k]), nil
}

func (k *ObjectKind) UnmarshalText(b []byte) error {
	kind, err := ParseObjectKind(string(b))
	if err != nil {
		return err
	}
	*k = kind
	return nil
}

func (ObjectKind) JSONSchema() *jsonschema.Schema {
	enum := make([]interface{}, 0, len(objectKindNames))
	for _, name := range objectKindNames {
		enum = append(enum, name)
	}
	return &jsonschema.Schema{Type: "string", Enum: enum}
}

// WorldObject is one placed piece of scenery. Rotation is an euler triple
// in radians; only yaw (Y) varies.
type WorldObject struct {
	ID       string     `json:"id"`
	Kind     ObjectKind `json:"type"`
	Position mgl64.Vec3 `json:"position"`
	Scale    mgl64.Vec3 `json:"scale"`
	Rotation mgl64.Vec3 `json:"rotation"`
}

// ChunkData is the generated content of one chunk, objects in placement
// order.
type ChunkData struct {
	X       int           `json:"x"`
	Z       int           `json:"z"`
	Objects []WorldObject `json:"objects"`
}

func (c *ChunkData) Coord() ChunkCoord {
	return ChunkCoord{X: c.X, Z: c.Z}
}

// Clone returns a deep copy so cached chunks cannot be mutated by callers.
func (c *ChunkData) Clone() *ChunkData {
	if c == nil {
		return nil
	}
	dup := &ChunkData{X: c.X, Z: c.Z}
	if c.Objects != nil {
		dup.Objects = make([]WorldObject, len(c.Objects))
		copy(dup.Objects, c.Objects)
	}
	return dup
}

// CountByKind tallies objects per kind.
func (c *ChunkData) CountByKind() map[ObjectKind]int {
	counts := make(map[ObjectKind]int, len(objectKindNames))
	for _, obj := range c.Objects {
		counts[obj.Kind]++
	}
	return counts
}
