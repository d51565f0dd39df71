package world

import (
	"encoding/json"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

func TestChunkKeyRoundTrip(t *testing.T) {
	cases := []struct {
		coord ChunkCoord
		key   string
	}{
		{ChunkCoord{X: 0, Z: 0}, "0,0"},
		{ChunkCoord{X: 3, Z: -2}, "3,-2"},
		{ChunkCoord{X: -17, Z: 40}, "-17,40"},
	}
	for _, tc := range cases {
		if got := tc.coord.Key(); got != tc.key {
			t.Fatalf("Key(%+v) = %q, want %q", tc.coord, got, tc.key)
		}
		parsed, err := ParseChunkKey(tc.key)
		if err != nil {
			t.Fatalf("ParseChunkKey(%q): %v", tc.key, err)
		}
		if parsed != tc.coord {
			t.Fatalf("ParseChunkKey(%q) = %+v, want %+v", tc.key, parsed, tc.coord)
		}
	}

	for _, bad := range []string{"", "3", "a,1", "1,b"} {
		if _, err := ParseChunkKey(bad); err == nil {
			t.Fatalf("ParseChunkKey(%q) succeeded", bad)
		}
	}
}

func TestChunkCoordAtFloorsNegativePositions(t *testing.T) {
	cases := []struct {
		pos  mgl64.Vec3
		want ChunkCoord
	}{
		{mgl64.Vec3{0, 0, 0}, ChunkCoord{X: 0, Z: 0}},
		{mgl64.Vec3{31.9, 5, 31.9}, ChunkCoord{X: 0, Z: 0}},
		{mgl64.Vec3{32, 0, -0.1}, ChunkCoord{X: 1, Z: -1}},
		{mgl64.Vec3{-32, 0, -32.5}, ChunkCoord{X: -1, Z: -2}},
	}
	for _, tc := range cases {
		got := ChunkCoordAt(tc.pos)
		if got != tc.want {
			t.Fatalf("ChunkCoordAt(%v) = %+v, want %+v", tc.pos, got, tc.want)
		}
		if !got.Contains(tc.pos) {
			t.Fatalf("%+v does not contain %v", got, tc.pos)
		}
	}
	if origin := (ChunkCoord{X: -1, Z: 2}).Origin(); origin != (mgl64.Vec3{-32, 0, 64}) {
		t.Fatalf("Origin = %v", origin)
	}
}

func TestObjectKindText(t *testing.T) {
	for _, kind := range ObjectKinds() {
		text, err := kind.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText(%v): %v", kind, err)
		}
		var back ObjectKind
		if err := back.UnmarshalText(text); err != nil {
			t.Fatalf("UnmarshalText(%s): %v", text, err)
		}
		if back != kind {
			t.Fatalf("round trip %v -> %s -> %v", kind, text, back)
		}
	}
	if _, err := ParseObjectKind("bush"); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
	if _, err := ObjectKind(9).MarshalText(); err == nil {
		t.Fatalf("expected error marshalling out of range kind")
	}
}

func TestWorldObjectJSONShape(t *testing.T) {
	obj := WorldObject{
		ID:       "0_0_1",
		Kind:     KindRock,
		Position: mgl64.Vec3{1, 0, 2},
		Scale:    mgl64.Vec3{1, 1, 1},
		Rotation: mgl64.Vec3{0, 0.5, 0},
	}
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"id":"0_0_1","type":"rock","position":[1,0,2],"scale":[1,1,1],"rotation":[0,0.5,0]}`
	if string(data) != want {
		t.Fatalf("json = %s, want %s", data, want)
	}
}

func TestChunkCloneIsDeep(t *testing.T) {
	chunk := &ChunkData{X: 1, Z: 2, Objects: []WorldObject{{ID: "1_2_0", Kind: KindTree}}}
	dup := chunk.Clone()
	dup.Objects[0].Kind = KindGrass
	if chunk.Objects[0].Kind != KindTree {
		t.Fatalf("clone shares object storage")
	}
	counts := chunk.CountByKind()
	if counts[KindTree] != 1 || counts[KindGrass] != 0 {
		t.Fatalf("CountByKind = %v", counts)
	}
}
