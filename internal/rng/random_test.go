package rng

import (
	"encoding/json"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestNextMatchesReferenceSequence(t *testing.T) {
	tests := []struct {
		name string
		seed Seed
		want []float64
	}{
		{
			name: "zero",
			seed: IntSeed(0),
			want: []float64{0.23606797284446657, 0.278566908556968, 0.8195337599609047},
		},
		{
			name: "integer",
			seed: IntSeed(12345),
			want: []float64{0.02040268573909998, 0.01654784823767841, 0.5431557944975793},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(tt.seed)
			for i, want := range tt.want {
				if got := r.Next(); got != want {
					t.Fatalf("draw %d = %v, want %v", i, got, want)
				}
			}
		})
	}
}

func TestNextStaysInUnitInterval(t *testing.T) {
	seeds := []Seed{IntSeed(0), IntSeed(1), IntSeed(4294967295), StringSeed("glitch-goblet-seed"), StringSeed("")}
	for _, seed := range seeds {
		r := New(seed)
		for i := 0; i < 10_000; i++ {
			v := r.Next()
			if v < 0 || v >= 1 {
				t.Fatalf("seed %s draw %d = %v, outside [0,1)", seed, i, v)
			}
		}
	}
}

func TestRangeStaysInBounds(t *testing.T) {
	r := New(StringSeed("range"))
	for i := 0; i < 10_000; i++ {
		v := r.Range(-3.5, 12)
		if v < -3.5 || v >= 12 {
			t.Fatalf("Range draw %d = %v, outside [-3.5,12)", i, v)
		}
	}
}

func TestChanceExtremes(t *testing.T) {
	r := New(IntSeed(7))
	for i := 0; i < 1000; i++ {
		if r.Chance(0) {
			t.Fatalf("Chance(0) returned true")
		}
		if r.Chance(-1) {
			t.Fatalf("Chance(-1) returned true")
		}
		if !r.Chance(1) {
			t.Fatalf("Chance(1) returned false")
		}
	}
}

func TestHashString(t *testing.T) {
	tests := []struct {
		in   string
		want uint32
	}{
		{"", 0},
		{"abc", 96354},
		{"glitch-goblet-seed", 56251589},
	}
	for _, tt := range tests {
		if got := HashString(tt.in); got != tt.want {
			t.Fatalf("HashString(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestStringSeedMatchesHashedIntegerSeed(t *testing.T) {
	a := New(StringSeed("abc"))
	b := New(IntSeed(96354))
	for i := 0; i < 100; i++ {
		if x, y := a.Next(), b.Next(); x != y {
			t.Fatalf("draw %d diverged: %v vs %v", i, x, y)
		}
	}
}

func TestIntegerSeedWrapsToThirtyTwoBits(t *testing.T) {
	if got := IntSeed(1 << 32).State(); got != 0 {
		t.Fatalf("IntSeed(2^32).State() = %d, want 0", got)
	}
	if got := IntSeed(-1).State(); got != 4294967295 {
		t.Fatalf("IntSeed(-1).State() = %d, want 4294967295", got)
	}
}

func TestSeedJSONRoundTrip(t *testing.T) {
	tests := []struct {
		raw  string
		want Seed
	}{
		{`1337`, IntSeed(1337)},
		{`"glitch-goblet-seed"`, StringSeed("glitch-goblet-seed")},
		{`"1337"`, StringSeed("1337")},
	}
	for _, tt := range tests {
		var got Seed
		if err := json.Unmarshal([]byte(tt.raw), &got); err != nil {
			t.Fatalf("unmarshal %s: %v", tt.raw, err)
		}
		if got != tt.want {
			t.Fatalf("unmarshal %s = %#v, want %#v", tt.raw, got, tt.want)
		}
		out, err := json.Marshal(got)
		if err != nil {
			t.Fatalf("marshal %s: %v", tt.raw, err)
		}
		if string(out) != tt.raw {
			t.Fatalf("marshal = %s, want %s", out, tt.raw)
		}
	}

	var bad Seed
	if err := json.Unmarshal([]byte(`1.5`), &bad); err == nil {
		t.Fatalf("expected fractional seed to be rejected")
	}
}

func TestSeedYAML(t *testing.T) {
	var doc struct {
		A Seed `yaml:"a"`
		B Seed `yaml:"b"`
		C Seed `yaml:"c"`
	}
	input := "a: 42\nb: glitch-goblet-seed\nc: \"42\"\n"
	if err := yaml.Unmarshal([]byte(input), &doc); err != nil {
		t.Fatalf("unmarshal yaml: %v", err)
	}
	if doc.A != IntSeed(42) {
		t.Fatalf("a = %#v, want integer 42", doc.A)
	}
	if doc.B != StringSeed("glitch-goblet-seed") {
		t.Fatalf("b = %#v", doc.B)
	}
	if doc.C != StringSeed("42") {
		t.Fatalf("quoted c should stay a string, got %#v", doc.C)
	}
}
