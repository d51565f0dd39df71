package rng

import (
	"encoding/json"
	"fmt"
	"strconv"
	"unicode/utf16"

	"github.com/invopop/jsonschema"
	"gopkg.in/yaml.v3"
)

// Seed is either an integer or a string seed. The zero value is the
// integer seed 0.
type Seed struct {
	text    string
	number  int64
	textual bool
}

// IntSeed returns an integer seed.
func IntSeed(n int64) Seed {
	return Seed{number: n}
}

// StringSeed returns a string seed.
func StringSeed(s string) Seed {
	return Seed{text: s, textual: true}
}

// State returns the initial LCG state for the seed. String seeds are
// reduced with HashString; integer seeds wrap modulo 2^32.
func (s Seed) State() uint32 {
	if s.textual {
		return HashString(s.text)
	}
	return uint32(s.number)
}

func (s Seed) String() string {
	if s.textual {
		return s.text
	}
	return strconv.FormatInt(s.number, 10)
}

// HashString reduces a string to 32 bits with hash = hash*31 + unit over
// its UTF-16 code units, wrapping to a signed 32-bit value at every step,
// and returns the absolute value of the result.
func HashString(str string) uint32 {
	var hash int32
	for _, unit := range utf16.Encode([]rune(str)) {
		hash = hash*31 + int32(unit)
	}
	if hash < 0 {
		return uint32(-int64(hash))
	}
	return uint32(hash)
}

// MarshalJSON encodes string seeds as JSON strings and integer seeds as
// numbers.
func (s Seed) MarshalJSON() ([]byte, error) {
	if s.textual {
		return json.Marshal(s.text)
	}
	return json.Marshal(s.number)
}

// UnmarshalJSON accepts either a JSON string or an integral number.
func (s *Seed) UnmarshalJSON(b []byte) error {
	if len(b) == 0 {
		return fmt.Errorf("seed: empty value")
	}
	if string(b) == "null" {
		*s = Seed{}
		return nil
	}
	if b[0] == '"' {
		var text string
		if err := json.Unmarshal(b, &text); err != nil {
			return fmt.Errorf("seed: decode string: %w", err)
		}
		*s = StringSeed(text)
		return nil
	}
	var n int64
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("seed: invalid value %s", string(b))
	}
	*s = IntSeed(n)
	return nil
}

// MarshalYAML mirrors MarshalJSON.
func (s Seed) MarshalYAML() (any, error) {
	if s.textual {
		return s.text, nil
	}
	return s.number, nil
}

// UnmarshalYAML accepts an integer scalar or any other scalar as a string.
func (s *Seed) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("seed: expected a scalar at line %d", value.Line)
	}
	if value.ShortTag() == "!!int" {
		var n int64
		if err := value.Decode(&n); err != nil {
			return fmt.Errorf("seed: decode integer: %w", err)
		}
		*s = IntSeed(n)
		return nil
	}
	*s = StringSeed(value.Value)
	return nil
}

// JSONSchema describes the seed as an integer or a string.
func (Seed) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Description: "World seed; integers are used directly, strings are hashed.",
		OneOf: []*jsonschema.Schema{
			{Type: "integer"},
			{Type: "string"},
		},
	}
}
