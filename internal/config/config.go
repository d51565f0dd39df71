package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"gopkg.in/yaml.v3"

	"goblet/internal/rng"
	"goblet/internal/terrain"
	"goblet/internal/world"
)

// Duration is a JSON-friendly wrapper around time.Duration that accepts human
// readable strings such as "150ms" in configuration files while still
// allowing numeric representations when necessary.
type Duration time.Duration

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// MarshalJSON encodes the duration using the canonical string representation.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON decodes a duration from either a string (e.g. "250ms") or a
// numeric value representing nanoseconds. Empty strings and null values decode
// to zero.
func (d *Duration) UnmarshalJSON(b []byte) error {
	if len(b) == 0 {
		return fmt.Errorf("duration: empty value")
	}
	if string(b) == "null" {
		*d = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("duration: decode string: %w", err)
		}
		return d.parse(s)
	}
	var n int64
	if err := json.Unmarshal(b, &n); err == nil {
		*d = Duration(time.Duration(n))
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err == nil {
		*d = Duration(time.Duration(f))
		return nil
	}
	return fmt.Errorf("duration: invalid value %s", string(b))
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML accepts the same forms as UnmarshalJSON.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration: expected scalar at line %d", value.Line)
	}
	switch value.ShortTag() {
	case "!!null":
		*d = 0
		return nil
	case "!!int":
		var n int64
		if err := value.Decode(&n); err != nil {
			return fmt.Errorf("duration: %w", err)
		}
		*d = Duration(time.Duration(n))
		return nil
	case "!!float":
		var f float64
		if err := value.Decode(&f); err != nil {
			return fmt.Errorf("duration: %w", err)
		}
		*d = Duration(time.Duration(f))
		return nil
	}
	return d.parse(value.Value)
}

func (d *Duration) parse(s string) error {
	if s == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("duration: parse %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (Duration) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		OneOf: []*jsonschema.Schema{
			{Type: "string", Description: "Go duration such as \"150ms\""},
			{Type: "integer", Description: "nanoseconds"},
		},
	}
}

// Config captures the tunable parameters of the world generation service.
type Config struct {
	Server   ServerConfig   `json:"server" yaml:"server"`
	World    WorldConfig    `json:"world" yaml:"world"`
	Noise    NoiseConfig    `json:"noise" yaml:"noise"`
	Streamer StreamerConfig `json:"streamer" yaml:"streamer"`
	Storage  StorageConfig  `json:"storage" yaml:"storage"`
	Preview  PreviewConfig  `json:"preview" yaml:"preview"`
	Game     GameConfig     `json:"game" yaml:"game"`
}

type ServerConfig struct {
	Listen            string   `json:"listen" yaml:"listen"`                       // ":8080"
	TickRate          Duration `json:"tickRate" yaml:"tickRate"`                   // simulation step, e.g. "33ms"
	StateStreamRate   Duration `json:"stateStreamRate" yaml:"stateStreamRate"`     // how often sessions receive state
	KeepAliveInterval Duration `json:"keepAliveInterval" yaml:"keepAliveInterval"` // 0 disables keep alives
	WriteTimeout      Duration `json:"writeTimeout" yaml:"writeTimeout"`
	ShutdownTimeout   Duration `json:"shutdownTimeout" yaml:"shutdownTimeout"`
	MaxMessageBytes   int64    `json:"maxMessageBytes" yaml:"maxMessageBytes"`
}

type WorldConfig struct {
	Seed    rng.Seed `json:"seed" yaml:"seed"`
	Seeding string   `json:"seeding" yaml:"seeding"` // "pure" or "legacy"
	// DebugLogging logs every generated chunk.
	DebugLogging bool `json:"debugLogging" yaml:"debugLogging"`
}

type NoiseConfig struct {
	Algorithm   string  `json:"algorithm" yaml:"algorithm"`
	Octaves     int     `json:"octaves" yaml:"octaves"`
	Persistence float64 `json:"persistence" yaml:"persistence"`
	Lacunarity  float64 `json:"lacunarity" yaml:"lacunarity"`
	Scale       float64 `json:"scale" yaml:"scale"`
}

// FbmOptions converts the section to sampling options.
func (n NoiseConfig) FbmOptions() terrain.FbmOptions {
	return terrain.FbmOptions{
		Octaves:     n.Octaves,
		Persistence: n.Persistence,
		Lacunarity:  n.Lacunarity,
		Scale:       n.Scale,
	}
}

type StreamerConfig struct {
	RenderDistance int `json:"renderDistance" yaml:"renderDistance"`
	Workers        int `json:"workers" yaml:"workers"` // 0 picks GOMAXPROCS*2
}

type StorageConfig struct {
	Backend string `json:"backend" yaml:"backend"` // "memory" or "disk"
	Path    string `json:"path" yaml:"path"`
}

type PreviewConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Dir     string `json:"dir" yaml:"dir"`
}

type GameConfig struct {
	// MaxFrameDelta caps one simulation step after a stall.
	MaxFrameDelta Duration `json:"maxFrameDelta" yaml:"maxFrameDelta"`
}

// Load reads configuration from a JSON or YAML file if provided. The format
// follows the extension; anything other than .yaml/.yml is JSON. An empty
// path returns defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config yaml: %w", err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func Default() *Config {
	defaults := terrain.DefaultFbmOptions()
	return &Config{
		Server: ServerConfig{
			Listen:            ":8080",
			TickRate:          Duration(33 * time.Millisecond),
			StateStreamRate:   Duration(200 * time.Millisecond),
			KeepAliveInterval: Duration(5 * time.Second),
			WriteTimeout:      Duration(10 * time.Second),
			ShutdownTimeout:   Duration(5 * time.Second),
			MaxMessageBytes:   64 * 1024,
		},
		World: WorldConfig{
			Seed:    rng.StringSeed("glitch-goblet-seed"),
			Seeding: string(terrain.SeedingPure),
		},
		Noise: NoiseConfig{
			Algorithm:   string(terrain.AlgorithmSimplex),
			Octaves:     defaults.Octaves,
			Persistence: defaults.Persistence,
			Lacunarity:  defaults.Lacunarity,
			Scale:       defaults.Scale,
		},
		Streamer: StreamerConfig{
			RenderDistance: world.DefaultRenderDistance,
		},
		Storage: StorageConfig{
			Backend: world.StoreMemory,
		},
		Preview: PreviewConfig{
			Dir: "previews",
		},
		Game: GameConfig{
			MaxFrameDelta: Duration(100 * time.Millisecond),
		},
	}
}

func (c *Config) Validate() error {
	if c.Server.Listen == "" {
		return errors.New("server.listen must be set")
	}
	if c.Server.TickRate <= 0 {
		return errors.New("server.tickRate must be positive")
	}
	if c.Server.StateStreamRate < c.Server.TickRate {
		return errors.New("server.stateStreamRate must be >= tickRate")
	}
	if c.Server.KeepAliveInterval < 0 {
		return errors.New("server.keepAliveInterval cannot be negative")
	}
	if c.Server.WriteTimeout < 0 || c.Server.ShutdownTimeout < 0 {
		return errors.New("server timeouts cannot be negative")
	}
	if c.Server.MaxMessageBytes < 0 {
		return errors.New("server.maxMessageBytes cannot be negative")
	}
	if _, err := terrain.ParseSeedingMode(c.World.Seeding); err != nil {
		return errors.New("world.seeding must be pure or legacy")
	}
	if _, err := terrain.ParseAlgorithm(c.Noise.Algorithm); err != nil {
		return fmt.Errorf("noise.algorithm must be one of %v", terrain.Algorithms())
	}
	if c.Noise.Octaves <= 0 {
		return errors.New("noise.octaves must be positive")
	}
	if c.Noise.Scale <= 0 {
		return errors.New("noise.scale must be positive")
	}
	if c.Noise.Persistence < 0 || c.Noise.Lacunarity <= 0 {
		return errors.New("noise persistence cannot be negative and lacunarity must be positive")
	}
	if c.Streamer.RenderDistance <= 0 {
		return errors.New("streamer.renderDistance must be positive")
	}
	if c.Streamer.Workers < 0 {
		return errors.New("streamer.workers cannot be negative")
	}
	switch c.Storage.Backend {
	case world.StoreMemory:
	case world.StoreDisk:
		if c.Storage.Path == "" {
			return errors.New("storage.path must be set for the disk backend")
		}
	default:
		return errors.New("storage.backend must be memory or disk")
	}
	if c.Preview.Enabled && c.Preview.Dir == "" {
		return errors.New("preview.dir must be set when previews are enabled")
	}
	if c.Game.MaxFrameDelta < 0 {
		return errors.New("game.maxFrameDelta cannot be negative")
	}
	return nil
}

// PreviewDir is the preview output directory, or "" when disabled.
func (c *Config) PreviewDir() string {
	if !c.Preview.Enabled {
		return ""
	}
	return c.Preview.Dir
}
