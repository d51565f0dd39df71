package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"goblet/internal/config"
	"goblet/internal/game"
	"goblet/internal/network"
	"goblet/internal/terrain"
	"goblet/internal/world"
)

// maxQueryRadius bounds /chunks so one request cannot generate an
// unbounded area.
const maxQueryRadius = 8

// Server exposes the world generator over HTTP and websocket sessions.
type Server struct {
	cfg       *config.Config
	logger    *log.Logger
	generator *terrain.Generator
	store     world.ChunkStore
	chunks    *world.Streamer
	hub       *network.Hub
	mux       *http.ServeMux
	httpSrv   *http.Server

	closeOnce sync.Once
	closeErr  error
}

func New(cfg *config.Config) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	logger := log.New(log.Writer(), "worldgen ", log.LstdFlags|log.Lmicroseconds)

	s := &Server{cfg: cfg, logger: logger}
	gen, err := s.buildGenerator()
	if err != nil {
		return nil, err
	}
	store, err := world.OpenStore(cfg.Storage.Backend, cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("open chunk store: %w", err)
	}
	s.generator = gen
	s.store = store
	s.chunks = world.NewStreamer(gen, world.StreamerOptions{
		RenderDistance: cfg.Streamer.RenderDistance,
		Workers:        cfg.Streamer.Workers,
		Store:          store,
		PreviewDir:     cfg.PreviewDir(),
		Logger:         logger,
	})

	hub, err := network.NewHub(network.HubConfig{
		NewSession:     s.newSession,
		Logger:         logger,
		WriteWait:      cfg.Server.WriteTimeout.Duration(),
		MaxMessageSize: cfg.Server.MaxMessageBytes,
	})
	if err != nil {
		store.Close()
		return nil, err
	}
	s.hub = hub

	s.mux = http.NewServeMux()
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/chunk", s.handleChunk)
	s.mux.HandleFunc("/chunks", s.handleChunks)
	s.mux.HandleFunc("/noise", s.handleNoise)
	s.mux.Handle("/ws", hub)
	return s, nil
}

func (s *Server) buildGenerator() (*terrain.Generator, error) {
	return NewGenerator(s.cfg, s.logger)
}

// NewGenerator builds the chunk generator described by the world and noise
// sections.
func NewGenerator(cfg *config.Config, logger *log.Logger) (*terrain.Generator, error) {
	algorithm, err := terrain.ParseAlgorithm(cfg.Noise.Algorithm)
	if err != nil {
		return nil, err
	}
	mode, err := terrain.ParseSeedingMode(cfg.World.Seeding)
	if err != nil {
		return nil, err
	}
	return terrain.NewGenerator(cfg.World.Seed,
		terrain.WithAlgorithm(algorithm),
		terrain.WithSeeding(mode),
		terrain.WithLogger(logger),
		terrain.WithDebugLogging(cfg.World.DebugLogging),
	)
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// newSession gives every websocket client its own streamer and game state.
// Order independent generators share the server's generator and store;
// legacy seeding gets a private generator and memory store per session.
func (s *Server) newSession(id string) (network.SessionWorld, error) {
	gen := s.generator
	store := world.SharedStore(s.store)
	if gen.OrderDependent() {
		private, err := s.buildGenerator()
		if err != nil {
			return network.SessionWorld{}, err
		}
		gen = private
		store = world.NewMemoryStore()
	}
	streamer := world.NewStreamer(gen, world.StreamerOptions{
		RenderDistance: s.cfg.Streamer.RenderDistance,
		Workers:        s.cfg.Streamer.Workers,
		Store:          store,
		PreviewDir:     s.cfg.PreviewDir(),
		Logger:         s.logger,
	})
	return network.SessionWorld{
		Streamer: streamer,
		Game:     game.NewController(),
		Hello: network.Hello{
			Seed:           s.cfg.World.Seed.String(),
			Algorithm:      string(s.generator.Field().Algorithm()),
			Seeding:        string(s.generator.Mode()),
			ChunkSize:      world.ChunkSize,
			RenderDistance: streamer.RenderDistance(),
		},
	}, nil
}

// Run serves HTTP and drives session simulation until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	defer s.Close()

	s.httpSrv = &http.Server{
		Addr:    s.cfg.Server.Listen,
		Handler: s.mux,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Printf("HTTP server listening on %s", s.cfg.Server.Listen)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	tickTicker := time.NewTicker(s.cfg.Server.TickRate.Duration())
	defer tickTicker.Stop()

	stateTicker := time.NewTicker(s.cfg.Server.StateStreamRate.Duration())
	defer stateTicker.Stop()

	var keepAliveC <-chan time.Time
	if interval := s.cfg.Server.KeepAliveInterval.Duration(); interval > 0 {
		keepAliveTicker := time.NewTicker(interval)
		keepAliveC = keepAliveTicker.C
		defer keepAliveTicker.Stop()
	}

	lastTick := time.Now()
	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout.Duration())
			defer cancel()
			s.hub.Close()
			_ = s.httpSrv.Shutdown(shutdownCtx)
			return nil
		case err := <-errCh:
			return err
		case now := <-tickTicker.C:
			s.tickSessions(ctx, now.Sub(lastTick))
			lastTick = now
		case <-stateTicker.C:
			s.pushState()
		case now := <-keepAliveC:
			s.hub.Broadcast(network.MessageKeepAlive, network.KeepAlive{Time: now.UTC()})
		}
	}
}

// Close releases the hub and the chunk store.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		s.hub.Close()
		s.closeErr = s.chunks.Close()
	})
	return s.closeErr
}

func (s *Server) frameDelta(elapsed time.Duration) time.Duration {
	if limit := s.cfg.Game.MaxFrameDelta.Duration(); limit > 0 && elapsed > limit {
		return limit
	}
	return elapsed
}

func (s *Server) tickSessions(ctx context.Context, elapsed time.Duration) {
	dt := s.frameDelta(elapsed)
	for _, session := range s.hub.Sessions() {
		if _, err := session.Advance(ctx, dt); err != nil && ctx.Err() == nil {
			s.logger.Printf("session %s: advance: %v", session.ID, err)
			if sendErr := s.hub.Send(session.ID, network.MessageError, network.ErrorMessage{Message: err.Error()}); sendErr != nil {
				s.logger.Printf("session %s: report advance failure: %v", session.ID, sendErr)
			}
		}
	}
}

func (s *Server) pushState() {
	for _, session := range s.hub.Sessions() {
		if err := session.PushState(); err != nil {
			s.logger.Printf("session %s: push state: %v", session.ID, err)
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.hub.Len(),
	})
}

// handleChunk serves one chunk addressed by x and z or by key ("x,z").
// With cached=1 only chunks that were materialised before are returned.
func (s *Server) handleChunk(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	coord, err := chunkCoordParam(q)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var chunk *world.ChunkData
	switch q.Get("cached") {
	case "", "0", "false":
		chunk, err = s.chunks.Chunk(r.Context(), coord)
	case "1", "true":
		chunk, err = s.chunks.Cached(coord)
		if errors.Is(err, world.ErrChunkNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
	default:
		http.Error(w, "invalid cached parameter", http.StatusBadRequest)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, chunk)
}

func chunkCoordParam(q url.Values) (world.ChunkCoord, error) {
	if key := q.Get("key"); key != "" {
		return world.ParseChunkKey(key)
	}
	x, err := intParam(q.Get("x"), "x")
	if err != nil {
		return world.ChunkCoord{}, err
	}
	z, err := intParam(q.Get("z"), "z")
	if err != nil {
		return world.ChunkCoord{}, err
	}
	return world.ChunkCoord{X: x, Z: z}, nil
}

type chunksResponse struct {
	Center world.ChunkCoord   `json:"center"`
	Radius int                `json:"radius"`
	Chunks []*world.ChunkData `json:"chunks"`
}

// handleChunks returns the chunks visible from a world position, in
// streaming order.
func (s *Server) handleChunks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	x, err := floatParam(q.Get("x"), "x")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	z, err := floatParam(q.Get("z"), "z")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	radius := s.chunks.RenderDistance()
	if raw := q.Get("radius"); raw != "" {
		radius, err = strconv.Atoi(raw)
		if err != nil || radius < 0 || radius > maxQueryRadius {
			http.Error(w, fmt.Sprintf("radius must be an integer in [0,%d]", maxQueryRadius), http.StatusBadRequest)
			return
		}
	}

	center := world.ChunkCoordAt(mgl64.Vec3{x, 0, z})
	coords := world.VisibleAround(center, radius)
	resp := chunksResponse{Center: center, Radius: radius, Chunks: make([]*world.ChunkData, 0, len(coords))}
	for _, coord := range coords {
		chunk, err := s.chunks.Chunk(r.Context(), coord)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		resp.Chunks = append(resp.Chunks, chunk)
	}
	writeJSON(w, http.StatusOK, resp)
}

type noiseResponse struct {
	Algorithm terrain.Algorithm `json:"algorithm"`
	X         float64           `json:"x"`
	Z         float64           `json:"z"`
	Sample    float64           `json:"sample"`
	Fbm       float64           `json:"fbm"`
}

// handleNoise samples the noise field at a world position.
func (s *Server) handleNoise(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	x, err := floatParam(q.Get("x"), "x")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	z, err := floatParam(q.Get("z"), "z")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	field := s.generator.Field()
	opts := s.cfg.Noise.FbmOptions()
	fbm, err := field.Fbm(x, z, opts)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, noiseResponse{
		Algorithm: field.Algorithm(),
		X:         x,
		Z:         z,
		Sample:    field.Sample(x, z, opts.Scale),
		Fbm:       fbm,
	})
}

func intParam(raw, name string) (int, error) {
	if raw == "" {
		return 0, fmt.Errorf("%s query parameter required", name)
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s parameter", name)
	}
	return v, nil
}

func floatParam(raw, name string) (float64, error) {
	if raw == "" {
		return 0, fmt.Errorf("%s query parameter required", name)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s parameter", name)
	}
	return v, nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		log.Printf("write json response: %v", err)
	}
}
