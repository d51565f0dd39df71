package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"goblet/internal/config"
	"goblet/internal/rng"
	"goblet/internal/server"
	"goblet/internal/world"
)

func main() {
	var (
		cfgPath    string
		seed       string
		cx, cz     int
		radius     int
		previewDir string
		serve      bool
		debug      bool
	)
	flag.StringVar(&cfgPath, "config", "", "path to world generator configuration file")
	flag.StringVar(&seed, "seed", "", "world seed; integers are used as numeric seeds")
	flag.IntVar(&cx, "x", 0, "chunk x coordinate")
	flag.IntVar(&cz, "z", 0, "chunk z coordinate")
	flag.IntVar(&radius, "radius", 0, "also print chunks within this ring distance")
	flag.StringVar(&previewDir, "preview", "", "write PNG previews of generated chunks to this directory")
	flag.BoolVar(&serve, "serve", false, "run the HTTP and websocket server")
	flag.BoolVar(&debug, "debug", false, "log every generated chunk")
	flag.Parse()

	if _, err := writeConfigFromEnv(cfgPath); err != nil {
		log.Fatalf("sync config: %v", err)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if seed != "" {
		cfg.World.Seed = parseSeed(seed)
	}
	if debug {
		cfg.World.DebugLogging = true
	}
	if previewDir != "" {
		cfg.Preview.Enabled = true
		cfg.Preview.Dir = previewDir
	}

	if serve {
		srv, err := server.New(cfg)
		if err != nil {
			log.Fatalf("initialise world server: %v", err)
		}

		ctx, cancel := signalContext()
		defer cancel()

		if err := srv.Run(ctx); err != nil {
			log.Fatalf("server exited with error: %v", err)
		}
		return
	}

	if err := printChunks(context.Background(), os.Stdout, cfg, world.ChunkCoord{X: cx, Z: cz}, radius); err != nil {
		log.Fatalf("generate: %v", err)
	}
}

// parseSeed treats anything that parses as an integer as a numeric seed.
func parseSeed(raw string) rng.Seed {
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return rng.IntSeed(n)
	}
	return rng.StringSeed(raw)
}

// printChunks writes the chunks around center as a JSON array in streaming
// order.
func printChunks(ctx context.Context, w io.Writer, cfg *config.Config, center world.ChunkCoord, radius int) error {
	if radius < 0 {
		return fmt.Errorf("radius cannot be negative")
	}
	logger := log.New(os.Stderr, "worldgen ", log.LstdFlags|log.Lmicroseconds)
	gen, err := server.NewGenerator(cfg, logger)
	if err != nil {
		return err
	}
	store, err := world.OpenStore(cfg.Storage.Backend, cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("open chunk store: %w", err)
	}
	streamer := world.NewStreamer(gen, world.StreamerOptions{
		RenderDistance: cfg.Streamer.RenderDistance,
		Workers:        cfg.Streamer.Workers,
		Store:          store,
		PreviewDir:     cfg.PreviewDir(),
		Logger:         logger,
	})

	coords := world.VisibleAround(center, radius)
	chunks := make([]*world.ChunkData, 0, len(coords))
	for _, coord := range coords {
		chunk, err := streamer.Chunk(ctx, coord)
		if err != nil {
			streamer.Close()
			return err
		}
		chunks = append(chunks, chunk)
	}
	if err := streamer.Close(); err != nil {
		return fmt.Errorf("close chunk store: %w", err)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(chunks)
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(signals)
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}

		// Ensure the process terminates if shutdown stalls.
		time.AfterFunc(10*time.Second, func() {
			log.Printf("forced shutdown after timeout")
			os.Exit(1)
		})
	}()

	return ctx, cancel
}
