package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/OCharnyshevich/minecraft-chunks/internal/capture"
	"github.com/OCharnyshevich/minecraft-chunks/internal/config"
	"github.com/OCharnyshevich/minecraft-chunks/internal/protocol"
	"github.com/OCharnyshevich/minecraft-chunks/internal/session"
	"github.com/OCharnyshevich/minecraft-chunks/pkg/world"
)

type point struct{ x, y, z int }

func parsePoint(s string) (point, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return point{}, fmt.Errorf("want x,y,z, got %q", s)
	}
	var v [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return point{}, fmt.Errorf("coordinate %q: %w", p, err)
		}
		v[i] = n
	}
	return point{v[0], v[1], v[2]}, nil
}

func main() {
	cfg := config.DefaultConfig()
	configPath := flag.String("config", "chunkdump.json", "config file")
	var queries []point

	flag.Func("protocol", "protocol version (overrides the capture header)", func(s string) error {
		n, err := strconv.ParseInt(s, 10, 32)
		cfg.Protocol = int32(n)
		return err
	})
	flag.StringVar(&cfg.Dimension, "dimension", cfg.Dimension, "dimension the capture starts in (overrides the capture header)")
	flag.IntVar(&cfg.Workers, "workers", cfg.Workers, "decode workers")
	flag.IntVar(&cfg.DecodeTimeoutMS, "decode-timeout-ms", cfg.DecodeTimeoutMS, "per chunk decode timeout (0 = none)")
	flag.IntVar(&cfg.MaxChunks, "max-chunks", cfg.MaxChunks, "chunks kept in the index (0 = unbounded)")
	flag.IntVar(&cfg.CacheEntries, "cache-entries", cfg.CacheEntries, "decoded payload cache size (0 = off)")
	flag.StringVar(&cfg.CacheDir, "cache-dir", cfg.CacheDir, "directory for fetched captures")
	flag.StringVar(&cfg.Capture, "capture", cfg.Capture, "capture file or go-getter source")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	flag.Func("at", "block to print as x,y,z (repeatable)", func(s string) error {
		p, err := parsePoint(s)
		queries = append(queries, p)
		return err
	})
	flag.Parse()

	explicit := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	fromFile, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	config.Merge(cfg, fromFile, explicit)

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Level()}))

	if err := cfg.Validate(); err != nil {
		log.Error("invalid config", "error", err)
		os.Exit(1)
	}
	if cfg.Capture == "" {
		log.Error("no capture given, use -capture")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, explicit, queries, log); err != nil {
		log.Error("chunkdump failed", "error", err)
		os.Exit(1)
	}
}

// applyHeader settles the protocol and dimension of c. Flags given on the
// command line win, then the capture's own header, then the config.
func applyHeader(c *capture.Capture, cfg *config.Config, explicit map[string]bool) {
	if explicit["protocol"] || c.Protocol == 0 {
		c.Protocol = cfg.Protocol
	}
	if explicit["dimension"] || c.Dimension == "" {
		c.Dimension = cfg.Dimension
	}
}

func run(ctx context.Context, cfg *config.Config, explicit map[string]bool, queries []point, log *slog.Logger) error {
	path, err := capture.Fetch(ctx, cfg.Capture, cfg.CacheDir)
	if err != nil {
		return err
	}
	c, err := capture.Load(path)
	if err != nil {
		return err
	}
	applyHeader(c, cfg, explicit)

	v, err := protocol.Lookup(c.Protocol)
	if err != nil {
		return err
	}
	dim, err := protocol.ParseDimension(c.Dimension)
	if err != nil {
		return err
	}

	index := world.NewIndex(cfg.MaxChunks)
	h := session.New(v, index, log, session.Options{
		Workers:      cfg.Workers,
		Timeout:      cfg.DecodeTimeout(),
		CacheEntries: cfg.CacheEntries,
		Dimension:    dim,
	})
	h.Start(ctx)

	log.Info("replaying capture",
		"path", path,
		"protocol", c.Protocol,
		"version", v.String(),
		"dimension", dim.String(),
		"records", len(c.Records),
	)

	summary, err := capture.Replay(ctx, c, h)
	if err != nil {
		log.Warn("replay had failures", "error", err)
	}
	stats := h.Stats()
	log.Info("replay done",
		"applied", summary.Applied,
		"failed", summary.Failed,
		"chunks", index.Len(),
		"decoded", stats.Decoded,
		"cacheHits", stats.CacheHits,
		"trailing", stats.Trailing,
		"dropped", stats.Dropped,
	)

	for _, q := range queries {
		id, err := index.Get(q.x, q.y, q.z)
		if err != nil {
			fmt.Printf("%d,%d,%d\terror: %v\n", q.x, q.y, q.z, err)
			continue
		}
		line := fmt.Sprintf("%d,%d,%d\tstate=%d", q.x, q.y, q.z, id)
		if block, sky, ok, _ := index.Light(q.x, q.y, q.z); ok {
			line += fmt.Sprintf("\tlight=%d sky=%d", block, sky)
		}
		if biome, ok, _ := index.Biome(q.x, q.y, q.z); ok {
			line += fmt.Sprintf("\tbiome=%d", biome)
		}
		fmt.Println(line)
	}
	return ctx.Err()
}
