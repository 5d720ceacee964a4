package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/redis/go-redis/v9"

	"formtel/pkg/config"
	"formtel/pkg/logstore"
	"formtel/pkg/slot"
	"formtel/pkg/telemetry"
	"formtel/pkg/uplink"
)

// app holds the wired components for one command invocation.
type app struct {
	cfg    *config.Config
	diag   *slog.Logger
	redis  *redis.Client
	slot   slot.Slot
	store  *logstore.Store
	pipe   *uplink.Pipeline
	logger *telemetry.Logger
}

type appOptions struct {
	// dryRun prints reports to stdout instead of POSTing them.
	dryRun      bool
	downloadDir string
	stdout      io.Writer
}

type staticToken string

func (s staticToken) Token(context.Context) (string, error) { return string(s), nil }

func newDiagnostics(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func newApp(ctx context.Context, cfg *config.Config, opts appOptions) (*app, error) {
	a := &app{cfg: cfg, diag: newDiagnostics(cfg.Log.Level)}
	if opts.stdout == nil {
		opts.stdout = os.Stdout
	}

	needRedis := cfg.Store.Backend == "redis" || cfg.Collector.BaseURLKey != ""
	if needRedis {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	switch strings.ToLower(cfg.Store.Backend) {
	case "memory", "":
		a.slot = slot.NewMemory()
	case "pebble":
		s, err := slot.OpenPebble(slot.PebbleOptions{Dir: cfg.Store.Path})
		if err != nil {
			a.close()
			return nil, fmt.Errorf("open store: %w", err)
		}
		a.slot = s
	case "redis":
		a.slot = slot.NewRedisFromClient(a.redis)
	default:
		a.close()
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	a.store = logstore.New(a.slot, logstore.Options{
		Key:      cfg.Store.Key,
		Capacity: cfg.Store.Capacity,
		Logger:   a.diag,
	})

	var transport uplink.Transport
	if opts.dryRun {
		transport = uplink.NewWriterTransport(opts.stdout)
	} else {
		var resolver uplink.EndpointResolver = config.StaticProvider{URL: cfg.Collector.BaseURL}
		if cfg.Collector.BaseURLKey != "" {
			resolver = config.NewRedisProvider(a.redis, cfg.Collector.BaseURLKey)
		}
		httpOpts := uplink.HTTPOptions{
			Timeout: cfg.Collector.Timeout.Std(),
			Headers: cfg.Collector.Headers,
			Gzip:    cfg.Collector.Gzip,
			Logger:  a.diag,
		}
		if cfg.Collector.Token != "" {
			httpOpts.Tokens = staticToken(cfg.Collector.Token)
		}
		transport = uplink.NewHTTPTransport(ctx, resolver, httpOpts)
	}

	a.pipe = uplink.NewPipeline(transport, uplink.Options{
		MinInterval: cfg.Collector.MinInterval.Std(),
		MaxBatch:    cfg.Collector.MaxBatch,
		UserAgent:   cfg.Collector.UserAgent,
		Logger:      a.diag,
	})

	var downloader telemetry.Downloader
	if opts.downloadDir != "" {
		downloader = telemetry.DirDownloader{Dir: opts.downloadDir}
	}
	a.logger = telemetry.New(a.store, a.pipe, telemetry.Options{
		Diagnostics: a.diag,
		Downloader:  downloader,
	})
	return a, nil
}

// shutdown stores pending records, stops the uplink and releases storage.
func (a *app) shutdown(ctx context.Context) {
	if a.logger != nil {
		if err := a.logger.Close(ctx); err != nil {
			a.diag.Warn("Shutdown: logger did not drain", "error", err)
		}
	}
	a.close()
}

func (a *app) close() {
	if a.slot != nil {
		if err := a.slot.Close(); err != nil {
			a.diag.Warn("Shutdown: failed to close store", "error", err)
		}
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
}
