package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/arenasync/arenasync/internal/arena"
	"github.com/arenasync/arenasync/internal/config"
	"github.com/arenasync/arenasync/internal/dashboard"
	"github.com/arenasync/arenasync/internal/logging"
	"github.com/arenasync/arenasync/internal/store"
	"github.com/arenasync/arenasync/internal/store/s3assets"
)

// flagKeys maps CLI flag names to config keys.
var flagKeys = map[string]string{
	"channels":       config.KeyChannels,
	"image-upload":   config.KeyImageUpload,
	"drift-fix":      config.KeyDriftFix,
	"time-budget":    config.KeyTimeBudget,
	"deadline":       config.KeyDeadline,
	"store":          config.KeyStorePath,
	"store-url":      config.KeyStoreURL,
	"log-file":       config.KeyLogFile,
	"dashboard-port": config.KeyDashboardPort,
	"interval":       config.KeyDaemonInterval,
}

// addSyncFlags registers the flags shared by the root, sync and daemon
// commands.
func addSyncFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringP("channels", "c", "", "Comma-separated channel slugs")
	f.StringP("image-upload", "i", "auto", "Image upload mode: off, auto, on")
	f.Bool("drift-fix", true, "Flag documents that left a channel")
	f.Duration("time-budget", 0, "Soft wall-clock budget for the run (0 = unbounded)")
	f.String("deadline", "", `Deadline for the run, e.g. "in 20 minutes"`)
	f.String("store", config.DefaultStorePath, "Path of the SQLite document store")
	f.String("store-url", "", "libSQL/Turso database URL (overrides --store)")
	f.String("log-file", "", "Append events as JSON lines to this file")
	f.Int("dashboard-port", 0, "Serve a live WebSocket event stream on this port")
	f.BoolP("verbose", "v", false, "Show detailed progress logs")
}

// loadConfig resolves the configuration for cmd, binding every known flag
// it defines.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v, err := config.New(configFile)
	if err != nil {
		return nil, err
	}

	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok || bindErr != nil {
			return
		}
		bindErr = v.BindPFlag(key, f)
	})
	if bindErr != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", bindErr)
	}

	return config.Load(v, time.Now())
}

// openStore opens the configured document store and asset backend.
func openStore(ctx context.Context, cfg *config.Config) (*store.Store, error) {
	var opts []store.Option
	if cfg.Assets.S3Bucket != "" {
		backend, err := s3assets.New(ctx, cfg.Assets.S3Bucket, cfg.Assets.S3Prefix, cfg.Assets.S3Region)
		if err != nil {
			return nil, err
		}
		opts = append(opts, store.WithAssetBackend(backend))
	}

	if cfg.Store.URL != "" {
		return store.OpenURL(cfg.Store.URL, cfg.Store.AuthToken, opts...)
	}
	return store.Open(cfg.Store.Path, opts...)
}

func newSource(cfg *config.Config) *arena.Client {
	var opts []arena.Option
	if cfg.Arena.BaseURL != "" {
		opts = append(opts, arena.WithBaseURL(cfg.Arena.BaseURL))
	}
	return arena.NewClient(cfg.Arena.AccessToken, opts...)
}

// sinks owns the event sinks of a command and closes them.
type sinks struct {
	sink      logging.Sink
	jsonl     *logging.JSONLSink
	server    *dashboard.Server
	dashboard *dashboard.Handler
}

func openSinks(cfg *config.Config, verbose bool) (*sinks, error) {
	s := &sinks{}
	var all []logging.Sink

	if verbose {
		all = append(all, logging.ConsoleSink(os.Stdout))
	}

	if cfg.Log.File != "" {
		fc := logging.DefaultFileConfig(cfg.Log.File)
		if cfg.Log.MaxSizeMB > 0 {
			fc.MaxSizeMB = cfg.Log.MaxSizeMB
		}
		if cfg.Log.MaxBackups > 0 {
			fc.MaxBackups = cfg.Log.MaxBackups
		}
		jsonl, err := logging.NewJSONLSink(fc)
		if err != nil {
			return nil, err
		}
		s.jsonl = jsonl
		all = append(all, jsonl.Sink())
	}

	if cfg.Dashboard.Port > 0 {
		logger := log.New(os.Stderr, "[dashboard] ", log.LstdFlags)
		server := dashboard.NewServer(&dashboard.Config{
			Host:          cfg.Dashboard.Host,
			Port:          cfg.Dashboard.Port,
			TriggerSecret: os.Getenv("ARENA_SYNC_TRIGGER_SECRET"),
			Logger:        logger,
		})
		if err := server.Start(); err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to start dashboard: %w", err)
		}
		s.server = server
		s.dashboard = dashboard.NewHandler(server, logger)
		all = append(all, s.dashboard.OnEvent)
	}

	s.sink = logging.Fanout(all...)
	return s, nil
}

func (s *sinks) Close() {
	if s.server != nil {
		if err := s.server.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}
	if s.jsonl != nil {
		if err := s.jsonl.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close event log: %v\n", err)
		}
	}
}
