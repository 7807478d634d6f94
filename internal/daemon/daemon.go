// Package daemon runs sync passes on a schedule.
//
// The daemon:
// 1. Runs a sync pass on start and then every Interval
// 2. Watches the config file and reloads the channel list when it changes
// 3. Runs an extra pass right after a reload changed the channels
// 4. Handles graceful shutdown
//
// Passes never overlap: they all run on the scheduler goroutine.
package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	arenasync "github.com/arenasync/arenasync/internal/sync"
)

// RunFunc performs one sync pass over channels.
type RunFunc func(ctx context.Context, channels []string) (*arenasync.RunResult, error)

// ReloadFunc re-reads the channel list after the config file changed.
type ReloadFunc func() ([]string, error)

// Config holds configuration for the daemon.
type Config struct {
	// Interval between scheduled passes.
	Interval time.Duration

	// DebounceInterval is how long the config file must be quiet before it
	// is reloaded. Editors often write a file several times in a row.
	DebounceInterval time.Duration

	// ConfigFile is watched for changes. Empty disables watching.
	ConfigFile string

	// OnResult is called after every pass. May be nil.
	OnResult func(res *arenasync.RunResult, elapsed time.Duration)

	// Logger for daemon activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Interval:         15 * time.Minute,
		DebounceInterval: 250 * time.Millisecond,
		Logger:           log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon schedules sync passes.
type Daemon struct {
	run    RunFunc
	reload ReloadFunc
	config *Config

	channelsMu sync.RWMutex
	channels   []string

	watcher    *fsnotify.Watcher
	reloadMu   sync.Mutex
	reloadAt   time.Time // zero when no reload is pending
	trigger    chan struct{}
	passes     atomic.Int64
	stopOnce   sync.Once
	watchedAbs string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Daemon with default configuration.
func New(run RunFunc, reload ReloadFunc, channels []string) (*Daemon, error) {
	return NewWithConfig(run, reload, channels, DefaultConfig())
}

// NewWithConfig creates a daemon with custom configuration.
//
// reload may be nil when config.ConfigFile is empty.
func NewWithConfig(run RunFunc, reload ReloadFunc, channels []string, config *Config) (*Daemon, error) {
	if run == nil {
		return nil, fmt.Errorf("run func cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Interval <= 0 {
		return nil, fmt.Errorf("interval must be positive")
	}
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = DefaultConfig().DebounceInterval
	}
	if config.Logger == nil {
		config.Logger = DefaultConfig().Logger
	}

	d := &Daemon{
		run:      run,
		reload:   reload,
		config:   config,
		channels: slices.Clone(channels),
		trigger:  make(chan struct{}, 1),
	}

	if config.ConfigFile != "" {
		if reload == nil {
			return nil, fmt.Errorf("reload func is required when watching %s", config.ConfigFile)
		}
		abs, err := filepath.Abs(config.ConfigFile)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve config path: %w", err)
		}
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, fmt.Errorf("failed to create watcher: %w", err)
		}
		d.watcher = watcher
		d.watchedAbs = abs
	}

	d.ctx, d.cancel = context.WithCancel(context.Background())
	return d, nil
}

// Start runs the first pass, starts the scheduler and the config watcher,
// and blocks until ctx is cancelled or Stop is called.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Printf("Starting daemon (interval %s)", d.config.Interval)

	if d.watcher != nil {
		// Watch the directory so atomic rename-over-save is seen too.
		if err := d.watcher.Add(filepath.Dir(d.watchedAbs)); err != nil {
			return fmt.Errorf("failed to watch config directory: %w", err)
		}
		d.config.Logger.Printf("Watching: %s", d.watchedAbs)

		d.wg.Add(2)
		go d.watchFileEvents()
		go d.processReloads()
	}

	d.wg.Add(1)
	go d.schedule()

	select {
	case <-ctx.Done():
		d.config.Logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts down the daemon. An in-flight pass is cancelled.
func (d *Daemon) Stop() error {
	d.stopOnce.Do(func() {
		d.config.Logger.Println("Stopping daemon")
		d.cancel()

		if d.watcher != nil {
			if err := d.watcher.Close(); err != nil {
				d.config.Logger.Printf("Error closing watcher: %v", err)
			}
		}

		d.wg.Wait()
		d.config.Logger.Println("Daemon stopped")
	})
	return nil
}

// Trigger requests an immediate pass. Requests made while a pass is
// pending are coalesced.
func (d *Daemon) Trigger() {
	select {
	case d.trigger <- struct{}{}:
	default:
	}
}

// Channels returns the current channel list.
func (d *Daemon) Channels() []string {
	d.channelsMu.RLock()
	defer d.channelsMu.RUnlock()
	return slices.Clone(d.channels)
}

// Passes returns the number of completed passes.
func (d *Daemon) Passes() int64 {
	return d.passes.Load()
}

// schedule runs a pass immediately and then on every tick or trigger.
func (d *Daemon) schedule() {
	defer d.wg.Done()

	d.runPass()

	ticker := time.NewTicker(d.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.runPass()
		case <-d.trigger:
			d.runPass()
		}
	}
}

func (d *Daemon) runPass() {
	channels := d.Channels()
	if len(channels) == 0 {
		d.config.Logger.Println("No channels configured, skipping pass")
		return
	}

	start := time.Now()
	res, err := d.run(d.ctx, channels)
	elapsed := time.Since(start)
	d.passes.Add(1)

	if err != nil {
		d.config.Logger.Printf("Sync pass failed: %v", err)
		return
	}
	d.config.Logger.Printf("Sync pass %s: %d updated or created in %s (%s)",
		res.SyncRunID, res.UpdatedOrCreated, elapsed.Round(time.Millisecond), res.Message)
	if d.config.OnResult != nil {
		d.config.OnResult(res, elapsed)
	}
}

// watchFileEvents monitors the config directory and marks a reload pending
// when the config file is touched.
func (d *Daemon) watchFileEvents() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if abs, err := filepath.Abs(event.Name); err != nil || abs != d.watchedAbs {
				continue
			}

			d.config.Logger.Printf("Config event: %s %s", event.Op, event.Name)
			d.reloadMu.Lock()
			d.reloadAt = time.Now()
			d.reloadMu.Unlock()

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

// processReloads applies a pending reload once the file has been quiet for
// DebounceInterval.
func (d *Daemon) processReloads() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.DebounceInterval / 2)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.processPendingReload()
		}
	}
}

func (d *Daemon) processPendingReload() {
	d.reloadMu.Lock()
	pending := !d.reloadAt.IsZero() && time.Since(d.reloadAt) >= d.config.DebounceInterval
	if pending {
		d.reloadAt = time.Time{}
	}
	d.reloadMu.Unlock()
	if !pending {
		return
	}

	channels, err := d.reload()
	if err != nil {
		d.config.Logger.Printf("Error reloading config: %v", err)
		return
	}

	d.channelsMu.Lock()
	changed := !slices.Equal(d.channels, channels)
	if changed {
		d.channels = slices.Clone(channels)
	}
	d.channelsMu.Unlock()

	if changed {
		d.config.Logger.Printf("Channels reloaded: %v", channels)
		d.Trigger()
	}
}
