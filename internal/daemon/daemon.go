// Package daemon runs sync passes on an interval.
//
// The daemon:
// 1. Runs a sync pass at startup and then on every interval tick
// 2. Watches the config file and runs again shortly after it changes
// 3. Takes a file lock around each pass so cron-driven runs and the daemon never overlap
// 4. Handles graceful shutdown
package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Reason says why a pass was started.
type Reason string

const (
	ReasonStartup       Reason = "startup"
	ReasonInterval      Reason = "interval"
	ReasonConfigChanged Reason = "config_changed"
	ReasonManual        Reason = "manual"
)

// RunFunc performs one sync pass.
type RunFunc func(ctx context.Context, reason Reason) error

// Config holds configuration for the daemon.
type Config struct {
	// Interval between passes
	Interval time.Duration

	// DebounceInterval is how long the config file must be quiet before a
	// change triggers a pass. Editors often write a file several times.
	DebounceInterval time.Duration

	// ConfigFile is watched for changes when set
	ConfigFile string

	// LockPath is the run lock file. Empty disables locking.
	LockPath string

	// Logger for daemon activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Interval:         15 * time.Minute,
		DebounceInterval: 500 * time.Millisecond,
		Logger:           log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon schedules sync passes. Passes run on the Start goroutine, one at a
// time.
type Daemon struct {
	run    RunFunc
	config *Config

	watcher   *fsnotify.Watcher
	pending   time.Time // last config file event, zero if none
	pendingMu sync.Mutex

	trigger chan Reason

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	passes int
}

// New creates a daemon with the default configuration.
func New(run RunFunc) (*Daemon, error) {
	return NewWithConfig(run, DefaultConfig())
}

// NewWithConfig creates a daemon with custom configuration.
func NewWithConfig(run RunFunc, config *Config) (*Daemon, error) {
	if run == nil {
		return nil, fmt.Errorf("run function cannot be nil")
	}
	def := DefaultConfig()
	if config == nil {
		config = def
	}
	if config.Interval <= 0 {
		config.Interval = def.Interval
	}
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = def.DebounceInterval
	}
	if config.Logger == nil {
		config.Logger = def.Logger
	}

	d := &Daemon{
		run:     run,
		config:  config,
		trigger: make(chan Reason, 1),
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())

	if config.ConfigFile != "" {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, fmt.Errorf("failed to create watcher: %w", err)
		}
		d.watcher = watcher
	}
	return d, nil
}

// Start runs passes until ctx is cancelled or Stop is called.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Printf("Starting daemon (interval %v)", d.config.Interval)

	if d.watcher != nil {
		// Watch the directory: editors replace files by rename, which drops
		// a watch on the file itself.
		dir := filepath.Dir(d.config.ConfigFile)
		if err := d.watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch config directory: %w", err)
		}
		d.config.Logger.Printf("Watching: %s", d.config.ConfigFile)

		d.wg.Add(1)
		go d.watchConfigEvents()
	}

	d.pass(ctx, ReasonStartup)

	ticker := time.NewTicker(d.config.Interval)
	defer ticker.Stop()
	debounce := time.NewTicker(d.config.DebounceInterval)
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			d.config.Logger.Println("Shutdown signal received")
			return d.Stop()
		case <-d.ctx.Done():
			return nil

		case <-ticker.C:
			d.pass(ctx, ReasonInterval)

		case reason := <-d.trigger:
			d.pass(ctx, reason)

		case <-debounce.C:
			if d.takePendingChange() {
				d.pass(ctx, ReasonConfigChanged)
			}
		}
	}
}

// Stop gracefully shuts down the daemon.
func (d *Daemon) Stop() error {
	d.config.Logger.Println("Stopping daemon")

	d.cancel()

	if d.watcher != nil {
		if err := d.watcher.Close(); err != nil {
			d.config.Logger.Printf("Error closing watcher: %v", err)
		}
	}

	d.wg.Wait()

	d.config.Logger.Println("Daemon stopped")
	return nil
}

// Trigger requests a pass as soon as the current one finishes. Requests
// made while one is already queued are merged.
func (d *Daemon) Trigger(reason Reason) {
	select {
	case d.trigger <- reason:
	default:
	}
}

// Passes returns the number of passes started so far.
func (d *Daemon) Passes() int {
	d.pendingMu.Lock()
	defer d.pendingMu.Unlock()
	return d.passes
}

func (d *Daemon) pass(ctx context.Context, reason Reason) {
	d.pendingMu.Lock()
	d.passes++
	d.pendingMu.Unlock()

	// Stop must interrupt a pass in flight, not only the caller's ctx.
	passCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(d.ctx, cancel)
	defer stop()

	start := time.Now()
	ran, err := RunLocked(d.config.LockPath, d.config.Logger, func() error {
		return d.run(passCtx, reason)
	})
	switch {
	case err != nil:
		d.config.Logger.Printf("Error in %s pass: %v", reason, err)
	case ran:
		d.config.Logger.Printf("Finished %s pass in %v", reason, time.Since(start).Round(time.Millisecond))
	}
}

// watchConfigEvents records changes to the config file.
func (d *Daemon) watchConfigEvents() {
	defer d.wg.Done()

	name := filepath.Clean(d.config.ConfigFile)
	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}

			d.config.Logger.Printf("Config event: %s %s", event.Op, event.Name)
			d.pendingMu.Lock()
			d.pending = time.Now()
			d.pendingMu.Unlock()

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

// takePendingChange reports whether a config change has been quiet for the
// debounce interval, and clears it if so.
func (d *Daemon) takePendingChange() bool {
	d.pendingMu.Lock()
	defer d.pendingMu.Unlock()

	if d.pending.IsZero() || time.Since(d.pending) < d.config.DebounceInterval {
		return false
	}
	d.pending = time.Time{}
	return true
}
