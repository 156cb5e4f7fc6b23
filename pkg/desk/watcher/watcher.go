// Package watcher runs the valuation pipeline against a configuration file,
// re-running it when the file changes on disk and fanning fresh reports out
// to storage and streaming clients.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/phenomenon0/cuprun/pkg/desk/config"
	"github.com/phenomenon0/cuprun/pkg/desk/metrics"
	"github.com/phenomenon0/cuprun/pkg/desk/storage"
	"github.com/phenomenon0/cuprun/pkg/desk/streaming"
	"github.com/phenomenon0/cuprun/pkg/engine/analysis"
)

// Config configures the watcher.
type Config struct {
	// ConfigPath is the desk configuration file to watch. Empty runs on the
	// built-in defaults.
	ConfigPath string

	// PollInterval is how often the file is checked for changes.
	PollInterval time.Duration

	// RecomputeGap is the minimum time between pipeline runs. Zero disables
	// throttling.
	RecomputeGap time.Duration
}

// DefaultConfig returns default watcher settings.
func DefaultConfig() *Config {
	return &Config{
		PollInterval: 15 * time.Second,
		RecomputeGap: 2 * time.Second,
	}
}

// Watcher drives the pipeline. Store, hub, and metrics may each be nil; the
// watcher then skips persistence, streaming, or instrumentation.
type Watcher struct {
	cfg      *Config
	analyzer *analysis.Analyzer
	store    *storage.Store
	hub      *streaming.Hub
	metrics  *metrics.EngineMetrics
	limiter  *rate.Limiter

	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}

	// State
	file      *config.File
	inputs    analysis.Inputs
	report    *analysis.Report
	lastMod   time.Time
	lastRun   time.Time
	runs      uint64
	lastError string

	// Callbacks, set before Start
	onReport func(*analysis.Report)
	onError  func(error)
}

// New creates a watcher. A nil cfg uses DefaultConfig; a nil analyzer gets a
// fresh one.
func New(
	cfg *Config,
	analyzer *analysis.Analyzer,
	store *storage.Store,
	hub *streaming.Hub,
	m *metrics.EngineMetrics,
) *Watcher {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 15 * time.Second
	}
	if analyzer == nil {
		analyzer = analysis.New(nil)
	}

	return &Watcher{
		cfg:      cfg,
		analyzer: analyzer,
		store:    store,
		hub:      hub,
		metrics:  m,
		limiter:  rate.NewLimiter(rate.Every(cfg.RecomputeGap), 1),
		stopCh:   make(chan struct{}),
	}
}

// OnReport sets a callback for freshly computed reports.
func (w *Watcher) OnReport(fn func(*analysis.Report)) {
	w.onReport = fn
}

// OnError sets a callback for cycle errors.
func (w *Watcher) OnError(fn func(error)) {
	w.onError = fn
}

// Start runs an initial cycle and begins polling the configuration file.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}
	w.running = true
	w.stopCh = make(chan struct{})
	stopCh := w.stopCh
	w.mu.Unlock()

	if err := w.runCycle(ctx, "startup"); err != nil {
		w.handleError(fmt.Errorf("initial run failed: %w", err))
	}

	go w.pollLoop(ctx, stopCh)

	return nil
}

// Stop stops the polling loop.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		close(w.stopCh)
		w.running = false
	}
}

// IsRunning returns true if the watcher is polling.
func (w *Watcher) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

// RunOnce executes a single pipeline cycle. A throttled cycle is a no-op and
// returns nil.
func (w *Watcher) RunOnce(ctx context.Context) error {
	return w.runCycle(ctx, "manual")
}

// pollLoop owns the stop channel handed to it at Start. A later Start
// replaces w.stopCh, so the loop must not read the field again.
func (w *Watcher) pollLoop(ctx context.Context, stopCh <-chan struct{}) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			if err := w.runCycle(ctx, "poll"); err != nil {
				w.handleError(err)
			}
		}
	}
}

func (w *Watcher) runCycle(ctx context.Context, trigger string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	w.mu.Lock()

	if !w.limiter.Allow() {
		w.mu.Unlock()
		return nil
	}

	if err := w.loadInputs(); err != nil {
		w.lastError = err.Error()
		w.mu.Unlock()
		return err
	}

	start := time.Now()
	report, err := w.analyzer.Analyze(w.inputs)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		w.lastError = err.Error()
		w.mu.Unlock()
		if w.metrics != nil {
			w.metrics.RecordAnalysis(trigger, "error", elapsed)
		}
		return fmt.Errorf("analysis failed: %w", err)
	}

	// The analyzer memoizes: unchanged inputs return the same report, and
	// an unchanged report is neither persisted nor broadcast again.
	changed := report != w.report
	w.report = report
	w.runs++
	w.lastRun = time.Now().UTC()
	w.lastError = ""
	w.mu.Unlock()

	if w.metrics != nil {
		w.metrics.RecordAnalysis(trigger, "success", elapsed)
		w.metrics.UpdateReport(report)
	}

	if !changed {
		return nil
	}

	if w.store != nil {
		if _, err := w.store.SaveSnapshot(report); err != nil {
			if w.metrics != nil {
				w.metrics.RecordSnapshot("error")
			}
			log.Printf("[watch] Failed to persist snapshot: %v", err)
		} else if w.metrics != nil {
			w.metrics.RecordSnapshot("success")
		}
	}

	if w.hub != nil {
		w.hub.BroadcastReport(report)
	}
	if w.onReport != nil {
		w.onReport(report)
	}

	return nil
}

// loadInputs refreshes the configuration when the file changed on disk.
// Callers hold w.mu. A file that no longer loads keeps the previous
// configuration and returns the load error on every cycle until the file is
// fixed.
func (w *Watcher) loadInputs() error {
	if w.cfg.ConfigPath == "" {
		if w.file == nil {
			file := config.Defaults()
			in, err := file.Inputs()
			if err != nil {
				return err
			}
			w.file = file
			w.inputs = in
		}
		return nil
	}

	var mod time.Time
	info, err := os.Stat(w.cfg.ConfigPath)
	switch {
	case err == nil:
		mod = info.ModTime()
	case errors.Is(err, fs.ErrNotExist):
		// A first load proceeds on defaults plus environment. A file
		// deleted after loading keeps the last good configuration.
		if w.file != nil {
			return nil
		}
	default:
		return fmt.Errorf("failed to stat config file: %w", err)
	}

	if w.file != nil && mod.Equal(w.lastMod) {
		return nil
	}

	file, err := config.Load(w.cfg.ConfigPath)
	if err == nil {
		var in analysis.Inputs
		in, err = file.Inputs()
		if err == nil {
			w.file = file
			w.inputs = in
			w.lastMod = mod
			if w.metrics != nil {
				w.metrics.RecordReload("success")
			}
			return nil
		}
	}

	if w.metrics != nil {
		w.metrics.RecordReload("error")
	}
	if w.file != nil {
		return fmt.Errorf("config reload failed, keeping previous: %w", err)
	}
	return fmt.Errorf("config load failed: %w", err)
}

func (w *Watcher) handleError(err error) {
	log.Printf("[watch] %v", err)
	if w.hub != nil {
		w.hub.BroadcastError(err, "watcher")
	}
	if w.onError != nil {
		w.onError(err)
	}
}

// CurrentReport returns the most recent report, or nil before the first
// successful cycle. The report is shared; treat it as read-only.
func (w *Watcher) CurrentReport() *analysis.Report {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.report
}

// CurrentInputs returns the inputs of the most recent cycle. The maps are
// shared; treat them as read-only.
func (w *Watcher) CurrentInputs() analysis.Inputs {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.inputs
}

// CurrentFile returns the loaded configuration, or nil before the first
// cycle. Treat it as read-only.
func (w *Watcher) CurrentFile() *config.File {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.file
}

// Status is a point-in-time view of the watcher.
type Status struct {
	Running   bool      `json:"running"`
	Runs      uint64    `json:"runs"`
	LastRun   time.Time `json:"last_run"`
	LastError string    `json:"last_error,omitempty"`
}

// GetStatus returns the current status.
func (w *Watcher) GetStatus() *Status {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return &Status{
		Running:   w.running,
		Runs:      w.runs,
		LastRun:   w.lastRun,
		LastError: w.lastError,
	}
}
