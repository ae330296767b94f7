// SPDX-License-Identifier: MPL-2.0

// Package autoreload calls Reload when the module changes on disk.
//
// An AutoReloader watches a directory tree with fsnotify and, after a quiet
// debounce period, reloads once for the whole burst of events. An optional
// poll interval reloads on a timer as well, which covers filesystems that
// do not deliver change events. Reload is a no-op for unchanged content,
// so polling costs one read and one hash per tick.
package autoreload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"

	"github.com/invowk/modhost/internal/loader"
)

// DefaultDebounce is used when Config.Debounce is not positive.
const DefaultDebounce = 500 * time.Millisecond

// Reload triggers reported to OnResult.
const (
	TriggerWatch = "watch"
	TriggerPoll  = "poll"
)

var (
	// ErrAlreadyRunning is returned by a second call to Run.
	ErrAlreadyRunning = errors.New("autoreload: Run called more than once")
	// ErrWatcherExhausted is wrapped by WatchError.
	ErrWatcherExhausted = errors.New("autoreload: file watcher exhausted")
)

var defaultIgnores = []string{
	"**/.git/**",
	"**/*.swp",
	"**/*.swo",
	"**/*~",
	"**/.DS_Store",
}

type (
	// Reloader is the operation the AutoReloader drives. *loader.Loader
	// implements it.
	Reloader interface {
		Reload(ctx context.Context) loader.Result
	}

	// Config configures an AutoReloader.
	Config struct {
		// BaseDir is the watched root. Defaults to the working directory.
		BaseDir string

		// Patterns select the paths, relative to BaseDir, whose changes
		// trigger a reload. Empty means every non-ignored path.
		Patterns []string

		// Ignore adds doublestar patterns to the built-in ignores.
		Ignore []string

		Debounce time.Duration

		// PollInterval, when positive, also reloads on a timer.
		PollInterval time.Duration

		// OnResult is called after every reload with its trigger.
		OnResult func(trigger string, res loader.Result)

		Logger *log.Logger
	}

	// WatchError ends Run when the watcher can no longer deliver events
	// and no poll interval is configured to take over.
	WatchError struct {
		Err error
	}

	// AutoReloader drives a Reloader from filesystem events and a timer.
	// Run must be called exactly once.
	AutoReloader struct {
		reloader Reloader
		cfg      Config
		fsw      *fsnotify.Watcher
		ignores  []string
		debounce time.Duration
		baseDir  string
		logger   *log.Logger

		started atomic.Bool
		busy    atomic.Bool
		polling atomic.Bool
		reloads atomic.Uint64
	}
)

var _ Reloader = (*loader.Loader)(nil)

// New validates cfg and registers every non-ignored directory under
// BaseDir with fsnotify.
func New(r Reloader, cfg Config) (*AutoReloader, error) {
	if r == nil {
		return nil, errors.New("autoreload: nil reloader")
	}

	baseDir := cfg.BaseDir
	if baseDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("autoreload: determine working directory: %w", err)
		}
		baseDir = wd
	}
	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("autoreload: resolve base directory: %w", err)
	}

	if err := validatePatterns(cfg.Patterns, "watch"); err != nil {
		return nil, err
	}
	if err := validatePatterns(cfg.Ignore, "ignore"); err != nil {
		return nil, err
	}

	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("autoreload: create fsnotify watcher: %w", err)
	}

	a := &AutoReloader{
		reloader: r,
		cfg:      cfg,
		fsw:      fsw,
		ignores:  append(slices.Clone(defaultIgnores), cfg.Ignore...),
		debounce: debounce,
		baseDir:  absBase,
		logger:   logger,
	}
	if err := a.addDirectories(); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return a, nil
}

// Reloads returns how many reloads the AutoReloader has run.
func (a *AutoReloader) Reloads() uint64 {
	return a.reloads.Load()
}

// PollingOnly reports whether Run gave up on file events after the watcher
// ran out of resources and now reloads on the poll interval alone.
func (a *AutoReloader) PollingOnly() bool {
	return a.polling.Load()
}

// Run blocks until ctx is done. It returns nil on cancellation and an error
// when the watcher breaks with no poll interval to fall back on.
func (a *AutoReloader) Run(ctx context.Context) error {
	if !a.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	var (
		mu      sync.Mutex
		pending = make(map[string]struct{})
		timer   *time.Timer
	)

	fire := func() {
		if ctx.Err() != nil {
			return
		}
		mu.Lock()
		if len(pending) == 0 {
			mu.Unlock()
			return
		}
		changed := slices.Sorted(maps.Keys(pending))
		mu.Unlock()

		if !a.reload(ctx, TriggerWatch, changed) {
			// Busy: keep the pending set and try again after another
			// debounce period.
			mu.Lock()
			if timer != nil {
				timer.Reset(a.debounce)
			}
			mu.Unlock()
			return
		}
		mu.Lock()
		for _, p := range changed {
			delete(pending, p)
		}
		mu.Unlock()
	}

	var tick <-chan time.Time
	if a.cfg.PollInterval > 0 {
		ticker := time.NewTicker(a.cfg.PollInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
		if !a.polling.Load() {
			a.closeWatcher()
		}
	}()

	events, watchErrs := a.fsw.Events, a.fsw.Errors

	a.logger.Info("auto-reload started", "dir", a.baseDir, "debounce", a.debounce, "poll", a.cfg.PollInterval)

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-tick:
			a.reload(ctx, TriggerPoll, nil)

		case evt, ok := <-events:
			if !ok {
				return errors.New("autoreload: fsnotify event channel closed unexpectedly")
			}
			rel, err := filepath.Rel(a.baseDir, evt.Name)
			if err != nil {
				rel = evt.Name
			}
			rel = filepath.ToSlash(rel)
			if a.isIgnored(rel) || !a.matchesPatterns(rel) {
				if evt.Has(fsnotify.Create) {
					a.maybeAddDir(evt.Name)
				}
				continue
			}
			if evt.Has(fsnotify.Create) {
				a.maybeAddDir(evt.Name)
			}

			mu.Lock()
			pending[rel] = struct{}{}
			if timer == nil {
				timer = time.AfterFunc(a.debounce, fire)
			} else {
				timer.Reset(a.debounce)
			}
			mu.Unlock()

		case err, ok := <-watchErrs:
			if !ok {
				return errors.New("autoreload: fsnotify error channel closed unexpectedly")
			}
			fallback, fatal := a.onWatchError(err)
			if fatal != nil {
				return fatal
			}
			if fallback {
				a.closeWatcher()
				events, watchErrs = nil, nil
				// Changes since the last event may have been dropped.
				a.reload(ctx, TriggerPoll, nil)
			}
		}
	}
}

// onWatchError classifies an fsnotify error. Transient errors are logged.
// Exhaustion switches to polling-only when a poll interval is set and is
// fatal otherwise.
func (a *AutoReloader) onWatchError(err error) (fallback bool, fatal error) {
	if !watcherExhausted(err) {
		a.logger.Warn("fsnotify error", "error", err)
		return false, nil
	}
	if a.cfg.PollInterval <= 0 {
		return false, &WatchError{Err: err}
	}
	if a.polling.CompareAndSwap(false, true) {
		a.logger.Warn("file watcher exhausted, reloading on poll interval only", "poll", a.cfg.PollInterval, "error", err)
	}
	return true, nil
}

func (a *AutoReloader) closeWatcher() {
	if err := a.fsw.Close(); err != nil {
		a.logger.Warn("close fsnotify watcher", "error", err)
	}
}

// reload runs one Reload unless another is in flight. It reports whether
// the reload ran.
func (a *AutoReloader) reload(ctx context.Context, trigger string, changed []string) bool {
	if !a.busy.CompareAndSwap(false, true) {
		a.logger.Debug("reload skipped: previous reload still running", "trigger", trigger)
		return false
	}
	defer a.busy.Store(false)

	res := a.reloader.Reload(ctx)
	a.reloads.Add(1)

	switch res.Status {
	case loader.StatusFailed:
		a.logger.Warn("auto-reload failed", "trigger", trigger, "changed", changed, "error", res.Err)
	case loader.StatusReloaded:
		a.logger.Info("auto-reload installed new module", "trigger", trigger, "changed", changed, "digest", res.Digest)
	}
	if a.cfg.OnResult != nil {
		a.cfg.OnResult(trigger, res)
	}
	return true
}

func (a *AutoReloader) addDirectories() error {
	walkErr := filepath.WalkDir(a.baseDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			a.logger.Warn("skipping inaccessible path", "path", path, "error", err)
			return nil //nolint:nilerr // inaccessible directories are not watched
		}
		if !d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(a.baseDir, path)
		if relErr != nil {
			return nil //nolint:nilerr // cannot be matched against patterns
		}
		rel = filepath.ToSlash(rel)
		if rel != "." && (a.isIgnored(rel) || a.isIgnored(rel+"/")) {
			return filepath.SkipDir
		}
		if addErr := a.fsw.Add(path); addErr != nil {
			return fmt.Errorf("autoreload: add directory %q: %w", path, addErr)
		}
		return nil
	})
	if walkErr != nil {
		return fmt.Errorf("autoreload: walk directory tree: %w", walkErr)
	}
	return nil
}

func (a *AutoReloader) maybeAddDir(path string) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return
	}
	rel, err := filepath.Rel(a.baseDir, path)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)
	if a.isIgnored(rel) || a.isIgnored(rel+"/") {
		return
	}
	if err := a.fsw.Add(path); err != nil {
		a.logger.Warn("add new directory", "path", path, "error", err)
	}
}

func (a *AutoReloader) isIgnored(rel string) bool {
	return matchAny(a.ignores, rel)
}

func (a *AutoReloader) matchesPatterns(rel string) bool {
	return len(a.cfg.Patterns) == 0 || matchAny(a.cfg.Patterns, rel)
}

func matchAny(patterns []string, rel string) bool {
	for _, pat := range patterns {
		if matched, err := doublestar.Match(pat, rel); err == nil && matched {
			return true
		}
	}
	return false
}

// DefaultIgnores returns a copy of the built-in ignore patterns.
func DefaultIgnores() []string {
	return slices.Clone(defaultIgnores)
}

func validatePatterns(patterns []string, label string) error {
	for _, pat := range patterns {
		if !doublestar.ValidatePattern(pat) {
			return fmt.Errorf("autoreload: invalid %s pattern %q", label, pat)
		}
	}
	return nil
}

func (e *WatchError) Error() string {
	return fmt.Sprintf("autoreload: file watcher exhausted and no poll interval set: %v", e.Err)
}

// Unwrap returns ErrWatcherExhausted and the fsnotify error.
func (e *WatchError) Unwrap() []error {
	return []error{ErrWatcherExhausted, e.Err}
}
