package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"

	"github.com/KyrieTangSheng/file-seek/internal/models"
)

type state int

const (
	stateIdle state = iota
	stateWatching
	stateStopped
)

type action int

const (
	actionNone action = iota
	actionIngest
	actionRetire
)

// Action is one of the two terminal operations a filesystem event resolves
// to, provided by the document store collaborator.
type Action func(ctx context.Context, path string) error

type DispatcherConfig struct {
	Paths          []string
	Patterns       []string // if set, only matching base names are handled
	IgnorePatterns []string // glob on base name, or substring of the path
	Recursive      bool
	RateLimit      float64 // ingests per second; 0 = unlimited
}

// Dispatcher subscribes to OS-level filesystem notifications and converts
// each surviving event into an ingest or retire action. Event handling is
// decoupled from delivery: a slow ingest never stalls the event stream, and
// a failing handler never stops the watcher.
type Dispatcher struct {
	cfg     DispatcherConfig
	ingest  Action
	retire  Action
	limiter *rate.Limiter
	logger  *slog.Logger

	mu      sync.Mutex
	state   state
	watcher *fsnotify.Watcher
	done    chan struct{}

	// dirs tracks watched directories so delete events for them can be
	// recognized after the path is gone. Touched only by the loop goroutine
	// after Start.
	dirs map[string]struct{}
}

func NewDispatcher(cfg DispatcherConfig, ingest, retire Action, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return &Dispatcher{
		cfg:     cfg,
		ingest:  ingest,
		retire:  retire,
		limiter: limiter,
		logger:  logger,
		state:   stateIdle,
	}
}

// Start subscribes the configured paths to filesystem notifications and
// begins dispatching. Calling Start while already watching is a no-op.
func (d *Dispatcher) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state == stateWatching {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	d.dirs = make(map[string]struct{})
	for _, root := range d.cfg.Paths {
		if err := d.addRoot(watcher, root); err != nil {
			watcher.Close()
			return fmt.Errorf("failed to watch %s: %w", root, err)
		}
	}

	d.watcher = watcher
	d.done = make(chan struct{})
	d.state = stateWatching
	go d.loop(watcher, d.done)

	d.logger.Info("watching for changes", "paths", d.cfg.Paths, "recursive", d.cfg.Recursive)
	return nil
}

// Stop unsubscribes and releases watcher resources. No new events are
// dispatched after Stop returns; in-flight ingest and retire actions are
// not awaited. Calling Stop while not watching is a no-op.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != stateWatching {
		return
	}

	d.watcher.Close()
	<-d.done
	d.watcher = nil
	d.state = stateStopped
	d.logger.Info("watcher stopped")
}

func (d *Dispatcher) addRoot(watcher *fsnotify.Watcher, root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return watcher.Add(filepath.Dir(root))
	}
	if !d.cfg.Recursive {
		d.dirs[root] = struct{}{}
		return watcher.Add(root)
	}
	return filepath.WalkDir(root, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if entry.IsDir() {
			d.dirs[path] = struct{}{}
			return watcher.Add(path)
		}
		return nil
	})
}

func (d *Dispatcher) loop(watcher *fsnotify.Watcher, done chan struct{}) {
	defer close(done)
	for {
		select {
		case e, ok := <-watcher.Events:
			if !ok {
				return
			}
			if ev, ok := d.translate(watcher, e); ok {
				d.handleEvent(ev)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			d.logger.Error("watcher error", "error", err)
		}
	}
}

// translate converts a raw fsnotify event into a WatchEvent, tracking
// directory creation so new subtrees keep getting watched in recursive mode
// and so directory deletions can be recognized.
func (d *Dispatcher) translate(watcher *fsnotify.Watcher, e fsnotify.Event) (models.WatchEvent, bool) {
	ev := models.WatchEvent{Path: e.Name}

	switch {
	case e.Op&fsnotify.Create != 0:
		ev.Kind = models.EventCreated
	case e.Op&fsnotify.Write != 0:
		ev.Kind = models.EventModified
	case e.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		ev.Kind = models.EventDeleted
	default:
		return ev, false
	}

	if ev.Kind == models.EventDeleted {
		if _, ok := d.dirs[e.Name]; ok {
			delete(d.dirs, e.Name)
			ev.IsDirectory = true
		}
		return ev, true
	}

	if info, err := os.Stat(e.Name); err == nil && info.IsDir() {
		ev.IsDirectory = true
		if ev.Kind == models.EventCreated && d.cfg.Recursive {
			d.dirs[e.Name] = struct{}{}
			if err := watcher.Add(e.Name); err != nil {
				d.logger.Warn("failed to watch new directory", "path", e.Name, "error", err)
			}
		}
	}
	return ev, true
}

// handleEvent routes one event to its action. Each invocation runs on its
// own goroutine so delivery of subsequent events is never blocked; failures
// are logged and isolated to the one event.
func (d *Dispatcher) handleEvent(ev models.WatchEvent) {
	var act Action
	var name string

	switch d.route(ev) {
	case actionIngest:
		act, name = d.ingest, "ingest"
	case actionRetire:
		act, name = d.retire, "retire"
	default:
		return
	}

	go func() {
		ctx := context.Background()
		if d.limiter != nil && name == "ingest" {
			if err := d.limiter.Wait(ctx); err != nil {
				return
			}
		}
		if err := act(ctx, ev.Path); err != nil {
			d.logger.Error("event handling failed", "action", name, "path", ev.Path, "error", err)
		}
	}()
}

// route decides which action, if any, an event maps to. Directories are
// never processed directly: their contents generate their own events.
func (d *Dispatcher) route(ev models.WatchEvent) action {
	if ev.IsDirectory {
		return actionNone
	}
	if d.excluded(ev.Path) {
		return actionNone
	}

	switch ev.Kind {
	case models.EventCreated, models.EventModified:
		return actionIngest
	case models.EventDeleted:
		return actionRetire
	}
	return actionNone
}

func (d *Dispatcher) excluded(path string) bool {
	base := filepath.Base(path)

	if len(d.cfg.Patterns) > 0 {
		included := false
		for _, pattern := range d.cfg.Patterns {
			if matched, err := filepath.Match(pattern, base); err == nil && matched {
				included = true
				break
			}
		}
		if !included {
			return true
		}
	}

	for _, pattern := range d.cfg.IgnorePatterns {
		if matched, err := filepath.Match(pattern, base); err == nil && matched {
			return true
		}
		if strings.Contains(path, pattern) {
			return true
		}
	}
	return false
}
