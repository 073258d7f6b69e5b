// Package watcher monitors local poster folders and reports changed poster
// files, debounced, so rapid editor saves and copies collapse into one
// re-sync per file.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/postersync/postersync/internal/naming"
)

// FileEvent represents a poster file change.
type FileEvent struct {
	Path      string    `json:"path"`
	Op        string    `json:"op"` // "create", "write", "rename"
	Timestamp time.Time `json:"timestamp"`
}

// FileEventHandler is called when file events are ready to be processed.
type FileEventHandler func(events []FileEvent)

// Config holds watcher configuration.
type Config struct {
	// DebounceDelay is how long to wait after the last event before processing.
	DebounceDelay time.Duration

	// MaxBatchSize is the maximum number of events to batch before forcing processing.
	MaxBatchSize int

	// RecursiveWatch enables watching subdirectories.
	RecursiveWatch bool
}

// DefaultConfig returns default watcher configuration.
func DefaultConfig() Config {
	return Config{
		DebounceDelay:  500 * time.Millisecond,
		MaxBatchSize:   100,
		RecursiveWatch: true,
	}
}

// Watcher monitors directories for poster file changes.
type Watcher struct {
	fsWatcher  *fsnotify.Watcher
	config     Config
	classifier *naming.Classifier
	logger     zerolog.Logger
	handler    FileEventHandler

	watchedPaths map[string]bool
	pathsMu      sync.RWMutex

	pendingEvents map[string]FileEvent
	eventsMu      sync.Mutex
	debounceTimer *time.Timer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new file watcher. Only files whose extension the classifier
// accepts produce events.
func New(config Config, classifier *naming.Classifier, logger zerolog.Logger) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Watcher{
		fsWatcher:     fsWatcher,
		config:        config,
		classifier:    classifier,
		logger:        logger.With().Str("component", "watcher").Logger(),
		watchedPaths:  make(map[string]bool),
		pendingEvents: make(map[string]FileEvent),
		ctx:           ctx,
		cancel:        cancel,
	}, nil
}

// SetHandler sets the event handler function.
func (w *Watcher) SetHandler(handler FileEventHandler) {
	w.handler = handler
}

// Start begins watching for file events.
func (w *Watcher) Start() {
	w.wg.Add(1)
	go w.eventLoop()
}

// Stop stops the watcher and waits for cleanup.
func (w *Watcher) Stop() error {
	w.cancel()
	w.wg.Wait()
	return w.fsWatcher.Close()
}

// AddPath adds a path to watch.
func (w *Watcher) AddPath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	w.pathsMu.Lock()
	defer w.pathsMu.Unlock()

	if w.watchedPaths[absPath] {
		return nil
	}

	if err := w.fsWatcher.Add(absPath); err != nil {
		return err
	}
	w.watchedPaths[absPath] = true

	w.logger.Info().Str("path", absPath).Msg("Added watch path")

	if w.config.RecursiveWatch {
		err = filepath.WalkDir(absPath, func(subPath string, d os.DirEntry, err error) error {
			if err != nil {
				return nil // Skip errors
			}
			if d.IsDir() && subPath != absPath {
				if err := w.fsWatcher.Add(subPath); err != nil {
					w.logger.Warn().Err(err).Str("path", subPath).Msg("Failed to add subdirectory watch")
					return nil
				}
				w.watchedPaths[subPath] = true
			}
			return nil
		})
		if err != nil {
			w.logger.Warn().Err(err).Str("path", absPath).Msg("Error walking subdirectories")
		}
	}

	return nil
}

// WatchedPaths returns the list of currently watched paths.
func (w *Watcher) WatchedPaths() []string {
	w.pathsMu.RLock()
	defer w.pathsMu.RUnlock()

	paths := make([]string, 0, len(w.watchedPaths))
	for path := range w.watchedPaths {
		paths = append(paths, path)
	}
	return paths
}

// eventLoop processes fsnotify events.
func (w *Watcher) eventLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			w.flushPendingEvents()
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handleFsEvent(event)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}

// handleFsEvent processes a single fsnotify event.
func (w *Watcher) handleFsEvent(event fsnotify.Event) {
	if !w.classifier.IsPosterExtension(filepath.Base(event.Name)) {
		// Still track new directories for recursive watching: a new title
		// folder usually appears before its posters do.
		if w.config.RecursiveWatch && event.Has(fsnotify.Create) {
			info, err := os.Stat(event.Name)
			if err == nil && info.IsDir() {
				w.fsWatcher.Add(event.Name)
				w.pathsMu.Lock()
				w.watchedPaths[event.Name] = true
				w.pathsMu.Unlock()
				w.logger.Debug().Str("path", event.Name).Msg("Added new subdirectory to watch")
			}
		}
		return
	}

	// Removals need no re-sync: placed posters are never deleted remotely.
	var op string
	switch {
	case event.Has(fsnotify.Create):
		op = "create"
	case event.Has(fsnotify.Write):
		op = "write"
	case event.Has(fsnotify.Rename):
		op = "rename"
	default:
		return
	}

	w.addPendingEvent(FileEvent{
		Path:      event.Name,
		Op:        op,
		Timestamp: time.Now(),
	})
}

// addPendingEvent adds an event to the pending batch and resets the debounce
// timer. Rapid events on the same path collapse into the latest one.
func (w *Watcher) addPendingEvent(event FileEvent) {
	w.eventsMu.Lock()
	defer w.eventsMu.Unlock()

	w.pendingEvents[event.Path] = event

	if len(w.pendingEvents) >= w.config.MaxBatchSize {
		w.flushPendingEventsLocked()
		return
	}

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.config.DebounceDelay, func() {
		w.eventsMu.Lock()
		defer w.eventsMu.Unlock()
		w.flushPendingEventsLocked()
	})
}

func (w *Watcher) flushPendingEvents() {
	w.eventsMu.Lock()
	defer w.eventsMu.Unlock()
	w.flushPendingEventsLocked()
}

// flushPendingEventsLocked flushes pending events (caller must hold lock).
func (w *Watcher) flushPendingEventsLocked() {
	if len(w.pendingEvents) == 0 {
		return
	}

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
		w.debounceTimer = nil
	}

	events := make([]FileEvent, 0, len(w.pendingEvents))
	for _, event := range w.pendingEvents {
		events = append(events, event)
	}
	w.pendingEvents = make(map[string]FileEvent)

	// Handler runs in its own goroutine so slow uploads never back up the
	// event loop.
	if w.handler != nil {
		go w.handler(events)
	}

	w.logger.Debug().Int("count", len(events)).Msg("Flushed file events")
}
