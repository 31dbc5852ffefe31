// Package fswatch turns raw filesystem events from fsnotify into the
// classified, debounced event stream the camera coordinator consumes
// (spec §4.2: "(kind, path) events where kind ∈ {NewFile, NewDirectory,
// Error}. Debounced: at most one event per file-path per 1 second").
package fswatch

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Kind classifies a filesystem event.
type Kind int

const (
	NewFile Kind = iota
	NewDirectory
	Error
)

func (k Kind) String() string {
	switch k {
	case NewFile:
		return "new_file"
	case NewDirectory:
		return "new_directory"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Event is one classified, debounced filesystem notification.
type Event struct {
	Kind Kind
	Path string
	Err  error // set when Kind == Error
}

// Watcher wraps an fsnotify.Watcher, recursively watching a root
// directory and emitting at most one Event per path per debounce window.
type Watcher struct {
	fsw      *fsnotify.Watcher
	events   chan Event
	debounce time.Duration
	log      *slog.Logger

	mu       sync.Mutex
	lastSeen map[string]time.Time
}

// New starts watching root, every directory already under it, and any
// subdirectory created under it later, and returns a Watcher whose Events
// channel is closed once Close is called.
func New(root string, debounce time.Duration, log *slog.Logger) (*Watcher, error) {
	if debounce <= 0 {
		debounce = time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, &WatcherError{Path: root, Err: err}
	}
	err = filepath.Walk(root, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if info.IsDir() {
			return fsw.Add(path)
		}
		return nil
	})
	if err != nil {
		fsw.Close()
		return nil, &WatcherError{Path: root, Err: err}
	}

	w := &Watcher{
		fsw:      fsw,
		events:   make(chan Event, 64),
		debounce: debounce,
		log:      log,
		lastSeen: make(map[string]time.Time),
	}
	go w.run()
	return w, nil
}

// Events returns the channel of classified, debounced events.
func (w *Watcher) Events() <-chan Event { return w.events }

// Close stops watching and closes the Events channel.
func (w *Watcher) Close() error {
	err := w.fsw.Close()
	return err
}

func (w *Watcher) run() {
	defer close(w.events)
	for {
		select {
		case raw, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(raw)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.emit(Event{Kind: Error, Err: err})
		}
	}
}

func (w *Watcher) handle(raw fsnotify.Event) {
	if !raw.Has(fsnotify.Create) {
		return
	}
	if w.debounced(raw.Name) {
		return
	}

	info, err := os.Stat(raw.Name)
	if err != nil {
		w.emit(Event{Kind: Error, Path: raw.Name, Err: err})
		return
	}
	if info.IsDir() {
		// Watch the new subdirectory too so nested drops are seen.
		if err := w.fsw.Add(raw.Name); err != nil {
			w.log.Warn("fswatch: failed to watch new directory", slog.String("path", raw.Name), slog.Any("error", err))
		}
		w.emit(Event{Kind: NewDirectory, Path: raw.Name})
		return
	}
	w.emit(Event{Kind: NewFile, Path: raw.Name})
}

func (w *Watcher) debounced(path string) bool {
	now := time.Now()
	w.mu.Lock()
	defer w.mu.Unlock()
	if last, ok := w.lastSeen[path]; ok && now.Sub(last) < w.debounce {
		return true
	}
	w.lastSeen[path] = now
	return false
}

func (w *Watcher) emit(ev Event) {
	w.events <- ev
}
