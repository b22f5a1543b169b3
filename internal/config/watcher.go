package config

import (
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DebounceDelay is the default delay for debouncing file system events.
const DebounceDelay = 100 * time.Millisecond

// ChangeEvent is delivered when the configuration file changes on disk.
type ChangeEvent struct {
	Path      string
	Timestamp time.Time
}

// Watcher monitors a configuration file and notifies subscribers when it changes.
// Changes are not applied to the running process; subscribers typically tell
// the user to restart.
//
// The parent directory is watched rather than the file itself, so editors that
// replace the file on save are handled.
type Watcher struct {
	mu sync.RWMutex

	watcher *fsnotify.Watcher
	path    string

	subscribers map[int]func(ChangeEvent)
	nextID      int

	debounceDelay time.Duration
	debounceTimer *time.Timer
	debounceMu    sync.Mutex

	logger *slog.Logger

	started bool
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

// NewWatcher creates a watcher for the configuration file at path.
// Call Start() to begin watching and Close() when done.
func NewWatcher(path string, logger *slog.Logger) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		watcher:       fw,
		path:          abs,
		subscribers:   make(map[int]func(ChangeEvent)),
		debounceDelay: DebounceDelay,
		logger:        logger,
		done:          make(chan struct{}),
		stopped:       make(chan struct{}),
	}, nil
}

// SetDebounceDelay sets the debounce delay for batching rapid changes.
// Must be called before Start().
func (w *Watcher) SetDebounceDelay(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.debounceDelay = d
}

// Start adds the watch and begins the event processing loop.
func (w *Watcher) Start() error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}
	w.mu.Lock()
	w.started = true
	w.mu.Unlock()
	go w.eventLoop()
	return nil
}

// Close stops the watcher and releases resources.
// After Close returns, no more events are delivered.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		err = w.watcher.Close()

		w.debounceMu.Lock()
		if w.debounceTimer != nil {
			w.debounceTimer.Stop()
		}
		w.debounceMu.Unlock()

		w.mu.RLock()
		started := w.started
		w.mu.RUnlock()
		if started {
			<-w.stopped
		}
	})
	return err
}

// Subscribe registers fn to be called on every debounced change.
// The returned function removes the subscription.
func (w *Watcher) Subscribe(fn func(ChangeEvent)) func() {
	w.mu.Lock()
	id := w.nextID
	w.nextID++
	w.subscribers[id] = fn
	w.mu.Unlock()

	return func() {
		w.mu.Lock()
		delete(w.subscribers, id)
		w.mu.Unlock()
	}
}

func (w *Watcher) eventLoop() {
	defer close(w.stopped)

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if w.logger != nil {
				w.logger.Warn("Config watcher error", "error", err)
			}
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}

	if w.logger != nil {
		w.logger.Debug("Config file changed", "path", event.Name, "op", event.Op.String())
	}

	w.mu.RLock()
	delay := w.debounceDelay
	w.mu.RUnlock()

	w.debounceMu.Lock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(delay, w.fire)
	w.debounceMu.Unlock()
}

func (w *Watcher) fire() {
	select {
	case <-w.done:
		return
	default:
	}

	event := ChangeEvent{Path: w.path, Timestamp: time.Now()}

	w.mu.RLock()
	subs := make([]func(ChangeEvent), 0, len(w.subscribers))
	for _, fn := range w.subscribers {
		subs = append(subs, fn)
	}
	w.mu.RUnlock()

	for _, fn := range subs {
		fn(event)
	}
}
