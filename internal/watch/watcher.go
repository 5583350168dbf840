// Package watch turns OS-level filesystem notifications into a rate-limited
// stream of coalesced change sets.
//
// PathWatcher wraps fsnotify and emits raw ChangeEvents with exclusion
// filtering and duplicate suppression applied at the source. Debouncer
// collapses bursts of events into one ChangeSet per quiet period.
package watch

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/devloop-dev/devloop/internal/errors"
	"github.com/devloop-dev/devloop/internal/policy"
)

// duplicateWindow is the interval within which an identical (path, kind)
// notification is considered an OS-level duplicate and dropped. Burst
// suppression across distinct events is the debouncer's job, not this one's.
const duplicateWindow = 20 * time.Millisecond

// Options configures a PathWatcher.
type Options struct {
	// Roots are the directories observed recursively.
	Roots []string

	// Exclude are glob patterns filtered out before events are emitted.
	Exclude []string

	// BufferSize is the event channel capacity (default 256).
	BufferSize int

	// Logger is used for structured logging. Defaults to slog.Default.
	Logger *slog.Logger
}

// PathWatcher observes a set of root directories and emits ChangeEvents.
// The event stream is infinite and non-restartable: once Close is called the
// channel is closed and the watcher cannot be reused.
type PathWatcher struct {
	fs      *fsnotify.Watcher
	exclude *policy.PatternSet
	events  chan ChangeEvent
	log     *slog.Logger

	setupErrs []error

	mu       sync.Mutex
	lastSeen map[dupKey]time.Time
	closed   bool
	done     chan struct{}
}

type dupKey struct {
	path string
	kind ChangeKind
}

// New creates a PathWatcher over opts.Roots and starts its event loop.
//
// A root that does not exist or cannot be observed yields a WatchSetupError
// (code E101) retrievable via SetupErrors; that root is excluded from
// watching. Only when no root at all is observable does New fail, with code
// E102.
func New(opts Options) (*PathWatcher, error) {
	exclude, err := policy.CompilePatterns(opts.Exclude)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.New(errors.CodeWatchNoRoots).Wrap(err)
	}

	if opts.BufferSize <= 0 {
		opts.BufferSize = 256
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	w := &PathWatcher{
		fs:       fsw,
		exclude:  exclude,
		events:   make(chan ChangeEvent, opts.BufferSize),
		log:      logger,
		lastSeen: make(map[dupKey]time.Time),
		done:     make(chan struct{}),
	}

	watched := 0
	for _, root := range opts.Roots {
		info, statErr := os.Stat(root)
		if statErr != nil || !info.IsDir() {
			setupErr := errors.New(errors.CodeWatchSetup).WithDetail("root %q", root)
			if statErr != nil {
				setupErr = setupErr.Wrap(statErr)
			}
			w.setupErrs = append(w.setupErrs, setupErr)
			w.log.Warn("watch root not observable, skipping", "root", root, "err", statErr)
			continue
		}
		if addErr := w.addRecursive(root); addErr != nil {
			w.setupErrs = append(w.setupErrs, errors.New(errors.CodeWatchSetup).
				WithDetail("root %q", root).Wrap(addErr))
			w.log.Warn("watch root not observable, skipping", "root", root, "err", addErr)
			continue
		}
		watched++
	}

	if watched == 0 {
		fsw.Close()
		return nil, errors.New(errors.CodeWatchNoRoots).
			WithDetail("none of %d configured roots could be watched", len(opts.Roots))
	}

	go w.loop()
	return w, nil
}

// Events returns the channel raw change events are delivered on. The channel
// is closed by Close.
func (w *PathWatcher) Events() <-chan ChangeEvent {
	return w.events
}

// SetupErrors returns the per-root setup failures encountered by New.
func (w *PathWatcher) SetupErrors() []error {
	return w.setupErrs
}

// Close stops the watcher and closes the event channel.
func (w *PathWatcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	err := w.fs.Close()
	<-w.done
	return err
}

// addRecursive watches dir and every non-excluded subdirectory.
func (w *PathWatcher) addRecursive(dir string) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if !info.IsDir() {
			return nil
		}
		if path != dir && w.exclude.Match(path) {
			return filepath.SkipDir
		}
		if addErr := w.fs.Add(path); addErr != nil {
			if path == dir {
				return addErr
			}
			w.log.Debug("cannot watch subdirectory", "dir", path, "err", addErr)
		}
		return nil
	})
}

// loop translates fsnotify notifications into ChangeEvents.
func (w *PathWatcher) loop() {
	defer close(w.done)
	defer close(w.events)

	for {
		select {
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			if err != nil {
				w.log.Warn("watcher error", "err", err)
			}
		}
	}
}

func (w *PathWatcher) handle(ev fsnotify.Event) {
	if w.exclude.Match(ev.Name) {
		return
	}

	var kind ChangeKind
	switch {
	case ev.Op.Has(fsnotify.Create):
		// A new directory is watched, not reported: only its files matter.
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(ev.Name); err != nil {
				w.log.Debug("cannot watch new directory", "dir", ev.Name, "err", err)
			}
			return
		}
		kind = KindCreated
	case ev.Op.Has(fsnotify.Write):
		kind = KindModified
	case ev.Op.Has(fsnotify.Remove), ev.Op.Has(fsnotify.Rename):
		kind = KindDeleted
	default:
		// Chmod and friends carry no content change.
		return
	}

	now := time.Now()
	if w.isDuplicate(ev.Name, kind, now) {
		return
	}

	select {
	case w.events <- ChangeEvent{Path: ev.Name, Kind: kind, Timestamp: now}:
	default:
		w.log.Warn("event channel full, dropping event", "path", ev.Name)
	}
}

// isDuplicate suppresses an identical notification arriving within
// duplicateWindow of the previous one.
func (w *PathWatcher) isDuplicate(path string, kind ChangeKind, now time.Time) bool {
	key := dupKey{path: path, kind: kind}

	w.mu.Lock()
	defer w.mu.Unlock()

	if last, ok := w.lastSeen[key]; ok && now.Sub(last) < duplicateWindow {
		return true
	}
	w.lastSeen[key] = now

	if len(w.lastSeen) > 1024 {
		for k, t := range w.lastSeen {
			if now.Sub(t) >= duplicateWindow {
				delete(w.lastSeen, k)
			}
		}
	}
	return false
}
