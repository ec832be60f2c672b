package watch

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/snowball-c3/c3-scripts/internal/logging"
)

// Op is the kind of change an Event reports.
type Op int

// Event operations.
const (
	OpChange Op = iota + 1
	OpRemove
)

func (o Op) String() string {
	switch o {
	case OpChange:
		return "modified"
	case OpRemove:
		return "removed"
	default:
		return "unknown"
	}
}

// Event is one relevant file-system change.
type Event struct {
	Path string
	Op   Op
	// Diff is a unified diff of the file contents, set by the file watcher
	// when a watched file changed.
	Diff string
}

// Subscription delivers events and watcher errors until closed. Channels are
// never closed; stop reading after Close.
type Subscription interface {
	Events() <-chan Event
	Errors() <-chan error
	Close() error
}

// State is the lifecycle state of a subscription as seen by its consumer.
type State int

// Subscription states. StateTriggered is terminal for a config subscription.
const (
	StateWatching State = iota
	StateTriggered
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateWatching:
		return "watching"
	case StateTriggered:
		return "triggered"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// eventBuffer is the capacity of the event and error channels.
const eventBuffer = 64

// subscription is the fsnotify plumbing shared by both watchers.
type subscription struct {
	watcher *fsnotify.Watcher
	events  chan Event
	errors  chan error
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
	logger  *slog.Logger
}

func newSubscription(logger *slog.Logger) (*subscription, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}

	return &subscription{
		watcher: w,
		events:  make(chan Event, eventBuffer),
		errors:  make(chan error, eventBuffer),
		done:    make(chan struct{}),
		logger:  logging.OrDefault(logger),
	}, nil
}

func (s *subscription) Events() <-chan Event { return s.events }

func (s *subscription) Errors() <-chan error { return s.errors }

func (s *subscription) send(ev Event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

func (s *subscription) fail(err error) {
	select {
	case s.errors <- err:
	case <-s.done:
	}
}

// run forwards fsnotify notifications to handle until Close.
func (s *subscription) run(handle func(fsnotify.Event)) {
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		for {
			select {
			case <-s.done:
				return

			case ev, ok := <-s.watcher.Events:
				if !ok {
					return
				}

				handle(ev)

			case err, ok := <-s.watcher.Errors:
				if !ok {
					return
				}

				s.fail(err)
			}
		}
	}()
}

func (s *subscription) close(stop func()) error {
	var err error

	s.once.Do(func() {
		close(s.done)

		if stop != nil {
			stop()
		}

		err = s.watcher.Close()
		s.wg.Wait()
	})

	return err
}

// ---------------------------------------------------------------------------
// Source tree
// ---------------------------------------------------------------------------

// TreeOptions configures a TreeWatcher.
type TreeOptions struct {
	// Debounce coalesces bursts of events into one. Zero delivers every
	// relevant event.
	Debounce time.Duration

	Logger *slog.Logger
}

// TreeWatcher reports changes anywhere below a directory.
type TreeWatcher struct {
	*subscription
	root      string
	debouncer *Debouncer
}

var _ Subscription = (*TreeWatcher)(nil)

// WatchTree starts watching root and every non-hidden directory below it.
// Directories created later are added as they appear.
func WatchTree(root string, opts TreeOptions) (*TreeWatcher, error) {
	sub, err := newSubscription(opts.Logger)
	if err != nil {
		return nil, err
	}

	if err := addRecursive(sub.watcher, root); err != nil {
		_ = sub.watcher.Close()
		return nil, fmt.Errorf("watching source directory: %w", err)
	}

	tw := &TreeWatcher{subscription: sub, root: root}

	if opts.Debounce > 0 {
		tw.debouncer = NewDebouncer(opts.Debounce, sub.send)
	}

	sub.run(tw.handle)

	return tw, nil
}

func (tw *TreeWatcher) handle(ev fsnotify.Event) {
	if !isRelevant(ev) {
		return
	}

	// A new directory may already contain files; watch it and report it.
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := addRecursive(tw.watcher, ev.Name); err != nil {
				tw.logger.Warn("watching new directory", slog.String("path", ev.Name), slog.String("error", err.Error()))
			}
		}
	}

	out := Event{Path: ev.Name, Op: OpChange}
	if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
		out.Op = OpRemove
	}

	if tw.debouncer != nil {
		tw.debouncer.Trigger(out)
		return
	}

	tw.send(out)
}

// Close stops the watcher. It is safe to call more than once.
func (tw *TreeWatcher) Close() error {
	var stop func()
	if tw.debouncer != nil {
		stop = tw.debouncer.Stop
	}

	return tw.close(stop)
}

// ---------------------------------------------------------------------------
// Config files
// ---------------------------------------------------------------------------

// FileWatcher reports changes to a fixed set of files. The parent directories
// are watched so that files replaced or created by editors are seen.
type FileWatcher struct {
	*subscription

	mu       sync.Mutex
	contents map[string]string
}

var _ Subscription = (*FileWatcher)(nil)

// WatchFiles starts watching paths. Files that do not exist yet are reported
// when they are created.
func WatchFiles(paths []string, logger *slog.Logger) (*FileWatcher, error) {
	if len(paths) == 0 {
		return nil, errors.New("no files to watch")
	}

	sub, err := newSubscription(logger)
	if err != nil {
		return nil, err
	}

	fw := &FileWatcher{subscription: sub, contents: make(map[string]string, len(paths))}
	dirs := map[string]struct{}{}

	for _, p := range paths {
		abs, absErr := filepath.Abs(p)
		if absErr != nil {
			_ = sub.watcher.Close()
			return nil, fmt.Errorf("resolving %q: %w", p, absErr)
		}

		fw.contents[abs] = readOrEmpty(abs)
		dirs[filepath.Dir(abs)] = struct{}{}
	}

	for dir := range dirs {
		if err := sub.watcher.Add(dir); err != nil {
			_ = sub.watcher.Close()
			return nil, fmt.Errorf("watching %q: %w", dir, err)
		}
	}

	sub.run(fw.handle)

	return fw, nil
}

func (fw *FileWatcher) handle(ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)

	fw.mu.Lock()
	before, watched := fw.contents[path]
	fw.mu.Unlock()

	if !watched || !isRelevant(ev) {
		return
	}

	if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
		fw.send(Event{Path: path, Op: OpRemove})
		return
	}

	after := readOrEmpty(path)

	fw.mu.Lock()
	fw.contents[path] = after
	fw.mu.Unlock()

	// Editors often write a file in several steps; an unchanged file is not news.
	if before == after && ev.Has(fsnotify.Write) {
		return
	}

	diff, err := Diff(path, before, after)
	if err != nil {
		fw.logger.Debug("diffing config file", slog.String("path", path), slog.String("error", err.Error()))
	}

	fw.send(Event{Path: path, Op: OpChange, Diff: diff})
}

// Close stops the watcher. It is safe to call more than once.
func (fw *FileWatcher) Close() error {
	return fw.close(nil)
}

func readOrEmpty(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}

	return string(data)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// addRecursive walks root and adds all directories to the watcher.
func addRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			// Skip hidden directories (e.g., .git) and installed packages.
			if (strings.HasPrefix(d.Name(), ".") || d.Name() == "node_modules") && path != root {
				return filepath.SkipDir
			}

			return watcher.Add(path)
		}

		return nil
	})
}

// isRelevant filters out permission changes and editor scratch files.
func isRelevant(event fsnotify.Event) bool {
	if event.Op == 0 {
		return false
	}

	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}

	name := filepath.Base(event.Name)

	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, "~") ||
		strings.HasSuffix(name, ".swp") || strings.HasPrefix(name, "#") {
		return false
	}

	return true
}
