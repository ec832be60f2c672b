package watch

import (
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snowball-c3/c3-scripts/internal/logging"
)

// ---------------------------------------------------------------------------
// Debouncer
// ---------------------------------------------------------------------------

func TestDebouncer_SingleEvent(t *testing.T) {
	var callCount atomic.Int32
	var last atomic.Value

	d := NewDebouncer(50*time.Millisecond, func(ev Event) {
		callCount.Add(1)
		last.Store(ev)
	})
	defer d.Stop()

	d.Trigger(Event{Path: "Input.jsx", Op: OpChange})

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int32(1), callCount.Load())
	assert.Equal(t, "Input.jsx", last.Load().(Event).Path)
}

func TestDebouncer_LastEventWins(t *testing.T) {
	var callCount atomic.Int32
	var last atomic.Value

	d := NewDebouncer(80*time.Millisecond, func(ev Event) {
		callCount.Add(1)
		last.Store(ev)
	})
	defer d.Stop()

	for _, name := range []string{"first.jsx", "second.jsx", "third.jsx"} {
		d.Trigger(Event{Path: name, Op: OpChange})
		time.Sleep(5 * time.Millisecond)
	}

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(1), callCount.Load())
	assert.Equal(t, "third.jsx", last.Load().(Event).Path)
}

func TestDebouncer_Stop(t *testing.T) {
	var callCount atomic.Int32

	d := NewDebouncer(50*time.Millisecond, func(Event) {
		callCount.Add(1)
	})

	d.Trigger(Event{Path: "a.jsx"})
	d.Stop()
	d.Trigger(Event{Path: "b.jsx"})

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(0), callCount.Load())
}

// ---------------------------------------------------------------------------
// Diff
// ---------------------------------------------------------------------------

func TestDiff(t *testing.T) {
	diff, err := Diff("/p/c3.config.yaml", "name: field\ntarget: web\n", "name: field\ntarget: mobile\n")
	require.NoError(t, err)
	assert.Contains(t, diff, "--- a/c3.config.yaml")
	assert.Contains(t, diff, "+++ b/c3.config.yaml")
	assert.Contains(t, diff, "-target: web\n")
	assert.Contains(t, diff, "+target: mobile\n")

	same, err := Diff("x", "a\n", "a\n")
	require.NoError(t, err)
	assert.Empty(t, same)
}

func TestSplitLines(t *testing.T) {
	assert.Nil(t, splitLines(""))
	assert.Equal(t, []string{"a\n", "b\n"}, splitLines("a\nb\n"))
	assert.Equal(t, []string{"a\n", "b\n"}, splitLines("a\nb"))
}

// ---------------------------------------------------------------------------
// Op / State
// ---------------------------------------------------------------------------

func TestStrings(t *testing.T) {
	assert.Equal(t, "modified", OpChange.String())
	assert.Equal(t, "removed", OpRemove.String())
	assert.Equal(t, "watching", StateWatching.String())
	assert.Equal(t, "triggered", StateTriggered.String())
	assert.Equal(t, "stopped", StateStopped.String())
	assert.Equal(t, "State(9)", State(9).String())
}

// ---------------------------------------------------------------------------
// isRelevant
// ---------------------------------------------------------------------------

func TestIsRelevant(t *testing.T) {
	tests := []struct {
		name string
		path string
		op   fsnotify.Op
		want bool
	}{
		{"jsx write", "Input.jsx", fsnotify.Write, true},
		{"create event", "Label.tsx", fsnotify.Create, true},
		{"remove event", "old.js", fsnotify.Remove, true},
		{"rename event", "renamed.jsx", fsnotify.Rename, true},
		{"hidden file", ".hidden", fsnotify.Write, false},
		{"swap file", "file.swp", fsnotify.Write, false},
		{"backup tilde", "file~", fsnotify.Write, false},
		{"emacs hash", "#file#", fsnotify.Write, false},
		{"zero op", "file.jsx", 0, false},
		{"chmod only", "file.jsx", fsnotify.Chmod, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isRelevant(fsnotify.Event{Name: tt.path, Op: tt.op}))
		})
	}
}

// ---------------------------------------------------------------------------
// addRecursive
// ---------------------------------------------------------------------------

func TestAddRecursive_SkipsHiddenAndNodeModules(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "web", "Input"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "mobile"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git", "objects"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "node_modules", "react"), 0o755))

	watcher, err := fsnotify.NewWatcher()
	require.NoError(t, err)
	defer watcher.Close()

	require.NoError(t, addRecursive(watcher, dir))

	watched := make(map[string]bool)
	for _, p := range watcher.WatchList() {
		watched[p] = true
	}

	assert.True(t, watched[dir])
	assert.True(t, watched[filepath.Join(dir, "web")])
	assert.True(t, watched[filepath.Join(dir, "web", "Input")])
	assert.True(t, watched[filepath.Join(dir, "mobile")])
	assert.False(t, watched[filepath.Join(dir, ".git")])
	assert.False(t, watched[filepath.Join(dir, "node_modules")])
}

func TestAddRecursive_NonExistentDir(t *testing.T) {
	watcher, err := fsnotify.NewWatcher()
	require.NoError(t, err)
	defer watcher.Close()

	assert.Error(t, addRecursive(watcher, "/nonexistent/dir/12345"))
}

// ---------------------------------------------------------------------------
// TreeWatcher
// ---------------------------------------------------------------------------

func nextEvent(t *testing.T, sub Subscription) Event {
	t.Helper()

	select {
	case ev := <-sub.Events():
		return ev
	case err := <-sub.Errors():
		t.Fatalf("unexpected watcher error: %v", err)
	case <-time.After(3 * time.Second):
		t.Fatal("no event within 3s")
	}

	return Event{}
}

func TestWatchTree_ReportsChanges(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "Input.jsx")
	require.NoError(t, os.WriteFile(file, []byte("export default 1\n"), 0o644))

	tw, err := WatchTree(dir, TreeOptions{Logger: logging.Discard()})
	require.NoError(t, err)
	defer tw.Close()

	require.NoError(t, os.WriteFile(file, []byte("export default 2\n"), 0o644))

	ev := nextEvent(t, tw)
	assert.Equal(t, file, ev.Path)
	assert.Equal(t, OpChange, ev.Op)
}

func TestWatchTree_NewDirectoryIsWatched(t *testing.T) {
	dir := t.TempDir()

	tw, err := WatchTree(dir, TreeOptions{Debounce: 20 * time.Millisecond, Logger: logging.Discard()})
	require.NoError(t, err)
	defer tw.Close()

	sub := filepath.Join(dir, "Label")
	require.NoError(t, os.Mkdir(sub, 0o755))
	_ = nextEvent(t, tw)

	require.Eventually(t, func() bool {
		for _, p := range tw.watcher.WatchList() {
			if p == sub {
				return true
			}
		}

		return false
	}, time.Second, 10*time.Millisecond)

	file := filepath.Join(sub, "index.jsx")
	require.NoError(t, os.WriteFile(file, []byte("export default 1\n"), 0o644))

	ev := nextEvent(t, tw)
	assert.Equal(t, file, ev.Path)
}

func TestWatchTree_InvalidRoot(t *testing.T) {
	_, err := WatchTree("/nonexistent/src/12345", TreeOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "watching source directory")
}

func TestWatchTree_CloseIsIdempotent(t *testing.T) {
	tw, err := WatchTree(t.TempDir(), TreeOptions{Debounce: 10 * time.Millisecond})
	require.NoError(t, err)

	assert.NoError(t, tw.Close())
	assert.NoError(t, tw.Close())
}

// ---------------------------------------------------------------------------
// FileWatcher
// ---------------------------------------------------------------------------

func TestWatchFiles_ChangeCarriesDiff(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "c3.config.yaml")
	pkg := filepath.Join(dir, "package.json")
	other := filepath.Join(dir, "README.md")

	require.NoError(t, os.WriteFile(cfg, []byte("name: field\ntarget: web\n"), 0o644))
	require.NoError(t, os.WriteFile(pkg, []byte("{}\n"), 0o644))

	fw, err := WatchFiles([]string{cfg, pkg}, logging.Discard())
	require.NoError(t, err)
	defer fw.Close()

	require.NoError(t, os.WriteFile(other, []byte("ignored\n"), 0o644))
	require.NoError(t, os.WriteFile(cfg, []byte("name: field\ntarget: mobile\n"), 0o644))

	// A truncating write can surface as more than one event; the last one
	// carries the new contents.
	var ev Event
	for ev.Diff == "" || !strings.Contains(ev.Diff, "+target: mobile") {
		ev = nextEvent(t, fw)
		assert.Equal(t, cfg, ev.Path)
		assert.Equal(t, OpChange, ev.Op)
	}
}

func TestWatchFiles_Removal(t *testing.T) {
	dir := t.TempDir()
	pkg := filepath.Join(dir, "package.json")
	require.NoError(t, os.WriteFile(pkg, []byte("{}\n"), 0o644))

	fw, err := WatchFiles([]string{pkg}, logging.Discard())
	require.NoError(t, err)
	defer fw.Close()

	require.NoError(t, os.Remove(pkg))

	ev := nextEvent(t, fw)
	assert.Equal(t, pkg, ev.Path)
	assert.Equal(t, OpRemove, ev.Op)
}

func TestWatchFiles_Errors(t *testing.T) {
	_, err := WatchFiles(nil, nil)
	assert.ErrorContains(t, err, "no files to watch")

	_, err = WatchFiles([]string{"/nonexistent/dir/12345/c3.config.yaml"}, nil)
	assert.Error(t, err)
}
