package watch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devloop-dev/devloop/internal/errors"
)

func newTestWatcher(t *testing.T, opts Options) *PathWatcher {
	t.Helper()
	w, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })
	return w
}

func recvEvent(t *testing.T, w *PathWatcher, timeout time.Duration) ChangeEvent {
	t.Helper()
	select {
	case ev := <-w.Events():
		return ev
	case <-time.After(timeout):
		t.Fatal("timeout waiting for change event")
		return ChangeEvent{}
	}
}

func assertNoEvent(t *testing.T, w *PathWatcher, quiet time.Duration) {
	t.Helper()
	select {
	case ev := <-w.Events():
		t.Fatalf("unexpected event: %s %s", ev.Kind, ev.Path)
	case <-time.After(quiet):
	}
}

func TestNew_NoObservableRoots(t *testing.T) {
	_, err := New(Options{Roots: []string{filepath.Join(t.TempDir(), "missing")}})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeWatchNoRoots))
}

func TestNew_BadRootIsReportedAndSkipped(t *testing.T) {
	good := t.TempDir()
	bad := filepath.Join(t.TempDir(), "nope")

	w := newTestWatcher(t, Options{Roots: []string{good, bad}})

	setupErrs := w.SetupErrors()
	require.Len(t, setupErrs, 1)
	assert.True(t, errors.IsCode(setupErrs[0], errors.CodeWatchSetup))
}

func TestWatcher_ModifyExistingFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "app.py")
	require.NoError(t, os.WriteFile(file, []byte("print('a')\n"), 0o644))

	w := newTestWatcher(t, Options{Roots: []string{dir}})

	require.NoError(t, os.WriteFile(file, []byte("print('b')\n"), 0o644))

	ev := recvEvent(t, w, 2*time.Second)
	assert.Equal(t, file, ev.Path)
	assert.Equal(t, KindModified, ev.Kind)
	assert.False(t, ev.Timestamp.IsZero())
}

func TestWatcher_CreateFile(t *testing.T) {
	dir := t.TempDir()
	w := newTestWatcher(t, Options{Roots: []string{dir}})

	file := filepath.Join(dir, "new.css")
	require.NoError(t, os.WriteFile(file, []byte("body{}"), 0o644))

	ev := recvEvent(t, w, 2*time.Second)
	assert.Equal(t, file, ev.Path)
	assert.Equal(t, KindCreated, ev.Kind)
}

func TestWatcher_DeleteFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "gone.go")
	require.NoError(t, os.WriteFile(file, []byte("package gone"), 0o644))

	w := newTestWatcher(t, Options{Roots: []string{dir}})

	require.NoError(t, os.Remove(file))

	ev := recvEvent(t, w, 2*time.Second)
	assert.Equal(t, file, ev.Path)
	assert.Equal(t, KindDeleted, ev.Kind)
}

func TestWatcher_ExcludedPathNotEmitted(t *testing.T) {
	dir := t.TempDir()
	w := newTestWatcher(t, Options{
		Roots:   []string{dir},
		Exclude: []string{"*.swp"},
	})

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".app.py.swp"), []byte("x"), 0o644))

	assertNoEvent(t, w, 300*time.Millisecond)
}

func TestWatcher_ExcludedDirectoryNotWatched(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, ".git")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	w := newTestWatcher(t, Options{
		Roots:   []string{dir},
		Exclude: []string{".git"},
	})

	require.NoError(t, os.WriteFile(filepath.Join(sub, "HEAD"), []byte("ref"), 0o644))

	assertNoEvent(t, w, 300*time.Millisecond)
}

func TestWatcher_NewSubdirectoryIsWatched(t *testing.T) {
	dir := t.TempDir()
	w := newTestWatcher(t, Options{Roots: []string{dir}})

	sub := filepath.Join(dir, "pages")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	// Give the watcher a moment to pick up the new directory.
	time.Sleep(200 * time.Millisecond)

	file := filepath.Join(sub, "index.html")
	require.NoError(t, os.WriteFile(file, []byte("<html></html>"), 0o644))

	ev := recvEvent(t, w, 2*time.Second)
	assert.Equal(t, file, ev.Path)
}

func TestWatcher_CloseClosesEventChannel(t *testing.T) {
	dir := t.TempDir()
	w, err := New(Options{Roots: []string{dir}})
	require.NoError(t, err)

	require.NoError(t, w.Close())
	require.NoError(t, w.Close()) // idempotent

	_, open := <-w.Events()
	assert.False(t, open)
}

func TestChangeKind_String(t *testing.T) {
	assert.Equal(t, "created", KindCreated.String())
	assert.Equal(t, "modified", KindModified.String())
	assert.Equal(t, "deleted", KindDeleted.String())
	assert.Equal(t, "unknown", ChangeKind(99).String())
}
