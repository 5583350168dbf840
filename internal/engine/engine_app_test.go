//go:build !windows

package engine

import (
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devloop-dev/devloop/internal/broadcast"
	"github.com/devloop-dev/devloop/internal/config"
)

// appConfig returns an app-mode config running command, watching watchDir,
// with timings short enough for tests.
func appConfig(t *testing.T, watchDir string, command []string) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Host = "127.0.0.1"
	cfg.Port = freePort(t)
	cfg.AppPort = freePort(t)
	cfg.AppCommand = command
	cfg.WatchRoots = []string{watchDir}
	cfg.Debounce = 50 * time.Millisecond
	cfg.MaxWindow = time.Second
	cfg.StartupTimeout = 3 * time.Second
	cfg.GracePeriod = time.Second
	return cfg
}

// listenLater opens addr after delay, standing in for the application
// becoming ready.
func listenLater(t *testing.T, addr string, delay time.Duration) {
	t.Helper()
	opened := make(chan net.Listener, 1)
	go func() {
		time.Sleep(delay)
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			opened <- nil
			return
		}
		opened <- ln
	}()
	t.Cleanup(func() {
		if ln := <-opened; ln != nil {
			ln.Close()
		}
	})
}

func TestAppFailingAtBoot_KeepsServerUp(t *testing.T) {
	dir := t.TempDir()
	cfg := appConfig(t, dir, []string{"sh", "-c", "exit 3"})

	s, err := New(Options{Config: cfg})
	require.NoError(t, err)
	startServer(t, s, cfg)

	// The application never came up, but the dev server did: the proxy
	// answers with the placeholder page and waits for the next change.
	resp, err := http.Get(cfg.URL() + "/")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Contains(t, string(body), "Application Not Running")
}

func TestCrashOverlay_ClearedAfterRecovery(t *testing.T) {
	srcDir := t.TempDir()
	appDir := t.TempDir()
	src := filepath.Join(srcDir, "main.go")
	require.NoError(t, os.WriteFile(src, []byte("package main"), 0o644))

	// The application fails until the marker file exists, then stays up.
	cfg := appConfig(t, srcDir, []string{"sh", "-c", "test -f marker && exec sleep 60; exit 3"})
	cfg.AppDir = appDir

	s, err := New(Options{Config: cfg})
	require.NoError(t, err)
	startServer(t, s, cfg)

	conn := dialReload(t, cfg)

	// A code change while the app still cannot start: the restart fails
	// and the browser gets the error overlay.
	require.NoError(t, os.WriteFile(src, []byte("package main // v2"), 0o644))

	msg := readMessage(t, conn)
	assert.Equal(t, broadcast.TypeError, msg.Type)
	assert.Contains(t, msg.Error, "E202")

	// Fix the app and change code again: once it is live, the overlay is
	// cleared before the reload arrives.
	require.NoError(t, os.WriteFile(filepath.Join(appDir, "marker"), nil, 0o644))
	listenLater(t, cfg.AppAddr(), 400*time.Millisecond)
	require.NoError(t, os.WriteFile(src, []byte("package main // v3"), 0o644))

	msg = readMessage(t, conn)
	assert.Equal(t, broadcast.TypeClear, msg.Type)

	msg = readMessage(t, conn)
	assert.Equal(t, broadcast.TypeReload, msg.Type)
}
