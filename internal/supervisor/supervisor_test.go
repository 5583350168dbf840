//go:build !windows

package supervisor

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devloop-dev/devloop/internal/errors"
)

func newTestSupervisor(t *testing.T, spec Spec) *Supervisor {
	t.Helper()
	s, err := New(spec)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.Stop(ctx)
	})
	return s
}

// freePort reserves and releases a TCP port for the test to hand out.
func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func TestNew_EmptyCommand(t *testing.T) {
	_, err := New(Spec{})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeConfig))
}

func TestStartStop(t *testing.T) {
	s := newTestSupervisor(t, Spec{Command: []string{"sleep", "60"}})
	ctx := context.Background()

	assert.Equal(t, StateStopped, s.State())

	require.NoError(t, s.Start(ctx))
	assert.Equal(t, StateRunning, s.State())

	// Starting again is a no-op.
	require.NoError(t, s.Start(ctx))
	assert.Equal(t, StateRunning, s.State())

	require.NoError(t, s.Stop(ctx))
	assert.Equal(t, StateStopped, s.State())

	// Stopping again is a no-op.
	require.NoError(t, s.Stop(ctx))
	assert.Equal(t, StateStopped, s.State())
}

func TestCrashIsReportedAndNotRetried(t *testing.T) {
	s := newTestSupervisor(t, Spec{Command: []string{"sh", "-c", "exit 3"}})
	ctx := context.Background()

	require.NoError(t, s.Start(ctx))

	select {
	case err := <-s.Crashes():
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.CodeCrash))
		assert.Contains(t, err.Error(), "exit status 3")
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for crash notification")
	}

	assert.Equal(t, StateCrashed, s.State())

	// No automatic restart: the state stays crashed until the next trigger.
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, StateCrashed, s.State())

	// A fresh start out of the crashed state works.
	s2 := newTestSupervisor(t, Spec{Command: []string{"sleep", "60"}})
	require.NoError(t, s2.Start(ctx))
	assert.Equal(t, StateRunning, s2.State())
}

func TestGracefulStop(t *testing.T) {
	s := newTestSupervisor(t, Spec{
		Command:     []string{"sh", "-c", `trap "exit 0" TERM; while true; do sleep 0.1; done`},
		GracePeriod: 5 * time.Second,
	})
	ctx := context.Background()

	require.NoError(t, s.Start(ctx))

	start := time.Now()
	require.NoError(t, s.Stop(ctx))

	// The trap exits well before the grace period: this was a clean stop.
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, StateStopped, s.State())
}

func TestForcedKillAfterGracePeriod(t *testing.T) {
	s := newTestSupervisor(t, Spec{
		Command:     []string{"sh", "-c", `trap "" TERM; while true; do sleep 0.1; done`},
		GracePeriod: 300 * time.Millisecond,
	})
	ctx := context.Background()

	require.NoError(t, s.Start(ctx))

	start := time.Now()
	require.NoError(t, s.Stop(ctx))
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 300*time.Millisecond)
	assert.Less(t, elapsed, 5*time.Second)
	assert.Equal(t, StateStopped, s.State())
}

func TestRestart_StopsOldBeforeStartingNew(t *testing.T) {
	dir := t.TempDir()
	pidFile := filepath.Join(dir, "pid")

	s := newTestSupervisor(t, Spec{
		Command: []string{"sh", "-c", fmt.Sprintf(`echo $$ > %s; exec sleep 60`, pidFile)},
	})
	ctx := context.Background()

	require.NoError(t, s.Start(ctx))
	oldPid := readPid(t, pidFile)

	require.NoError(t, os.Remove(pidFile))
	require.NoError(t, s.Restart(ctx))
	assert.Equal(t, StateRunning, s.State())

	newPid := readPid(t, pidFile)
	assert.NotEqual(t, oldPid, newPid)

	// The old process must be fully terminated, not merely signalled.
	require.Eventually(t, func() bool {
		return syscall.Kill(oldPid, 0) != nil
	}, 2*time.Second, 50*time.Millisecond, "old process still alive")
}

func readPid(t *testing.T, path string) int {
	t.Helper()
	var pid int
	require.Eventually(t, func() bool {
		data, err := os.ReadFile(path)
		if err != nil {
			return false
		}
		pid, err = strconv.Atoi(strings.TrimSpace(string(data)))
		return err == nil && pid > 0
	}, 3*time.Second, 50*time.Millisecond)
	return pid
}

func TestStartupTimeout(t *testing.T) {
	port := freePort(t)
	s := newTestSupervisor(t, Spec{
		Command:        []string{"sleep", "60"},
		Addr:           fmt.Sprintf("127.0.0.1:%d", port),
		StartupTimeout: 400 * time.Millisecond,
	})

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeStartupTimeout))
	assert.Equal(t, StateStopped, s.State())
}

func TestExitBeforeReady(t *testing.T) {
	port := freePort(t)
	s := newTestSupervisor(t, Spec{
		Command:        []string{"sh", "-c", "exit 7"},
		Addr:           fmt.Sprintf("127.0.0.1:%d", port),
		StartupTimeout: 3 * time.Second,
	})

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeCrash))
	assert.Equal(t, StateStopped, s.State())
}

func TestReadinessProbe(t *testing.T) {
	port := freePort(t)
	addr := fmt.Sprintf("127.0.0.1:%d", port)

	s := newTestSupervisor(t, Spec{
		Command:        []string{"sleep", "60"},
		Addr:           addr,
		StartupTimeout: 5 * time.Second,
	})

	// Stand in for the application's listener after a short startup delay.
	var ln net.Listener
	var lnMu sync.Mutex
	go func() {
		time.Sleep(300 * time.Millisecond)
		l, err := net.Listen("tcp", addr)
		if err == nil {
			lnMu.Lock()
			ln = l
			lnMu.Unlock()
		}
	}()
	t.Cleanup(func() {
		lnMu.Lock()
		defer lnMu.Unlock()
		if ln != nil {
			ln.Close()
		}
	})

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, StateRunning, s.State())
}

func TestPortInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	s := newTestSupervisor(t, Spec{
		Command:        []string{"sleep", "60"},
		Addr:           ln.Addr().String(),
		PortCheckDelay: 30 * time.Millisecond,
	})

	err = s.Start(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodePortInUse))
	assert.Equal(t, StateStopped, s.State())
}

func TestConcurrentRestartsNeverOverlap(t *testing.T) {
	dir := t.TempDir()
	pidFile := filepath.Join(dir, "pid")

	s := newTestSupervisor(t, Spec{
		Command: []string{"sh", "-c", fmt.Sprintf(`echo $$ >> %s; exec sleep 60`, pidFile)},
	})
	ctx := context.Background()

	require.NoError(t, s.Start(ctx))

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Restart(ctx))
		}()
	}
	wg.Wait()

	assert.Equal(t, StateRunning, s.State())

	// Every pid recorded except the live one must be dead: at no point were
	// two instances running concurrently once restarts settled.
	require.NoError(t, s.Stop(ctx))
	data, err := os.ReadFile(pidFile)
	require.NoError(t, err)
	for _, line := range strings.Fields(string(data)) {
		pid, err := strconv.Atoi(line)
		require.NoError(t, err)
		assert.Eventually(t, func() bool {
			return syscall.Kill(pid, 0) != nil
		}, 2*time.Second, 50*time.Millisecond)
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "stopped", StateStopped.String())
	assert.Equal(t, "starting", StateStarting.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "stopping", StateStopping.String())
	assert.Equal(t, "crashed", StateCrashed.String())
}
