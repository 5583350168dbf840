// Package supervisor owns the lifecycle of the user's application process.
//
// Exactly one application instance is live at any instant. All lifecycle
// operations on one Supervisor are serialized, and a restart is a strictly
// ordered stop-then-start: the old process is confirmed exited before the new
// one is spawned, so two instances never contend for the same address.
package supervisor

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/devloop-dev/devloop/internal/errors"
)

// State is the lifecycle state of the supervised application.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
	StateCrashed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateCrashed:
		return "crashed"
	default:
		return "stopped"
	}
}

// Defaults for the supervisor's timing knobs.
const (
	defaultStartupTimeout = 10 * time.Second
	defaultGracePeriod    = 5 * time.Second
	probeInterval         = 100 * time.Millisecond
	portCheckRetries      = 5
)

// Spec describes the application to supervise.
type Spec struct {
	// Command is the argv used to launch the application.
	Command []string

	// Dir is the working directory for the process.
	Dir string

	// Env are extra KEY=VALUE pairs appended to the inherited environment.
	Env []string

	// Addr is the address the application is expected to listen on. When set
	// it drives the pre-start free-port check and the readiness probe; when
	// empty the application counts as ready once spawned.
	Addr string

	// StartupTimeout bounds the wait for readiness (default 10s).
	StartupTimeout time.Duration

	// GracePeriod is how long a graceful stop may take before the process is
	// killed (default 5s).
	GracePeriod time.Duration

	// PortCheckDelay is the wait between free-port retries (default 1s).
	PortCheckDelay time.Duration

	// Logger is used for structured logging. Defaults to slog.Default.
	Logger *slog.Logger
}

// Supervisor runs and restarts one application process.
type Supervisor struct {
	spec Spec
	log  *slog.Logger

	// opMu serializes start/stop/restart end to end.
	opMu          sync.Mutex
	restartQueued atomic.Bool

	mu          sync.Mutex
	state       State
	proc        *processHandle
	intentional bool

	crashCh chan error
}

// New creates a Supervisor for spec. The application is not started.
func New(spec Spec) (*Supervisor, error) {
	if len(spec.Command) == 0 {
		return nil, errors.New(errors.CodeConfig).WithDetail("application command is empty")
	}
	if spec.StartupTimeout <= 0 {
		spec.StartupTimeout = defaultStartupTimeout
	}
	if spec.GracePeriod <= 0 {
		spec.GracePeriod = defaultGracePeriod
	}
	if spec.PortCheckDelay <= 0 {
		spec.PortCheckDelay = time.Second
	}
	if spec.Logger == nil {
		spec.Logger = slog.Default()
	}

	return &Supervisor{
		spec:    spec,
		log:     spec.Logger,
		crashCh: make(chan error, 4),
	}, nil
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Crashes returns the channel unexpected-exit errors are reported on.
// The supervisor never blocks on it; undrained notifications are dropped.
func (s *Supervisor) Crashes() <-chan error {
	return s.crashCh
}

// Start launches the application and waits for it to become ready.
// Starting an already running application is a no-op.
func (s *Supervisor) Start(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.startLocked(ctx)
}

// Stop gracefully terminates the application, killing it after the grace
// period. Stopping an already stopped application is a no-op.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.stopLocked(ctx)
}

// Restart performs a strictly ordered stop-then-start. A Restart requested
// while another lifecycle operation is in flight is coalesced: at most one
// restart stays pending beyond the in-flight one, which is enough to reach
// the latest requested state.
func (s *Supervisor) Restart(ctx context.Context) error {
	if !s.restartQueued.CompareAndSwap(false, true) {
		// A queued restart will observe every change made up to this point.
		return nil
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()
	s.restartQueued.Store(false)

	if err := s.stopLocked(ctx); err != nil {
		return err
	}
	return s.startLocked(ctx)
}

// startLocked runs the Stopped → Starting → Running transition.
// Caller holds opMu.
func (s *Supervisor) startLocked(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateRunning {
		s.mu.Unlock()
		return nil
	}
	s.state = StateStarting
	s.mu.Unlock()

	fail := func(err error) error {
		s.mu.Lock()
		s.state = StateStopped
		s.mu.Unlock()
		return err
	}

	if s.spec.Addr != "" {
		if err := s.waitPortFree(ctx); err != nil {
			return fail(err)
		}
	}

	s.log.Debug("starting application", "command", s.spec.Command, "addr", s.spec.Addr)

	proc, err := startProcess(s.spec.Command, s.spec.Dir, s.spec.Env)
	if err != nil {
		return fail(errors.New(errors.CodeSpawn).Wrap(err))
	}

	if err := s.awaitReady(ctx, proc); err != nil {
		return fail(err)
	}

	s.mu.Lock()
	s.proc = proc
	s.state = StateRunning
	s.mu.Unlock()

	go s.watchExit(proc)
	return nil
}

// stopLocked runs the Running → Stopping → Stopped transition.
// Caller holds opMu.
func (s *Supervisor) stopLocked(ctx context.Context) error {
	s.mu.Lock()
	proc := s.proc
	if proc == nil {
		// Nothing live; a crashed instance is already gone.
		s.state = StateStopped
		s.mu.Unlock()
		return nil
	}
	s.state = StateStopping
	s.intentional = true
	s.mu.Unlock()

	proc.terminate()

	// Graceful exit, forced kill after the grace period. Either way the
	// process is confirmed exited before we return.
	select {
	case <-proc.exited():
	case <-time.After(s.spec.GracePeriod):
		s.log.Warn("application did not stop in time, killing", "grace", s.spec.GracePeriod)
		proc.kill()
		<-proc.exited()
	case <-ctx.Done():
		proc.kill()
		<-proc.exited()
	}

	s.mu.Lock()
	s.proc = nil
	s.intentional = false
	s.state = StateStopped
	s.mu.Unlock()

	s.log.Debug("application stopped")
	return nil
}

// awaitReady blocks until the application accepts connections, exits early,
// or the startup timeout elapses.
func (s *Supervisor) awaitReady(ctx context.Context, proc *processHandle) error {
	if s.spec.Addr == "" {
		return nil
	}

	deadline := time.After(s.spec.StartupTimeout)
	ticker := time.NewTicker(probeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-proc.exited():
			return errors.New(errors.CodeCrash).
				WithDetail("application exited before becoming ready").
				Wrap(proc.exitError())

		case <-deadline:
			proc.kill()
			<-proc.exited()
			return errors.New(errors.CodeStartupTimeout).
				WithDetail("no listener on %s after %s", s.spec.Addr, s.spec.StartupTimeout)

		case <-ctx.Done():
			proc.kill()
			<-proc.exited()
			return ctx.Err()

		case <-ticker.C:
			conn, err := net.DialTimeout("tcp", s.spec.Addr, probeInterval)
			if err == nil {
				conn.Close()
				s.log.Debug("application ready", "addr", s.spec.Addr)
				return nil
			}
		}
	}
}

// waitPortFree verifies the application address is bindable, retrying briefly
// while a previous instance's socket drains.
func (s *Supervisor) waitPortFree(ctx context.Context) error {
	for i := 0; i < portCheckRetries; i++ {
		ln, err := net.Listen("tcp", s.spec.Addr)
		if err == nil {
			ln.Close()
			return nil
		}

		s.log.Warn("application address in use, waiting", "addr", s.spec.Addr, "attempt", i+1)
		select {
		case <-time.After(s.spec.PortCheckDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return errors.New(errors.CodePortInUse).WithDetail("address %s", s.spec.Addr)
}

// watchExit reports an exit that happened outside a supervisor-initiated
// stop. The instance is not restarted; the supervisor stays idle until the
// next trigger.
func (s *Supervisor) watchExit(proc *processHandle) {
	<-proc.exited()

	s.mu.Lock()
	if s.proc != proc || s.intentional {
		s.mu.Unlock()
		return
	}
	s.proc = nil
	s.state = StateCrashed
	s.mu.Unlock()

	err := errors.New(errors.CodeCrash).Wrap(proc.exitError())
	s.log.Error("application crashed", "err", proc.exitError())

	select {
	case s.crashCh <- err:
	default:
	}
}
