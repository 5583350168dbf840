//go:build !windows

package supervisor

import (
	"os"
	"os/exec"
	"syscall"
)

// processHandle is one live application process and its children.
type processHandle struct {
	cmd     *exec.Cmd
	pgid    int
	done    chan struct{}
	exitErr error
}

// startProcess spawns argv in its own process group so that terminate and
// kill reach any children the application forks.
func startProcess(argv []string, dir string, env []string) (*processHandle, error) {
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = append(os.Environ(), env...)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	h := &processHandle{cmd: cmd, done: make(chan struct{})}
	if pgid, err := syscall.Getpgid(cmd.Process.Pid); err == nil {
		h.pgid = pgid
	}

	go func() {
		h.exitErr = cmd.Wait()
		close(h.done)
	}()

	return h, nil
}

// terminate asks the process group to exit gracefully.
func (h *processHandle) terminate() {
	if h.pgid > 0 {
		_ = syscall.Kill(-h.pgid, syscall.SIGTERM)
	} else {
		_ = h.cmd.Process.Signal(syscall.SIGTERM)
	}
}

// kill forcibly terminates the process group.
func (h *processHandle) kill() {
	if h.pgid > 0 {
		_ = syscall.Kill(-h.pgid, syscall.SIGKILL)
	} else {
		_ = h.cmd.Process.Kill()
	}
}

// exited is closed once the process has fully exited.
func (h *processHandle) exited() <-chan struct{} {
	return h.done
}

// exitError reports how the process exited. Only valid after exited() closes.
func (h *processHandle) exitError() error {
	return h.exitErr
}
