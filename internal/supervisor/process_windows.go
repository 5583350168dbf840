//go:build windows

package supervisor

import (
	"os"
	"os/exec"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

// processHandle is one live application process and its children, grouped via
// a job object so kill reaches anything the application spawned.
type processHandle struct {
	cmd     *exec.Cmd
	job     windows.Handle
	done    chan struct{}
	exitErr error
}

func startProcess(argv []string, dir string, env []string) (*processHandle, error) {
	job, err := createJobObject()
	if err != nil {
		job = 0
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = append(os.Environ(), env...)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: windows.CREATE_NEW_PROCESS_GROUP,
	}

	if err := cmd.Start(); err != nil {
		if job != 0 {
			windows.CloseHandle(job)
		}
		return nil, err
	}

	if job != 0 {
		if err := assignProcessToJob(job, cmd.Process.Pid); err != nil {
			windows.CloseHandle(job)
			job = 0
		}
	}

	h := &processHandle{cmd: cmd, job: job, done: make(chan struct{})}
	go func() {
		h.exitErr = cmd.Wait()
		close(h.done)
	}()

	return h, nil
}

// terminate has no graceful signal on Windows; closing the job object (or
// killing the process) is the stop path.
func (h *processHandle) terminate() {
	h.kill()
}

func (h *processHandle) kill() {
	if h.job != 0 {
		windows.CloseHandle(h.job)
		h.job = 0
		return
	}
	if h.cmd.Process != nil {
		_ = h.cmd.Process.Kill()
	}
}

func (h *processHandle) exited() <-chan struct{} {
	return h.done
}

func (h *processHandle) exitError() error {
	return h.exitErr
}

func createJobObject() (windows.Handle, error) {
	job, err := windows.CreateJobObject(nil, nil)
	if err != nil {
		return 0, err
	}

	info := windows.JOBOBJECT_EXTENDED_LIMIT_INFORMATION{}
	info.BasicLimitInformation.LimitFlags = windows.JOB_OBJECT_LIMIT_KILL_ON_JOB_CLOSE
	_, err = windows.SetInformationJobObject(
		job,
		windows.JobObjectExtendedLimitInformation,
		uintptr(unsafe.Pointer(&info)),
		uint32(unsafe.Sizeof(info)),
	)
	if err != nil {
		windows.CloseHandle(job)
		return 0, err
	}

	return job, nil
}

func assignProcessToJob(job windows.Handle, pid int) error {
	handle, err := windows.OpenProcess(windows.PROCESS_SET_QUOTA|windows.PROCESS_TERMINATE, false, uint32(pid))
	if err != nil {
		return err
	}
	defer windows.CloseHandle(handle)

	return windows.AssignProcessToJobObject(job, handle)
}
