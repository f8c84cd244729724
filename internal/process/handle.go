// Package process manages the long-lived child processes devbay
// supervises: the backend dev server and the localtunnel client. Each
// child runs in its own process group so teardown takes the whole tree
// with it.
package process

import (
	"context"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/mkarlsen/devbay/internal/errors"
)

// Kind identifies a supervised process slot.
type Kind string

const (
	KindServer Kind = "server"
	KindTunnel Kind = "tunnel"
)

// killWait bounds how long Stop waits for a killed process to be reaped.
const killWait = 5 * time.Second

// Handle owns a spawned child process. Termination is absorbing: once
// the child has exited, Stop and Release are no-ops.
type Handle struct {
	kind Kind
	cmd  *exec.Cmd
	pid  int

	done     chan struct{}
	waitErr  error
	killOnce sync.Once
}

// start launches cmd in its own process group and begins reaping it.
func start(kind Kind, cmd *exec.Cmd) (*Handle, error) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true

	if err := cmd.Start(); err != nil {
		return nil, &errors.ProcessError{
			Code:    errors.CodeSpawnFailed,
			Message: "failed to spawn process",
			Kind:    string(kind),
			Cause:   err,
		}
	}

	h := &Handle{
		kind: kind,
		cmd:  cmd,
		pid:  cmd.Process.Pid,
		done: make(chan struct{}),
	}
	go h.reap()
	return h, nil
}

// reap waits for the child so it never lingers as a zombie.
func (h *Handle) reap() {
	h.waitErr = h.cmd.Wait()
	close(h.done)
}

// PID returns the child's process ID.
func (h *Handle) PID() int {
	return h.pid
}

// Kind returns the slot this handle belongs to.
func (h *Handle) Kind() Kind {
	return h.kind
}

// Running reports whether the child is still alive.
func (h *Handle) Running() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// Done is closed once the child has exited and been reaped.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// kill signals the whole process group, falling back to the process
// itself when the group signal fails.
func (h *Handle) kill() {
	h.killOnce.Do(func() {
		if err := syscall.Kill(-h.pid, syscall.SIGKILL); err != nil {
			_ = h.cmd.Process.Kill()
		}
	})
}

// Stop kills the child and waits for it to be reaped. An already
// terminated child returns immediately.
func (h *Handle) Stop(ctx context.Context) error {
	select {
	case <-h.done:
		return nil
	default:
	}

	h.kill()

	timer := time.NewTimer(killWait)
	defer timer.Stop()
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return &errors.ProcessError{
			Code:    errors.CodeKillFailed,
			Message: "canceled while waiting for process to exit",
			Kind:    string(h.kind),
			Cause:   ctx.Err(),
		}
	case <-timer.C:
		return &errors.ProcessError{
			Code:    errors.CodeKillFailed,
			Message: "process did not exit after kill",
			Kind:    string(h.kind),
		}
	}
}

// Release kills the child without waiting. Used when the handle's owner
// goes away and nobody will observe the exit.
func (h *Handle) Release() {
	select {
	case <-h.done:
		return
	default:
		h.kill()
	}
}

// WaitErr returns the result of waiting on the child. Only meaningful
// after Done is closed.
func (h *Handle) WaitErr() error {
	select {
	case <-h.done:
		return h.waitErr
	default:
		return nil
	}
}
