package jobmanager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/nixpig/jobshell/internal/redirect"
	"golang.org/x/sys/unix"
)

// Launch starts argv as a new job. Redirection tokens in argv are applied to
// the child's standard input and output and removed from its arguments.
//
// A background job is started in its own process group so that stop and
// interrupt requests from the terminal don't reach it, and Launch returns as
// soon as it has started. A foreground job becomes the foreground process and
// Launch blocks until it exits, is killed or stops.
//
// Launch returns ErrCapacityExceeded without creating a process when every
// slot is occupied.
func (m *Manager) Launch(
	ctx context.Context,
	argv []string,
	background bool,
	commandLine string,
) (*Result, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("%w: empty command", ErrExecFailed)
	}

	m.mu.Lock()
	full := m.table.Occupied() >= Capacity
	m.mu.Unlock()

	if full {
		return nil, ErrCapacityExceeded
	}

	args, req := redirect.Parse(argv)

	files, redirectErr := req.Open()
	// The child holds its own copies of the descriptors once started.
	defer files.Close()

	if redirectErr != nil {
		m.logger.Warn("skip redirection", "program", args[0], "err", redirectErr)
	}

	path, err := lookProgram(args[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrExecFailed, args[0], err)
	}

	cmd := &exec.Cmd{
		Path:        path,
		Args:        args,
		Stdin:       m.stdin,
		Stdout:      m.stdout,
		Stderr:      m.stderr,
		SysProcAttr: &syscall.SysProcAttr{Setpgid: background},
	}

	if files.Stdin != nil {
		cmd.Stdin = files.Stdin
	}

	if files.Stdout != nil {
		cmd.Stdout = files.Stdout
	}

	state := JobStateForegroundRunning
	if background {
		state = JobStateBackgroundRunning
	}

	m.mu.Lock()

	slot, number := m.table.FindFree()
	if slot == nil {
		m.mu.Unlock()
		return nil, ErrCapacityExceeded
	}

	// The slot is filled in before the process exists and the lock is held
	// until the pid is recorded, so the relay always finds a complete slot.
	*slot = Job{
		Number:      number,
		State:       state,
		CommandLine: commandLine,
		ID:          uuid.NewString(),
	}

	if err := cmd.Start(); err != nil {
		m.table.Reset(slot)
		m.mu.Unlock()

		return nil, classifyStartError(args[0], err)
	}

	pid := cmd.Process.Pid

	slot.PID = pid
	m.children[pid] = struct{}{}

	// The relay waits on the pid directly, so the handle isn't needed.
	cmd.Process.Release()

	result := &Result{Job: *slot, RedirectErr: redirectErr}

	var w *waiter
	if !background {
		m.foreground = pid
		w = m.watch(pid)
	}

	m.mu.Unlock()

	m.logger.Debug(
		"launched job",
		"job", result.Job.Number,
		"pid", pid,
		"id", result.Job.ID,
		"state", state,
		"path", path,
	)

	if background {
		return result, nil
	}

	ev, err := m.await(ctx, w)
	if err != nil {
		return result, err
	}

	result.Event = ev

	return result, nil
}

// lookProgram resolves the program to execute. A name containing a slash is
// used as given. Otherwise the search path is tried first and then the
// current directory.
func lookProgram(name string) (string, error) {
	if strings.ContainsRune(name, '/') {
		return name, nil
	}

	path, err := exec.LookPath(name)
	if err == nil {
		return path, nil
	}

	if local, localErr := exec.LookPath("./" + name); localErr == nil {
		return local, nil
	}

	return "", err
}

// classifyStartError maps a failure to start a process to ErrExecFailed when
// the program image couldn't be loaded, and to ErrForkFailed otherwise.
func classifyStartError(program string, err error) error {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case unix.ENOENT, unix.EACCES, unix.ENOEXEC, unix.ENOTDIR,
			unix.EISDIR, unix.ETXTBSY, unix.ELOOP, unix.ENAMETOOLONG:
			return fmt.Errorf("%w: %s: %w", ErrExecFailed, program, err)
		}
	}

	var pathErr *os.PathError
	if errors.As(err, &pathErr) && errors.Is(pathErr.Err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s: %w", ErrExecFailed, program, err)
	}

	return fmt.Errorf("%w: %s: %w", ErrForkFailed, program, err)
}
