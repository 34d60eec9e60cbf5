package jobmanager

import (
	"os/signal"

	"golang.org/x/sys/unix"
)

// handTerminal makes the process group of pid the foreground process group of
// the controlling terminal on stdin and returns a function that gives the
// terminal back to the shell. The caller must hold m.mu.
//
// Nothing changes when stdin isn't the shell's controlling terminal, or when
// the job already runs in the shell's process group (jobs launched in the
// foreground).
func (m *Manager) handTerminal(pid int) func() {
	fd := int(m.stdin.Fd())
	shell := unix.Getpgrp()

	current, err := unix.IoctlGetInt(fd, unix.TIOCGPGRP)
	if err != nil || current != shell {
		return func() {}
	}

	pgid, err := unix.Getpgid(pid)
	if err != nil || pgid == shell {
		return func() {}
	}

	if err := unix.IoctlSetPointerInt(fd, unix.TIOCSPGRP, pgid); err != nil {
		m.logger.Warn("hand terminal to job", "pid", pid, "pgid", pgid, "err", err)
		return func() {}
	}

	m.logger.Debug("handed terminal to job", "pid", pid, "pgid", pgid)

	return func() {
		// The shell is a background process group until the terminal is back,
		// and changing the foreground group from there raises SIGTTOU.
		signal.Ignore(unix.SIGTTOU)
		defer signal.Reset(unix.SIGTTOU)

		if err := unix.IoctlSetPointerInt(fd, unix.TIOCSPGRP, shell); err != nil {
			m.logger.Warn("take back terminal", "pgid", shell, "err", err)
		}
	}
}
