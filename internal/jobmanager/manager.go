package jobmanager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sys/unix"
)

// Options configures a Manager. Nil files default to the standard streams of
// the current process and a nil Logger discards everything.
type Options struct {
	// Stdin, Stdout and Stderr are inherited by launched processes unless
	// redirected. They must be files so the child gets the descriptors
	// directly.
	Stdin  *os.File
	Stdout *os.File
	Stderr *os.File

	Logger *slog.Logger
}

// Manager is responsible for launching and controlling Jobs.
type Manager struct {
	table Table

	// foreground is the pid of the job the shell is blocked on, or 0.
	foreground int
	waiter     *waiter

	// children holds every pid started and not yet reaped, including those
	// whose slot was already released by Kill.
	children map[int]struct{}

	stdin  *os.File
	stdout *os.File
	stderr *os.File
	logger *slog.Logger

	mu sync.Mutex
}

// Result describes the outcome of a launch or of resuming a job in the
// foreground.
type Result struct {
	// Job is a snapshot of the slot when the job was started or resumed.
	Job Job

	// Event is the state change that ended the foreground wait. It's nil for
	// background launches.
	Event *Event

	// RedirectErr holds any redirection that was skipped because its file
	// couldn't be opened.
	RedirectErr error
}

// NewManager creates a Manager with an empty Table. Call Start to begin
// receiving child and terminal notifications.
func NewManager(opts Options) *Manager {
	m := &Manager{
		children: make(map[int]struct{}),
		stdin:    opts.Stdin,
		stdout:   opts.Stdout,
		stderr:   opts.Stderr,
		logger:   opts.Logger,
	}

	if m.stdin == nil {
		m.stdin = os.Stdin
	}

	if m.stdout == nil {
		m.stdout = os.Stdout
	}

	if m.stderr == nil {
		m.stderr = os.Stderr
	}

	if m.logger == nil {
		m.logger = slog.New(slog.DiscardHandler)
	}

	return m
}

// Ref identifies a job either by job number or by pid.
type Ref struct {
	Number int
	PID    int
}

func (r Ref) String() string {
	if r.Number > 0 {
		return "%" + strconv.Itoa(r.Number)
	}

	return strconv.Itoa(r.PID)
}

// ParseRef parses a job reference: a bare pid or a %-prefixed job number.
func ParseRef(s string) (Ref, error) {
	if n, ok := strings.CutPrefix(s, "%"); ok {
		number, err := strconv.Atoi(n)
		if err != nil || number <= 0 {
			return Ref{}, fmt.Errorf("%w: %s", ErrNoSuchJob, s)
		}

		return Ref{Number: number}, nil
	}

	pid, err := strconv.Atoi(s)
	if err != nil || pid <= 0 {
		return Ref{}, fmt.Errorf("%w: %s", ErrNoSuchJob, s)
	}

	return Ref{PID: pid}, nil
}

// lookup resolves ref to an occupied slot. The caller must hold m.mu.
func (m *Manager) lookup(ref Ref) *Job {
	if ref.Number > 0 {
		return m.table.FindByNumber(ref.Number)
	}

	return m.table.FindByPID(ref.PID)
}

func (m *Manager) resolve(s string) (*Job, error) {
	ref, err := ParseRef(s)
	if err != nil {
		return nil, err
	}

	slot := m.lookup(ref)
	if slot == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchJob, ref)
	}

	return slot, nil
}

// Foreground resumes the job referenced by ref in the foreground and blocks
// until it exits, is killed or stops again.
func (m *Manager) Foreground(ctx context.Context, ref string) (*Result, error) {
	m.mu.Lock()

	slot, err := m.resolve(ref)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}

	slot.State = JobStateForegroundRunning
	m.foreground = slot.PID
	w := m.watch(slot.PID)

	// A job launched in the background has its own process group and would be
	// stopped by SIGTTIN on its first terminal read.
	restoreTerminal := m.handTerminal(slot.PID)

	if err := unix.Kill(slot.PID, unix.SIGCONT); err != nil {
		m.logger.Warn("continue job", "pid", slot.PID, "err", err)
	}

	result := &Result{Job: *slot}

	m.mu.Unlock()

	m.logger.Debug("resumed job in foreground", "job", result.Job.Number, "pid", result.Job.PID)

	ev, err := m.await(ctx, w)

	restoreTerminal()

	if err != nil {
		return result, err
	}

	result.Event = ev

	return result, nil
}

// Background resumes the stopped job referenced by ref without waiting for
// it. Trying to resume a job that isn't stopped returns an InvalidStateError.
func (m *Manager) Background(ref string) (Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	slot, err := m.resolve(ref)
	if err != nil {
		return Job{}, err
	}

	if slot.State != JobStateStopped {
		return *slot, NewInvalidStateError(slot.State, JobStateBackgroundRunning)
	}

	if err := unix.Kill(slot.PID, unix.SIGCONT); err != nil {
		return *slot, fmt.Errorf("continue pid %d: %w", slot.PID, err)
	}

	slot.State = JobStateBackgroundRunning

	m.logger.Debug("resumed job in background", "job", slot.Number, "pid", slot.PID)

	return *slot, nil
}

// Kill releases the slot of the job referenced by ref and then sends it
// SIGKILL. The slot is released before the process is confirmed dead; the
// relay reaps the process when it exits.
func (m *Manager) Kill(ref string) (Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	slot, err := m.resolve(ref)
	if err != nil {
		return Job{}, err
	}

	job := *slot

	m.table.Reset(slot)

	if m.foreground == job.PID {
		m.foreground = 0
	}

	if err := unix.Kill(job.PID, unix.SIGKILL); err != nil {
		return job, fmt.Errorf("kill pid %d: %w", job.PID, err)
	}

	m.logger.Debug("killed job", "job", job.Number, "pid", job.PID, "id", job.ID)

	return job, nil
}

// Shutdown sends SIGKILL to every tracked job. It doesn't wait for them to
// exit.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error

	for _, job := range m.table.Jobs() {
		if err := unix.Kill(job.PID, unix.SIGKILL); err != nil {
			// NOTE: The process may have exited without being reaped yet. Treat
			// the kill as 'best effort' and report rather than stop.
			errs = append(errs, fmt.Errorf("kill pid %d: %w", job.PID, err))
		}
	}

	return errors.Join(errs...)
}

// Jobs returns a snapshot of every tracked Job in job number order.
func (m *Manager) Jobs() []Job {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.table.Jobs()
}

// Job returns a snapshot of the Job with job number n.
func (m *Manager) Job(n int) (Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	slot := m.table.FindByNumber(n)
	if slot == nil {
		return Job{}, ErrNoSuchJob
	}

	return *slot, nil
}

// ForegroundPID returns the pid of the foreground job, or 0 if there isn't
// one.
func (m *Manager) ForegroundPID() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.foreground
}

// Verify checks the invariants of the underlying Table.
func (m *Manager) Verify() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.table.Verify()
}
