package jobmanager

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sys/unix"
)

// sigChanBufferSize only needs to absorb a burst; repeated SIGCHLDs coalesce
// and every reap drains all pending state changes.
const sigChanBufferSize = 8

type EventKind int

const (
	EventUnknown EventKind = iota
	EventExited
	EventSignaled
	EventStopped
)

var eventKinds = []string{"unknown", "exited", "signaled", "stopped"}

func (k EventKind) String() string {
	if int(k) < 0 || int(k) >= len(eventKinds) {
		return eventKinds[0]
	}

	return eventKinds[k]
}

// Event is a state change of a child process observed by the relay.
type Event struct {
	PID  int
	Kind EventKind

	// ExitCode is set for EventExited, or -1.
	ExitCode int

	// Signal is the terminating signal for EventSignaled or the stop signal
	// for EventStopped.
	Signal syscall.Signal
}

// Terminal returns whether the process no longer exists.
func (e Event) Terminal() bool {
	return e.Kind == EventExited || e.Kind == EventSignaled
}

func eventFromStatus(pid int, ws unix.WaitStatus) Event {
	ev := Event{PID: pid, ExitCode: -1}

	switch {
	case ws.Exited():
		ev.Kind = EventExited
		ev.ExitCode = ws.ExitStatus()
	case ws.Signaled():
		ev.Kind = EventSignaled
		ev.Signal = ws.Signal()
	case ws.Stopped():
		ev.Kind = EventStopped
		ev.Signal = ws.StopSignal()
	}

	return ev
}

// waiter receives the next terminal or stop Event for pid.
type waiter struct {
	pid    int
	events chan Event
}

// watch registers the waiter for the foreground pid. The caller must hold
// m.mu.
func (m *Manager) watch(pid int) *waiter {
	w := &waiter{pid: pid, events: make(chan Event, 1)}
	m.waiter = w

	return w
}

// await blocks until the relay delivers an Event to w or ctx is done.
func (m *Manager) await(ctx context.Context, w *waiter) (*Event, error) {
	select {
	case ev := <-w.events:
		return &ev, nil
	case <-ctx.Done():
		m.mu.Lock()
		if m.waiter == w {
			m.waiter = nil
		}
		m.mu.Unlock()

		return nil, ctx.Err()
	}
}

// Start subscribes to child state changes (SIGCHLD) and to the terminal's
// suspend (SIGTSTP) and interrupt (SIGINT) requests, and dispatches them to
// Reap, Suspend and Interrupt until ctx is done. The subscription is in place
// when Start returns.
func (m *Manager) Start(ctx context.Context) {
	sigCh := make(chan os.Signal, sigChanBufferSize)

	signal.Notify(sigCh, unix.SIGCHLD, unix.SIGTSTP, unix.SIGINT)

	go func() {
		defer signal.Stop(sigCh)

		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-sigCh:
				switch sig {
				case unix.SIGCHLD:
					m.Reap()
				case unix.SIGTSTP:
					m.Suspend()
				case unix.SIGINT:
					m.Interrupt()
				}
			}
		}
	}()

	// Catch anything that changed state before the subscription.
	m.Reap()
}

// Reap collects every pending state change of the Manager's children without
// blocking and applies it to the Table. A child that exited or was killed has
// its slot released; a child that stopped has its slot marked stopped. The
// foreground waiter, if any, is handed the Event for its pid.
func (m *Manager) Reap() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for pid := range m.children {
		for {
			var ws unix.WaitStatus

			wpid, err := unix.Wait4(pid, &ws, unix.WNOHANG|unix.WUNTRACED, nil)
			if err == unix.EINTR {
				continue
			}

			if err != nil {
				// NOTE: ECHILD means something else already collected the child.
				// Treat it as gone so the slot isn't leaked.
				m.logger.Warn("wait for child", "pid", pid, "err", err)
				m.apply(Event{PID: pid, Kind: EventExited, ExitCode: -1})
				delete(m.children, pid)

				break
			}

			if wpid == 0 {
				break
			}

			ev := eventFromStatus(pid, ws)
			m.apply(ev)

			if ev.Terminal() {
				delete(m.children, pid)
				break
			}
		}
	}
}

// apply updates the Table for ev. The caller must hold m.mu.
func (m *Manager) apply(ev Event) {
	slot := m.table.FindByPID(ev.PID)

	switch ev.Kind {
	case EventExited, EventSignaled:
		if slot != nil {
			m.logger.Debug(
				"reaped job",
				"job", slot.Number,
				"pid", ev.PID,
				"id", slot.ID,
				"event", ev.Kind,
				"exit_code", ev.ExitCode,
			)
		}

		m.table.Reset(slot)

	case EventStopped:
		if slot != nil {
			slot.State = JobStateStopped
		}

	default:
		// Continued or otherwise unclassified; the slot keeps its state and is
		// released when the process terminates.
		m.logger.Warn("unclassified child state change", "pid", ev.PID)
		return
	}

	if m.foreground == ev.PID {
		m.foreground = 0
	}

	if m.waiter != nil && m.waiter.pid == ev.PID {
		m.waiter.events <- ev
		m.waiter = nil
	}
}

// Suspend forwards a stop request to the foreground job and marks it stopped.
// It does nothing when there's no foreground job.
func (m *Manager) Suspend() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.foreground == 0 {
		return
	}

	if err := unix.Kill(m.foreground, unix.SIGTSTP); err != nil {
		m.logger.Warn("forward stop request", "pid", m.foreground, "err", err)
		return
	}

	if slot := m.table.FindByPID(m.foreground); slot != nil {
		slot.State = JobStateStopped
	}

	m.logger.Debug("forwarded stop request", "pid", m.foreground)
}

// Interrupt kills the foreground job. The Table is updated when the relay
// reaps it. It does nothing when there's no foreground job.
func (m *Manager) Interrupt() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.foreground == 0 {
		return
	}

	if err := unix.Kill(m.foreground, unix.SIGKILL); err != nil {
		m.logger.Warn("forward interrupt request", "pid", m.foreground, "err", err)
		return
	}

	m.logger.Debug("forwarded interrupt request", "pid", m.foreground)
}
