// Package shell implements the interactive loop of jobsh: it reads one command
// line at a time, runs built-in commands and launches everything else as a
// job through a jobmanager.Manager.
package shell

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/nixpig/jobshell/internal/jobmanager"
)

// ErrQuit is returned by Execute when the quit built-in ran.
var ErrQuit = errors.New("quit")

// Options configures a Shell.
type Options struct {
	Manager *jobmanager.Manager

	In     io.Reader
	Out    io.Writer
	Err    io.Writer
	Prompt string

	Logger *slog.Logger
}

// Shell reads command lines and dispatches them.
type Shell struct {
	manager *jobmanager.Manager

	in     io.Reader
	out    io.Writer
	errOut io.Writer
	prompt string
	logger *slog.Logger
}

// New creates a Shell.
func New(opts Options) *Shell {
	s := &Shell{
		manager: opts.Manager,
		in:      opts.In,
		out:     opts.Out,
		errOut:  opts.Err,
		prompt:  opts.Prompt,
		logger:  opts.Logger,
	}

	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}

	return s
}

// Run reads and executes lines until quit, end of input or ctx is done.
// Reaching the end of input is equivalent to quit.
func (s *Shell) Run(ctx context.Context) error {
	next := make(chan struct{})
	lines := make(chan string)

	// Lines are only read on request so that input typed while a foreground
	// job runs is left for that job.
	go func() {
		defer close(lines)

		scanner := bufio.NewScanner(s.in)

		for range next {
			if !scanner.Scan() {
				if err := scanner.Err(); err != nil {
					s.logger.Warn("read input", "err", err)
				}

				return
			}

			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	defer close(next)

	for {
		fmt.Fprint(s.out, s.prompt)

		next <- struct{}{}

		var (
			line string
			ok   bool
		)

		select {
		case line, ok = <-lines:
		case <-ctx.Done():
			return ctx.Err()
		}

		if !ok {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			fmt.Fprintln(s.out)
			return s.quit()
		}

		err := s.Execute(ctx, line)
		if errors.Is(err, ErrQuit) {
			return nil
		}

		if err != nil {
			s.report(err)
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// Execute runs a single command line. Built-in commands run in the shell;
// anything else is launched as a job.
func (s *Shell) Execute(ctx context.Context, line string) error {
	tokens, background, commandLine := ParseLine(line)
	if len(tokens) == 0 {
		return nil
	}

	// cobra keeps parsed flag values on the command, so each line gets a fresh
	// tree.
	builtins := s.builtinCmd()

	if isBuiltin(builtins, tokens[0]) {
		builtins.SetArgs(tokens)
		return builtins.ExecuteContext(ctx)
	}

	result, err := s.manager.Launch(ctx, tokens, background, commandLine)
	if result != nil && result.RedirectErr != nil {
		s.report(result.RedirectErr)
	}

	if err != nil {
		return err
	}

	if background {
		fmt.Fprintf(s.out, "[%d] %d\n", result.Job.Number, result.Job.PID)
		return nil
	}

	s.reportWait(result)

	return nil
}

func (s *Shell) reportWait(result *jobmanager.Result) {
	if result.Event == nil {
		return
	}

	if result.Event.Kind == jobmanager.EventStopped {
		fmt.Fprintf(s.out, "\n[%d] (%d) stopped\n", result.Job.Number, result.Job.PID)
	}
}

func (s *Shell) report(err error) {
	fmt.Fprintf(s.errOut, "jobsh: %v\n", err)
}

func (s *Shell) quit() error {
	if err := s.manager.Shutdown(); err != nil {
		s.logger.Debug("kill jobs on quit", "err", err)
	}

	return nil
}
