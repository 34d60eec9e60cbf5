package shell_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"testing"
	"testing/synctest"
	"time"

	"github.com/nixpig/jobshell/internal/jobmanager"
	"github.com/nixpig/jobshell/internal/shell"
)

type testShell struct {
	manager *jobmanager.Manager
	out     bytes.Buffer
	errOut  bytes.Buffer
}

// runShell feeds input to a new Shell and returns once the Shell has quit.
func runShell(t *testing.T, input string) *testShell {
	t.Helper()

	childOutput, err := os.CreateTemp(t.TempDir(), "output")
	if err != nil {
		t.Fatalf("failed to create output file: '%v'", err)
	}

	t.Cleanup(func() { childOutput.Close() })

	ts := &testShell{
		manager: jobmanager.NewManager(jobmanager.Options{
			Stdout: childOutput,
			Stderr: childOutput,
			Logger: slog.New(slog.DiscardHandler),
		}),
	}

	ts.manager.Start(t.Context())

	t.Cleanup(func() { ts.manager.Shutdown() })

	s := shell.New(shell.Options{
		Manager: ts.manager,
		In:      strings.NewReader(input),
		Out:     &ts.out,
		Err:     &ts.errOut,
		Prompt:  "prompt > ",
	})

	if err := s.Run(t.Context()); err != nil {
		t.Fatalf("expected not to receive error: got '%v'", err)
	}

	return ts
}

func waitForNoJobs(t *testing.T, m *jobmanager.Manager) {
	t.Helper()

	deadline := time.Now().Add(10 * time.Second)

	for len(m.Jobs()) != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for jobs to be reaped: '%v'", m.Jobs())
		}

		time.Sleep(10 * time.Millisecond)
	}
}

func TestParseLine(t *testing.T) {
	t.Parallel()

	scenarios := map[string]struct {
		line            string
		wantTokens      []string
		wantBackground  bool
		wantCommandLine string
	}{
		"Foreground": {
			line:            "ls -la",
			wantTokens:      []string{"ls", "-la"},
			wantCommandLine: "ls -la",
		},
		"Background": {
			line:            "sleep 100 &",
			wantTokens:      []string{"sleep", "100"},
			wantBackground:  true,
			wantCommandLine: "sleep 100 &",
		},
		"Surrounding whitespace": {
			line:            "  sleep  100 &  ",
			wantTokens:      []string{"sleep", "100"},
			wantBackground:  true,
			wantCommandLine: "sleep  100 &",
		},
		"Ampersand without space": {
			line:            "sleep 100&",
			wantTokens:      []string{"sleep", "100&"},
			wantCommandLine: "sleep 100&",
		},
		"Empty": {
			line:            "   ",
			wantCommandLine: "",
		},
	}

	for scenario, config := range scenarios {
		t.Run(scenario, func(t *testing.T) {
			t.Parallel()

			tokens, background, commandLine := shell.ParseLine(config.line)

			if !slices.Equal(tokens, config.wantTokens) {
				t.Errorf("expected tokens: got '%v', want '%v'", tokens, config.wantTokens)
			}

			if background != config.wantBackground {
				t.Errorf(
					"expected background: got '%t', want '%t'",
					background,
					config.wantBackground,
				)
			}

			if commandLine != config.wantCommandLine {
				t.Errorf(
					"expected command line: got '%s', want '%s'",
					commandLine,
					config.wantCommandLine,
				)
			}
		})
	}
}

func TestShell(t *testing.T) {
	t.Run("Test background job listed", func(t *testing.T) {
		ts := runShell(t, "sleep 100 &\njobs\nquit\n")

		want := regexp.MustCompile(`\[1\] \(\d+\) <Background/Running> <sleep 100 &>`)
		if !want.MatchString(ts.out.String()) {
			t.Errorf("expected jobs listing: got '%s'", ts.out.String())
		}

		if ts.errOut.Len() != 0 {
			t.Errorf("expected no errors: got '%s'", ts.errOut.String())
		}

		waitForNoJobs(t, ts.manager)
	})

	t.Run("Test foreground job", func(t *testing.T) {
		ts := runShell(t, "true\njobs\nquit\n")

		if strings.Contains(ts.out.String(), "[1]") {
			t.Errorf("expected no jobs: got '%s'", ts.out.String())
		}

		if got := strings.Count(ts.out.String(), "prompt > "); got != 3 {
			t.Errorf("expected prompts: got '%d', want '%d'", got, 3)
		}
	})

	t.Run("Test end of input quits", func(t *testing.T) {
		ts := runShell(t, "sleep 100 &\n")

		waitForNoJobs(t, ts.manager)
	})

	t.Run("Test jobs redirection", func(t *testing.T) {
		out := filepath.Join(t.TempDir(), "jobs.txt")

		ts := runShell(
			t,
			fmt.Sprintf("sleep 100 &\njobs > %s\njobs >> %s\nquit\n", out, out),
		)

		got, err := os.ReadFile(out)
		if err != nil {
			t.Fatalf("failed to read jobs output: '%v'", err)
		}

		if count := strings.Count(string(got), "<sleep 100 &>"); count != 2 {
			t.Errorf("expected two listings in file: got '%s'", got)
		}

		if strings.Contains(ts.out.String(), "<sleep 100 &>") {
			t.Errorf("expected listing not on stdout: got '%s'", ts.out.String())
		}
	})

	t.Run("Test command errors are reported", func(t *testing.T) {
		scenarios := map[string]struct {
			input   string
			wantErr string
		}{
			"Kill twice": {
				input:   "sleep 100 &\nkill %1\nkill %1\n",
				wantErr: "jobsh: no such job: %1",
			},
			"Background a running job": {
				input:   "sleep 100 &\nbg %1\n",
				wantErr: "jobsh: cannot go from Background/Running to Background/Running",
			},
			"Missing reference": {
				input:   "fg\n",
				wantErr: "jobsh: accepts 1 arg(s), received 0",
			},
			"Unknown program": {
				input:   "non-existent-program\n",
				wantErr: "jobsh: failed to execute program: non-existent-program",
			},
			"Capacity exceeded": {
				input:   strings.Repeat("sleep 100 &\n", jobmanager.Capacity+1),
				wantErr: "jobsh: max jobs reached",
			},
			"Missing input file": {
				input:   "jobs < non-existent-file\n",
				wantErr: "jobsh: open non-existent-file",
			},
		}

		for scenario, config := range scenarios {
			t.Run(scenario, func(t *testing.T) {
				ts := runShell(t, config.input)

				if !strings.Contains(ts.errOut.String(), config.wantErr) {
					t.Errorf(
						"expected error output: got '%s', want '%s'",
						ts.errOut.String(),
						config.wantErr,
					)
				}
			})
		}
	})

	t.Run("Test cd and pwd", func(t *testing.T) {
		t.Chdir(t.TempDir())

		dir, err := filepath.EvalSymlinks(t.TempDir())
		if err != nil {
			t.Fatalf("failed to resolve dir: '%v'", err)
		}

		ts := runShell(t, "cd "+dir+"\npwd\n")

		if !strings.Contains(ts.out.String(), dir+"\n") {
			t.Errorf("expected working directory: got '%s', want '%s'", ts.out.String(), dir)
		}
	})
	t.Run("Test help flag is not kept between lines", func(t *testing.T) {
		t.Chdir(t.TempDir())

		dir, err := os.Getwd()
		if err != nil {
			t.Fatalf("failed to get working directory: '%v'", err)
		}

		ts := runShell(t, "pwd -h\npwd\nquit -h\nquit\nsleep 100 &\njobs\n")

		if !strings.Contains(ts.out.String(), dir+"\n") {
			t.Errorf("expected working directory: got '%s', want '%s'", ts.out.String(), dir)
		}

		if got := strings.Count(ts.out.String(), "Kill all jobs and exit"); got != 1 {
			t.Errorf("expected quit help once: got '%d', want '%d'", got, 1)
		}

		if strings.Contains(ts.out.String(), "sleep 100") {
			t.Errorf("expected shell to quit before launching: got '%s'", ts.out.String())
		}

		if jobs := ts.manager.Jobs(); len(jobs) != 0 {
			t.Errorf("expected no jobs: got '%v'", jobs)
		}
	})
}

func TestRunCancelled(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		pr, pw := io.Pipe()
		defer pr.Close()

		s := shell.New(shell.Options{
			In:     pr,
			Out:    io.Discard,
			Err:    io.Discard,
			Prompt: "prompt > ",
		})

		ctx, cancel := context.WithCancel(t.Context())

		errCh := make(chan error, 1)
		go func() { errCh <- s.Run(ctx) }()

		// Run is waiting for a line that hasn't been typed yet.
		synctest.Wait()
		cancel()

		if err := <-errCh; !errors.Is(err, context.Canceled) {
			t.Errorf("expected to receive context.Canceled: got '%v'", err)
		}

		// A line arriving after Run returned must not leave the reader stuck.
		if _, err := io.WriteString(pw, "pwd\n"); err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		pw.Close()
	})
}
