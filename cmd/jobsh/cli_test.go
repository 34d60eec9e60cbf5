package main

import (
	"bytes"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nixpig/jobshell/internal/jobmanager"
	"github.com/nixpig/jobshell/internal/statusapi"
	"github.com/spf13/pflag"
)

type fakeLister []jobmanager.Job

func (f fakeLister) Jobs() []jobmanager.Job {
	return f
}

func (f fakeLister) Job(n int) (jobmanager.Job, error) {
	return jobmanager.Job{}, jobmanager.ErrNoSuchJob
}

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "jobsh.yaml")

	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("failed to write config: '%v'", err)
	}

	return path
}

func TestConfig(t *testing.T) {
	t.Parallel()

	t.Run("Test defaults", func(t *testing.T) {
		t.Parallel()

		c := rootCmd()
		if err := c.ParseFlags([]string{}); err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		prompt, err := c.Flags().GetString("prompt")
		if err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		if prompt != defaultPrompt {
			t.Errorf("expected prompt: got '%s', want '%s'", prompt, defaultPrompt)
		}
	})

	t.Run("Test file values and flag precedence", func(t *testing.T) {
		t.Parallel()

		path := writeConfigFile(
			t,
			"prompt: \"file > \"\ndebug: true\nstatus_addr: \"127.0.0.1:9000\"\n",
		)

		cfg := &config{}

		flags := pflag.NewFlagSet("jobsh", pflag.ContinueOnError)
		cfg.bindFlags(flags)

		if err := flags.Parse([]string{
			"--config", path,
			"--status-addr", "127.0.0.1:9001",
		}); err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		if err := cfg.load(flags); err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		if cfg.prompt != "file > " {
			t.Errorf("expected prompt from file: got '%s', want '%s'", cfg.prompt, "file > ")
		}

		if !cfg.debug {
			t.Errorf("expected debug from file: got '%t', want '%t'", cfg.debug, true)
		}

		if cfg.statusAddr != "127.0.0.1:9001" {
			t.Errorf(
				"expected status-addr from flag: got '%s', want '%s'",
				cfg.statusAddr,
				"127.0.0.1:9001",
			)
		}
	})

	t.Run("Test unknown file key", func(t *testing.T) {
		t.Parallel()

		cfg := &config{configPath: writeConfigFile(t, "colour: blue\n")}

		c := rootCmd()

		if err := cfg.load(c.Flags()); err == nil {
			t.Errorf("expected to receive error: got '%v'", err)
		}
	})

	t.Run("Test empty file", func(t *testing.T) {
		t.Parallel()

		cfg := &config{prompt: defaultPrompt, configPath: writeConfigFile(t, "")}

		if err := cfg.load(rootCmd().Flags()); err != nil {
			t.Errorf("expected not to receive error: got '%v'", err)
		}

		if cfg.prompt != defaultPrompt {
			t.Errorf("expected prompt: got '%s', want '%s'", cfg.prompt, defaultPrompt)
		}
	})

	t.Run("Test validate", func(t *testing.T) {
		t.Parallel()

		scenarios := map[string]struct {
			cfg   config
			valid bool
		}{
			"Defaults": {
				cfg:   config{prompt: defaultPrompt},
				valid: true,
			},
			"Status address": {
				cfg:   config{statusAddr: "localhost:8080"},
				valid: true,
			},
			"Status address without port": {
				cfg:   config{statusAddr: "localhost"},
				valid: false,
			},
			"Status address with bad port": {
				cfg:   config{statusAddr: "localhost:http-ish"},
				valid: false,
			},
			"Status address out of range": {
				cfg:   config{statusAddr: "localhost:70000"},
				valid: false,
			},
			"Log file in missing directory": {
				cfg:   config{logFile: "/non-existent-dir/jobsh.log"},
				valid: false,
			},
		}

		for scenario, sc := range scenarios {
			t.Run(scenario, func(t *testing.T) {
				t.Parallel()

				err := sc.cfg.validate()
				if sc.valid && err != nil {
					t.Errorf("expected not to receive error: got '%v'", err)
				}

				if !sc.valid && err == nil {
					t.Errorf("expected to receive error: got '%v'", err)
				}
			})
		}
	})
}

func TestInspect(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(statusapi.NewHandler(
		fakeLister{
			{
				Number:      2,
				PID:         4321,
				State:       jobmanager.JobStateStopped,
				CommandLine: "sleep 100",
			},
		},
		slog.New(slog.DiscardHandler),
	))
	t.Cleanup(server.Close)

	c := rootCmd()

	var out bytes.Buffer
	c.SetOut(&out)
	c.SetArgs([]string{
		"inspect",
		"--addr", strings.TrimPrefix(server.URL, "http://"),
	})

	if err := c.Execute(); err != nil {
		t.Fatalf("expected not to receive error: got '%v'", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header and one job: got '%s'", out.String())
	}

	if fields := strings.Fields(lines[0]); strings.Join(fields, " ") != "JOB PID STATE COMMAND" {
		t.Errorf("expected header: got '%s'", lines[0])
	}

	if fields := strings.Fields(lines[1]); strings.Join(fields, " ") != "2 4321 Stopped sleep 100" {
		t.Errorf("expected job row: got '%s'", lines[1])
	}
}
