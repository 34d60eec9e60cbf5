package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"text/tabwriter"
	"time"

	"github.com/nixpig/jobshell/internal/jobmanager"
	"github.com/nixpig/jobshell/internal/shell"
	"github.com/nixpig/jobshell/internal/statusapi"
	"github.com/spf13/cobra"
)

const (
	inspectTimeout    = 5 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 2 * time.Second
)

func rootCmd() *cobra.Command {
	cfg := &config{}

	c := &cobra.Command{
		Use:          "jobsh",
		Short:        "Interactive shell with job control",
		Example:      "  jobsh --debug --log-file /tmp/jobsh.log",
		Version:      version,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.load(cmd.Flags()); err != nil {
				return err
			}

			return cfg.validate()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShell(cmd, cfg)
		},
	}

	cfg.bindFlags(c.Flags())

	c.AddCommand(inspectCmd())

	c.CompletionOptions.HiddenDefaultCmd = true

	return c
}

func runShell(cmd *cobra.Command, cfg *config) error {
	ctx := cmd.Context()

	logger, closeLog, err := cfg.newLogger(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer closeLog()

	manager := jobmanager.NewManager(jobmanager.Options{Logger: logger})
	manager.Start(ctx)

	if cfg.statusAddr != "" {
		stop, err := serveStatus(cfg.statusAddr, manager, logger)
		if err != nil {
			return err
		}
		defer stop()
	}

	sh := shell.New(shell.Options{
		Manager: manager,
		In:      cmd.InOrStdin(),
		Out:     cmd.OutOrStdout(),
		Err:     cmd.ErrOrStderr(),
		Prompt:  cfg.prompt,
		Logger:  logger,
	})

	if err := sh.Run(ctx); err != nil {
		manager.Shutdown()

		if errors.Is(err, context.Canceled) {
			return nil
		}

		return err
	}

	return nil
}

func serveStatus(
	addr string,
	manager *jobmanager.Manager,
	logger *slog.Logger,
) (func(), error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on status-addr: %w", err)
	}

	server := &http.Server{
		Handler:           statusapi.NewHandler(manager, logger),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		if err := server.Serve(listener); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			logger.Warn("serve status", "err", err)
		}
	}()

	logger.Info("serving status", "addr", listener.Addr().String())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		server.Shutdown(ctx)
	}, nil
}

// statusJob is the wire form of a job returned by the status endpoint.
type statusJob struct {
	Number      int    `json:"number"`
	PID         int    `json:"pid"`
	State       string `json:"state"`
	CommandLine string `json:"command_line"`
}

func inspectCmd() *cobra.Command {
	var addr string

	command := &cobra.Command{
		Use:     "inspect [flags]",
		Short:   "List the jobs of a running jobsh served on --status-addr",
		Example: "  jobsh inspect --addr localhost:8080",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), inspectTimeout)
			defer cancel()

			req, err := http.NewRequestWithContext(
				ctx,
				http.MethodGet,
				"http://"+addr+"/jobs",
				nil,
			)
			if err != nil {
				return err
			}

			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return fmt.Errorf("status server unavailable: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("unexpected status: %s", resp.Status)
			}

			var jobs []statusJob
			if err := json.NewDecoder(resp.Body).Decode(&jobs); err != nil {
				return fmt.Errorf("decode jobs: %w", err)
			}

			// TODO: Add a --no-headers flag for scripting.
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)

			fmt.Fprintf(w, "JOB\tPID\tSTATE\tCOMMAND\t\n")

			for _, job := range jobs {
				fmt.Fprintf(
					w,
					"%d\t%d\t%s\t%s\t\n",
					job.Number,
					job.PID,
					job.State,
					job.CommandLine,
				)
			}

			return w.Flush()
		},
	}

	command.Flags().StringVar(&addr, "addr", "localhost:8080", "Address of the status endpoint")

	return command
}
