package shell

import (
	"fmt"
	"io"
	"os"

	"github.com/nixpig/jobshell/internal/jobmanager"
	"github.com/nixpig/jobshell/internal/redirect"
	"github.com/spf13/cobra"
)

func (s *Shell) builtinCmd() *cobra.Command {
	command := &cobra.Command{
		Use:           "jobsh",
		Short:         "Built-in commands",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	command.AddCommand(
		s.jobsCmd(),
		s.fgCmd(),
		s.bgCmd(),
		s.killCmd(),
		s.quitCmd(),
		s.cdCmd(),
		s.pwdCmd(),
	)

	command.CompletionOptions.DisableDefaultCmd = true
	command.InitDefaultHelpCmd()

	command.SetOut(s.out)
	command.SetErr(s.errOut)

	return command
}

func isBuiltin(builtins *cobra.Command, name string) bool {
	for _, c := range builtins.Commands() {
		if c.Name() == name || c.HasAlias(name) {
			return true
		}
	}

	return false
}

func (s *Shell) jobsCmd() *cobra.Command {
	command := &cobra.Command{
		Use:     "jobs [< FILE] [> FILE | >> FILE]",
		Short:   "List tracked jobs",
		Example: "  jobs >> jobs.log",
		// Redirection operators aren't flags.
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, req := redirect.Parse(append([]string{cmd.Name()}, args...))

			files, err := req.Open()
			defer files.Close()

			if err != nil {
				s.report(err)
			}

			var w io.Writer = cmd.OutOrStdout()
			if files.Stdout != nil {
				w = files.Stdout
			}

			for _, job := range s.manager.Jobs() {
				writeJob(w, job)
			}

			return nil
		},
	}

	return command
}

func writeJob(w io.Writer, job jobmanager.Job) {
	fmt.Fprintf(w, "[%d] (%d) <%s> <%s>\n", job.Number, job.PID, job.State, job.CommandLine)
}

func (s *Shell) fgCmd() *cobra.Command {
	command := &cobra.Command{
		Use:                "fg PID|%JOB",
		Short:              "Resume a job in the foreground",
		Example:            "  fg %1",
		Args:               cobra.ExactArgs(1),
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := s.manager.Foreground(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			s.reportWait(result)

			return nil
		},
	}

	return command
}

func (s *Shell) bgCmd() *cobra.Command {
	command := &cobra.Command{
		Use:                "bg PID|%JOB",
		Short:              "Resume a stopped job in the background",
		Example:            "  bg %1",
		Args:               cobra.ExactArgs(1),
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := s.manager.Background(args[0])
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "[%d] (%d) %s\n", job.Number, job.PID, job.CommandLine)

			return nil
		},
	}

	return command
}

func (s *Shell) killCmd() *cobra.Command {
	command := &cobra.Command{
		Use:                "kill PID|%JOB",
		Short:              "Kill a job",
		Example:            "  kill %1",
		Args:               cobra.ExactArgs(1),
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := s.manager.Kill(args[0])
			return err
		},
	}

	return command
}

func (s *Shell) quitCmd() *cobra.Command {
	command := &cobra.Command{
		Use:   "quit",
		Short: "Kill all jobs and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s.quit()
			return ErrQuit
		},
	}

	return command
}

func (s *Shell) cdCmd() *cobra.Command {
	command := &cobra.Command{
		Use:                "cd [DIR]",
		Short:              "Change the working directory",
		Args:               cobra.MaximumNArgs(1),
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			} else {
				home, err := os.UserHomeDir()
				if err != nil {
					return err
				}

				dir = home
			}

			return os.Chdir(dir)
		},
	}

	return command
}

func (s *Shell) pwdCmd() *cobra.Command {
	command := &cobra.Command{
		Use:   "pwd",
		Short: "Print the working directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := os.Getwd()
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), dir)

			return nil
		},
	}

	return command
}
