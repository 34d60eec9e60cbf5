package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

const defaultPrompt = "prompt > "

type config struct {
	prompt     string
	debug      bool
	logFile    string
	statusAddr string
	configPath string
}

// fileConfig mirrors config for the optional YAML file. Nil fields are unset.
type fileConfig struct {
	Prompt     *string `yaml:"prompt"`
	Debug      *bool   `yaml:"debug"`
	LogFile    *string `yaml:"log_file"`
	StatusAddr *string `yaml:"status_addr"`
}

func (c *config) bindFlags(flags *pflag.FlagSet) {
	flags.StringVar(&c.prompt, "prompt", defaultPrompt, "Prompt printed before each command")
	flags.BoolVar(&c.debug, "debug", false, "Enable debug logs")
	flags.StringVar(&c.logFile, "log-file", "", "Write logs to file instead of stderr")

	flags.StringVar(
		&c.statusAddr,
		"status-addr",
		"",
		"Serve a read-only job listing over HTTP at host:port (disabled when empty)",
	)

	flags.StringVar(&c.configPath, "config", "", "Path to YAML config file")
}

// load applies values from the config file for every setting not explicitly
// set on the command line.
func (c *config) load(flags *pflag.FlagSet) error {
	if c.configPath == "" {
		return nil
	}

	f, err := os.Open(c.configPath)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	var fc fileConfig

	decoder := yaml.NewDecoder(f)
	decoder.KnownFields(true)

	if err := decoder.Decode(&fc); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode config %s: %w", c.configPath, err)
	}

	if fc.Prompt != nil && !flags.Changed("prompt") {
		c.prompt = *fc.Prompt
	}

	if fc.Debug != nil && !flags.Changed("debug") {
		c.debug = *fc.Debug
	}

	if fc.LogFile != nil && !flags.Changed("log-file") {
		c.logFile = *fc.LogFile
	}

	if fc.StatusAddr != nil && !flags.Changed("status-addr") {
		c.statusAddr = *fc.StatusAddr
	}

	return nil
}

func (c *config) validate() error {
	if c.statusAddr != "" {
		_, portStr, err := net.SplitHostPort(c.statusAddr)
		if err != nil {
			return fmt.Errorf("status-addr: %w", err)
		}

		port, err := strconv.Atoi(portStr)
		if err != nil {
			return fmt.Errorf("status-addr port string to number: %w", err)
		}

		if port < 0 || port > 65535 {
			return errors.New("status-addr port must be in valid range")
		}
	}

	if c.logFile != "" {
		if _, err := os.Stat(filepath.Dir(c.logFile)); err != nil {
			return fmt.Errorf("failed to stat log-file directory: %w", err)
		}
	}

	return nil
}

// newLogger creates the logger described by the config. The returned close
// function releases the log file, if any.
func (c *config) newLogger(stderr io.Writer) (*slog.Logger, func() error, error) {
	level := slog.LevelWarn
	if c.debug {
		level = slog.LevelDebug
	}

	w := stderr
	closeFn := func() error { return nil }

	if c.logFile != "" {
		f, err := os.OpenFile(c.logFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}

		w = f
		closeFn = f.Close
	}

	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))

	return logger, closeFn, nil
}
