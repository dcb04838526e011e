// Command urbansense is the main entry point for the UrbanSense assistant
// server.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/urbansense/urbansense/internal/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "urbansense: %v\n", err)
		os.Exit(1)
	}
}

type rootFlags struct {
	configPath string
	envFiles   []string
	pretty     bool
}

func newRootCommand() *cobra.Command {
	f := &rootFlags{}
	root := &cobra.Command{
		Use:           "urbansense",
		Short:         "Voice-first navigation and scene description server",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return config.LoadEnvFiles(f.envFiles...)
		},
	}
	root.PersistentFlags().StringVarP(&f.configPath, "config", "c", "config.yaml", "path to the YAML configuration file")
	root.PersistentFlags().StringSliceVar(&f.envFiles, "env", nil, "dotenv files loaded before the config (default .env)")
	root.PersistentFlags().BoolVar(&f.pretty, "pretty", false, "human-friendly colored log output")

	root.AddCommand(
		newServeCommand(f),
		newValidateCommand(f),
		newDirectionsCommand(f),
		newVersionCommand(),
	)
	return root
}

// loadConfig reads the config file and prints a hint when it is missing.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config file %q not found, copy configs/example.yaml to get started", path)
		}
		return nil, err
	}
	return cfg, nil
}

// ── Logger ─────────────────────────────────────────────────────────────────────

// logLevel is shared by every handler so a config reload can change it.
var logLevel = new(slog.LevelVar)

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// setLogLevel changes the level of the default logger. The pretty handler
// keeps its own level, so it is updated alongside.
var setLogLevel = func(l config.LogLevel) { logLevel.Set(slogLevel(l)) }

func newLogger(level config.LogLevel, pretty bool) *slog.Logger {
	logLevel.Set(slogLevel(level))
	if !pretty {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	}

	h := charmlog.NewWithOptions(os.Stderr, charmlog.Options{
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
		Level:           charmlog.Level(slogLevel(level)),
	})
	setLogLevel = func(l config.LogLevel) {
		logLevel.Set(slogLevel(l))
		h.SetLevel(charmlog.Level(slogLevel(l)))
	}
	return slog.New(h)
}
