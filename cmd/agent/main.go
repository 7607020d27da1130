// Package main runs the tracecore agent: a scheduler driving heartbeat and
// flush tasks, an event hub connecting them, and an optional status server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/phrazzld/tracecore/internal/config"
	"github.com/phrazzld/tracecore/internal/platform/logger"
	"github.com/phrazzld/tracecore/internal/redact"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "agent",
		Short: "Run the tracecore agent",
		Long: `The agent runs heartbeat and flush tasks on a periodic scheduler,
buffers finished spans published on its event hub and sends them to the
configured trace intake.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file (default ./config.yaml if present)")

	root.AddCommand(&cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long:  `Load and validate the configuration, then print it as YAML with credentials redacted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			cfg.Exporter.IntakeURL = redact.String(cfg.Exporter.IntakeURL)

			out, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("failed to encode configuration: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	})

	return root
}

func loadConfig(path string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// run starts the agent and blocks until ctx is done, SIGINT or SIGTERM
// arrives, or the status server fails.
func run(ctx context.Context, cfg *config.Config) error {
	l, err := logger.Setup(logger.LoggerConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}

	l.Info("agent configuration loaded",
		"tick", cfg.Scheduler.Tick,
		"heartbeat_interval", cfg.Scheduler.HeartbeatInterval,
		"flush_interval", cfg.Scheduler.FlushInterval,
		"intake_url", redact.String(cfg.Exporter.IntakeURL),
		"status_enabled", cfg.Status.Enabled)

	app, err := newApplication(cfg, l)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := app.start()

	var runErr error
	select {
	case <-ctx.Done():
		l.Info("shutting down agent")
	case runErr = <-errCh:
		l.Error("shutting down agent after failure", "error", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}
