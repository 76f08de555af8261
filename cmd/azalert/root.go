package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/yairfalse/azalert/internal/config"
	"github.com/yairfalse/azalert/internal/telemetry"
)

var (
	version = "0.1.0"

	configPath string
	debug      bool
	logFormat  string

	rootCmd = &cobra.Command{
		Use:   "azalert",
		Short: "Provision an Azure metric alert end to end",
		Long: `azalert - Azure Monitor metric alert provisioner

azalert creates a resource group, an App Service plan, an action group and
a CPU metric alert that watches the plan and notifies the action group.
The resource group is always deleted again before azalert exits, even when
a step fails or the run is interrupted.

Credentials are read from TENANT_ID, CLIENT_ID, CLIENT_SECRET and
SUBSCRIPTION_ID (or their AZURE_-prefixed forms).`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.SetVersionTemplate(`azalert {{.Version}}
`)
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML config (built-in defaults when empty)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: console or json (overrides config)")
}

// loadConfig returns the config file named by --config, or the defaults.
func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	return config.Load(configPath)
}

// env is the shared setup of every command.
type env struct {
	cfg       *config.Config
	log       zerolog.Logger
	telemetry *telemetry.Provider
}

func newEnv(ctx context.Context, stderr io.Writer) (*env, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	if debug {
		cfg.Log.Level = "debug"
	}

	log := telemetry.SetupLogging(cfg.Log, stderr)

	tp, err := telemetry.NewProvider(ctx, cfg.OTEL)
	if err != nil {
		return nil, fmt.Errorf("setup telemetry: %w", err)
	}

	return &env{cfg: cfg, log: log, telemetry: tp}, nil
}

func (e *env) close(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := e.telemetry.Shutdown(ctx); err != nil {
		e.log.Warn().Err(err).Msg("telemetry shutdown failed")
	}
}
