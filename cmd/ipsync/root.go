package main

import (
	"errors"
	"os"

	"github.com/bcnelson/ipsync/internal/app"
	"github.com/bcnelson/ipsync/internal/config"
	"github.com/bcnelson/ipsync/internal/logging"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// errRunFailures makes the process exit non-zero after a run whose report
// already describes the failures.
var errRunFailures = errors.New("synchronization finished with failures")

type rootOptions struct {
	envFile string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "ipsync",
		Short:         "Synchronize IP address inventories between providers",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file applied before reading the environment")

	cmd.AddCommand(
		newRunCmd(opts),
		newPlanCmd(opts),
		newServeCmd(opts),
		newExpandCmd(),
	)
	return cmd
}

// setup loads configuration and wires the application.
func (o *rootOptions) setup() (*app.App, error) {
	cfg, err := config.Load(o.envFile)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg)
	return app.New(cfg, logger)
}

func newLogger(cfg *config.Config) zerolog.Logger {
	return logging.New(logging.Config{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		NoColor: os.Getenv("NO_COLOR") != "",
	}, os.Stderr)
}
