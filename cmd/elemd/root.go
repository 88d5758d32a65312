package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/cwbudde/algo-elem/cmd/elemd/internal/config"
)

type rootFlags struct {
	configPath string
	envFile    string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:   "elemd",
		Short: "Audio graph session host",
		Long: `elemd runs an audio graph session.

Clients describe the graph as batches of instructions, either over the
websocket served by 'elemd serve' or from a file with 'elemd render'.

Settings come from built-in defaults, then the YAML file given by --config,
then the --env-file, then ELEMD_* environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "YAML configuration file")
	cmd.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "dotenv file with ELEMD_* overrides")
	cmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(newServeCmd(flags), newRenderCmd(flags), newVersionCmd(flags))

	return cmd
}

func (f *rootFlags) load() (config.Config, error) {
	cfg, err := config.Load(f.configPath, f.envFile)
	if err != nil {
		return config.Config{}, err
	}

	if f.verbose {
		cfg.LogLevel = "debug"
	}

	return cfg, nil
}

func newLogger(cfg config.Config) (*slog.Logger, error) {
	level, err := cfg.Level()
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})), nil
}
