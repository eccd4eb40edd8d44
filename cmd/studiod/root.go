package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"studio/internal/config"
	"studio/internal/daemonrun"
)

type options struct {
	configPath  string
	envFile     string
	logLevel    string
	development bool
}

// runFunc starts the daemon with a loaded configuration.
type runFunc func(ctx context.Context, cfg *config.Config, opts daemonrun.Options) error

func runDaemon(ctx context.Context, cfg *config.Config, opts daemonrun.Options) error {
	return daemonrun.Run(ctx, cfg, opts)
}

func newRootCommand(run runFunc) *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:           "studiod",
		Short:         "AI Content Studio server",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadEnvFile(opts.envFile); err != nil {
				return fmt.Errorf("load env file: %w", err)
			}
			cfg, _, _, err := config.Load(opts.configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:    opts.logLevel,
				Development: opts.development,
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "Configuration file path")
	flags.StringVar(&opts.envFile, "env-file", ".env", "Environment file loaded before the configuration")
	flags.StringVar(&opts.logLevel, "log-level", "", "Override logging.level")
	flags.BoolVar(&opts.development, "development", false, "Include source locations in log records")
	return cmd
}

// loadEnvFile applies variables from path without overriding the process
// environment. A missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
