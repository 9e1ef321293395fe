// Package cli defines the command-line interface for m2install.
package cli

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/mage2-devtools/m2install/internal/logging"
)

const (
	// defaultConfigPath is the default path to the installer configuration file.
	defaultConfigPath = "m2install.yaml"
)

// Options stores global CLI options shared between commands.
type Options struct {
	ConfigPath          string
	LogLevel            string
	Vars                string
	EnvFiles            []string
	DeleteInstalledData bool
	IgnoreExitStatus    bool
	Skip                []string

	// configExplicit is set when the config path came from a flag or the environment.
	configExplicit bool
	// deleteSet is set when --delete-installed-data or its env var was given.
	deleteSet bool
}

// Execute builds the root command, runs it with the provided args and logger, and returns any error.
func Execute(ctx context.Context, args []string, logger *slog.Logger) error {
	if logger == nil {
		logger = logging.NewLogger(os.Stderr, logging.LevelInfo)
	}

	rootOpts := &Options{
		ConfigPath: defaultConfigPath,
		LogLevel:   logging.LevelInfo.String(),
	}

	rootCmd := newRootCommand(rootOpts, logger)
	rootCmd.SetArgs(args)

	return rootCmd.ExecuteContext(ctx)
}

// newRootCommand constructs the root cobra.Command with global flags and subcommands.
func newRootCommand(opts *Options, logger *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "m2install",
		Short: "m2install reinstalls a Magento 2 project from scratch",
		Long: "m2install validates the configuration, optionally wipes the previous install, runs composer install, " +
			"provisions the database, runs bin/magento setup:install and applies deploy mode and config values.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := applyEnvDefaults(cmd, opts); err != nil {
				return err
			}
			level := logging.ParseLevel(opts.LogLevel)
			logger = logging.NewLogger(cmd.ErrOrStderr(), level)
			cmd.SetContext(context.WithValue(cmd.Context(), loggerKey{}, logger))
			logger.Debug("logger initialized", "level", level)
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInstall(cmd, opts)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.ConfigPath, "config", "c", defaultConfigPath, "Path to m2install.yaml configuration file")
	flags.StringVar(&opts.LogLevel, "log-level", logging.LevelInfo.String(), "Log level (debug, info, warn, error)")
	flags.StringVar(&opts.Vars, "vars", "", "Additional template variables in k=v,k2=v2 format")
	flags.StringSliceVar(&opts.EnvFiles, "env-file", nil, "Additional .env files available to the configuration template")
	flags.BoolVar(&opts.DeleteInstalledData, "delete-installed-data", false, "Delete app/etc/env.php and generated content before installing")
	flags.BoolVar(&opts.IgnoreExitStatus, "ignore-exit-status", false, "Log failed external commands and continue")
	flags.StringSliceVar(&opts.Skip, "skip", nil, "Step names to leave out of the run (comma-separated)")

	cmd.AddCommand(
		newRunCommand(opts),
		newValidateCommand(opts),
		newStepsCommand(opts),
		newWaitDBCommand(opts),
		newDoctorCommand(opts),
		newConfigCommand(opts),
	)

	return cmd
}

// loggerKey is a private context key used to store a logger in command contexts.
type loggerKey struct{}

// LoggerFromContext extracts a logger from the context or falls back to a default logger.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return logging.NewLogger(os.Stderr, logging.LevelInfo)
	}
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return logging.NewLogger(os.Stderr, logging.LevelInfo)
}
