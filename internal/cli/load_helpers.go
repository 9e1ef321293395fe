package cli

import (
	"log/slog"
	"slices"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mage2-devtools/m2install/internal/config"
	"github.com/mage2-devtools/m2install/internal/env"
	"github.com/mage2-devtools/m2install/internal/installer"
	"github.com/mage2-devtools/m2install/internal/logging"
)

// loadConfigFromCmd loads m2install.yaml and applies command-line overrides on top of it.
// A missing file is fine as long as the path was not chosen explicitly.
func loadConfigFromCmd(opts *Options) (*config.Config, error) {
	inlineVars, err := env.ParseInlineVars(opts.Vars)
	if err != nil {
		return nil, err
	}

	loadOpts := config.LoadOptions{
		UserVars:     inlineVars,
		EnvFiles:     opts.EnvFiles,
		AllowMissing: !opts.configExplicit,
	}

	cfg, err := config.Load(opts.ConfigPath, loadOpts)
	if err != nil {
		return nil, err
	}

	if opts.deleteSet {
		cfg.Project.DeleteInstalledData = opts.DeleteInstalledData
	}
	if opts.IgnoreExitStatus {
		cfg.Project.CheckExitStatus = false
	}
	for _, name := range opts.Skip {
		if !slices.Contains(cfg.Project.SkipSteps, name) {
			cfg.Project.SkipSteps = append(cfg.Project.SkipSteps, name)
		}
	}
	return cfg, nil
}

// newInstallerFromCmd loads the configuration and builds an Installer printing progress to the command output.
// Diagnostics of one invocation share a run id.
func newInstallerFromCmd(cmd *cobra.Command, opts *Options) (*installer.Installer, *slog.Logger, error) {
	logger := LoggerFromContext(cmd.Context()).With("run", uuid.NewString())

	cfg, err := loadConfigFromCmd(opts)
	if err != nil {
		return nil, logger, err
	}
	logger.Debug("configuration loaded",
		"path", opts.ConfigPath,
		"root", cfg.Project.Root,
		"delete_installed_data", cfg.Project.DeleteInstalledData,
		"skip", cfg.Project.SkipSteps,
	)

	console := logging.NewConsole(cmd.OutOrStdout(), logging.LevelInfo)
	in, err := installer.New(cfg, console, logger)
	if err != nil {
		return nil, logger, err
	}
	return in, logger, nil
}
