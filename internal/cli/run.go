package cli

import (
	"github.com/spf13/cobra"
)

// newRunCommand creates the "run" subcommand that executes the whole reinstall pipeline.
func newRunCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Reinstall Magento (default command)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInstall(cmd, opts)
		},
	}
}

func runInstall(cmd *cobra.Command, opts *Options) error {
	in, logger, err := newInstallerFromCmd(cmd, opts)
	if err != nil {
		return err
	}
	if err := in.Run(cmd.Context()); err != nil {
		return err
	}
	logger.Info("magento reinstalled", "config", opts.ConfigPath)
	return nil
}

// newValidateCommand creates the "validate" subcommand that only checks the configuration.
func newValidateCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration without touching anything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in, logger, err := newInstallerFromCmd(cmd, opts)
			if err != nil {
				return err
			}
			if _, err := in.Pipeline(); err != nil {
				return err
			}
			if err := in.Validate(); err != nil {
				return err
			}
			logger.Info("configuration is valid", "config", opts.ConfigPath)
			return nil
		},
	}
}

// newWaitDBCommand creates the "wait-db" subcommand that blocks until the database answers.
func newWaitDBCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "wait-db",
		Short: "Wait until the database accepts connections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in, logger, err := newInstallerFromCmd(cmd, opts)
			if err != nil {
				return err
			}
			defer func() {
				if relErr := in.Release(); relErr != nil {
					logger.Warn("release database connection", "error", relErr)
				}
			}()
			if err := in.WaitForDatabase(cmd.Context()); err != nil {
				return err
			}
			logger.Info("database is reachable")
			return nil
		},
	}
}
