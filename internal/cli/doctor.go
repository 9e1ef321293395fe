package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"
)

// newDoctorCommand creates the "doctor" subcommand that runs environment preflight checks.
func newDoctorCommand(opts *Options) *cobra.Command {
	var checkDB bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run environment preflight checks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := LoggerFromContext(cmd.Context())

			cfg, err := loadConfigFromCmd(opts)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			if err := runDoctorChecks(ctx, logger, cfg, checkDB); err != nil {
				return err
			}

			logger.Info("doctor checks completed successfully", "root", cfg.Project.Root)
			return nil
		},
	}

	cmd.Flags().BoolVar(&checkDB, "db", false, "Also ping the database once")
	return cmd
}
