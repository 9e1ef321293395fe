package cli

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const maskedSecret = "******"

// newConfigCommand creates the "config" subcommand that prints the effective configuration.
func newConfigCommand(opts *Options) *cobra.Command {
	var showSecrets bool

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration after templating and overrides",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfigFromCmd(opts)
			if err != nil {
				return err
			}
			if !showSecrets {
				if cfg.Required.AdminUserPassword != "" {
					cfg.Required.AdminUserPassword = maskedSecret
				}
				if cfg.Database.Password != "" {
					cfg.Database.Password = maskedSecret
				}
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(cfg); err != nil {
				return err
			}
			return enc.Close()
		},
	}

	cmd.Flags().BoolVar(&showSecrets, "show-secrets", false, "Print passwords instead of masking them")
	return cmd
}
