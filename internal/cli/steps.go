package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// newStepsCommand creates the "steps" subcommand that lists the pipeline with each step's state.
func newStepsCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "steps",
		Short: "List pipeline steps in execution order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in, _, err := newInstallerFromCmd(cmd, opts)
			if err != nil {
				return err
			}
			runner, err := in.Pipeline()
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for i, step := range runner.Steps() {
				state := "disabled"
				switch {
				case step.Mandatory:
					state = "mandatory"
				case step.Enabled:
					state = "enabled"
				}
				if _, err := fmt.Fprintf(tw, "%d\t%s\t%s\n", i+1, step.Name, state); err != nil {
					return err
				}
			}
			return tw.Flush()
		},
	}
}
