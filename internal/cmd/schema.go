package cmd

import (
	"github.com/spf13/cobra"

	ext_config "github.com/libforge/libforge/config"
)

func newSchemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON schema of the build configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := cmd.OutOrStdout().Write(ext_config.Schema())
			return err
		},
	}
}
