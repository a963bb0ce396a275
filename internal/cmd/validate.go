package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newValidateCommand() *cobra.Command {
	var configFiles []string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the build configuration without building",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configFiles)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "configuration is valid: %d entry points, %d outputs\n", len(cfg.EntryPoints), len(cfg.Outputs))
			return err
		},
	}

	cmd.Flags().StringSliceVarP(&configFiles, "config", "c", nil, "configuration file or directory (repeatable)")
	return cmd
}
