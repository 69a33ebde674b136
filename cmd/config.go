package cmd

import (
	"github.com/LLIEPJIOK/wsload/internal/config"
	"github.com/spf13/cobra"
)

func newConfigCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as TOML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}

			data, err := config.Render(cfg)
			if err != nil {
				return err
			}

			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	addServerFlags(cmd)
	addFleetFlags(cmd)
	addClientFlags(cmd)

	return cmd
}
