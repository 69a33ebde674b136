package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func Execute() error {
	return newRootCmd().Execute()
}

type globalOptions struct {
	v          *viper.Viper
	configFile string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:   "wsload",
		Short: "WebSocket load generator: echo server plus round-based client fleet",
		Long: "wsload starts a WebSocket echo server with heartbeat liveness checks and drives it " +
			"with rounds of concurrently opened and closed client connections. After the last " +
			"round it keeps running until interrupted.",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCombined(cmd, opts)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&opts.configFile, "config", "", "path to a TOML config file")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.String("log-format", "text", "log format (text, json)")
	pf.Bool("metrics", true, "expose Prometheus metrics on /metrics")

	addServerFlags(rootCmd)
	addFleetFlags(rootCmd)

	rootCmd.AddCommand(
		newServerCmd(opts),
		newClientCmd(opts),
		newConfigCmd(opts),
		newVersionCmd(),
	)

	return rootCmd
}
