package main

import (
	"github.com/spf13/cobra"
)

type globalOptions struct {
	configPath string
	logLevel   string
	logFile    string
}

func newRootCmd() *cobra.Command {
	var opts globalOptions

	root := &cobra.Command{
		Use:   "ospfsim",
		Short: "Simulate OSPF adjacencies over lossy links",
		Long: `ospfsim builds the routers and segments described in a topology file and
runs OSPF between them, either in virtual time or in real time.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "topology.yaml", "path to the topology file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "debug, info, warn or error")
	root.PersistentFlags().StringVar(&opts.logFile, "log-file", "", "also write JSON logs to this file")

	root.AddCommand(newRunCmd(&opts), newValidateCmd(&opts))

	return root
}
