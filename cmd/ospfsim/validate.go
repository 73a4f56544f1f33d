package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/inet-framework/inet-sub064/config"
)

func newValidateCmd(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check a topology file without running it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.Load(global.configPath)
			if err != nil {
				return err
			}

			var ifaces int
			for _, r := range c.Routers {
				ifaces += len(r.OSPF.InterfaceConfigs())
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d routers, %d interfaces, %d segments\n",
				global.configPath, len(c.Routers), ifaces, len(c.Segments))
			return nil
		},
	}
}
