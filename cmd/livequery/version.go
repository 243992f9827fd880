package main

import (
	"github.com/fleetdm/livequery/server/version"
	"github.com/spf13/cobra"
)

func createVersionCmd() *cobra.Command {
	var fullVersion bool
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print livequery version",
		Run: func(cmd *cobra.Command, args []string) {
			if fullVersion {
				version.FprintFull(cmd.OutOrStdout())
				return
			}
			version.Fprint(cmd.OutOrStdout())
		},
	}

	versionCmd.PersistentFlags().BoolVar(&fullVersion, "full", false, "print full version information")

	return versionCmd
}
