package cmd

import (
	"github.com/spf13/cobra"

	"github.com/sable-sec/appregctl/internal/message"
	"github.com/sable-sec/appregctl/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of appregctl",
	Run: func(cmd *cobra.Command, args []string) {
		message.Info(version.FullVersion())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
