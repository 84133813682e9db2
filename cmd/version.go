package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is overridden at build time via
// -ldflags "-X github.com/xkilldash9x/crucible-cli/cmd.Version=...".
var Version = "0.1.0-dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the crucible version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
