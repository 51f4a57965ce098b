package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joshuapare/xfercache/transfer"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		variant := "caching"
		if transfer.Small {
			variant = "passthrough"
		}
		fmt.Printf("xferctl %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built: %s\n", date)
		fmt.Printf("  manager: %s\n", variant)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
