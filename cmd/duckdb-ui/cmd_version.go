package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/virusdefender/duckdb-ui/internal/server"
)

func init() {
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "duckdb-ui %s (%s/%s)\n", server.ExtensionVersion, runtime.GOOS, runtime.GOARCH)
	},
}
