package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/virusdefender/duckdb-ui/internal/server"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether a UI server is running on this machine",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	port := cfg.Server.Port

	running, err := server.ProbeRunning(cmd.Context(), port)
	if err != nil {
		return err
	}
	if running != nil {
		fmt.Fprintf(out, "UI server running at %s\n", running.URL)
		fmt.Fprintf(out, "  engine:    %s\n", running.EngineVersion)
		fmt.Fprintf(out, "  platform:  %s\n", running.Platform)
		fmt.Fprintf(out, "  extension: %s\n", running.ExtensionVersion)
		return nil
	}

	owner, err := server.PortOwner(cmd.Context(), port)
	switch {
	case err != nil:
		fmt.Fprintf(out, "No UI server on port %d (could not inspect sockets: %v)\n", port, err)
	case owner != nil:
		fmt.Fprintf(out, "No UI server on port %d; it is held by %s (pid %d)\n", port, owner.Name, owner.PID)
	default:
		fmt.Fprintf(out, "No UI server on port %d\n", port)
	}
	return nil
}
