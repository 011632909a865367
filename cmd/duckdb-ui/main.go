package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/virusdefender/duckdb-ui/internal/config"
)

var (
	configPath string
	portFlag   int
)

var rootCmd = &cobra.Command{
	Use:           "duckdb-ui",
	Short:         "Local control plane for the database UI",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "duckdb-ui.yaml", "config file path")
	rootCmd.PersistentFlags().IntVar(&portFlag, "port", 0, "override server port")
}

// loadConfig reads the config file and applies the --port override.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if portFlag > 0 {
		cfg.Server.Port = portFlag
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
