package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/railtwin/traincontrol/internal/config"
	"github.com/railtwin/traincontrol/internal/fixtures"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "traffic-server",
	Short: "Train traffic control digital twin",
	Long: `A demo digital twin of a train traffic control section.

Trains, signals and blocks are synthesized from static regional tables and
advanced by a fixed-interval simulation tick. The server streams the live
state to controller dashboards over websockets.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to configuration file (defaults and TRAINCONTROL_* env when empty)")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newSimulateCmd())
	rootCmd.AddCommand(newWatchCmd())
}

// loadNetwork returns the configured fixture tables.
func loadNetwork(cfg *config.Config) (*fixtures.Network, error) {
	if cfg.FixturePath == "" {
		return fixtures.Default()
	}
	n, err := fixtures.LoadFile(cfg.FixturePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load fixtures from %s: %w", cfg.FixturePath, err)
	}
	return n, nil
}
