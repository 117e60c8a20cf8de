package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cortexcore/cortexd/pkg/daemon"
)

// defaultConfigPath is where the daemon looks for its configuration
// when neither --config nor CORTEXD_CONFIG is set.
const defaultConfigPath = "/etc/cortexd/config.yaml"

var (
	// Global flags
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "cortexd",
	Short: "On-device coordinator for the wearable",
	Long: `cortexd - coordinator daemon and control CLI.

The daemon accepts commands from the wearable over BLE and over the
authenticated local-network HTTP API, drives the recorder state machine,
and persists notes, sessions, and artifacts on device.

The control subcommands (status, cmd, db, files) talk to a running
daemon over its HTTP API using the token from the data directory.

Examples:
  # Run the daemon with the default config
  cortexd run

  # Check what the daemon is doing
  cortexd status

  # Send a protocol line by hand
  cortexd cmd 'CMD:note:buy more tape'

  # Query persisted rows
  cortexd db query notes --limit 5 --jq '.rows[].content'`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default /etc/cortexd/config.yaml, env CORTEXD_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// resolveConfigPath applies the flag > env > default precedence.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	if env := os.Getenv("CORTEXD_CONFIG"); env != "" {
		return env
	}
	return defaultConfigPath
}

// loadConfig reads (or creates) the daemon configuration.
func loadConfig() (daemon.Config, error) {
	cfg, err := daemon.LoadConfig(resolveConfigPath())
	if err != nil {
		return daemon.Config{}, fmt.Errorf("config not available: %w", err)
	}
	return cfg, nil
}

// IsVerbose returns whether verbose mode is enabled.
func IsVerbose() bool {
	return verbose
}
