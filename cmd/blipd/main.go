package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "blipd",
	Short: "BLE peripheral control-plane daemon",
	Long: `blipd drives a Bluetooth Low Energy peripheral:

- Configures the local adapter through the kernel management interface
  (power, name, discoverability, advertising data, security modes)
- Runs the peripheral server loop that turns application data changes
  into change notifications for connected clients

The GATT attribute tree itself is provided by the embedding application;
blipd only manages the control plane around it.`,
	Version: version,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", err)
		os.Exit(1)
	}
}

func init() {
	// Silence Cobra's "Error:" prefix - main() prints clean errors
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	rootCmd.AddCommand(serveCmd)

	// Global flags
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
}
