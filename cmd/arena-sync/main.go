package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is overridden at build time with -ldflags "-X main.Version=...".
var Version = "0.3.1"

var configFile string

var rootCmd = &cobra.Command{
	Use:   "arena-sync",
	Short: "Sync Are.na channels into a local document store",
	Long: `arena-sync mirrors the blocks of one or more Are.na channels into a
document store, keeping editor-owned fields intact.

Running arena-sync without a subcommand is the same as 'arena-sync sync'.

Environment:
  ARENA_ACCESS_TOKEN   Are.na API access token (required for sync)
  ARENA_CHANNELS       Comma-separated channel slugs (alternative to -c)
  ARENA_SYNC_*         Any config key, e.g. ARENA_SYNC_STORE_PATH`,
	Example: `  # Sync a single channel
  arena-sync --channels my-channel

  # Sync multiple channels without images
  arena-sync -c channel-1,channel-2 -i off

  # Verbose output
  arena-sync -c my-channel -v`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	Run: func(cmd *cobra.Command, args []string) {
		os.Exit(runSync(cmd))
	},
}

func init() {
	rootCmd.SetVersionTemplate("arena-sync v{{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default: ./arena-sync.yaml or ~/.config/arena-sync/arena-sync.yaml)")
	addSyncFlags(rootCmd)

	rootCmd.AddGroup(
		&cobra.Group{ID: "sync", Title: "Sync:"},
		&cobra.Group{ID: "setup", Title: "Setup:"},
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
