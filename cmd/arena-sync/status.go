package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/arenasync/arenasync/internal/sync"
	"github.com/arenasync/arenasync/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show document store status",
	Long: `Display what the document store currently holds.

Shows:
  - Store location
  - Number of synced block documents and orphans among them
  - Number of stored assets
  - Documents per channel`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(cmd)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if cfg.Store.URL == "" {
			if _, err := os.Stat(cfg.Store.Path); os.IsNotExist(err) {
				fmt.Printf("\nDocument store not initialized at %s\n", cfg.Store.Path)
				fmt.Printf("   Run 'arena-sync sync -c <channel>' to create it\n\n")
				return
			}
		}

		ctx := context.Background()
		st, err := openStore(ctx, cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening document store: %v\n", err)
			os.Exit(1)
		}
		defer st.Close()

		stats, err := st.GetStats(ctx, sync.DocumentType)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading stats: %v\n", err)
			os.Exit(1)
		}

		ui.New(os.Stdout).Stats(stats, storeLabel(cfg.Store.URL, cfg.Store.Path))
	},
}

func init() {
	statusCmd.Flags().String("store", "", "Path of the SQLite document store")
	statusCmd.Flags().String("store-url", "", "libSQL/Turso database URL")
	rootCmd.AddCommand(statusCmd)
}
