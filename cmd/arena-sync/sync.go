package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/arenasync/arenasync/internal/report"
	"github.com/arenasync/arenasync/internal/sync"
	"github.com/arenasync/arenasync/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Sync channels once",
	Long: `Reconcile every configured channel into the document store once.

For each channel this:
  1. Pages through the channel contents
  2. Creates or updates one document per block, skipping unchanged ones
  3. Copies block images into the store (see --image-upload)
  4. Flags documents that are no longer in any channel as orphans

Exits with status 1 when every channel failed.`,
	Run: func(cmd *cobra.Command, args []string) {
		os.Exit(runSync(cmd))
	},
}

func init() {
	addSyncFlags(syncCmd)
	syncCmd.Flags().BoolP("dry-run", "d", false, "Print what would happen without making changes")
	syncCmd.Flags().StringP("output", "o", "text", "Summary format: text, json, yaml, toml")
	rootCmd.Flags().BoolP("dry-run", "d", false, "Print what would happen without making changes")
	rootCmd.Flags().StringP("output", "o", "text", "Summary format: text, json, yaml, toml")
	rootCmd.AddCommand(syncCmd)
}

// runSync performs one sync and returns the process exit code.
func runSync(cmd *cobra.Command) int {
	verbose, _ := cmd.Flags().GetBool("verbose")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	output, _ := cmd.Flags().GetString("output")

	format, err := report.ParseFormat(output)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if len(cfg.Sync.Channels) == 0 {
		fmt.Fprintf(os.Stderr, "Error: --channels is required\n\n")
		_ = cmd.Usage()
		return 1
	}

	// Structured output keeps stdout machine readable.
	out := ui.New(os.Stdout)
	if format != report.FormatText {
		out = ui.New(os.Stderr)
	}

	out.Header("arena-sync sync")
	out.Field("Channels", strings.Join(cfg.Sync.Channels, ", "))
	out.Field("Image upload", string(cfg.Sync.ImageUpload))
	out.Field("Store", storeLabel(cfg.Store.URL, cfg.Store.Path))
	if cfg.Sync.TimeBudget > 0 {
		out.Field("Time budget", report.FormatDuration(cfg.Sync.TimeBudget))
	}
	if dryRun {
		out.Field("Mode", "DRY RUN (no changes)")
	}
	out.Line("")

	if dryRun {
		out.Line("Dry run mode - would sync the following channels:")
		for _, ch := range cfg.Sync.Channels {
			out.Line("  - %s", ch)
		}
		out.Line("\nNo changes made.")
		return 0
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	st, err := openStore(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening document store: %v\n", err)
		return 1
	}
	defer st.Close()

	sk, err := openSinks(cfg, verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer sk.Close()

	opts := cfg.Sync
	opts.OnLog = sk.sink

	start := time.Now()
	res, err := sync.Run(ctx, newSource(cfg), st, opts)
	elapsed := time.Since(start)
	if err != nil {
		fmt.Fprintf(os.Stderr, "\n%s\n", strings.Repeat("─", ui.RuleWidth))
		fmt.Fprintf(os.Stderr, "Status:   FAILED\n")
		fmt.Fprintf(os.Stderr, "Duration: %s\n", report.FormatDuration(elapsed))
		fmt.Fprintf(os.Stderr, "Error:    %v\n", err)
		return 1
	}

	if sk.dashboard != nil {
		sk.dashboard.OnRunComplete(res, elapsed)
		if stats, err := st.GetStats(ctx, sync.DocumentType); err == nil {
			sk.dashboard.OnStats(stats)
		}
	}

	if format == report.FormatText {
		out.Summary(res, elapsed)
	} else if err := report.Write(os.Stdout, format, res, elapsed); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if !res.Success {
		return 1
	}
	return 0
}

func storeLabel(url, path string) string {
	if url != "" {
		return url
	}
	return path
}
