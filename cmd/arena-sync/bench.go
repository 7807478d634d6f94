package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/arenasync/arenasync/internal/loadtest"
	"github.com/arenasync/arenasync/internal/ui"
)

var benchCmd = &cobra.Command{
	Use:     "bench",
	GroupID: "setup",
	Short:   "Load test the document store",
	Long: `Populate a scratch document store with synthetic block documents and
measure the channel membership query under concurrent readers.

With --mixed, writers patch documents concurrently with the readers and the
run fails if any reader sees an inconsistent membership count.

Example:
  arena-sync bench --docs 5000 --channels 10 --readers 32`,
	Run: func(cmd *cobra.Command, args []string) {
		docs, _ := cmd.Flags().GetInt("docs")
		channels, _ := cmd.Flags().GetInt("channels")
		readers, _ := cmd.Flags().GetInt("readers")
		queries, _ := cmd.Flags().GetInt("queries")
		mixed, _ := cmd.Flags().GetDuration("mixed")

		dir, err := os.MkdirTemp("", "arena-sync-bench-")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer os.RemoveAll(dir)

		out := ui.New(os.Stdout)
		out.Header("arena-sync bench")
		out.Field("Documents", fmt.Sprint(docs))
		out.Field("Channels", fmt.Sprint(channels))
		out.Field("Readers", fmt.Sprint(readers))
		out.Line("")

		start := time.Now()
		ts, err := loadtest.CreateTestStore(filepath.Join(dir, "bench.db"), docs, channels)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer ts.Close()
		out.Line("Populated in %v", time.Since(start).Round(time.Millisecond))

		stats, err := ts.RunConcurrentQueries(readers, queries)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		stats.PrintStats(os.Stdout)

		if mixed > 0 {
			out.Line("\nMixed read/write workload for %v...", mixed)
			if err := ts.RunMixedWorkload(readers, max(1, readers/4), mixed); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			out.Line("No inconsistencies observed")
		}
	},
}

func init() {
	benchCmd.Flags().Int("docs", 1000, "Number of synthetic documents")
	benchCmd.Flags().Int("channels", 5, "Number of channels")
	benchCmd.Flags().Int("readers", 16, "Concurrent readers")
	benchCmd.Flags().Int("queries", 20, "Queries per reader")
	benchCmd.Flags().Duration("mixed", 0, "Also run a mixed read/write workload for this long")
	rootCmd.AddCommand(benchCmd)
}
