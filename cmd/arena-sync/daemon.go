package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/arenasync/arenasync/internal/config"
	"github.com/arenasync/arenasync/internal/daemon"
	"github.com/arenasync/arenasync/internal/sync"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Sync channels periodically (foreground)",
	Long: `Run sync passes on a fixed interval until interrupted.

The daemon will:
  1. Run a sync pass immediately
  2. Run another pass every --interval
  3. Watch the config file and pick up channel list changes
  4. With --dashboard-port, stream events over WebSocket and accept
     POST /sync to trigger a pass (bearer ARENA_SYNC_TRIGGER_SECRET)`,
	Run: func(cmd *cobra.Command, args []string) {
		verbose, _ := cmd.Flags().GetBool("verbose")

		cfg, err := loadConfig(cmd)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		st, err := openStore(ctx, cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening document store: %v\n", err)
			os.Exit(1)
		}
		defer st.Close()

		sk, err := openSinks(cfg, verbose)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer sk.Close()

		src := newSource(cfg)
		run := func(ctx context.Context, channels []string) (*sync.RunResult, error) {
			opts := cfg.Sync
			opts.Channels = channels
			opts.OnLog = sk.sink
			return sync.Run(ctx, src, st, opts)
		}

		// The channel list is the only setting reloaded while running.
		reload := func() ([]string, error) {
			v, err := config.New(cfg.File)
			if err != nil {
				return nil, err
			}
			next, err := config.Load(v, time.Now())
			if err != nil {
				return nil, err
			}
			return next.Sync.Channels, nil
		}

		dc := daemon.DefaultConfig()
		dc.Interval = cfg.Daemon.Interval
		dc.Logger = log.New(os.Stderr, "[daemon] ", log.LstdFlags)
		// Channels given on the command line pin the list.
		if cfg.File != "" && !cmd.Flags().Changed("channels") {
			dc.ConfigFile = cfg.File
		}
		if sk.dashboard != nil {
			dc.OnResult = func(res *sync.RunResult, elapsed time.Duration) {
				sk.dashboard.OnRunComplete(res, elapsed)
				if stats, err := st.GetStats(ctx, sync.DocumentType); err == nil {
					sk.dashboard.OnStats(stats)
				}
			}
		}

		var reloadFn daemon.ReloadFunc
		if dc.ConfigFile != "" {
			reloadFn = reload
		}
		d, err := daemon.NewWithConfig(run, reloadFn, cfg.Sync.Channels, dc)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating daemon: %v\n", err)
			os.Exit(1)
		}
		if sk.server != nil {
			sk.server.SetTrigger(d.Trigger)
		}

		fmt.Printf("Starting arena-sync daemon...\n")
		fmt.Printf("   Channels: %s\n", strings.Join(cfg.Sync.Channels, ", "))
		fmt.Printf("   Interval: %s\n", cfg.Daemon.Interval)
		fmt.Printf("   Store: %s\n", storeLabel(cfg.Store.URL, cfg.Store.Path))
		if dc.ConfigFile != "" {
			fmt.Printf("   Config: %s (watched)\n", dc.ConfigFile)
		}
		if sk.server != nil {
			fmt.Printf("   Dashboard: ws://%s/ws\n", sk.server.GetAddr())
		}
		fmt.Printf("\nPress Ctrl+C to stop\n\n")

		if err := d.Start(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Daemon stopped with error: %v\n", err)
			_ = d.Stop()
			os.Exit(1)
		}
	},
}

func init() {
	addSyncFlags(daemonCmd)
	daemonCmd.Flags().Duration("interval", 15*time.Minute, "Time between sync passes")
	rootCmd.AddCommand(daemonCmd)
}
