package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/arenasync/arenasync/internal/config"
	"github.com/arenasync/arenasync/internal/sync"
	"github.com/arenasync/arenasync/internal/ui"
)

var initCmd = &cobra.Command{
	Use:     "init [path]",
	GroupID: "setup",
	Short:   "Write a config file",
	Long: `Write an arena-sync config file (YAML, or TOML when the path ends in .toml).

When stdin is a terminal a short form asks for the channels and options.
Otherwise, or with --yes, the flag values are written as given.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		path := "arena-sync.yaml"
		if len(args) == 1 {
			path = args[0]
		}

		channels, _ := cmd.Flags().GetString("channels")
		mode, _ := cmd.Flags().GetString("image-upload")
		storePath, _ := cmd.Flags().GetString("store")
		bucket, _ := cmd.Flags().GetString("s3-bucket")
		yes, _ := cmd.Flags().GetBool("yes")
		force, _ := cmd.Flags().GetBool("force")
		driftFix := true

		if !yes && ui.IsTerminal(os.Stdin) {
			form := huh.NewForm(
				huh.NewGroup(
					huh.NewInput().
						Title("Channels").
						Description("Comma-separated Are.na channel slugs").
						Value(&channels).
						Validate(func(s string) error {
							if len(config.SplitChannels(s)) == 0 {
								return errors.New("at least one channel is required")
							}
							return nil
						}),
					huh.NewSelect[string]().
						Title("Image upload").
						Options(huh.NewOptions(
							string(sync.ImageUploadAuto),
							string(sync.ImageUploadOn),
							string(sync.ImageUploadOff))...).
						Value(&mode),
					huh.NewConfirm().
						Title("Flag documents that leave a channel as orphans?").
						Value(&driftFix),
				),
				huh.NewGroup(
					huh.NewInput().
						Title("Store path").
						Value(&storePath),
					huh.NewInput().
						Title("S3 bucket for images").
						Description("Leave empty to keep images in the store").
						Value(&bucket),
				),
			)
			if err := form.Run(); err != nil {
				if errors.Is(err, huh.ErrUserAborted) {
					fmt.Println("Aborted.")
					return
				}
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		}

		if _, err := sync.ParseImageUploadMode(mode); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		f := config.File{
			Channels:    config.SplitChannels(channels),
			ImageUpload: mode,
			DriftFix:    driftFix,
			Store:       config.FileStore{Path: storePath},
			Assets:      config.FileAssets{S3Bucket: bucket},
		}
		if err := config.WriteFile(path, f, force); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Wrote %s\n", path)
		fmt.Printf("   Set ARENA_ACCESS_TOKEN, then run 'arena-sync sync --config %s'\n", path)
	},
}

func init() {
	initCmd.Flags().StringP("channels", "c", "", "Comma-separated channel slugs")
	initCmd.Flags().StringP("image-upload", "i", "auto", "Image upload mode: off, auto, on")
	initCmd.Flags().String("store", config.DefaultStorePath, "Path of the SQLite document store")
	initCmd.Flags().String("s3-bucket", "", "S3 bucket for uploaded images")
	initCmd.Flags().BoolP("yes", "y", false, "Do not prompt")
	initCmd.Flags().Bool("force", false, "Overwrite an existing file")
	rootCmd.AddCommand(initCmd)
}
