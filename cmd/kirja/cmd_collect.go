package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/yairfalse/kirja/internal/app"
	"github.com/yairfalse/kirja/internal/config"
	"github.com/yairfalse/kirja/pkg/inventory"
)

var (
	collectDryRun    bool
	collectMirrorDir string
	collectBucket    string
	collectRegion    string
)

var collectCmd = &cobra.Command{
	Use:   "collect <kind>",
	Short: "Collect one inventory and upload it",
	Long: `Collect lists every resource of one kind, writes the timestamped and
Latest CSV files to the output directory and uploads both to the
configured bucket. Any failure aborts the run.`,
	Example: `  kirja collect lambda                       # Functions, default bucket
  kirja collect s3 --config kirja.toml       # Buckets, settings from file
  kirja collect ec2 --dry-run                # Instances, mirror instead of upload
  kirja collect ec2 --region eu-west-1       # Instances in eu-west-1`,
	Args: cobra.ExactArgs(1),
	RunE: runCollect,
}

func init() {
	rootCmd.AddCommand(collectCmd)

	collectCmd.Flags().BoolVar(&collectDryRun, "dry-run", false, "Copy reports into a local mirror instead of uploading")
	collectCmd.Flags().StringVar(&collectMirrorDir, "mirror-dir", "", "Mirror directory for --dry-run")
	collectCmd.Flags().StringVar(&collectBucket, "bucket", "", "Destination bucket (overrides config)")
	collectCmd.Flags().StringVar(&collectRegion, "region", "", "AWS region (overrides config)")
}

func runCollect(cmd *cobra.Command, args []string) error {
	kind, err := inventory.ParseKind(args[0])
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if collectBucket != "" {
		cfg.Publish.Bucket = collectBucket
	}
	if collectRegion != "" {
		cfg.AWS.Region = collectRegion
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(context.Background()); err != nil {
			log.Warn().Err(err).Msg("shutdown")
		}
	}()

	result, err := a.Run(ctx, kind)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), result.Body)
	return nil
}

// loadConfig reads the config file (or defaults) and applies the shared
// command line overrides, then configures logging from the result.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, err
	}
	if collectDryRun {
		cfg.Publish.DryRun = true
		if collectMirrorDir != "" {
			cfg.Publish.MirrorDir = collectMirrorDir
		}
		if cfg.Publish.MirrorDir == "" {
			cfg.Publish.MirrorDir = config.DefaultMirrorDir
		}
	}
	if debug {
		cfg.Log.Level = "debug"
	}
	if err := app.SetupLogging(cfg.Log.Level, app.LogConsole); err != nil {
		return nil, err
	}
	return cfg, nil
}
