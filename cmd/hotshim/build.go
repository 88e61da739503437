package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/vango-dev/hotshim/internal/config"
	"github.com/vango-dev/hotshim/internal/dev"
	"github.com/vango-dev/hotshim/internal/publish"
)

type buildOptions struct {
	outdir     string
	minify     bool
	sourceMaps bool
	publish    bool
}

func buildCmd() *cobra.Command {
	var opts buildOptions

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Bundle the project",
		Long: `Bundle the entry points and write the output directory.

With --publish, every file in the output directory is uploaded to the
bucket configured under "publish" in hotshim.json. Credentials are read
from AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY and AWS_SESSION_TOKEN.

Examples:
  hotshim build
  hotshim build --outdir=dist
  hotshim build --publish`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFromWorkingDir()
			if err != nil {
				return err
			}
			if opts.outdir != "" {
				cfg.Outdir = opts.outdir
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return runBuild(ctx, cfg, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.outdir, "outdir", "o", "", "Output directory (default from hotshim.json)")
	cmd.Flags().BoolVar(&opts.minify, "minify", true, "Minify output")
	cmd.Flags().BoolVar(&opts.sourceMaps, "sourcemaps", false, "Inline source maps")
	cmd.Flags().BoolVar(&opts.publish, "publish", false, "Upload the output directory to S3")

	return cmd
}

func runBuild(ctx context.Context, cfg *config.Config, opts buildOptions) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	fmt.Println("  Bundling...")
	fmt.Println()

	bundler := dev.NewBundler(dev.BundlerConfig{
		ProjectPath: cfg.Dir(),
		Entry:       cfg.EntryPaths(),
		Bundle:      cfg.Bundle,
		Outdir:      cfg.OutdirPath(),
		PublicPath:  cfg.PublicPath,
		Sourcemap:   opts.sourceMaps,
		Minify:      opts.minify,
	})
	defer bundler.Stop()

	result := bundler.Build(ctx)
	if !result.Success {
		return result.Error
	}
	if err := bundler.WriteTo(cfg.OutdirPath()); err != nil {
		return err
	}

	success("Bundled in %s", result.Duration.Round(time.Millisecond))
	fmt.Println()
	fmt.Println("  Output:")
	for _, f := range result.Files {
		fmt.Printf("    %s/%s  (%s)\n", cfg.Outdir, f.RelPath, formatBytes(int64(len(f.Contents))))
	}
	if result.Warnings > 0 {
		warn("%d warnings", result.Warnings)
	}
	fmt.Println()

	if !opts.publish {
		return nil
	}
	return runPublish(ctx, cfg)
}

func runPublish(ctx context.Context, cfg *config.Config) error {
	client, err := publish.NewS3Client(cfg.Publish, os.Getenv)
	if err != nil {
		return err
	}
	publisher, err := publish.New(client, cfg.Publish, newLogger(os.Stderr))
	if err != nil {
		return err
	}

	files, err := publish.FilesFromDir(cfg.OutdirPath())
	if err != nil {
		return err
	}

	objects, err := publisher.Publish(ctx, files)
	if err != nil {
		return err
	}
	success("Published %d files to s3://%s/%s", len(objects), cfg.Publish.Bucket, cfg.Publish.Prefix)
	return nil
}

// formatBytes formats bytes as a human-readable string.
func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
