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
)

type serveOptions struct {
	port     int
	host     string
	app      string
	noReload bool
}

func serveCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the development server",
		Long: `Start the development server with live reload.

The server bundles the entry points in memory, watches the project for
changes and refreshes connected browsers. Native modules declared in
hotshim.json are registered once the page (or --app) supplies the
application identifier, and keep their registration across rebuilds.

The port is taken from --port, then the PORT environment variable, then
hotshim.json, then 7654.

Examples:
  hotshim serve
  hotshim serve --port=8080
  hotshim serve --app=author/my-app`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFromWorkingDir()
			if err != nil {
				return err
			}
			cfg.ApplyEnv(os.Getenv)
			applyServeOptions(cfg, opts)
			return runServe(cfg)
		},
	}

	cmd.Flags().IntVarP(&opts.port, "port", "p", 0, "Port to run on (default from PORT or hotshim.json)")
	cmd.Flags().StringVarP(&opts.host, "host", "H", "", "Host to bind to (default from hotshim.json)")
	cmd.Flags().StringVarP(&opts.app, "app", "a", "", `Initialise native modules for this application ("owner/name")`)
	cmd.Flags().BoolVar(&opts.noReload, "no-reload", false, "Disable live reload")

	return cmd
}

// applyServeOptions applies command-line overrides to cfg.
func applyServeOptions(cfg *config.Config, opts serveOptions) {
	if opts.port > 0 {
		cfg.Port = opts.port
	}
	if opts.host != "" {
		cfg.Host = opts.host
	}
	if opts.app != "" {
		cfg.AppName = opts.app
	}
	if opts.noReload {
		cfg.Dev.HotReload = false
	}
}

func runServe(cfg *config.Config) error {
	printBanner()
	fmt.Println("  serve")
	fmt.Println()

	server, err := dev.NewServer(dev.ServerOptions{
		Config: cfg,
		Logger: newLogger(os.Stderr),
		OnBuildComplete: func(result dev.BuildResult) {
			if result.Success {
				success("Built in %s", result.Duration.Round(time.Millisecond))
			}
		},
		OnReload: func(clients int) {
			success("Reloaded %d browsers", clients)
		},
	})
	if err != nil {
		return err
	}

	if cfg.Path() != "" {
		info("Config %s", cfg.Path())
	}
	info("Serving %s", cfg.URL())
	if cfg.AppName == "" && len(cfg.Modules) > 0 {
		warn("No appName configured; the page must call window.hotshim.init(appName)")
	}
	fmt.Println()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		fmt.Println("\n\n  Shutting down...")
	}()

	return server.Start(ctx)
}
