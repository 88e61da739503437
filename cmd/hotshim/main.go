package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/vango-dev/hotshim/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const banner = `
  ╦ ╦┌─┐┌┬┐┌─┐┬ ┬┬┌┬┐
  ╠═╣│ │ │ └─┐├─┤││││
  ╩ ╩└─┘ ┴ └─┘┴ ┴┴┴ ┴
`

var (
	verbose bool
	noColor bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		errors.Print(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "hotshim",
		Short: "Development server for native module shims",
		Long: `hotshim bundles a front-end project, serves it with live reload and
registers native modules under mangled keys for the host runtime.

  • esbuild bundling kept in memory
  • Live reload over WebSocket
  • Native module registry with reload continuity
  • Missed-init diagnostics
  • Bundle publishing to S3`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			errors.SetColor(!noColor && os.Getenv("NO_COLOR") == "")
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored error output (also NO_COLOR)")

	rootCmd.AddCommand(
		serveCmd(),
		buildCmd(),
		mangleCmd(),
		versionCmd(),
	)
	return rootCmd
}

// newLogger returns the CLI logger writing text records to w.
func newLogger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// printBanner prints the hotshim ASCII art banner.
func printBanner() {
	fmt.Print(banner)
}

// success prints a success message.
func success(format string, args ...any) {
	fmt.Printf("\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(format string, args ...any) {
	fmt.Printf("  %s\n", fmt.Sprintf(format, args...))
}

// warn prints a warning message.
func warn(format string, args ...any) {
	fmt.Printf("\033[33m⚠\033[0m %s\n", fmt.Sprintf(format, args...))
}
