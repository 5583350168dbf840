package main

import (
	stderrors "errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/devloop-dev/devloop/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const banner = `
  ┌┬┐┌─┐┬  ┬┬  ┌─┐┌─┐┌─┐
   ││├┤ └┐┌┘│  │ ││ │├─┘
  ─┴┘└─┘ └┘ ┴─┘└─┘└─┘┴
`

func main() {
	var configFile string

	rootCmd := &cobra.Command{
		Use:   "devloop",
		Short: "A live-reload development server",
		Long: `Devloop runs your application during development and keeps it
in sync with your source tree.

It watches for file changes, restarts the application when code
changes, and refreshes connected browsers over WebSocket. Asset
changes skip the restart and re-fetch in place.

Features:
  • Automatic restart on code change
  • Browser live reload over WebSocket
  • In-place asset refresh for CSS, images and scripts
  • Error overlay when the application crashes
  • Static site mode with no application at all`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"Config file (default: devloop.yaml in the working directory)")

	rootCmd.AddCommand(
		runCmd(&configFile),
		serveCmd(&configFile),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		errorMsg("%s", err)
		var de *errors.DevloopError
		if stderrors.As(err, &de) {
			if de.Detail != "" {
				info("%s", de.Detail)
			}
			if de.Suggestion != "" {
				info("%s", de.Suggestion)
			}
		}
		os.Exit(1)
	}
}

// printBanner prints the devloop ASCII art banner.
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

// errorMsg prints an error message.
func errorMsg(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "\033[31m✗\033[0m %s\n", fmt.Sprintf(format, args...))
}
