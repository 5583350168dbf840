package main

import (
	"github.com/spf13/cobra"

	"github.com/devloop-dev/devloop/internal/config"
)

func serveCmd(configFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [path]",
		Short: "Serve a static site with live reload",
		Long: `Serve a directory of static files with live reload.

No application process is involved: files are served straight from
disk with directory index and .html suffix conventions, caching
disabled, and connected browsers refresh whenever a file changes.

Examples:
  devloop serve
  devloop serve ./public
  devloop serve ./site -p 9000`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd, *configFile)
			if err != nil {
				return err
			}

			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			cfg.AppCommand = nil
			cfg.StaticDir = dir
			cfg.WatchRoots = []string{dir}

			return runEngine(cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringP("host", "H", config.DefaultHost, "Host to bind to")
	flags.IntP("port", "p", config.DefaultPort, "Port to serve on")
	flags.StringSlice("exclude", nil, "Glob patterns to exclude from watching")
	flags.Duration("debounce", config.DefaultDebounce, "Quiet period before browsers are reloaded")
	flags.Bool("livereload", true, "Enable browser live reload")
	flags.String("log-level", config.LogLevelInfo, "Log level (debug, info, warn, error)")
	flags.String("log-format", config.LogFormatText, "Log format (text, json)")
	flags.BoolP("quiet", "q", false, "Only log errors")

	return cmd
}
