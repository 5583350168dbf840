package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/devloop-dev/devloop/internal/config"
	"github.com/devloop-dev/devloop/internal/engine"
	"github.com/devloop-dev/devloop/internal/logging"
)

func runCmd(configFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [flags] -- <command> [args...]",
		Short: "Run an application with restart on change and live reload",
		Long: `Run an application under devloop.

The application command comes from the arguments after --, or from
app-command in the config file. Devloop starts it with the PORT
environment variable set, proxies browser traffic to it, restarts
it when code changes, and live-reloads connected browsers.

Examples:
  devloop run -- go run ./cmd/server
  devloop run -p 8000 -- python3 app.py
  devloop run --static-dir ./public -- ./bin/server`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd, *configFile)
			if err != nil {
				return err
			}
			if len(args) > 0 {
				cfg.AppCommand = args
			}
			return runEngine(cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringP("host", "H", config.DefaultHost, "Host to bind to")
	flags.IntP("port", "p", config.DefaultPort, "Port the dev server listens on")
	flags.Int("app-port", 0, "Port the application listens on (default: port+1)")
	flags.String("app-dir", "", "Working directory for the application")
	flags.String("static-dir", "", "Directory of static files to serve")
	flags.String("static-url", "/static/", "URL prefix for static files")
	flags.StringSlice("watch", []string{"."}, "Directories to watch for changes")
	flags.StringSlice("exclude", nil, "Glob patterns to exclude from watching")
	flags.StringSlice("code-patterns", nil, "Glob patterns that force a restart")
	flags.StringSlice("asset-patterns", nil, "Glob patterns that only reload assets")
	flags.Duration("debounce", config.DefaultDebounce, "Quiet period before changes are applied")
	flags.Duration("max-window", config.DefaultMaxWindow, "Upper bound on one change window")
	flags.Duration("grace-period", config.DefaultGracePeriod, "Graceful stop timeout before SIGKILL")
	flags.Duration("startup-timeout", config.DefaultStartupTimeout, "How long to wait for the app to come up")
	flags.Bool("livereload", true, "Enable browser live reload")
	flags.String("log-level", config.LogLevelInfo, "Log level (debug, info, warn, error)")
	flags.String("log-format", config.LogFormatText, "Log format (text, json)")
	flags.BoolP("quiet", "q", false, "Only log errors")

	return cmd
}

// runEngine drives an engine.Server until interrupted.
func runEngine(cfg *config.Config) error {
	logger := logging.Setup(cfg)

	server, err := engine.New(engine.Options{
		Config: cfg,
		Logger: logger,
		OnRestart: func() {
			success("Restarted application")
		},
		OnReload: func(clients int) {
			success("Reloaded %d browsers", clients)
		},
		OnCrash: func(err error) {
			errorMsg("Application crashed: %s", err)
			info("Waiting for a file change to restart it")
		},
	})
	if err != nil {
		return err
	}

	if !cfg.Quiet {
		printBanner()
		if len(cfg.AppCommand) > 0 {
			info("app:      %v", cfg.AppCommand)
			info("app port: %d", cfg.EffectiveAppPort())
		}
		if cfg.StaticDir != "" {
			info("static:   %s", cfg.StaticDir)
		}
		info("watching: %v", cfg.WatchRoots)
		info("serving:  %s", cfg.URL())
		fmt.Println()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Println()
		info("Shutting down...")
		cancel()

		// A second signal skips the graceful path.
		<-sigCh
		warn("Forced exit")
		os.Exit(1)
	}()

	start := time.Now()
	err = server.Start(ctx)
	if err == nil && !cfg.Quiet {
		info("Ran for %s", time.Since(start).Round(time.Second))
	}
	return err
}
