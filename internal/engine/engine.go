// Package engine wires the watcher, reload policy, supervisor, broadcaster
// and frontend into one running dev server.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/devloop-dev/devloop/internal/broadcast"
	"github.com/devloop-dev/devloop/internal/config"
	"github.com/devloop-dev/devloop/internal/errors"
	"github.com/devloop-dev/devloop/internal/frontend"
	"github.com/devloop-dev/devloop/internal/policy"
	"github.com/devloop-dev/devloop/internal/supervisor"
	"github.com/devloop-dev/devloop/internal/watch"
)

// Options configures the dev server engine.
type Options struct {
	// Config is the resolved run configuration.
	Config *config.Config

	// Logger is used for structured logging. Defaults to slog.Default.
	Logger *slog.Logger

	// OnRestart is called after the application was restarted and is live
	// again.
	OnRestart func()

	// OnReload is called after browsers were notified, with the number of
	// connected clients.
	OnReload func(clients int)

	// OnCrash is called when the application exits without being asked to.
	OnCrash func(err error)
}

// Server coordinates the change pipeline: filesystem events are debounced
// into change sets, each set is classified, and the classification drives an
// application restart, a browser notification, or nothing.
type Server struct {
	cfg  *config.Config
	opts Options
	log  *slog.Logger

	policy      *policy.Policy
	supervisor  *supervisor.Supervisor
	broadcaster *broadcast.Broadcaster
	frontend    *frontend.Frontend

	watcher    *watch.PathWatcher
	httpServer *http.Server

	mu      sync.Mutex
	running bool
}

// New assembles a Server from cfg. Nothing is started and no filesystem
// state is touched yet.
func New(opts Options) (*Server, error) {
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	pol, err := policy.New(policy.Rules{
		Code:   cfg.CodePatterns,
		Asset:  cfg.AssetPatterns,
		Ignore: cfg.Exclude,
	})
	if err != nil {
		return nil, errors.New(errors.CodeConfig).Wrap(err)
	}

	var sup *supervisor.Supervisor
	var appURL *url.URL
	if len(cfg.AppCommand) > 0 {
		sup, err = supervisor.New(supervisor.Spec{
			Command: cfg.AppCommand,
			Dir:     cfg.AppDir,
			Env: []string{
				fmt.Sprintf("PORT=%d", cfg.EffectiveAppPort()),
				"DEVLOOP=1",
			},
			Addr:           cfg.AppAddr(),
			StartupTimeout: cfg.StartupTimeout,
			GracePeriod:    cfg.GracePeriod,
			Logger:         log,
		})
		if err != nil {
			return nil, err
		}
		appURL = &url.URL{Scheme: "http", Host: cfg.AppAddr()}
	}

	var caster *broadcast.Broadcaster
	if cfg.LiveReload {
		caster = broadcast.New(log)
	}

	fe := frontend.New(frontend.Options{
		AppURL:      appURL,
		StaticDir:   cfg.StaticDir,
		StaticURL:   cfg.StaticURL,
		Broadcaster: caster,
		Logger:      log,
	})

	return &Server{
		cfg:         cfg,
		opts:        opts,
		log:         log,
		policy:      pol,
		supervisor:  sup,
		broadcaster: caster,
		frontend:    fe,
	}, nil
}

// Frontend returns the HTTP surface, mainly for tests.
func (s *Server) Frontend() *frontend.Frontend {
	return s.frontend
}

// Start runs the dev server until ctx is cancelled or the HTTP listener
// fails. It blocks.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.mu.Unlock()

	watcher, err := watch.New(watch.Options{
		Roots:   s.cfg.WatchRoots,
		Exclude: s.cfg.Exclude,
		Logger:  s.log,
	})
	if err != nil {
		s.Stop()
		return err
	}
	for _, setupErr := range watcher.SetupErrors() {
		s.log.Warn("watch root skipped", "error", setupErr)
	}
	s.mu.Lock()
	s.watcher = watcher
	s.mu.Unlock()

	if s.supervisor != nil {
		// An application that cannot come up at boot is contained the same
		// way as a failed restart: the frontend keeps serving, browsers get
		// the error overlay, and the next change set starts it fresh.
		if err := s.supervisor.Start(ctx); err != nil {
			s.log.Error("application failed to start", "error", err)
			if s.broadcaster != nil {
				s.broadcaster.NotifyError(err.Error())
			}
		}
		go s.watchCrashes(ctx)
	}

	debouncer := watch.NewDebouncer(s.cfg.Debounce, s.cfg.MaxWindow)
	sets := debouncer.Run(ctx, watcher.Events())
	go s.processSets(ctx, sets)

	s.httpServer = &http.Server{
		Addr:    s.cfg.Addr(),
		Handler: s.frontend,
	}

	s.log.Info("dev server running", "url", s.cfg.URL())

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		s.Stop()
		return nil
	case err := <-errCh:
		s.Stop()
		return err
	}
}

// Stop tears the pipeline down in dependency order: watcher first so no new
// work arrives, then the application, then the browser connections and the
// listener.
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.running = false

	if s.watcher != nil {
		s.watcher.Close()
	}

	if s.supervisor != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.GracePeriod+2*time.Second)
		if err := s.supervisor.Stop(ctx); err != nil {
			s.log.Warn("application stop failed", "error", err)
		}
		cancel()
	}

	if s.broadcaster != nil {
		s.broadcaster.Close()
	}

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		s.httpServer.Shutdown(ctx)
		cancel()
	}
}

// processSets consumes debounced change sets one at a time. Sets are handled
// strictly sequentially so a restart finishes before the next set is
// classified.
func (s *Server) processSets(ctx context.Context, sets <-chan *watch.ChangeSet) {
	for set := range sets {
		s.handleSet(ctx, set)
	}
}

func (s *Server) handleSet(ctx context.Context, set *watch.ChangeSet) {
	paths := set.Paths()
	decision := s.policy.Decide(paths)
	s.log.Debug("change set",
		"files", len(paths),
		"decision", decision.Kind.String())

	switch decision.Kind {
	case policy.DecisionIgnore:
		return

	case policy.DecisionAssetReload:
		s.notifyAssets(decision)

	case policy.DecisionFullRestart:
		s.restart(ctx, decision)
	}
}

func (s *Server) notifyAssets(decision policy.Decision) {
	if s.broadcaster == nil {
		s.log.Debug("asset change with live reload disabled")
		return
	}
	s.broadcaster.Notify(decision)
	s.frontend.Metrics().Notifications.WithLabelValues(string(broadcast.TypeAssetReload)).Inc()
	s.log.Info("assets reloaded",
		"assets", len(decision.Assets),
		"clients", s.broadcaster.ClientCount())
	if s.opts.OnReload != nil {
		s.opts.OnReload(s.broadcaster.ClientCount())
	}
}

// restart restarts the application and, once it is serving again, tells the
// browsers to do a full reload. In static-only mode there is no application
// and code changes collapse into a plain reload.
func (s *Server) restart(ctx context.Context, decision policy.Decision) {
	if s.supervisor != nil {
		start := time.Now()
		if err := s.supervisor.Restart(ctx); err != nil {
			s.log.Error("restart failed", "error", err)
			if s.broadcaster != nil {
				s.broadcaster.NotifyError(err.Error())
			}
			return
		}
		s.frontend.Metrics().Restarts.Inc()
		s.log.Info("application restarted", "took", time.Since(start).Round(time.Millisecond))
		if s.opts.OnRestart != nil {
			s.opts.OnRestart()
		}
	}

	if s.broadcaster == nil {
		return
	}
	s.broadcaster.ClearError()
	s.broadcaster.Notify(decision)
	s.frontend.Metrics().Notifications.WithLabelValues(string(broadcast.TypeReload)).Inc()
	s.log.Info("browsers reloaded", "clients", s.broadcaster.ClientCount())
	if s.opts.OnReload != nil {
		s.opts.OnReload(s.broadcaster.ClientCount())
	}
}

// watchCrashes forwards unexpected application exits to the browser as an
// error overlay. The application is not restarted until the developer
// changes a file.
func (s *Server) watchCrashes(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-s.supervisor.Crashes():
			if !ok {
				return
			}
			s.frontend.Metrics().Crashes.Inc()
			s.log.Error("application exited unexpectedly", "error", err)
			if s.broadcaster != nil {
				s.broadcaster.NotifyError(err.Error())
			}
			if s.opts.OnCrash != nil {
				s.opts.OnCrash(err)
			}
		}
	}
}
