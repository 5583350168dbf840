// Package frontend is the externally reachable endpoint of the dev server.
//
// It exposes the browser notification channel, serves or proxies the
// developer's pages with the reload client script injected, and publishes
// Prometheus metrics. Static asset resolution and the application itself are
// external collaborators; the frontend only attaches the injection hook and
// the notification endpoint.
package frontend

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/devloop-dev/devloop/internal/broadcast"
)

// MetricsPath exposes the Prometheus registry.
const MetricsPath = "/_devloop/metrics"

// Options configures a Frontend.
type Options struct {
	// AppURL is the proxy target. Nil puts the frontend in static-only mode.
	AppURL *url.URL

	// StaticDir is served under StaticURL when set. In static-only mode it is
	// served at the root.
	StaticDir string

	// StaticURL is the URL prefix for static files (default "/static/").
	StaticURL string

	// Broadcaster receives browser connections. Nil disables live reload.
	Broadcaster *broadcast.Broadcaster

	// Logger is used for structured logging. Defaults to slog.Default.
	Logger *slog.Logger
}

// Frontend routes browser traffic for the dev server.
type Frontend struct {
	opts    Options
	log     *slog.Logger
	router  chi.Router
	metrics *Metrics
}

// New assembles the frontend routes.
func New(opts Options) *Frontend {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.StaticURL == "" {
		opts.StaticURL = "/static/"
	}

	var clientCount func() int
	if opts.Broadcaster != nil {
		clientCount = opts.Broadcaster.ClientCount
	}

	f := &Frontend{
		opts:    opts,
		log:     opts.Logger,
		metrics: newMetrics(clientCount),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	if opts.Broadcaster != nil {
		r.Get(broadcast.WebSocketPath, opts.Broadcaster.ServeHTTP)
	}
	r.Handle(MetricsPath, f.metrics.handler())

	if opts.StaticDir != "" {
		static := &staticHandler{
			dir:    opts.StaticDir,
			inject: opts.Broadcaster != nil,
		}
		if opts.AppURL == nil {
			r.NotFound(static.ServeHTTP)
		} else {
			prefix := "/" + strings.Trim(opts.StaticURL, "/")
			r.Mount(prefix, http.StripPrefix(prefix, static))
		}
	}

	if opts.AppURL != nil {
		proxy := f.newProxy(opts.AppURL)
		r.NotFound(func(w http.ResponseWriter, req *http.Request) {
			f.metrics.ProxyRequests.Inc()
			proxy.ServeHTTP(w, req)
		})
	}

	f.router = r
	return f
}

// ServeHTTP implements http.Handler.
func (f *Frontend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.router.ServeHTTP(w, r)
}

// Metrics returns the frontend's instrumentation for other components to
// update.
func (f *Frontend) Metrics() *Metrics {
	return f.metrics
}

// injectEnabled reports whether served documents get the client script.
func (f *Frontend) injectEnabled() bool {
	return f.opts.Broadcaster != nil
}

// injectScript inserts the reload client script into an HTML document,
// preferring a spot just before </body>.
func injectScript(body []byte) []byte {
	script := []byte(broadcast.ClientScript)
	if idx := bytes.LastIndex(body, []byte("</body>")); idx != -1 {
		return append(body[:idx:idx], append(script, body[idx:]...)...)
	}
	if idx := bytes.LastIndex(body, []byte("</html>")); idx != -1 {
		return append(body[:idx:idx], append(script, body[idx:]...)...)
	}
	return append(body, script...)
}

// isHTML reports whether a Content-Type names an HTML document.
func isHTML(contentType string) bool {
	return strings.Contains(contentType, "text/html")
}

func setContentLength(h http.Header, n int) {
	h.Set("Content-Length", strconv.Itoa(n))
}
