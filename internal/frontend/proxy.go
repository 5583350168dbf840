package frontend

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/devloop-dev/devloop/internal/broadcast"
)

// newProxy builds the reverse proxy to the application with the reload script
// injected into HTML responses.
func (f *Frontend) newProxy(target *url.URL) *httputil.ReverseProxy {
	proxy := httputil.NewSingleHostReverseProxy(target)

	proxy.ModifyResponse = func(resp *http.Response) error {
		if !f.injectEnabled() {
			return nil
		}
		if !isHTML(resp.Header.Get("Content-Type")) {
			return nil
		}
		// Upgraded connections have no body to rewrite.
		if resp.StatusCode == http.StatusSwitchingProtocols {
			return nil
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		resp.Body.Close()

		body = injectScript(body)
		resp.Body = io.NopCloser(strings.NewReader(string(body)))
		resp.ContentLength = int64(len(body))
		setContentLength(resp.Header, len(body))
		return nil
	}

	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		f.log.Debug("application not reachable", "path", r.URL.Path, "err", err)
		f.serveUnavailablePage(w)
	}

	return proxy
}

// serveUnavailablePage renders the placeholder shown while the application is
// down. It carries the reload script so the browser recovers on its own once
// the application is back.
func (f *Frontend) serveUnavailablePage(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusBadGateway)

	script := ""
	if f.injectEnabled() {
		script = broadcast.ClientScript
	}

	fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head><title>devloop</title></head>
<body style="font-family: system-ui; padding: 40px; background: #1a1a1a; color: #fff;">
<h1 style="color: #ff5555;">Application Not Running</h1>
<p>The application server is not responding. This could mean:</p>
<ul>
<li>The app is still starting up</li>
<li>The app failed to start (check your terminal)</li>
<li>The app crashed</li>
</ul>
<p style="color: #888;">The page will reload automatically when the app is ready.</p>
%s
</body>
</html>`, script)
}
