package frontend

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// staticHandler serves a directory of files for local development: HTML gets
// the reload script injected, every response is uncacheable, and common path
// conventions apply ("/" → index.html, "/foo" → foo.html).
type staticHandler struct {
	dir    string
	inject bool
}

func (h *staticHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rel, ok := sanitizeRelPath(r.URL.Path)
	if !ok {
		h.notFound(w)
		return
	}

	full, ok := h.resolve(rel)
	if !ok {
		h.notFound(w)
		return
	}

	// No caching in local development, and permissive CORS so webfonts and
	// scripts referenced cross-port load correctly.
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	if h.inject && strings.HasSuffix(full, ".html") {
		body, err := os.ReadFile(full)
		if err != nil {
			h.notFound(w)
			return
		}
		body = injectScript(body)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		setContentLength(w.Header(), len(body))
		w.Write(body)
		return
	}

	http.ServeFile(w, r, full)
}

// resolve maps a sanitized relative path to a file on disk, applying the
// index.html and ".html" suffix conventions.
func (h *staticHandler) resolve(rel string) (string, bool) {
	full := filepath.Join(h.dir, filepath.FromSlash(rel))

	info, err := os.Stat(full)
	switch {
	case err == nil && info.IsDir():
		index := filepath.Join(full, "index.html")
		if _, err := os.Stat(index); err == nil {
			return index, true
		}
		return "", false
	case err == nil:
		return full, true
	}

	// "/foobar" may mean "/foobar.html".
	withExt := full + ".html"
	if _, err := os.Stat(withExt); err == nil {
		return withExt, true
	}
	return "", false
}

func (h *staticHandler) notFound(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	w.Write([]byte("404: Not Found\n"))
}

// sanitizeRelPath turns a request path into a safe path relative to the
// static directory, rejecting traversal and absolute-path tricks.
func sanitizeRelPath(urlPath string) (string, bool) {
	rel := strings.TrimPrefix(urlPath, "/")

	if strings.IndexByte(rel, 0) != -1 || strings.Contains(rel, "\\") {
		return "", false
	}
	for _, seg := range strings.Split(rel, "/") {
		if seg == ".." {
			return "", false
		}
	}

	clean := path.Clean(rel)
	if clean == ".." || strings.HasPrefix(clean, "../") || strings.HasPrefix(clean, "/") {
		return "", false
	}
	if clean == "." {
		clean = ""
	}
	return clean, true
}
