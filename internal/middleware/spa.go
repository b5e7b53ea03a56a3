// Package middleware holds HTTP plumbing in front of the API. Today that
// is the single-page-app fallback serving the terminal UI.
package middleware

import (
	"io/fs"
	"net/http"
	"strings"
)

// Paths owned by the server itself never fall through to the UI; a miss
// there is a real 404, not a client-side route.
var (
	reservedPrefixes = []string{"/api/", "/proxy/"}
	reservedPaths    = []string{"/health", "/terminal", "/tunnel"}
)

// SPAHandler serves the UI build directory, answering every path the
// client-side router owns with index.html.
type SPAHandler struct {
	files http.FileSystem
	index []byte
}

func NewSPAHandler(fsys fs.FS) *SPAHandler {
	index, _ := fs.ReadFile(fsys, "index.html")
	return &SPAHandler{files: http.FS(fsys), index: index}
}

func (h *SPAHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet || isReserved(r.URL.Path) {
		http.NotFound(w, r)
		return
	}

	if h.hasFile(strings.TrimPrefix(r.URL.Path, "/")) {
		http.FileServer(h.files).ServeHTTP(w, r)
		return
	}

	if h.index == nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(h.index)
}

func isReserved(path string) bool {
	for _, p := range reservedPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	for _, p := range reservedPaths {
		if path == p {
			return true
		}
	}
	return false
}

// hasFile reports whether the UI build contains a regular file at path.
func (h *SPAHandler) hasFile(path string) bool {
	f, err := h.files.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	stat, err := f.Stat()
	return err == nil && !stat.IsDir()
}
