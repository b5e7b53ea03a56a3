package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"testing/fstest"
)

func newTestSPA() *SPAHandler {
	return NewSPAHandler(fstest.MapFS{
		"index.html":  {Data: []byte("<html>app</html>")},
		"assets/x.js": {Data: []byte("console.log(1)")},
	})
}

func serveSPA(t *testing.T, h *SPAHandler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestSPAServesExistingFile(t *testing.T) {
	rec := serveSPA(t, newTestSPA(), http.MethodGet, "/assets/x.js")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if string(body) != "console.log(1)" {
		t.Errorf("body = %q", body)
	}
}

func TestSPAFallsBackToIndex(t *testing.T) {
	rec := serveSPA(t, newTestSPA(), http.MethodGet, "/sessions/alpha")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Body.String(); got != "<html>app</html>" {
		t.Errorf("body = %q, want index.html contents", got)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestSPASkipsReservedPaths(t *testing.T) {
	h := newTestSPA()
	for _, path := range []string{"/api/v1/missing", "/health", "/terminal", "/tunnel", "/proxy/3000/x"} {
		rec := serveSPA(t, h, http.MethodGet, path)
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: status = %d, want 404", path, rec.Code)
		}
	}
}

func TestSPARejectsNonGET(t *testing.T) {
	rec := serveSPA(t, newTestSPA(), http.MethodPost, "/")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestSPANoIndex(t *testing.T) {
	h := NewSPAHandler(fstest.MapFS{})
	rec := serveSPA(t, h, http.MethodGet, "/anything")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
