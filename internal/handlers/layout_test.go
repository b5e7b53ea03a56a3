package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/MoltShell/terminal-server/internal/database"
)

func setupLayoutServer(t *testing.T) *httptest.Server {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	if err := db.AutoMigrate(&database.Setting{}); err != nil {
		t.Fatalf("auto-migrate: %v", err)
	}
	database.DB = db

	r := chi.NewRouter()
	r.Get("/api/v1/layout", GetLayout)
	r.Put("/api/v1/layout", PutLayout)
	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	return ts
}

func putLayout(t *testing.T, ts *httptest.Server, body string) *http.Response {
	t.Helper()
	req, _ := http.NewRequest(http.MethodPut, ts.URL+"/api/v1/layout", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("put layout: %v", err)
	}
	return resp
}

func TestGetLayoutBeforeSave(t *testing.T) {
	ts := setupLayoutServer(t)

	resp, err := http.Get(ts.URL + "/api/v1/layout")
	if err != nil {
		t.Fatalf("get layout: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404 before any save", resp.StatusCode)
	}
}

func TestPutThenGetLayout(t *testing.T) {
	ts := setupLayoutServer(t)
	doc := `{"panes":[{"session":"default"},{"session":"alpha"}]}`

	resp := putLayout(t, ts, doc)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("put status = %d, want 200", resp.StatusCode)
	}

	resp2, err := http.Get(ts.URL + "/api/v1/layout")
	if err != nil {
		t.Fatalf("get layout: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d, want 200", resp2.StatusCode)
	}
	if ct := resp2.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q, want application/json", ct)
	}
	body, _ := io.ReadAll(resp2.Body)
	if string(body) != doc {
		t.Errorf("layout = %q, want %q", body, doc)
	}
}

func TestPutLayoutOverwrites(t *testing.T) {
	ts := setupLayoutServer(t)

	resp := putLayout(t, ts, `{"v":1}`)
	resp.Body.Close()
	resp = putLayout(t, ts, `{"v":2}`)
	resp.Body.Close()

	resp2, err := http.Get(ts.URL + "/api/v1/layout")
	if err != nil {
		t.Fatalf("get layout: %v", err)
	}
	defer resp2.Body.Close()
	var m map[string]int
	if err := json.NewDecoder(resp2.Body).Decode(&m); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m["v"] != 2 {
		t.Errorf("layout v = %d, want 2", m["v"])
	}
}

func TestPutLayoutInvalidJSON(t *testing.T) {
	ts := setupLayoutServer(t)

	resp := putLayout(t, ts, `{"panes": [`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for invalid JSON", resp.StatusCode)
	}
}
