package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MoltShell/terminal-server/internal/config"
	"github.com/MoltShell/terminal-server/internal/terminal"
	"github.com/MoltShell/terminal-server/internal/tmux"
)

func TestStatus(t *testing.T) {
	config.Cfg.EchoMode = false
	config.Cfg.SandboxID = "sandbox-42"
	config.Cfg.HTTPPort = "8080"
	config.Cfg.SessionPrefix = "molt-"
	config.Cfg.TmuxCommandTimeout = time.Second
	Conns = terminal.NewRegistry()
	Conns.Register("c1", "alpha", "10.0.0.5:50001", nil)
	Tmux = &tmux.Client{Bin: "tmux", Prefix: "molt-", Timeout: time.Second,
		Runner: &fakeRunner{handle: func(call []string) ([]byte, error) {
			return []byte("molt-alpha\n"), nil
		}},
	}

	r := chi.NewRouter()
	r.Get("/api/v1/status", Status)
	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + "/api/v1/status")
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body struct {
		SandboxID   string                    `json:"sandbox_id"`
		Port        string                    `json:"port"`
		EchoMode    bool                      `json:"echo_mode"`
		Sessions    []string                  `json:"sessions"`
		Connections []terminal.AttachmentInfo `json:"connections"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if body.SandboxID != "sandbox-42" {
		t.Errorf("sandbox_id = %q, want sandbox-42", body.SandboxID)
	}
	if body.Port != "8080" {
		t.Errorf("port = %q, want 8080", body.Port)
	}
	if body.EchoMode {
		t.Error("echo_mode = true, want false")
	}
	if len(body.Sessions) != 1 || body.Sessions[0] != "alpha" {
		t.Errorf("sessions = %v, want [alpha]", body.Sessions)
	}
	if len(body.Connections) != 1 || body.Connections[0].SessionID != "alpha" {
		t.Errorf("connections = %+v, want one on alpha", body.Connections)
	}
}
