package heartbeat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/MoltShell/terminal-server/internal/config"
	"github.com/MoltShell/terminal-server/internal/terminal"
	"github.com/MoltShell/terminal-server/internal/tmux"
)

// Version is stamped by the build; the update check compares it against
// what the control plane offers.
var Version = "dev"

var httpClient = &http.Client{Timeout: 10 * time.Second}

var startTime = time.Now()

// Reporter periodically tells the control plane this sandbox is alive and
// what it is serving. Without a control plane URL it does nothing.
type Reporter struct {
	State *State
	Tmux  *tmux.Client
	Conns *terminal.Registry
}

type heartbeatPayload struct {
	SandboxID     string   `json:"sandbox_id"`
	Version       string   `json:"version"`
	EchoMode      bool     `json:"echo_mode"`
	UptimeSeconds int64    `json:"uptime_seconds"`
	Sessions      []string `json:"sessions"`
	Connections   int      `json:"connections"`
}

// Run sends heartbeats until the context ends. Blocks; run it on its own
// goroutine.
func (r *Reporter) Run(ctx context.Context) {
	if config.Cfg.ControlPlaneURL == "" {
		log.Printf("[heartbeat] no control plane configured, reporting disabled")
		return
	}

	interval := config.Cfg.HeartbeatInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.send(ctx); err != nil {
				log.Printf("[heartbeat] send failed: %v", err)
			} else {
				r.State.MarkHeartbeat(time.Now())
			}
			if r.State.ShouldCheckUpdates(time.Now(), config.Cfg.UpdateCheckInterval) {
				r.checkUpdates(ctx)
			}
		}
	}
}

func (r *Reporter) send(ctx context.Context) error {
	payload := heartbeatPayload{
		SandboxID:     config.Cfg.SandboxID,
		Version:       Version,
		EchoMode:      config.Cfg.EchoMode,
		UptimeSeconds: int64(time.Since(startTime).Seconds()),
		Sessions:      []string{},
		Connections:   r.Conns.Count(),
	}
	if !config.Cfg.EchoMode {
		listCtx, cancel := context.WithTimeout(ctx, config.Cfg.TmuxCommandTimeout)
		ids, err := r.Tmux.ListSessions(listCtx)
		cancel()
		if err == nil {
			payload.Sessions = ids
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		config.Cfg.ControlPlaneURL+"/api/v1/sandboxes/heartbeat", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(b))
	}
	return nil
}

// checkUpdates asks the control plane for the latest server version and
// logs when this process is behind. Nothing is downloaded or restarted.
func (r *Reporter) checkUpdates(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		config.Cfg.ControlPlaneURL+"/api/v1/sandboxes/version", nil)
	if err != nil {
		return
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		log.Printf("[heartbeat] update check failed: %v", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Printf("[heartbeat] update check: HTTP %d", resp.StatusCode)
		return
	}

	var info struct {
		Version string `json:"version"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		log.Printf("[heartbeat] update check: decode: %v", err)
		return
	}
	if info.Version != "" && info.Version != Version {
		log.Printf("[heartbeat] update available: running %s, latest %s", Version, info.Version)
	}
}
