package handlers

import (
	"net/http"
	"time"

	"github.com/MoltShell/terminal-server/internal/config"
)

var startTime = time.Now()

// Status reports the server's identity and what is currently attached.
// Control planes use this to label the sandbox and decide whether a
// restart would interrupt anyone.
func Status(w http.ResponseWriter, r *http.Request) {
	var sessions []string
	if config.Cfg.EchoMode {
		sessions = attachedSessionIDs()
	} else {
		ids, err := Tmux.ListSessions(r.Context())
		if err == nil {
			sessions = ids
		} else {
			sessions = []string{}
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sandbox_id":     config.Cfg.SandboxID,
		"port":           config.Cfg.HTTPPort,
		"echo_mode":      config.Cfg.EchoMode,
		"uptime_seconds": int64(time.Since(startTime).Seconds()),
		"sessions":       sessions,
		"connections":    Conns.Snapshot(),
	})
}
