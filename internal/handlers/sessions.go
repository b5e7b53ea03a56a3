package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MoltShell/terminal-server/internal/config"
	"github.com/MoltShell/terminal-server/internal/tmux"
)

type sessionInfo struct {
	ID          string `json:"id"`
	Connections int    `json:"connections"`
}

// ListSessions returns the live sessions, identifiers only, with a count of
// attached connections for each. In echo mode there is no multiplexer
// behind the server, so the listing reflects live connections instead.
func ListSessions(w http.ResponseWriter, r *http.Request) {
	var ids []string
	if config.Cfg.EchoMode {
		ids = attachedSessionIDs()
	} else {
		var err error
		ids, err = Tmux.ListSessions(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to list sessions")
			return
		}
	}

	resp := make([]sessionInfo, len(ids))
	for i, id := range ids {
		resp[i] = sessionInfo{ID: id, Connections: Conns.CountForSession(id)}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": resp})
}

// DeleteSession terminates one session. Deleting a session that does not
// exist succeeds; the caller wanted it gone and it is.
func DeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := tmux.ValidateSessionID(id); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid session name")
		return
	}

	if !config.Cfg.EchoMode {
		if err := Tmux.KillSession(r.Context(), Tmux.SessionName(id)); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to close session")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}

// RestartSessions kills every managed session and re-runs warmup, giving
// clients a clean slate. Connections attached at the time see their
// processes exit and reconnect on their own.
func RestartSessions(w http.ResponseWriter, r *http.Request) {
	if config.Cfg.EchoMode {
		Conns.KillAll()
		writeJSON(w, http.StatusOK, map[string]string{"status": "restarted"})
		return
	}

	if err := tmux.RestartAll(r.Context(), Tmux); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to restart sessions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "restarted"})
}

// attachedSessionIDs lists the distinct session identifiers with at least
// one live connection, oldest attachment first.
func attachedSessionIDs() []string {
	seen := map[string]bool{}
	ids := []string{}
	for _, a := range Conns.Snapshot() {
		if !seen[a.SessionID] {
			seen[a.SessionID] = true
			ids = append(ids, a.SessionID)
		}
	}
	return ids
}
