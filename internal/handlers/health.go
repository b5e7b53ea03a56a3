package handlers

import (
	"net/http"

	"github.com/MoltShell/terminal-server/internal/config"
	"github.com/MoltShell/terminal-server/internal/database"
)

func HealthCheck(w http.ResponseWriter, r *http.Request) {
	dbStatus := "disconnected"
	if database.DB != nil {
		sqlDB, err := database.DB.DB()
		if err == nil {
			if err := sqlDB.Ping(); err == nil {
				dbStatus = "connected"
			}
		}
	}

	mode := "tmux"
	if config.Cfg.EchoMode {
		mode = "echo"
	}

	status := "healthy"
	if dbStatus != "connected" {
		status = "unhealthy"
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":   status,
		"database": dbStatus,
		"mode":     mode,
	})
}
