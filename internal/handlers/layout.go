package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/MoltShell/terminal-server/internal/database"
)

// maxLayoutSize bounds the stored layout document.
const maxLayoutSize = 1 << 20

// GetLayout returns the saved workspace layout document. 404 until a
// client has saved one.
func GetLayout(w http.ResponseWriter, r *http.Request) {
	doc, err := database.GetLayout()
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusNotFound, "No layout saved")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load layout")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(doc))
}

// PutLayout stores the posted layout document verbatim. The server only
// checks that it is JSON; the shape belongs to clients.
func PutLayout(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxLayoutSize+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read body")
		return
	}
	if len(body) > maxLayoutSize {
		writeError(w, http.StatusRequestEntityTooLarge, "Layout too large")
		return
	}
	if !json.Valid(body) {
		writeError(w, http.StatusBadRequest, "Layout must be valid JSON")
		return
	}

	if err := database.SetLayout(string(body)); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save layout")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}
