package handlers

import (
	"encoding/json"
	"log"
	"net/http"
)

type errorResponse struct {
	Detail string `json:"detail"`
}

// writeJSON sends v as the response body. By the time encoding could fail
// the status line is already out, so failures are only logged.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[api] encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}
