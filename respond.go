package main

import (
	"encoding/json"
	"net/http"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Warnw("response encoding failed", "error", err)
	}
}

// writeErrorList reports failures under the "error" key, as an array
// of human-readable messages.
func writeErrorList(w http.ResponseWriter, status int, messages ...string) {
	writeJSON(w, status, map[string][]string{"error": messages})
}

// writeValidationErrors reports input validation failures under the
// "errors" key.
func writeValidationErrors(w http.ResponseWriter, status int, messages ...string) {
	writeJSON(w, status, map[string][]string{"errors": messages})
}
