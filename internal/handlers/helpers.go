package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	logpkg "github.com/propcrm/realty-agent/internal/logger"
)

// maxErrorMessageLength bounds messages echoed to API clients
const maxErrorMessageLength = 200

// apiResponse is the body of every admin and webhook answer. Data and the
// error fields are mutually exclusive.
type apiResponse struct {
	Success   bool   `json:"success"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
	Message   string `json:"message,omitempty"`
	Timestamp string `json:"timestamp"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	if data == nil {
		data = json.RawMessage("null")
	}
	writeResponse(w, status, apiResponse{Success: true, Data: data})
}

// respondError answers with the status text as error type and a sanitized message
func respondError(w http.ResponseWriter, status int, message string) {
	writeResponse(w, status, apiResponse{
		Error:   http.StatusText(status),
		Message: logpkg.SanitizeString(message, maxErrorMessageLength),
	})
}

func writeResponse(w http.ResponseWriter, status int, body apiResponse) {
	body.Timestamp = time.Now().UTC().Format(time.RFC3339)
	raw, err := json.Marshal(body)
	if err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(raw, '\n'))
}
