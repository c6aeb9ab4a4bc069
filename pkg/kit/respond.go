package kit

import (
	"encoding/json"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
)

type ErrorResponse struct {
	Error     string `json:"error"`
	Details   any    `json:"details,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, r *http.Request, status int, msg string, details any) {
	reqID := chimw.GetReqID(r.Context())
	WriteJSON(w, status, ErrorResponse{
		Error:     msg,
		Details:   details,
		RequestID: reqID,
	})
}

// WriteErrorPage is the HTML-route counterpart of WriteError: a plain text
// page carrying the status text and the request id for log correlation.
func WriteErrorPage(w http.ResponseWriter, r *http.Request, status int) {
	msg := http.StatusText(status)
	if reqID := chimw.GetReqID(r.Context()); reqID != "" {
		msg += " (request " + reqID + ")"
	}
	http.Error(w, msg, status)
}
