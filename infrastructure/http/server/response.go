package server

import (
	"chat-relay/auth"
	"chat-relay/errors"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

const maxBodyBytes = 1 << 20

type response struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Data    any               `json:"data,omitempty"`
	Code    string            `json:"code,omitempty"`
	Errors  []auth.FieldError `json:"errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respond(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, response{Success: true, Message: message, Data: data})
}

// fail maps err to its wire code and status. Unknown errors are logged and
// reported as INTERNAL_ERROR without details.
func fail(log *slog.Logger, w http.ResponseWriter, r *http.Request, err error) {
	status := errors.HTTPStatus(err)
	body := response{Message: errors.Message(err), Code: errors.Code(err)}

	var validation *auth.ValidationError
	if errors.As(err, &validation) {
		body.Errors = validation.Fields
	}
	if status >= http.StatusInternalServerError {
		log.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, body)
}

// decode reads a JSON body into dst. Unknown fields are ignored.
func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return &auth.ValidationError{Fields: []auth.FieldError{{Field: "body", Message: fmt.Sprintf("invalid JSON: %v", err)}}}
	}
	return nil
}
