package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/railnet/railnet/models"
)

// ErrorResponse is the JSON error response structure
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeBadRequest(w http.ResponseWriter, message string, details map[string]interface{}) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: message, Details: details})
}

// writeError maps an engine error to its HTTP status.
// Errors of no known kind are reported as 500 under fallback.
func writeError(w http.ResponseWriter, err error, fallback string) {
	var e *models.Error
	if errors.As(err, &e) {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, models.ErrNotFound):
			status = http.StatusNotFound
		case errors.Is(err, models.ErrConflict):
			status = http.StatusConflict
		case errors.Is(err, models.ErrInvalid):
			status = http.StatusUnprocessableEntity
		}
		writeJSON(w, status, ErrorResponse{Error: e.Message})
		return
	}

	log.Printf("Error: %s: %v", fallback, err)
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error: fallback,
		Details: map[string]interface{}{
			"internal": err.Error(),
		},
	})
}

// decodeBody reads a JSON request body, rejecting unknown fields
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeBadRequest(w, "Invalid request body", map[string]interface{}{
			"internal": err.Error(),
		})
		return false
	}
	return true
}
