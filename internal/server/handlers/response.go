// Package handlers implements the HTTP API endpoints.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/basalthq/basalt/internal/functions"
	"github.com/basalthq/basalt/internal/ledger"
	"github.com/basalthq/basalt/internal/scheduler"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, errorBody{Error: message, Code: code})
}

// writeDomainError maps domain errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, functions.ErrFunctionNotFound):
		writeError(w, http.StatusNotFound, err.Error(), "FUNCTION_NOT_FOUND")
	case errors.Is(err, ledger.ErrCallNotFound):
		writeError(w, http.StatusNotFound, err.Error(), "CALL_NOT_FOUND")
	case errors.Is(err, scheduler.ErrScheduleNotFound):
		writeError(w, http.StatusNotFound, err.Error(), "SCHEDULE_NOT_FOUND")
	case errors.Is(err, scheduler.ErrInvalidTrigger):
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_TRIGGER")
	case errors.Is(err, functions.ErrDuplicateName):
		writeError(w, http.StatusConflict, err.Error(), "DUPLICATE_NAME")
	default:
		writeError(w, http.StatusInternalServerError, "internal error", "INTERNAL")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error(), "BAD_REQUEST")
		return false
	}
	return true
}
