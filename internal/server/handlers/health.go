package handlers

import (
	"net/http"

	"github.com/basalthq/basalt/internal/database"
)

// Health serves the liveness endpoint.
type Health struct {
	db *database.DB
}

// NewHealth creates the health handler.
func NewHealth(db *database.DB) *Health {
	return &Health{db: db}
}

// Check handles GET /api/health.
func (h *Health) Check(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
