package server

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/basalthq/basalt/internal/auth"
	"github.com/basalthq/basalt/internal/config"
	"github.com/basalthq/basalt/internal/database"
	"github.com/basalthq/basalt/internal/engine"
	"github.com/basalthq/basalt/internal/metrics"
	"github.com/basalthq/basalt/internal/server/handlers"
)

// newRouter builds the full request pipeline: auth, body limits, logging,
// metrics, and the API routes.
func newRouter(cfg *config.Config, e *engine.Engine, db *database.DB, logger zerolog.Logger) http.Handler {
	fns := handlers.NewFunctions(e, logger)
	calls := handlers.NewCalls(e, logger)
	scheds := handlers.NewSchedules(e, logger)
	health := handlers.NewHealth(db)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", health.Check)

	mux.HandleFunc("GET /api/functions", fns.List)
	mux.HandleFunc("GET /api/functions/{name}", fns.Get)
	mux.HandleFunc("POST /api/functions/{name}", fns.Call)
	mux.HandleFunc("GET /api/functions/{name}/calls/{call_id}", calls.GetForFunction)

	mux.HandleFunc("GET /api/calls", calls.List)
	mux.HandleFunc("GET /api/calls/{id}", calls.Get)

	mux.HandleFunc("POST /api/schedules", scheds.Create)
	mux.HandleFunc("GET /api/schedules", scheds.List)
	mux.HandleFunc("GET /api/schedules/{id}", scheds.Get)
	mux.HandleFunc("PATCH /api/schedules/{id}", scheds.Update)
	mux.HandleFunc("DELETE /api/schedules/{id}", scheds.Delete)

	mux.Handle("GET /metrics", metrics.Handler())

	var handler http.Handler = mux
	handler = auth.Middleware(auth.NewVerifier(cfg.Auth))(handler)
	handler = maxBodySize(cfg.Server.MaxBodySize, handler)
	handler = requestLogger(logger, mux, handler)
	return handler
}
