package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/basalthq/basalt/internal/engine"
	"github.com/basalthq/basalt/internal/scheduler"
)

// Schedules serves schedule management. All operations are admin only.
type Schedules struct {
	engine *engine.Engine
	logger zerolog.Logger
}

// NewSchedules creates the schedules handler.
func NewSchedules(e *engine.Engine, logger zerolog.Logger) *Schedules {
	return &Schedules{engine: e, logger: logger}
}

type createScheduleRequest struct {
	FunctionName    string          `json:"function_name"`
	Kind            string          `json:"kind"`
	Spec            string          `json:"spec"`
	Timezone        string          `json:"timezone,omitempty"`
	PayloadTemplate json.RawMessage `json:"payload_template,omitempty"`
}

// Create handles POST /api/schedules.
func (h *Schedules) Create(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r) {
		return
	}
	var req createScheduleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.FunctionName == "" || req.Kind == "" || req.Spec == "" {
		writeError(w, http.StatusBadRequest, "function_name, kind and spec are required", "BAD_REQUEST")
		return
	}

	sched, err := h.engine.CreateSchedule(r.Context(), scheduler.CreateParams{
		FunctionName:    req.FunctionName,
		Kind:            scheduler.TriggerKind(req.Kind),
		Spec:            req.Spec,
		Timezone:        req.Timezone,
		PayloadTemplate: string(req.PayloadTemplate),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sched)
}

// List handles GET /api/schedules with an optional function filter.
func (h *Schedules) List(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r) {
		return
	}
	scheds, err := h.engine.ListSchedules(r.Context(), r.URL.Query().Get("function"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if scheds == nil {
		scheds = []*scheduler.Schedule{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"schedules": scheds})
}

// Get handles GET /api/schedules/{id}.
func (h *Schedules) Get(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r) {
		return
	}
	sched, err := h.engine.GetSchedule(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sched)
}

type updateScheduleRequest struct {
	Kind            *string         `json:"kind,omitempty"`
	Spec            *string         `json:"spec,omitempty"`
	Timezone        *string         `json:"timezone,omitempty"`
	PayloadTemplate json.RawMessage `json:"payload_template,omitempty"`
	Enabled         *bool           `json:"enabled,omitempty"`
}

// Update handles PATCH /api/schedules/{id}.
func (h *Schedules) Update(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r) {
		return
	}
	var req updateScheduleRequest
	if !decodeBody(w, r, &req) {
		return
	}

	params := scheduler.UpdateParams{
		Spec:     req.Spec,
		Timezone: req.Timezone,
		Enabled:  req.Enabled,
	}
	if req.Kind != nil {
		kind := scheduler.TriggerKind(*req.Kind)
		params.Kind = &kind
	}
	if req.PayloadTemplate != nil {
		tmpl := string(req.PayloadTemplate)
		params.PayloadTemplate = &tmpl
	}

	sched, err := h.engine.UpdateSchedule(r.Context(), r.PathValue("id"), params)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sched)
}

// Delete handles DELETE /api/schedules/{id}.
func (h *Schedules) Delete(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r) {
		return
	}
	if err := h.engine.DeleteSchedule(r.Context(), r.PathValue("id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
