package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/basalthq/basalt/internal/auth"
	"github.com/basalthq/basalt/internal/engine"
	"github.com/basalthq/basalt/internal/functions"
	"github.com/basalthq/basalt/internal/ledger"
)

// Calls serves the invocation ledger. Ledger access is admin only.
type Calls struct {
	engine *engine.Engine
	logger zerolog.Logger
}

// NewCalls creates the calls handler.
func NewCalls(e *engine.Engine, logger zerolog.Logger) *Calls {
	return &Calls{engine: e, logger: logger}
}

// callRecord is the wire shape of a ledger record with logs decoded.
type callRecord struct {
	*ledger.Invocation
	Logs []functions.LogEntry `json:"logs,omitempty"`
}

func toCallRecord(inv *ledger.Invocation) callRecord {
	rec := callRecord{Invocation: inv}
	if len(inv.Logs) > 0 {
		// Undecodable logs are dropped from the response, not fatal.
		_ = json.Unmarshal(inv.Logs, &rec.Logs)
	}
	inv.Logs = nil
	return rec
}

// Get handles GET /api/calls/{id}.
func (h *Calls) Get(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r) {
		return
	}
	inv, err := h.engine.GetCall(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCallRecord(inv))
}

// GetForFunction handles GET /api/functions/{name}/calls/{call_id}. Unlike
// the admin ledger, this is scoped: the caller sees a record only if they
// made the call (or the call was anonymous, or they are admin), and the
// record must belong to the named function.
func (h *Calls) GetForFunction(w http.ResponseWriter, r *http.Request) {
	inv, err := h.engine.GetCall(r.Context(), r.PathValue("call_id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if inv.FunctionName != r.PathValue("name") {
		writeError(w, http.StatusNotFound, "call not found", "CALL_NOT_FOUND")
		return
	}

	p := auth.PrincipalFromContext(r.Context())
	if inv.Principal != "" && !p.IsAdmin() && (p == nil || p.ID != inv.Principal) {
		writeError(w, http.StatusForbidden, "not your call", "FORBIDDEN")
		return
	}
	writeJSON(w, http.StatusOK, toCallRecord(inv))
}

// List handles GET /api/calls with function, status, trigger, limit and
// offset query parameters.
func (h *Calls) List(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r) {
		return
	}

	q := r.URL.Query()
	f := ledger.Filter{
		FunctionName: q.Get("function"),
		Status:       ledger.Status(q.Get("status")),
		TriggerType:  ledger.TriggerType(q.Get("trigger")),
		TriggerID:    q.Get("trigger_id"),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be an integer", "BAD_REQUEST")
			return
		}
		f.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "offset must be an integer", "BAD_REQUEST")
			return
		}
		f.Offset = n
	}

	invs, err := h.engine.ListCalls(r.Context(), f)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	records := make([]callRecord, 0, len(invs))
	for _, inv := range invs {
		records = append(records, toCallRecord(inv))
	}
	writeJSON(w, http.StatusOK, map[string]any{"calls": records})
}

func requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	if !auth.PrincipalFromContext(r.Context()).IsAdmin() {
		writeError(w, http.StatusForbidden, "admin access required", "FORBIDDEN")
		return false
	}
	return true
}
