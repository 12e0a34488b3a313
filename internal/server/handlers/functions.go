package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/basalthq/basalt/internal/auth"
	"github.com/basalthq/basalt/internal/engine"
	"github.com/basalthq/basalt/internal/functions"
	"github.com/basalthq/basalt/internal/ledger"
)

// Functions serves the function catalog and the call endpoint.
type Functions struct {
	engine *engine.Engine
	logger zerolog.Logger
}

// NewFunctions creates the functions handler.
func NewFunctions(e *engine.Engine, logger zerolog.Logger) *Functions {
	return &Functions{engine: e, logger: logger}
}

// List handles GET /api/functions.
func (h *Functions) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"functions": h.engine.Functions(),
	})
}

// Get handles GET /api/functions/{name}.
func (h *Functions) Get(w http.ResponseWriter, r *http.Request) {
	d, err := h.engine.Function(r.PathValue("name"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// callResult is the wire shape of a finished call.
type callResult struct {
	CallID string           `json:"call_id"`
	Status ledger.Status    `json:"status"`
	Result json.RawMessage  `json:"result,omitempty"`
	Error  *callResultError `json:"error,omitempty"`
}

type callResultError struct {
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

// Call handles POST /api/functions/{name}. The response always carries the
// call id so the outcome stays retrievable; the HTTP status reflects the
// execution outcome (validation 400, authorization 403, timeout 504,
// runtime failure 500).
func (h *Functions) Call(w http.ResponseWriter, r *http.Request) {
	var payload map[string]any
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading body: "+err.Error(), "BAD_REQUEST")
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, "payload must be a JSON object", "BAD_REQUEST")
			return
		}
	}

	inv, err := h.engine.Call(r.Context(), engine.CallParams{
		FunctionName: r.PathValue("name"),
		Payload:      payload,
		Principal:    auth.PrincipalFromContext(r.Context()),
		Trigger:      ledger.TriggerHTTP,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	res := callResult{CallID: inv.ID, Status: inv.Status}
	if inv.Result != nil {
		res.Result = json.RawMessage(*inv.Result)
	}
	status := http.StatusOK
	if inv.ErrorCode != nil {
		res.Error = &callResultError{Code: *inv.ErrorCode}
		if inv.ErrorDetail != nil {
			res.Error.Detail = *inv.ErrorDetail
		}
		status = outcomeStatus(*inv.ErrorCode)
	}
	writeJSON(w, status, res)
}

func outcomeStatus(code string) int {
	switch code {
	case functions.CodeValidation:
		return http.StatusBadRequest
	case functions.CodeAuthorization:
		return http.StatusForbidden
	case functions.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
