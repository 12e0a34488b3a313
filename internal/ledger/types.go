// Package ledger is the append-only record of function invocations.
package ledger

import "errors"

// Status is the lifecycle state of an invocation. Transitions are forward
// only: pending -> running -> succeeded | failed.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// TriggerType records what initiated an invocation.
type TriggerType string

const (
	TriggerHTTP     TriggerType = "http"
	TriggerSchedule TriggerType = "schedule"
)

var (
	// ErrCallNotFound is returned when an invocation id does not exist.
	ErrCallNotFound = errors.New("call not found")
	// ErrInvalidTransition is returned when a status update would move an
	// invocation backwards or out of a terminal state.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Invocation is one recorded function call.
type Invocation struct {
	ID           string      `json:"id"`
	FunctionName string      `json:"function_name"`
	Principal    string      `json:"principal,omitempty"`
	TriggerType  TriggerType `json:"trigger_type"`
	TriggerID    string      `json:"trigger_id,omitempty"`
	Status       Status      `json:"status"`
	Payload      string      `json:"payload"`
	Result       *string     `json:"result,omitempty"`
	ErrorCode    *string     `json:"error_code,omitempty"`
	ErrorDetail  *string     `json:"error_detail,omitempty"`
	Logs         []byte      `json:"logs,omitempty"`
	DurationMS   int64       `json:"duration_ms"`
	StartedAt    string      `json:"started_at"`
	FinishedAt   *string     `json:"finished_at,omitempty"`
}

// Filter narrows List results. Zero values mean no constraint.
type Filter struct {
	FunctionName string
	Status       Status
	TriggerType  TriggerType
	TriggerID    string
	Limit        int
	Offset       int
}
