// Package functions provides typed server-side function discovery and
// isolated execution.
package functions

import (
	"time"

	"github.com/basalthq/basalt/internal/auth"
)

// Runtime represents a function runtime language.
type Runtime string

const (
	// RuntimeNode is the Node.js runtime.
	RuntimeNode Runtime = "node"
	// RuntimePython is the Python runtime.
	RuntimePython Runtime = "python"
	// RuntimeDeno is the Deno runtime.
	RuntimeDeno Runtime = "deno"
	// RuntimeBun is the Bun runtime.
	RuntimeBun Runtime = "bun"
)

// Descriptor holds the metadata of a registered function. Descriptors are
// immutable for a registry generation; a redeploy replaces them wholesale.
type Descriptor struct {
	// Name is the unique, stable identifier.
	Name string `json:"name"`
	// Description is shown in listings.
	Description string `json:"description,omitempty"`
	// Runtime is the function runtime.
	Runtime Runtime `json:"runtime"`
	// Dir is the absolute path to the function directory.
	Dir string `json:"-"`
	// Entrypoint is the file executed inside Dir.
	Entrypoint string `json:"entrypoint"`
	// AuthMode is the capability required from the caller.
	AuthMode auth.Mode `json:"auth_mode"`
	// AccessRule is an optional CEL expression gating calls.
	AccessRule string `json:"access_rule,omitempty"`
	// Timeout overrides the default execution deadline.
	Timeout time.Duration `json:"timeout,omitempty"`
	// Env contains environment variables for this function.
	Env map[string]string `json:"env,omitempty"`
	// Dependencies is the declared dependency set materialized into the
	// function's isolated environment.
	Dependencies []string `json:"dependencies,omitempty"`
	// Input validates the call payload.
	Input *Schema `json:"input_schema,omitempty"`
	// Output validates the function return value.
	Output *Schema `json:"output_schema,omitempty"`
}

// Request is the wire shape a function reads from stdin.
type Request struct {
	// CallID is the ledger id of this invocation.
	CallID string `json:"call_id"`
	// Function is the name of the function being invoked.
	Function string `json:"function"`
	// Payload is the validated input.
	Payload map[string]any `json:"payload"`
	// Principal is the caller identity (null if anonymous).
	Principal *auth.Principal `json:"principal,omitempty"`
	// Env contains environment variables available to the function.
	Env map[string]string `json:"env,omitempty"`
}

// Response is the wire shape a function writes to stdout.
type Response struct {
	// CallID echoes the request call id.
	CallID string `json:"call_id"`
	// Success indicates whether the function body completed.
	Success bool `json:"success"`
	// Output contains the return value on success.
	Output any `json:"output,omitempty"`
	// Error contains error details on failure.
	Error *FunctionError `json:"error,omitempty"`
	// Logs contains log entries emitted by the function.
	Logs []LogEntry `json:"logs,omitempty"`
}

// FunctionError contains function error details.
type FunctionError struct {
	// Code is a machine-readable error code.
	Code string `json:"code"`
	// Message is a human-readable error message.
	Message string `json:"message"`
	// Details contains additional error context.
	Details map[string]any `json:"details,omitempty"`
}

// LogEntry represents a log entry captured from a function.
type LogEntry struct {
	// Level is the log level (debug, info, warn, error).
	Level string `json:"level"`
	// Message is the log message.
	Message string `json:"message"`
	// Data contains structured log data.
	Data map[string]any `json:"data,omitempty"`
	// Timestamp is when the log was recorded.
	Timestamp time.Time `json:"timestamp"`
}
