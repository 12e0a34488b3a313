package functions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/basalthq/basalt/internal/auth"
)

// ErrorDetail is the structured failure carried by an Outcome.
type ErrorDetail struct {
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

// Outcome is the result of one execution attempt. Execute always returns
// an Outcome; failures are data, not panics.
type Outcome struct {
	Succeeded bool
	Result    map[string]any
	Error     *ErrorDetail
	Logs      []LogEntry
	Duration  time.Duration
}

// Executor runs functions through the full contract: input validation,
// authorization, sandboxed execution under a deadline, output validation.
type Executor struct {
	rules          *auth.RuleEngine
	sandbox        Sandbox
	defaultTimeout time.Duration
	logger         zerolog.Logger
}

// NewExecutor creates an executor.
func NewExecutor(sandbox Sandbox, rules *auth.RuleEngine, defaultTimeout time.Duration, logger zerolog.Logger) *Executor {
	return &Executor{
		rules:          rules,
		sandbox:        sandbox,
		defaultTimeout: defaultTimeout,
		logger:         logger.With().Str("component", "executor").Logger(),
	}
}

// Execute runs one invocation. callID identifies the invocation in the
// ledger; principal is nil for anonymous callers.
//
// Input is validated before any process is spawned, so a malformed payload
// costs no sandbox startup. A deadline overrun kills the process and
// discards partial output.
func (e *Executor) Execute(ctx context.Context, d *Descriptor, callID string, payload map[string]any, principal *auth.Principal) *Outcome {
	start := time.Now()

	if err := d.Input.Validate(payload); err != nil {
		return e.fail(start, CodeValidation, (&ValidationError{Stage: "input", Detail: err.Error()}).Error())
	}

	if err := e.authorize(d, principal, payload); err != nil {
		return e.fail(start, CodeAuthorization, err.Error())
	}

	timeout := d.Timeout
	if timeout <= 0 {
		timeout = e.defaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req := &Request{
		CallID:    callID,
		Function:  d.Name,
		Payload:   payload,
		Principal: principal,
		Env:       d.Env,
	}

	resp, err := e.sandbox.Run(runCtx, d, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return e.fail(start, CodeTimeout, fmt.Sprintf("function %q exceeded its %s deadline", d.Name, timeout))
		}
		return e.fail(start, CodeRuntime, err.Error())
	}

	if !resp.Success {
		out := e.fail(start, CodeRuntime, "function reported failure")
		if resp.Error != nil {
			out.Error = &ErrorDetail{Code: resp.Error.Code, Detail: resp.Error.Message}
			if out.Error.Code == "" {
				out.Error.Code = CodeRuntime
			}
		}
		out.Logs = resp.Logs
		return out
	}

	result, err := coerceResult(resp.Output)
	if err != nil {
		out := e.fail(start, CodeValidation, (&ValidationError{Stage: "output", Detail: err.Error()}).Error())
		out.Logs = resp.Logs
		return out
	}
	if err := d.Output.Validate(result); err != nil {
		out := e.fail(start, CodeValidation, (&ValidationError{Stage: "output", Detail: err.Error()}).Error())
		out.Logs = resp.Logs
		return out
	}

	return &Outcome{
		Succeeded: true,
		Result:    result,
		Logs:      resp.Logs,
		Duration:  time.Since(start),
	}
}

func (e *Executor) authorize(d *Descriptor, principal *auth.Principal, payload map[string]any) error {
	if !auth.Check(principal, d.AuthMode) {
		return &AuthorizationError{Function: d.Name, Reason: fmt.Sprintf("requires %s access", d.AuthMode)}
	}
	if d.AccessRule == "" {
		return nil
	}
	allowed, err := e.rules.Evaluate(d.Name, principal, payload)
	if err != nil {
		return &AuthorizationError{Function: d.Name, Reason: fmt.Sprintf("access rule error: %v", err)}
	}
	if !allowed {
		return &AuthorizationError{Function: d.Name, Reason: "access rule denied"}
	}
	return nil
}

func (e *Executor) fail(start time.Time, code, detail string) *Outcome {
	return &Outcome{
		Error:    &ErrorDetail{Code: code, Detail: detail},
		Duration: time.Since(start),
	}
}

// coerceResult requires the function return value to be a JSON object or
// absent. Scalar returns are a contract violation.
func coerceResult(output any) (map[string]any, error) {
	if output == nil {
		return nil, nil
	}
	m, ok := output.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("function output must be a JSON object, got %T", output)
	}
	return m, nil
}
