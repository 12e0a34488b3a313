package functions

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/basalthq/basalt/internal/auth"
)

// stubSandbox replaces the subprocess sandbox so the execution contract can
// be tested without spawning real runtimes.
type stubSandbox struct {
	calls    int
	lastReq  *Request
	response *Response
	err      error
	block    bool
}

func (s *stubSandbox) Run(ctx context.Context, d *Descriptor, req *Request) (*Response, error) {
	s.calls++
	s.lastReq = req
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.response, nil
}

func newTestExecutor(t *testing.T, sandbox Sandbox, timeout time.Duration) *Executor {
	t.Helper()
	rules, err := auth.NewRuleEngine()
	require.NoError(t, err)
	return NewExecutor(sandbox, rules, timeout, zerolog.Nop())
}

func greetDescriptor(t *testing.T) *Descriptor {
	t.Helper()
	input, err := CompileSchema("greet-input", map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name": map[string]any{"type": "string"},
		},
		"required": []any{"name"},
	})
	require.NoError(t, err)
	output, err := CompileSchema("greet-output", map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{"type": "string"},
		},
		"required": []any{"message"},
	})
	require.NoError(t, err)
	return &Descriptor{
		Name:       "greet",
		Runtime:    RuntimeNode,
		Entrypoint: "index.js",
		AuthMode:   auth.ModePublic,
		Input:      input,
		Output:     output,
	}
}

func TestExecuteSuccess(t *testing.T) {
	sandbox := &stubSandbox{response: &Response{
		Success: true,
		Output:  map[string]any{"message": "Hello, World!"},
	}}
	e := newTestExecutor(t, sandbox, time.Second)

	out := e.Execute(context.Background(), greetDescriptor(t), "call-1", map[string]any{"name": "World"}, nil)
	require.True(t, out.Succeeded)
	require.Nil(t, out.Error)
	require.Equal(t, "Hello, World!", out.Result["message"])
	require.Equal(t, 1, sandbox.calls)
	require.Equal(t, "call-1", sandbox.lastReq.CallID)
}

func TestExecuteInputValidationSkipsSandbox(t *testing.T) {
	sandbox := &stubSandbox{}
	e := newTestExecutor(t, sandbox, time.Second)

	out := e.Execute(context.Background(), greetDescriptor(t), "call-1", map[string]any{}, nil)
	require.False(t, out.Succeeded)
	require.Equal(t, CodeValidation, out.Error.Code)
	// The payload was rejected before any process could be spawned.
	require.Zero(t, sandbox.calls)
}

func TestExecuteAuthorization(t *testing.T) {
	sandbox := &stubSandbox{}
	e := newTestExecutor(t, sandbox, time.Second)

	d := greetDescriptor(t)
	d.AuthMode = auth.ModeAdmin

	out := e.Execute(context.Background(), d, "call-1", map[string]any{"name": "x"}, nil)
	require.Equal(t, CodeAuthorization, out.Error.Code)
	require.Zero(t, sandbox.calls)

	out = e.Execute(context.Background(), d, "call-2", map[string]any{"name": "x"},
		&auth.Principal{ID: "u1", Role: auth.RoleUser})
	require.Equal(t, CodeAuthorization, out.Error.Code)

	sandbox.response = &Response{Success: true, Output: map[string]any{"message": "hi"}}
	out = e.Execute(context.Background(), d, "call-3", map[string]any{"name": "x"},
		&auth.Principal{ID: "a1", Role: auth.RoleAdmin})
	require.True(t, out.Succeeded)
}

func TestExecuteAccessRule(t *testing.T) {
	sandbox := &stubSandbox{response: &Response{Success: true, Output: map[string]any{"message": "hi"}}}
	rules, err := auth.NewRuleEngine()
	require.NoError(t, err)
	require.NoError(t, rules.Compile("greet", `principal.role == "admin"`))
	e := NewExecutor(sandbox, rules, time.Second, zerolog.Nop())

	d := greetDescriptor(t)
	d.AccessRule = `principal.role == "admin"`

	out := e.Execute(context.Background(), d, "call-1", map[string]any{"name": "x"},
		&auth.Principal{ID: "u1", Role: auth.RoleUser})
	require.Equal(t, CodeAuthorization, out.Error.Code)

	out = e.Execute(context.Background(), d, "call-2", map[string]any{"name": "x"},
		&auth.Principal{ID: "a1", Role: auth.RoleAdmin})
	require.True(t, out.Succeeded)
}

func TestExecuteTimeout(t *testing.T) {
	sandbox := &stubSandbox{block: true}
	e := newTestExecutor(t, sandbox, 20*time.Millisecond)

	out := e.Execute(context.Background(), greetDescriptor(t), "call-1", map[string]any{"name": "x"}, nil)
	require.False(t, out.Succeeded)
	require.Equal(t, CodeTimeout, out.Error.Code)
	// Partial output from the killed process is discarded.
	require.Nil(t, out.Result)
}

func TestExecuteFunctionFailure(t *testing.T) {
	sandbox := &stubSandbox{response: &Response{
		Success: false,
		Error:   &FunctionError{Code: "BOOM", Message: "it broke"},
		Logs:    []LogEntry{{Level: "error", Message: "before the boom"}},
	}}
	e := newTestExecutor(t, sandbox, time.Second)

	out := e.Execute(context.Background(), greetDescriptor(t), "call-1", map[string]any{"name": "x"}, nil)
	require.False(t, out.Succeeded)
	require.Equal(t, "BOOM", out.Error.Code)
	require.Equal(t, "it broke", out.Error.Detail)
	require.Len(t, out.Logs, 1)
}

func TestExecuteOutputValidation(t *testing.T) {
	sandbox := &stubSandbox{response: &Response{
		Success: true,
		Output:  map[string]any{"message": 42},
	}}
	e := newTestExecutor(t, sandbox, time.Second)

	out := e.Execute(context.Background(), greetDescriptor(t), "call-1", map[string]any{"name": "x"}, nil)
	require.False(t, out.Succeeded)
	require.Equal(t, CodeValidation, out.Error.Code)
}

func TestExecuteNonObjectOutput(t *testing.T) {
	sandbox := &stubSandbox{response: &Response{Success: true, Output: "just a string"}}
	e := newTestExecutor(t, sandbox, time.Second)

	d := greetDescriptor(t)
	d.Output = nil

	out := e.Execute(context.Background(), d, "call-1", map[string]any{"name": "x"}, nil)
	require.Equal(t, CodeValidation, out.Error.Code)
}
