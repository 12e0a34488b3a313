package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/basalthq/basalt/internal/auth"
	"github.com/basalthq/basalt/internal/config"
	"github.com/basalthq/basalt/internal/database"
	"github.com/basalthq/basalt/internal/functions"
	"github.com/basalthq/basalt/internal/ledger"
	"github.com/basalthq/basalt/internal/scheduler"
)

// greetSandbox fakes the subprocess runtime so the full call path can be
// tested without a real interpreter.
type greetSandbox struct{}

func (greetSandbox) Run(ctx context.Context, d *functions.Descriptor, req *functions.Request) (*functions.Response, error) {
	name, _ := req.Payload["name"].(string)
	return &functions.Response{
		CallID:  req.CallID,
		Success: true,
		Output:  map[string]any{"message": fmt.Sprintf("Hello, %s!", name)},
		Logs:    []functions.LogEntry{{Level: "info", Message: "greeting " + name}},
	}, nil
}

func writeGreetFunction(t *testing.T, dir string) {
	t.Helper()
	fnDir := filepath.Join(dir, "greet")
	require.NoError(t, os.MkdirAll(fnDir, 0o755))
	manifest := `
name: greet
runtime: node
entrypoint: index.js
input_schema:
  type: object
  properties:
    name:
      type: string
  required: [name]
output_schema:
  type: object
  properties:
    message:
      type: string
  required: [message]
`
	require.NoError(t, os.WriteFile(filepath.Join(fnDir, "function.yaml"), []byte(manifest), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(fnDir, "index.js"), []byte("// test fixture\n"), 0o644))
}

func testEngine(t *testing.T) *Engine {
	t.Helper()
	root := t.TempDir()

	cfg := config.Default()
	cfg.Database.Path = filepath.Join(root, "test.db")
	cfg.Functions.Dir = filepath.Join(root, "functions")
	cfg.Functions.EnvDir = filepath.Join(root, "envs")
	cfg.Functions.Watch = false
	cfg.Scheduler.Enabled = false

	writeGreetFunction(t, cfg.Functions.Dir)

	db, err := database.Open(&cfg.Database)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	e, err := New(cfg, db, zerolog.Nop())
	require.NoError(t, err)

	// Swap the subprocess sandbox for the scripted one.
	rules, err := auth.NewRuleEngine()
	require.NoError(t, err)
	e.executor = functions.NewExecutor(greetSandbox{}, rules, cfg.Functions.Timeout, zerolog.Nop())

	require.NoError(t, e.LoadFunctions(context.Background()))
	return e
}

func TestCallRoundTrip(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	inv, err := e.Call(ctx, CallParams{
		FunctionName: "greet",
		Payload:      map[string]any{"name": "World"},
		Principal:    &auth.Principal{ID: "u1", Role: auth.RoleUser},
	})
	require.NoError(t, err)
	require.Equal(t, ledger.StatusSucceeded, inv.Status)
	require.JSONEq(t, `{"message":"Hello, World!"}`, *inv.Result)
	require.Equal(t, "u1", inv.Principal)
	require.Equal(t, ledger.TriggerHTTP, inv.TriggerType)
	require.NotEmpty(t, inv.Logs)

	// The record is queryable by call id afterwards.
	got, err := e.GetCall(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, inv.ID, got.ID)
	require.Equal(t, ledger.StatusSucceeded, got.Status)
}

func TestCallValidationFailureIsRecorded(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	inv, err := e.Call(ctx, CallParams{
		FunctionName: "greet",
		Payload:      map[string]any{},
	})
	require.NoError(t, err)
	require.Equal(t, ledger.StatusFailed, inv.Status)
	require.Equal(t, functions.CodeValidation, *inv.ErrorCode)
	require.Nil(t, inv.Result)
}

func TestCallUnknownFunction(t *testing.T) {
	e := testEngine(t)

	_, err := e.Call(context.Background(), CallParams{FunctionName: "missing"})
	require.ErrorIs(t, err, functions.ErrFunctionNotFound)

	// No ledger record is created for an unknown function.
	calls, err := e.ListCalls(context.Background(), ledger.Filter{})
	require.NoError(t, err)
	require.Empty(t, calls)
}

// hangupSandbox mimics a caller that disconnects mid-execution: Run cancels
// the caller's context and reports its cancellation.
type hangupSandbox struct{ cancel context.CancelFunc }

func (s hangupSandbox) Run(ctx context.Context, d *functions.Descriptor, req *functions.Request) (*functions.Response, error) {
	s.cancel()
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestCallReachesTerminalStatusAfterClientDisconnect(t *testing.T) {
	e := testEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rules, err := auth.NewRuleEngine()
	require.NoError(t, err)
	e.executor = functions.NewExecutor(hangupSandbox{cancel: cancel}, rules, time.Minute, zerolog.Nop())

	inv, err := e.Call(ctx, CallParams{
		FunctionName: "greet",
		Payload:      map[string]any{"name": "World"},
	})
	require.NoError(t, err)
	require.Equal(t, ledger.StatusFailed, inv.Status)
	require.Equal(t, functions.CodeRuntime, *inv.ErrorCode)

	// The record must be terminal, not stuck in running.
	got, err := e.GetCall(context.Background(), inv.ID)
	require.NoError(t, err)
	require.Equal(t, ledger.StatusFailed, got.Status)
	require.NotNil(t, got.FinishedAt)
}

func TestInvokeScheduledRunsAsSystem(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	callID, err := e.InvokeScheduled(ctx, "greet", "sched-1", `{"name":"Cron"}`)
	require.NoError(t, err)

	inv, err := e.GetCall(ctx, callID)
	require.NoError(t, err)
	require.Equal(t, ledger.StatusSucceeded, inv.Status)
	require.JSONEq(t, `{"message":"Hello, Cron!"}`, *inv.Result)
	require.Equal(t, "system", inv.Principal)
	require.Equal(t, ledger.TriggerSchedule, inv.TriggerType)
	require.Equal(t, "sched-1", inv.TriggerID)
}

func TestInvokeScheduledRemovedFunctionIsRecorded(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	callID, err := e.InvokeScheduled(ctx, "vanished", "sched-1", "")
	require.NoError(t, err)
	require.NotEmpty(t, callID)

	// The fire surfaces as a failed invocation, not a silent log line.
	inv, err := e.GetCall(ctx, callID)
	require.NoError(t, err)
	require.Equal(t, ledger.StatusFailed, inv.Status)
	require.Equal(t, functions.CodeRuntime, *inv.ErrorCode)
	require.Contains(t, *inv.ErrorDetail, "vanished")
	require.Equal(t, ledger.TriggerSchedule, inv.TriggerType)
	require.Equal(t, "sched-1", inv.TriggerID)
	require.Equal(t, "system", inv.Principal)
}

func TestInvokeScheduledBadPayloadTemplateIsRecorded(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	callID, err := e.InvokeScheduled(ctx, "greet", "sched-1", "{not json")
	require.NoError(t, err)

	inv, err := e.GetCall(ctx, callID)
	require.NoError(t, err)
	require.Equal(t, ledger.StatusFailed, inv.Status)
	require.Contains(t, *inv.ErrorDetail, "payload template")
}

func TestCreateScheduleRequiresKnownFunction(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	_, err := e.CreateSchedule(ctx, scheduler.CreateParams{
		FunctionName: "missing",
		Kind:         scheduler.TriggerInterval,
		Spec:         "5m",
	})
	require.ErrorIs(t, err, functions.ErrFunctionNotFound)

	sched, err := e.CreateSchedule(ctx, scheduler.CreateParams{
		FunctionName: "greet",
		Kind:         scheduler.TriggerInterval,
		Spec:         "5m",
	})
	require.NoError(t, err)
	require.True(t, sched.Enabled)
	require.NotNil(t, sched.NextRunAt)
	require.WithinDuration(t, time.Now().Add(5*time.Minute), *sched.NextRunAt, 5*time.Second)
}

func TestLoadFunctionsReplacesGeneration(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	require.Len(t, e.Functions(), 1)

	// Add a second function on disk and reload.
	fnDir := filepath.Join(e.cfg.Functions.Dir, "ping")
	require.NoError(t, os.MkdirAll(fnDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(fnDir, "function.yaml"),
		[]byte("name: ping\nruntime: node\nentrypoint: index.js\n"), 0o644))

	require.NoError(t, e.LoadFunctions(ctx))
	require.Len(t, e.Functions(), 2)

	// Remove it again; the generation swap drops it.
	require.NoError(t, os.RemoveAll(fnDir))
	require.NoError(t, e.LoadFunctions(ctx))
	require.Len(t, e.Functions(), 1)
}
