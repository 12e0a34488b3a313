// Package engine composes the registry, executor, ledger and scheduler into
// the runtime façade the server and CLI talk to.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/basalthq/basalt/internal/auth"
	"github.com/basalthq/basalt/internal/config"
	"github.com/basalthq/basalt/internal/database"
	"github.com/basalthq/basalt/internal/functions"
	"github.com/basalthq/basalt/internal/ledger"
	"github.com/basalthq/basalt/internal/metrics"
	"github.com/basalthq/basalt/internal/scheduler"
)

// Engine is the function runtime. One instance serves a whole process.
type Engine struct {
	cfg      *config.Config
	registry *functions.Registry
	executor *functions.Executor
	sandbox  *functions.ProcessSandbox
	rules    *auth.RuleEngine
	ledger   *ledger.Store
	sched    *scheduler.Scheduler
	logger   zerolog.Logger

	wg sync.WaitGroup
}

// New wires up an engine from configuration. Functions are not loaded yet;
// call LoadFunctions before Start.
func New(cfg *config.Config, db *database.DB, logger zerolog.Logger) (*Engine, error) {
	rules, err := auth.NewRuleEngine()
	if err != nil {
		return nil, fmt.Errorf("creating rule engine: %w", err)
	}

	sandbox := functions.NewProcessSandbox(cfg.Functions.EnvDir, cfg.Functions.Env, logger)

	e := &Engine{
		cfg:      cfg,
		registry: functions.NewRegistry(logger),
		executor: functions.NewExecutor(sandbox, rules, cfg.Functions.Timeout, logger),
		sandbox:  sandbox,
		rules:    rules,
		ledger:   ledger.NewStore(db, cfg.Ledger.CompressLogsOver, logger),
		logger:   logger.With().Str("component", "engine").Logger(),
	}
	e.sched = scheduler.New(scheduler.NewStore(db), e, scheduler.RealClock(), &cfg.Scheduler, logger)
	return e, nil
}

// LoadFunctions discovers the functions directory and swaps in a fresh
// registry generation, recompiling access rules and materializing
// dependency environments.
func (e *Engine) LoadFunctions(ctx context.Context) error {
	descs, err := functions.Discover(e.cfg.Functions.Dir, e.logger)
	if err != nil {
		return err
	}
	if err := e.registry.Replace(descs); err != nil {
		return err
	}

	e.rules.Clear()
	for _, d := range descs {
		if d.AccessRule == "" {
			continue
		}
		if err := e.rules.Compile(d.Name, d.AccessRule); err != nil {
			e.logger.Warn().Err(err).Str("function", d.Name).Msg("access rule failed to compile, function will deny all calls")
		}
	}

	for _, d := range descs {
		if err := e.sandbox.Materialize(ctx, d); err != nil {
			e.logger.Warn().Err(err).Str("function", d.Name).Msg("dependency install failed")
		}
	}

	metrics.SetRegisteredFunctions(e.registry.Count())
	return nil
}

// Start launches the background loops: the scheduler, the ledger retention
// sweep, and the functions directory watcher when enabled. They run until
// ctx is cancelled; Wait blocks for their shutdown.
func (e *Engine) Start(ctx context.Context) {
	if e.cfg.Scheduler.Enabled {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			_ = e.sched.Run(ctx)
		}()
	}

	if e.cfg.Ledger.Retention > 0 {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.ledger.RunRetention(ctx, config.DefaultRetentionSweepEvery, e.cfg.Ledger.Retention)
		}()
	}

	if e.cfg.Functions.Watch {
		watcher := functions.NewWatcher(e.cfg.Functions.Dir, func() {
			if err := e.LoadFunctions(context.Background()); err != nil {
				e.logger.Error().Err(err).Msg("hot reload failed")
			}
		}, e.logger)
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
				e.logger.Error().Err(err).Msg("functions watcher stopped")
			}
		}()
	}
}

// Wait blocks until the background loops have exited.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// CallParams describes one invocation request.
type CallParams struct {
	FunctionName string
	Payload      map[string]any
	Principal    *auth.Principal
	Trigger      ledger.TriggerType
	TriggerID    string
}

// Call runs a function through the full lifecycle and returns the final
// ledger record. Execution failures are carried in the record, not the
// error; an error means the call could not be recorded at all.
func (e *Engine) Call(ctx context.Context, p CallParams) (*ledger.Invocation, error) {
	d, err := e.registry.Lookup(p.FunctionName)
	if err != nil {
		return nil, err
	}

	payloadJSON := "{}"
	if p.Payload != nil {
		raw, err := json.Marshal(p.Payload)
		if err != nil {
			return nil, fmt.Errorf("encoding payload: %w", err)
		}
		payloadJSON = string(raw)
	}

	principalID := ""
	if p.Principal != nil {
		principalID = p.Principal.ID
	}

	// Ledger writes survive the caller going away: a disconnected HTTP
	// client cancels ctx, but a begun call must still reach a terminal
	// record. Only execution itself honors the caller's cancellation.
	lctx := context.WithoutCancel(ctx)

	inv, err := e.ledger.Begin(lctx, ledger.BeginParams{
		FunctionName: d.Name,
		Principal:    principalID,
		TriggerType:  p.Trigger,
		TriggerID:    p.TriggerID,
		Payload:      payloadJSON,
	})
	if err != nil {
		return nil, err
	}
	if err := e.ledger.MarkRunning(lctx, inv.ID); err != nil {
		return nil, err
	}

	out := e.executor.Execute(ctx, d, inv.ID, p.Payload, p.Principal)

	complete := ledger.CompleteParams{
		Succeeded: out.Succeeded,
		Duration:  out.Duration,
	}
	if out.Succeeded {
		if out.Result != nil {
			raw, err := json.Marshal(out.Result)
			if err != nil {
				return nil, fmt.Errorf("encoding result: %w", err)
			}
			complete.Result = string(raw)
		} else {
			complete.Result = "{}"
		}
	} else {
		complete.ErrorCode = out.Error.Code
		complete.ErrorDetail = out.Error.Detail
	}
	if len(out.Logs) > 0 {
		raw, err := json.Marshal(out.Logs)
		if err == nil {
			complete.Logs = raw
		}
	}

	if err := e.ledger.Complete(lctx, inv.ID, complete); err != nil {
		return nil, err
	}

	status := ledger.StatusFailed
	if out.Succeeded {
		status = ledger.StatusSucceeded
	}
	trigger := p.Trigger
	if trigger == "" {
		trigger = ledger.TriggerHTTP
	}
	metrics.RecordInvocation(d.Name, string(status), string(trigger), out.Duration)

	e.logger.Info().Str("function", d.Name).Str("call", inv.ID).
		Str("status", string(status)).Dur("duration", out.Duration).Msg("call finished")

	return e.ledger.Get(lctx, inv.ID)
}

// InvokeScheduled runs one scheduled fire end to end. It implements
// scheduler.Invoker; scheduled fires run as the system principal.
//
// A fire that cannot run at all, because the function was removed after
// the schedule was created or the payload template no longer decodes, is
// still recorded as a failed invocation so the fire stays traceable.
func (e *Engine) InvokeScheduled(ctx context.Context, functionName, scheduleID, payload string) (string, error) {
	var m map[string]any
	if payload != "" {
		if err := json.Unmarshal([]byte(payload), &m); err != nil {
			return e.recordFailedFire(ctx, functionName, scheduleID, payload,
				fmt.Errorf("decoding payload template: %w", err))
		}
	}
	if _, err := e.registry.Lookup(functionName); err != nil {
		return e.recordFailedFire(ctx, functionName, scheduleID, payload, err)
	}

	inv, err := e.Call(ctx, CallParams{
		FunctionName: functionName,
		Payload:      m,
		Principal:    auth.System(),
		Trigger:      ledger.TriggerSchedule,
		TriggerID:    scheduleID,
	})
	if err != nil {
		return "", err
	}
	return inv.ID, nil
}

// recordFailedFire writes the full pending-running-failed lifecycle for a
// fire that never reached the executor and returns its call id.
func (e *Engine) recordFailedFire(ctx context.Context, functionName, scheduleID, payload string, cause error) (string, error) {
	lctx := context.WithoutCancel(ctx)

	inv, err := e.ledger.Begin(lctx, ledger.BeginParams{
		FunctionName: functionName,
		Principal:    auth.System().ID,
		TriggerType:  ledger.TriggerSchedule,
		TriggerID:    scheduleID,
		Payload:      payload,
	})
	if err != nil {
		return "", err
	}
	if err := e.ledger.MarkRunning(lctx, inv.ID); err != nil {
		return "", err
	}
	if err := e.ledger.Complete(lctx, inv.ID, ledger.CompleteParams{
		ErrorCode:   functions.CodeRuntime,
		ErrorDetail: cause.Error(),
	}); err != nil {
		return "", err
	}

	metrics.RecordInvocation(functionName, string(ledger.StatusFailed), string(ledger.TriggerSchedule), 0)
	e.logger.Warn().Err(cause).Str("schedule", scheduleID).Str("function", functionName).
		Str("call", inv.ID).Msg("scheduled fire failed before execution")
	return inv.ID, nil
}

// Functions lists the current registry generation.
func (e *Engine) Functions() []*functions.Descriptor {
	return e.registry.List()
}

// Function returns one descriptor by name.
func (e *Engine) Function(name string) (*functions.Descriptor, error) {
	return e.registry.Lookup(name)
}

// GetCall returns one ledger record.
func (e *Engine) GetCall(ctx context.Context, id string) (*ledger.Invocation, error) {
	return e.ledger.Get(ctx, id)
}

// ListCalls returns ledger records matching a filter.
func (e *Engine) ListCalls(ctx context.Context, f ledger.Filter) ([]*ledger.Invocation, error) {
	return e.ledger.List(ctx, f)
}

// CreateSchedule validates that the target function exists, then persists
// the schedule.
func (e *Engine) CreateSchedule(ctx context.Context, p scheduler.CreateParams) (*scheduler.Schedule, error) {
	if _, err := e.registry.Lookup(p.FunctionName); err != nil {
		return nil, err
	}
	return e.sched.Create(ctx, p)
}

// UpdateSchedule mutates a schedule.
func (e *Engine) UpdateSchedule(ctx context.Context, id string, p scheduler.UpdateParams) (*scheduler.Schedule, error) {
	return e.sched.Update(ctx, id, p)
}

// DeleteSchedule removes a schedule.
func (e *Engine) DeleteSchedule(ctx context.Context, id string) error {
	return e.sched.Delete(ctx, id)
}

// GetSchedule returns one schedule.
func (e *Engine) GetSchedule(ctx context.Context, id string) (*scheduler.Schedule, error) {
	return e.sched.Get(ctx, id)
}

// ListSchedules returns schedules, optionally for one function.
func (e *Engine) ListSchedules(ctx context.Context, functionName string) ([]*scheduler.Schedule, error) {
	return e.sched.List(ctx, functionName)
}
