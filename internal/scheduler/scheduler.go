package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/basalthq/basalt/internal/config"
	"github.com/basalthq/basalt/internal/metrics"
)

// Invoker executes one scheduled fire end to end and returns the ledger
// call id once the invocation reaches a terminal state.
type Invoker interface {
	InvokeScheduled(ctx context.Context, functionName, scheduleID, payload string) (string, error)
}

// Scheduler owns the fire loop. It sleeps until the earliest pending fire
// time instead of polling, wakes early when schedules are mutated, and runs
// fires on a bounded worker pool.
type Scheduler struct {
	store   *Store
	invoker Invoker
	clock   Clock
	logger  zerolog.Logger

	maxConcurrent int
	idleWait      time.Duration

	wake chan struct{}

	mu       sync.Mutex
	inflight map[string]bool
	wg       sync.WaitGroup
}

// New creates a scheduler.
func New(store *Store, invoker Invoker, clock Clock, cfg *config.SchedulerConfig, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		store:         store,
		invoker:       invoker,
		clock:         clock,
		logger:        logger.With().Str("component", "scheduler").Logger(),
		maxConcurrent: cfg.MaxConcurrent,
		idleWait:      cfg.IdleWait,
		wake:          make(chan struct{}, 1),
		inflight:      make(map[string]bool),
	}
}

// CreateParams describes a new schedule.
type CreateParams struct {
	FunctionName    string
	Kind            TriggerKind
	Spec            string
	Timezone        string
	PayloadTemplate string
}

// Create validates and persists a schedule, computes its first fire time,
// and wakes the loop.
func (s *Scheduler) Create(ctx context.Context, p CreateParams) (*Schedule, error) {
	if err := ValidateTrigger(p.Kind, p.Spec, p.Timezone); err != nil {
		return nil, err
	}
	if err := validatePayloadTemplate(p.PayloadTemplate); err != nil {
		return nil, err
	}

	sched := &Schedule{
		FunctionName:    p.FunctionName,
		Kind:            p.Kind,
		Spec:            p.Spec,
		Timezone:        p.Timezone,
		PayloadTemplate: p.PayloadTemplate,
		Enabled:         true,
		CreatedAt:       s.clock.Now().UTC().Truncate(time.Second),
	}

	next, err := NextAfter(sched, s.clock.Now())
	if err != nil {
		return nil, err
	}
	sched.NextRunAt = next

	if err := s.store.Insert(ctx, sched); err != nil {
		return nil, err
	}

	s.logger.Info().Str("schedule", sched.ID).Str("function", sched.FunctionName).
		Str("kind", string(sched.Kind)).Msg("schedule created")
	s.poke()
	return sched, nil
}

// UpdateParams carries schedule mutations. Nil fields are left unchanged.
type UpdateParams struct {
	Kind            *TriggerKind
	Spec            *string
	Timezone        *string
	PayloadTemplate *string
	Enabled         *bool
}

// Update applies mutations, recomputes the next fire time, and wakes the
// loop.
func (s *Scheduler) Update(ctx context.Context, id string, p UpdateParams) (*Schedule, error) {
	sched, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if p.Kind != nil {
		sched.Kind = *p.Kind
	}
	if p.Spec != nil {
		sched.Spec = *p.Spec
	}
	if p.Timezone != nil {
		sched.Timezone = *p.Timezone
	}
	if p.PayloadTemplate != nil {
		if err := validatePayloadTemplate(*p.PayloadTemplate); err != nil {
			return nil, err
		}
		sched.PayloadTemplate = *p.PayloadTemplate
	}
	if p.Enabled != nil {
		sched.Enabled = *p.Enabled
	}

	if err := ValidateTrigger(sched.Kind, sched.Spec, sched.Timezone); err != nil {
		return nil, err
	}

	if sched.Enabled {
		next, err := NextAfter(sched, s.clock.Now())
		if err != nil {
			return nil, err
		}
		sched.NextRunAt = next
	} else {
		sched.NextRunAt = nil
	}

	if err := s.store.Update(ctx, sched); err != nil {
		return nil, err
	}
	s.poke()
	return sched, nil
}

// Delete removes a schedule. An in-flight fire for it is allowed to finish;
// its write-back is dropped.
func (s *Scheduler) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.poke()
	return nil
}

// Get returns one schedule.
func (s *Scheduler) Get(ctx context.Context, id string) (*Schedule, error) {
	return s.store.Get(ctx, id)
}

// List returns schedules, optionally for one function.
func (s *Scheduler) List(ctx context.Context, functionName string) ([]*Schedule, error) {
	return s.store.List(ctx, functionName)
}

// Run drives the fire loop until ctx is cancelled, then waits for in-flight
// fires to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info().Int("max_concurrent", s.maxConcurrent).Msg("scheduler started")
	sem := make(chan struct{}, s.maxConcurrent)

	// backoff prevents a zero-wait spin while a due schedule's fire is
	// still in flight and its write-back has not moved next_run_at yet.
	var backoff time.Duration

	for {
		wait, err := s.nextWait(ctx)
		if err != nil {
			s.logger.Error().Err(err).Msg("computing next wake")
			wait = s.idleWait
		}
		if wait < backoff {
			wait = backoff
		}

		select {
		case <-ctx.Done():
			s.wg.Wait()
			s.logger.Info().Msg("scheduler stopped")
			return ctx.Err()
		case <-s.wake:
			continue
		case <-s.clock.After(wait):
		}

		due, err := s.store.GetDue(ctx, s.clock.Now())
		if err != nil {
			s.logger.Error().Err(err).Msg("querying due schedules")
			continue
		}

		claimed := 0
		for _, sched := range due {
			if !s.claim(sched.ID) {
				continue
			}
			select {
			case sem <- struct{}{}:
			default:
				// Pool saturated. Leave the schedule due rather than
				// stall the timing loop behind in-flight fires.
				s.release(sched.ID)
				continue
			}
			claimed++
			s.wg.Add(1)
			go func(sched *Schedule) {
				defer s.wg.Done()
				defer func() { <-sem }()
				defer s.release(sched.ID)
				s.fire(ctx, sched)
			}(sched)
		}

		if claimed < len(due) {
			backoff = time.Second
		} else {
			backoff = 0
		}
	}
}

// nextWait returns how long to sleep before the next fire.
func (s *Scheduler) nextWait(ctx context.Context) (time.Duration, error) {
	next, err := s.store.NextWake(ctx)
	if err != nil {
		return 0, err
	}
	if next == nil {
		return s.idleWait, nil
	}
	wait := next.Sub(s.clock.Now())
	if wait < 0 {
		wait = 0
	}
	return wait, nil
}

// fire runs one scheduled invocation through its terminal state, then
// writes back the fire result. A schedule deleted while the fire was in
// flight is detected by the conditional write-back and never resurrected.
func (s *Scheduler) fire(ctx context.Context, sched *Schedule) {
	firedAt := s.clock.Now().UTC()
	if sched.NextRunAt != nil {
		firedAt = *sched.NextRunAt
	}

	metrics.RecordScheduleFire(string(sched.Kind))
	callID, err := s.invoker.InvokeScheduled(ctx, sched.FunctionName, sched.ID, sched.PayloadTemplate)
	if err != nil {
		s.logger.Error().Err(err).Str("schedule", sched.ID).
			Str("function", sched.FunctionName).Msg("scheduled fire failed")
	}

	after := *sched
	after.LastRunAt = &firedAt

	var next *time.Time
	enabled := sched.Enabled
	if sched.Kind == TriggerOnce {
		// Once schedules are retained for traceability but never refire.
		enabled = false
	} else {
		next, err = NextAfter(&after, s.clock.Now())
		if err != nil {
			s.logger.Error().Err(err).Str("schedule", sched.ID).Msg("computing next fire")
			enabled = false
		}
	}

	// The loop's ctx is cancelled at shutdown while fires may still be
	// finishing; the write-back must land regardless.
	updated, err := s.store.CompleteFire(context.WithoutCancel(ctx), sched.ID, firedAt, callID, next, enabled)
	if err != nil {
		s.logger.Error().Err(err).Str("schedule", sched.ID).Msg("recording fire")
		return
	}
	if !updated {
		s.logger.Debug().Str("schedule", sched.ID).Msg("schedule deleted mid-flight, dropping write-back")
	}
}

func (s *Scheduler) claim(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight[id] {
		return false
	}
	s.inflight[id] = true
	return true
}

func (s *Scheduler) release(id string) {
	s.mu.Lock()
	delete(s.inflight, id)
	s.mu.Unlock()
}

// poke wakes the loop without blocking; a pending wake is enough.
func (s *Scheduler) poke() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func validatePayloadTemplate(tmpl string) error {
	if tmpl == "" {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(tmpl), &m); err != nil {
		return fmt.Errorf("payload template must be a JSON object: %w", err)
	}
	return nil
}
