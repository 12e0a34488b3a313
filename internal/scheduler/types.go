// Package scheduler fires function invocations from persistent time-based
// triggers.
package scheduler

import (
	"errors"
	"time"
)

// TriggerKind selects how a schedule computes its fire times.
type TriggerKind string

const (
	// TriggerOnce fires at a single absolute instant, then disables itself.
	TriggerOnce TriggerKind = "once"
	// TriggerInterval fires every fixed duration.
	TriggerInterval TriggerKind = "interval"
	// TriggerCron fires on a cron expression in the schedule's timezone.
	TriggerCron TriggerKind = "cron"
)

var (
	// ErrScheduleNotFound is returned when a schedule id does not exist.
	ErrScheduleNotFound = errors.New("schedule not found")
	// ErrInvalidTrigger is returned when a trigger spec cannot be parsed.
	ErrInvalidTrigger = errors.New("invalid trigger")
)

// Schedule is a persistent trigger binding a function to fire times.
type Schedule struct {
	ID string `json:"id"`
	// FunctionName is the registry name invoked on fire.
	FunctionName string `json:"function_name"`
	// Kind selects the trigger semantics.
	Kind TriggerKind `json:"trigger_kind"`
	// Spec is kind-dependent: an RFC 3339 instant for once, a Go duration
	// for interval, a cron expression for cron.
	Spec string `json:"trigger_spec"`
	// Timezone names the location cron expressions evaluate in.
	Timezone string `json:"timezone"`
	// PayloadTemplate is the JSON payload each fire is invoked with.
	PayloadTemplate string `json:"payload_template"`
	// Enabled gates firing; disabled schedules are retained but inert.
	Enabled bool `json:"enabled"`
	// NextRunAt is the next computed fire time (nil when exhausted).
	NextRunAt *time.Time `json:"next_run_at,omitempty"`
	// LastRunAt is when the schedule last fired.
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	// LastCallID links the most recent fire to its ledger record.
	LastCallID string `json:"last_call_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Location resolves the schedule's timezone, defaulting to UTC.
func (s *Schedule) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(s.Timezone)
}
