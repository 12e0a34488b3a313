package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/basalthq/basalt/internal/database"
)

const scheduleColumns = `id, function_name, trigger_kind, trigger_spec, timezone,
	payload_template, enabled, next_run_at, last_run_at, last_call_id, created_at, updated_at`

// Store persists schedules in SQLite.
type Store struct {
	db *database.DB
}

// NewStore creates a schedule store.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// Insert persists a new schedule. The caller fills everything except the id
// and timestamps.
func (s *Store) Insert(ctx context.Context, sched *Schedule) error {
	if sched.ID == "" {
		sched.ID = uuid.NewString()
	}
	now := time.Now().UTC().Truncate(time.Second)
	if sched.CreatedAt.IsZero() {
		sched.CreatedAt = now
	}
	sched.UpdatedAt = now
	if sched.PayloadTemplate == "" {
		sched.PayloadTemplate = "{}"
	}
	if sched.Timezone == "" {
		sched.Timezone = "UTC"
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO schedules (id, function_name, trigger_kind, trigger_spec, timezone,
			payload_template, enabled, next_run_at, last_run_at, last_call_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sched.ID, sched.FunctionName, string(sched.Kind), sched.Spec, sched.Timezone,
		sched.PayloadTemplate, boolToInt(sched.Enabled), timePtr(sched.NextRunAt),
		timePtr(sched.LastRunAt), nullIfEmpty(sched.LastCallID),
		formatTime(sched.CreatedAt), formatTime(sched.UpdatedAt))
	if err != nil {
		return fmt.Errorf("inserting schedule: %w", database.ClassifyError(err))
	}
	return nil
}

// Update rewrites the mutable fields of a schedule.
func (s *Store) Update(ctx context.Context, sched *Schedule) error {
	sched.UpdatedAt = time.Now().UTC().Truncate(time.Second)
	res, err := s.db.ExecContext(ctx, `
		UPDATE schedules
		SET function_name = ?, trigger_kind = ?, trigger_spec = ?, timezone = ?,
			payload_template = ?, enabled = ?, next_run_at = ?, updated_at = ?
		WHERE id = ?`,
		sched.FunctionName, string(sched.Kind), sched.Spec, sched.Timezone,
		sched.PayloadTemplate, boolToInt(sched.Enabled), timePtr(sched.NextRunAt),
		formatTime(sched.UpdatedAt), sched.ID)
	if err != nil {
		return fmt.Errorf("updating schedule: %w", err)
	}
	return requireRow(res, sched.ID)
}

// Delete removes a schedule.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting schedule: %w", err)
	}
	return requireRow(res, id)
}

// Get returns one schedule by id.
func (s *Store) Get(ctx context.Context, id string) (*Schedule, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+scheduleColumns+` FROM schedules WHERE id = ?`, id)
	sched, err := scanSchedule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrScheduleNotFound, id)
	}
	return sched, err
}

// List returns all schedules, optionally for one function.
func (s *Store) List(ctx context.Context, functionName string) ([]*Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM schedules`
	var args []any
	if functionName != "" {
		query += ` WHERE function_name = ?`
		args = append(args, functionName)
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing schedules: %w", err)
	}
	defer rows.Close()

	var out []*Schedule
	for rows.Next() {
		sched, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sched)
	}
	return out, rows.Err()
}

// GetDue returns enabled schedules whose next fire time has arrived.
func (s *Store) GetDue(ctx context.Context, now time.Time) ([]*Schedule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+scheduleColumns+` FROM schedules
		WHERE enabled = 1 AND next_run_at IS NOT NULL AND next_run_at <= ?
		ORDER BY next_run_at`, formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("querying due schedules: %w", err)
	}
	defer rows.Close()

	var out []*Schedule
	for rows.Next() {
		sched, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sched)
	}
	return out, rows.Err()
}

// NextWake returns the earliest pending fire time across enabled schedules,
// or nil when nothing is scheduled.
func (s *Store) NextWake(ctx context.Context) (*time.Time, error) {
	var raw sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT MIN(next_run_at) FROM schedules
		WHERE enabled = 1 AND next_run_at IS NOT NULL`).Scan(&raw)
	if err != nil {
		return nil, err
	}
	if !raw.Valid {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw.String)
	if err != nil {
		return nil, fmt.Errorf("parsing next_run_at: %w", err)
	}
	return &t, nil
}

// CompleteFire writes back the result of one fire: the fire time, the
// ledger call id, the recomputed next fire time, and the enabled flag
// (once schedules disable themselves). A fire that produced no call keeps
// the previous last_call_id. It reports false when the schedule no longer
// exists, which the caller treats as a concurrent delete.
func (s *Store) CompleteFire(ctx context.Context, id string, firedAt time.Time, callID string, next *time.Time, enabled bool) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE schedules
		SET last_run_at = ?, last_call_id = COALESCE(?, last_call_id), next_run_at = ?, enabled = ?, updated_at = ?
		WHERE id = ?`,
		formatTime(firedAt), nullIfEmpty(callID), timePtr(next), boolToInt(enabled),
		database.Now(), id)
	if err != nil {
		return false, fmt.Errorf("completing fire: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrScheduleNotFound, id)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func timePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSchedule(row scanner) (*Schedule, error) {
	var sched Schedule
	var enabled int
	var nextRun, lastRun, lastCall sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&sched.ID, &sched.FunctionName, &sched.Kind, &sched.Spec, &sched.Timezone,
		&sched.PayloadTemplate, &enabled, &nextRun, &lastRun, &lastCall, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	sched.Enabled = enabled == 1
	sched.LastCallID = lastCall.String
	if sched.NextRunAt, err = parseNullTime(nextRun); err != nil {
		return nil, err
	}
	if sched.LastRunAt, err = parseNullTime(lastRun); err != nil {
		return nil, err
	}
	if sched.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, err
	}
	if sched.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, err
	}
	return &sched, nil
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
