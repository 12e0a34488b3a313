package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/basalthq/basalt/internal/database"
)

const invocationColumns = `id, function_name, principal, trigger_type, trigger_id, status,
	payload, result, error_code, error_detail, logs, logs_compressed, duration_ms,
	started_at, finished_at`

// Store persists invocations in SQLite.
type Store struct {
	db           *database.DB
	compressOver int
	logger       zerolog.Logger
}

// NewStore creates a ledger store. Logs larger than compressOver bytes are
// stored zstd-compressed.
func NewStore(db *database.DB, compressOver int, logger zerolog.Logger) *Store {
	return &Store{
		db:           db,
		compressOver: compressOver,
		logger:       logger.With().Str("component", "ledger").Logger(),
	}
}

// BeginParams describes a new invocation.
type BeginParams struct {
	FunctionName string
	Principal    string
	TriggerType  TriggerType
	TriggerID    string
	Payload      string
}

// Begin records a new pending invocation and returns it. The returned id is
// the call id handed back to the caller before execution starts.
func (s *Store) Begin(ctx context.Context, p BeginParams) (*Invocation, error) {
	if p.TriggerType == "" {
		p.TriggerType = TriggerHTTP
	}
	if p.Payload == "" {
		p.Payload = "{}"
	}
	inv := &Invocation{
		ID:           uuid.NewString(),
		FunctionName: p.FunctionName,
		Principal:    p.Principal,
		TriggerType:  p.TriggerType,
		TriggerID:    p.TriggerID,
		Status:       StatusPending,
		Payload:      p.Payload,
		StartedAt:    database.Now(),
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO invocations (id, function_name, principal, trigger_type, trigger_id, status, payload, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID, inv.FunctionName, inv.Principal, string(inv.TriggerType), inv.TriggerID,
		string(inv.Status), inv.Payload, inv.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("inserting invocation: %w", database.ClassifyError(err))
	}
	return inv, nil
}

// MarkRunning transitions an invocation from pending to running.
func (s *Store) MarkRunning(ctx context.Context, id string) error {
	return s.transition(ctx, id, StatusPending, `
		UPDATE invocations SET status = ? WHERE id = ? AND status = ?`,
		string(StatusRunning), id, string(StatusPending))
}

// CompleteParams carries the terminal state of an invocation.
type CompleteParams struct {
	Succeeded   bool
	Result      string
	ErrorCode   string
	ErrorDetail string
	Logs        []byte
	Duration    time.Duration
}

// Complete transitions an invocation from running to its terminal status
// and records the outcome. Logs over the compression threshold are stored
// zstd-compressed.
func (s *Store) Complete(ctx context.Context, id string, p CompleteParams) error {
	status := StatusFailed
	if p.Succeeded {
		status = StatusSucceeded
	}

	logs := p.Logs
	compressed := 0
	if s.compressOver > 0 && len(logs) > s.compressOver {
		logs = compressLogs(logs)
		compressed = 1
	}

	var result, errCode, errDetail any
	if p.Succeeded {
		result = p.Result
	} else {
		errCode = p.ErrorCode
		errDetail = p.ErrorDetail
	}

	return s.transition(ctx, id, StatusRunning, `
		UPDATE invocations
		SET status = ?, result = ?, error_code = ?, error_detail = ?,
			logs = ?, logs_compressed = ?, duration_ms = ?, finished_at = ?
		WHERE id = ? AND status = ?`,
		string(status), result, errCode, errDetail,
		logs, compressed, p.Duration.Milliseconds(), database.Now(),
		id, string(StatusRunning))
}

// transition runs a conditional update and classifies a zero-row result as
// either an unknown call or an out-of-order transition. Update and
// classification share a transaction so the reported status cannot be
// outrun by a concurrent writer.
func (s *Store) transition(ctx context.Context, id string, from Status, query string, args ...any) error {
	return s.db.Transaction(ctx, func(tx *database.Tx) error {
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("updating invocation: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 1 {
			return nil
		}

		var current string
		err = tx.QueryRowContext(ctx, `SELECT status FROM invocations WHERE id = ?`, id).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrCallNotFound, id)
		}
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: %s is %s, expected %s", ErrInvalidTransition, id, current, from)
	})
}

// Get returns one invocation by id with its logs decompressed.
func (s *Store) Get(ctx context.Context, id string) (*Invocation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+invocationColumns+` FROM invocations WHERE id = ?`, id)
	inv, err := scanInvocation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrCallNotFound, id)
	}
	return inv, err
}

// List returns invocations matching the filter, newest first.
func (s *Store) List(ctx context.Context, f Filter) ([]*Invocation, error) {
	var conds []string
	var args []any
	if f.FunctionName != "" {
		conds = append(conds, "function_name = ?")
		args = append(args, f.FunctionName)
	}
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.TriggerType != "" {
		conds = append(conds, "trigger_type = ?")
		args = append(args, string(f.TriggerType))
	}
	if f.TriggerID != "" {
		conds = append(conds, "trigger_id = ?")
		args = append(args, f.TriggerID)
	}

	query := `SELECT ` + invocationColumns + ` FROM invocations`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY started_at DESC, id DESC"

	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, f.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing invocations: %w", err)
	}
	defer rows.Close()

	var out []*Invocation
	for rows.Next() {
		inv, err := scanInvocation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// DeleteOlderThan removes terminal invocations that finished before the
// cutoff. Pending and running records are never swept.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM invocations
		WHERE status IN (?, ?) AND finished_at < ?`,
		string(StatusSucceeded), string(StatusFailed),
		cutoff.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("sweeping invocations: %w", err)
	}
	return res.RowsAffected()
}

// RunRetention deletes expired invocations on an interval until ctx is
// cancelled.
func (s *Store) RunRetention(ctx context.Context, every, retention time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.DeleteOlderThan(ctx, time.Now().Add(-retention))
			if err != nil {
				s.logger.Error().Err(err).Msg("retention sweep failed")
				continue
			}
			if n > 0 {
				s.logger.Info().Int64("deleted", n).Msg("retention sweep")
			}
		}
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanInvocation(row scanner) (*Invocation, error) {
	var inv Invocation
	var compressed int
	err := row.Scan(
		&inv.ID, &inv.FunctionName, &inv.Principal, &inv.TriggerType, &inv.TriggerID,
		&inv.Status, &inv.Payload, &inv.Result, &inv.ErrorCode, &inv.ErrorDetail,
		&inv.Logs, &compressed, &inv.DurationMS, &inv.StartedAt, &inv.FinishedAt)
	if err != nil {
		return nil, err
	}
	if compressed == 1 && len(inv.Logs) > 0 {
		inv.Logs, err = decompressLogs(inv.Logs)
		if err != nil {
			return nil, fmt.Errorf("decompressing logs for %s: %w", inv.ID, err)
		}
	}
	return &inv, nil
}
