package repos

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wonny/cryptopredict/internal/contracts"
)

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// RunRepository implements contracts.RunHistoryStore on PostgreSQL
// ⭐ SSOT: Run 이력 저장/조회는 여기서만 (append-only)
type RunRepository struct {
	db DBTX
}

var _ contracts.RunHistoryStore = (*RunRepository)(nil)

// NewRunRepository creates a new run repository
func NewRunRepository(db DBTX) *RunRepository {
	return &RunRepository{db: db}
}

// Append inserts a completed run. An existing run id is never overwritten.
func (r *RunRepository) Append(ctx context.Context, run *contracts.EvaluationRun) error {
	if err := run.Validate(); err != nil {
		return err
	}

	payload, err := encodeRun(run)
	if err != nil {
		return err
	}
	kind, userID := ownerColumns(run.Scope.Owner)

	query := `
		INSERT INTO analysis.runs (
			run_id, context_id, owner_kind, owner_user_id,
			as_of, computed_at, aggregate_confidence, disagreement, payload
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (run_id) DO NOTHING
	`

	tag, err := r.db.Exec(ctx, query,
		run.RunID, run.Scope.ContextID, kind, userID,
		run.AsOf, run.ComputedAt, run.AggregateConfidence, string(run.Disagreement), payload,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", contracts.ErrRunExists, run.RunID)
	}
	return nil
}

// Get loads one run by id
func (r *RunRepository) Get(ctx context.Context, runID string) (*contracts.EvaluationRun, error) {
	query := `SELECT payload FROM analysis.runs WHERE run_id = $1`

	var payload []byte
	if err := r.db.QueryRow(ctx, query, runID).Scan(&payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", contracts.ErrRunNotFound, runID)
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return decodeRun(payload)
}

// LatestBefore returns the newest run of the context+owner computed strictly before `before`
func (r *RunRepository) LatestBefore(ctx context.Context, contextID string, owner contracts.Owner, before time.Time, excludeRunID string) (*contracts.EvaluationRun, error) {
	kind, userID := ownerColumns(owner)

	query := `
		SELECT payload
		FROM analysis.runs
		WHERE context_id = $1
		  AND owner_kind = $2
		  AND owner_user_id = $3
		  AND computed_at < $4
		  AND run_id <> $5
		ORDER BY computed_at DESC, run_id DESC
		LIMIT 1
	`

	var payload []byte
	err := r.db.QueryRow(ctx, query, contextID, kind, userID, before, excludeRunID).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, contracts.ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to get previous run: %w", err)
	}
	return decodeRun(payload)
}

// List returns the newest runs of a context first. limit <= 0 returns all.
func (r *RunRepository) List(ctx context.Context, contextID string, limit int) ([]*contracts.EvaluationRun, error) {
	query := `
		SELECT payload
		FROM analysis.runs
		WHERE context_id = $1
		ORDER BY computed_at DESC, run_id DESC
	`
	args := []any{contextID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := make([]*contracts.EvaluationRun, 0)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run, err := decodeRun(payload)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

func encodeRun(run *contracts.EvaluationRun) ([]byte, error) {
	payload, err := json.Marshal(run)
	if err != nil {
		return nil, fmt.Errorf("failed to encode run %s: %w", run.RunID, err)
	}
	return payload, nil
}

func decodeRun(payload []byte) (*contracts.EvaluationRun, error) {
	var run contracts.EvaluationRun
	if err := json.Unmarshal(payload, &run); err != nil {
		return nil, fmt.Errorf("failed to decode run: %w", err)
	}
	return &run, nil
}

func ownerColumns(o contracts.Owner) (kind, userID string) {
	return string(o.Kind), o.UserID
}
