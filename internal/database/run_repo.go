package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kdimtricp/ecosort/internal/models"
)

var ErrRunNotFound = errors.New("run not found")

// RunRepository is the run journal. It satisfies controller.Recorder.
type RunRepository struct {
	db *DB
}

func NewRunRepository(db *DB) *RunRepository {
	return &RunRepository{db: db}
}

func (r *RunRepository) RunStarted(ctx context.Context, run models.Run) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}

	query := `INSERT INTO runs (id, started_at, stop_reason) VALUES ($1, $2, $3)`
	if _, err := r.db.conn.ExecContext(ctx, query, run.ID, run.StartedAt.UTC(), ""); err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

func (r *RunRepository) RunStopped(ctx context.Context, runID string, at time.Time, reason string) error {
	query := `UPDATE runs SET stopped_at = $1, stop_reason = $2 WHERE id = $3`
	res, err := r.db.conn.ExecContext(ctx, query, at.UTC(), reason, runID)
	if err != nil {
		return fmt.Errorf("failed to stop run: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to stop run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

func (r *RunRepository) PollRecorded(ctx context.Context, rec models.PollRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}

	query := `
		INSERT INTO polls (
			id, run_id, label, confidence, image_name,
			result_id, outcome, error, polled_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.db.conn.ExecContext(ctx, query,
		rec.ID,
		rec.RunID,
		rec.Label,
		rec.Confidence,
		rec.ImageName,
		rec.ResultID,
		string(rec.Outcome),
		rec.Error,
		rec.At.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert poll: %w", err)
	}
	return nil
}

func (r *RunRepository) ReviewRecorded(ctx context.Context, rec models.ReviewRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}

	query := `
		INSERT INTO reviews (
			id, run_id, result_id, system_label, true_class,
			copied_for_training, error, reviewed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.conn.ExecContext(ctx, query,
		rec.ID,
		rec.RunID,
		rec.ResultID,
		rec.SystemLabel,
		rec.TrueClass,
		rec.CopiedForTraining,
		rec.Error,
		rec.At.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert review: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs first, with their journal counts.
func (r *RunRepository) ListRuns(ctx context.Context, limit int) ([]models.RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT r.id, r.started_at, r.stopped_at, r.stop_reason,
			(SELECT COUNT(*) FROM polls p WHERE p.run_id = r.id),
			(SELECT COUNT(*) FROM polls p WHERE p.run_id = r.id AND p.outcome = $1),
			(SELECT COUNT(*) FROM polls p WHERE p.run_id = r.id AND p.outcome = $2),
			(SELECT COUNT(*) FROM reviews v WHERE v.run_id = r.id)
		FROM runs r
		ORDER BY r.started_at DESC
		LIMIT $3`

	rows, err := r.db.conn.QueryContext(ctx, query,
		string(models.PollPaused), string(models.PollError), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []models.RunSummary
	for rows.Next() {
		var s models.RunSummary
		var stoppedAt sql.NullTime
		if err := rows.Scan(
			&s.ID,
			&s.StartedAt,
			&stoppedAt,
			&s.StopReason,
			&s.Polls,
			&s.Pauses,
			&s.Errors,
			&s.Reviews,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if stoppedAt.Valid {
			t := stoppedAt.Time
			s.StoppedAt = &t
		}
		runs = append(runs, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// ListReviews returns the manual classifications saved during a run, oldest
// first.
func (r *RunRepository) ListReviews(ctx context.Context, runID string) ([]models.ReviewRecord, error) {
	query := `
		SELECT id, run_id, result_id, system_label, true_class,
			copied_for_training, error, reviewed_at
		FROM reviews
		WHERE run_id = $1
		ORDER BY reviewed_at`

	rows, err := r.db.conn.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}
	defer rows.Close()

	var reviews []models.ReviewRecord
	for rows.Next() {
		var rec models.ReviewRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.RunID,
			&rec.ResultID,
			&rec.SystemLabel,
			&rec.TrueClass,
			&rec.CopiedForTraining,
			&rec.Error,
			&rec.At,
		); err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}
		reviews = append(reviews, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}
	return reviews, nil
}
