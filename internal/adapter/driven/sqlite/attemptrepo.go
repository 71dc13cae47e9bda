package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/impfwatch/impfwatch/internal/domain/model"
	"github.com/impfwatch/impfwatch/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.AttemptStore = (*AttemptRepo)(nil)

// AttemptRepo is the SQLite implementation of the AttemptStore port.
type AttemptRepo struct {
	db *DB
}

// NewAttemptRepo creates an AttemptRepo backed by the given DB.
func NewAttemptRepo(db *DB) *AttemptRepo {
	return &AttemptRepo{db: db}
}

// Record inserts one find/book cycle's outcome.
func (r *AttemptRepo) Record(ctx context.Context, attempt model.Attempt) error {
	const query = `INSERT INTO attempts (at, outcome, slot_date, slot_time, site_name, citizen_id)
		VALUES (?, ?, ?, ?, ?, ?)`

	at := attempt.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	_, err := r.db.Writer.ExecContext(ctx, query,
		at.UTC().Format(time.RFC3339),
		string(attempt.Outcome),
		attempt.SlotDate,
		attempt.SlotTime,
		attempt.SiteName,
		attempt.CitizenID,
	)
	if err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}

	return nil
}

// ListRecent returns up to limit attempts, newest first.
func (r *AttemptRepo) ListRecent(ctx context.Context, limit int) ([]model.Attempt, error) {
	const query = `SELECT id, at, outcome, slot_date, slot_time, site_name, citizen_id
		FROM attempts ORDER BY at DESC, id DESC LIMIT ?`

	rows, err := r.db.Reader.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	var attempts []model.Attempt
	for rows.Next() {
		var a model.Attempt
		var at, outcome string

		if err := rows.Scan(&a.ID, &at, &outcome, &a.SlotDate, &a.SlotTime, &a.SiteName, &a.CitizenID); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}

		a.At, err = time.Parse(time.RFC3339, at)
		if err != nil {
			return nil, fmt.Errorf("parse attempt time: %w", err)
		}
		a.Outcome = model.Outcome(outcome)

		attempts = append(attempts, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}

	return attempts, nil
}
