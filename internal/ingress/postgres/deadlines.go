// Package postgres reads ingress sources stored in PostgreSQL.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/bissquit/clerk-queue/internal/ingress"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DeadlineRepository implements ingress.DeadlineSource.
type DeadlineRepository struct {
	db *pgxpool.Pool
}

// NewDeadlineRepository creates a new deadline repository.
func NewDeadlineRepository(db *pgxpool.Pool) *DeadlineRepository {
	return &DeadlineRepository{db: db}
}

// ListUnqueuedDeadlines returns open deadlines due before dueBefore, soonest first,
// skipping any that already produced a queue item in the same court.
func (r *DeadlineRepository) ListUnqueuedDeadlines(ctx context.Context, dueBefore time.Time, limit int) ([]ingress.Deadline, error) {
	query := `
		SELECT d.id, d.court_id, d.case_id, d.case_number, d.case_type, d.title, d.due_at
		FROM deadlines d
		WHERE d.status = 'open'
			AND d.due_at <= $1
			AND NOT EXISTS (
				SELECT 1 FROM clerk_queue q
				WHERE q.court_id = d.court_id
					AND q.source_type = 'deadline'
					AND q.source_id = d.id
			)
		ORDER BY d.due_at ASC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, dueBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("list deadlines: %w", err)
	}
	defer rows.Close()

	deadlines := make([]ingress.Deadline, 0)
	for rows.Next() {
		var d ingress.Deadline
		if err := rows.Scan(&d.ID, &d.CourtID, &d.CaseID, &d.CaseNumber, &d.CaseType, &d.Title, &d.DueAt); err != nil {
			return nil, fmt.Errorf("scan deadline: %w", err)
		}
		deadlines = append(deadlines, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deadlines: %w", err)
	}
	return deadlines, nil
}
