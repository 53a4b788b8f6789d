// Package postgres provides PostgreSQL implementation of the queue repository.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bissquit/clerk-queue/internal/domain"
	"github.com/bissquit/clerk-queue/internal/queue"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	uniqueViolation    = "23505"
	openSourceIndexKey = "clerk_queue_open_source_uniq"
)

const itemColumns = `
	id, court_id, queue_type, priority, status, title, description,
	source_type, source_id, case_id, case_type, case_number,
	assigned_to, submitted_by, current_step, metadata,
	created_at, updated_at, completed_at`

// querier is an interface for database operations that both *pgxpool.Pool and pgx.Tx implement.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository implements queue.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Create inserts a new queue item and fills its generated fields.
func (r *Repository) Create(ctx context.Context, item *domain.QueueItem) error {
	if item.Metadata == nil {
		item.Metadata = domain.Metadata{}
	}
	metadata, err := json.Marshal(item.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	query := `
		INSERT INTO clerk_queue (
			court_id, queue_type, priority, status, title, description,
			source_type, source_id, case_id, case_type, case_number,
			submitted_by, current_step, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id, created_at, updated_at
	`
	err = r.db.QueryRow(ctx, query,
		item.CourtID,
		item.QueueType,
		item.Priority,
		item.Status,
		item.Title,
		item.Description,
		item.SourceType,
		item.SourceID,
		item.CaseID,
		item.CaseType,
		item.CaseNumber,
		item.SubmittedBy,
		item.CurrentStep,
		metadata,
	).Scan(&item.ID, &item.CreatedAt, &item.UpdatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == openSourceIndexKey {
			return queue.ErrDuplicateSource
		}
		return fmt.Errorf("create queue item: %w", err)
	}
	return nil
}

// Get retrieves a queue item by court and ID.
func (r *Repository) Get(ctx context.Context, courtID, id string) (*domain.QueueItem, error) {
	query := `SELECT ` + itemColumns + ` FROM clerk_queue WHERE id = $1 AND court_id = $2`

	item, err := scanItem(r.db.QueryRow(ctx, query, id, courtID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, queue.ErrItemNotFound
		}
		return nil, fmt.Errorf("get queue item: %w", err)
	}
	return item, nil
}

// Search returns one page of matching items and the total number of matches.
// Both reads run in one read-only snapshot so the total agrees with the page.
func (r *Repository) Search(ctx context.Context, courtID string, filter queue.Filter) ([]*domain.QueueItem, int64, error) {
	where := " WHERE court_id = $1"
	args := []interface{}{courtID}
	argNum := 2

	if filter.Status != nil {
		where += fmt.Sprintf(" AND status = $%d", argNum)
		args = append(args, *filter.Status)
		argNum++
	}
	if filter.QueueType != nil {
		where += fmt.Sprintf(" AND queue_type = $%d", argNum)
		args = append(args, *filter.QueueType)
		argNum++
	}
	if filter.Priority != nil {
		where += fmt.Sprintf(" AND priority = $%d", argNum)
		args = append(args, *filter.Priority)
		argNum++
	}
	if filter.AssignedTo != nil {
		where += fmt.Sprintf(" AND assigned_to = $%d", argNum)
		args = append(args, *filter.AssignedTo)
		argNum++
	}
	if filter.CaseID != nil {
		where += fmt.Sprintf(" AND case_id = $%d", argNum)
		args = append(args, *filter.CaseID)
		argNum++
	}

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			slog.Error("failed to rollback transaction", "error", err)
		}
	}()

	var total int64
	if err := tx.QueryRow(ctx, "SELECT COUNT(*) FROM clerk_queue"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count queue items: %w", err)
	}

	query := `SELECT ` + itemColumns + ` FROM clerk_queue` + where +
		fmt.Sprintf(" ORDER BY priority ASC, created_at ASC, id ASC LIMIT $%d OFFSET $%d", argNum, argNum+1)
	args = append(args, filter.Limit, filter.Offset)

	items, err := queryItems(ctx, tx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("search queue items: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, 0, fmt.Errorf("commit transaction: %w", err)
	}
	return items, total, nil
}

// Stats computes the dashboard counters in a single aggregate query.
func (r *Repository) Stats(ctx context.Context, courtID string, userID *int64, since time.Time) (*domain.QueueStats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE assigned_to = $2 AND status IN ('in_review', 'processing')),
			COUNT(*) FILTER (WHERE created_at >= $3 AND status IN ('pending', 'in_review', 'processing')),
			COUNT(*) FILTER (WHERE priority <= $4 AND status IN ('pending', 'in_review', 'processing')),
			(EXTRACT(EPOCH FROM AVG(completed_at - created_at) FILTER (WHERE status = 'completed')) / 60.0)::FLOAT8
		FROM clerk_queue
		WHERE court_id = $1
	`
	var stats domain.QueueStats
	err := r.db.QueryRow(ctx, query, courtID, userID, since, domain.PriorityUrgentMax).Scan(
		&stats.PendingCount,
		&stats.MyCount,
		&stats.TodayCount,
		&stats.UrgentCount,
		&stats.AvgProcessingMinutes,
	)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	return &stats, nil
}

// Claim assigns a pending, unassigned item in one conditional update.
func (r *Repository) Claim(ctx context.Context, courtID, id string, userID int64) (*domain.QueueItem, error) {
	query := `
		UPDATE clerk_queue
		SET assigned_to = $3, status = 'in_review', updated_at = NOW()
		WHERE id = $1 AND court_id = $2 AND assigned_to IS NULL AND status = 'pending'
		RETURNING ` + itemColumns

	item, err := scanItem(r.db.QueryRow(ctx, query, id, courtID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, queue.ErrClaimConflict
		}
		return nil, fmt.Errorf("claim queue item: %w", err)
	}
	return item, nil
}

// Release clears the assignee of an item held by userID and returns it to pending.
func (r *Repository) Release(ctx context.Context, courtID, id string, userID int64) (*domain.QueueItem, error) {
	query := `
		UPDATE clerk_queue
		SET assigned_to = NULL, status = 'pending', updated_at = NOW()
		WHERE id = $1 AND court_id = $2 AND assigned_to = $3
			AND status IN ('in_review', 'processing')
		RETURNING ` + itemColumns

	item, err := scanItem(r.db.QueryRow(ctx, query, id, courtID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, queue.ErrItemNotFound
		}
		return nil, fmt.Errorf("release queue item: %w", err)
	}
	return item, nil
}

// Advance writes the next pipeline position. Step data, when present, is merged
// into metadata.step_data under the confirmed step.
func (r *Repository) Advance(ctx context.Context, courtID, id string, change queue.StepChange) (*domain.QueueItem, error) {
	var stepData []byte
	if len(change.StepData) > 0 {
		payload, err := json.Marshal(map[string]any{string(change.ConfirmedStep): change.StepData})
		if err != nil {
			return nil, fmt.Errorf("marshal step data: %w", err)
		}
		stepData = payload
	}

	query := `
		UPDATE clerk_queue
		SET current_step = $3,
			status = $4,
			completed_at = CASE WHEN $5::boolean THEN COALESCE(completed_at, NOW()) ELSE NULL END,
			assigned_to = CASE WHEN $5::boolean THEN NULL ELSE assigned_to END,
			metadata = CASE
				WHEN $6::jsonb IS NULL THEN metadata
				ELSE jsonb_set(metadata, '{step_data}', COALESCE(metadata->'step_data', '{}'::jsonb) || $6::jsonb)
			END,
			updated_at = NOW()
		WHERE id = $1 AND court_id = $2 AND status <> 'rejected'
		RETURNING ` + itemColumns

	item, err := scanItem(r.db.QueryRow(ctx, query, id, courtID,
		change.Step, change.Status, change.Complete, stepData))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, queue.ErrItemNotFound
		}
		return nil, fmt.Errorf("advance queue item: %w", err)
	}
	return item, nil
}

// Reject closes an open item and merges the reason into its metadata.
func (r *Repository) Reject(ctx context.Context, courtID, id, reason string) (*domain.QueueItem, error) {
	query := `
		UPDATE clerk_queue
		SET status = 'rejected',
			completed_at = NOW(),
			assigned_to = NULL,
			metadata = metadata || jsonb_build_object('` + domain.MetadataKeyRejectReason + `', $3::text),
			updated_at = NOW()
		WHERE id = $1 AND court_id = $2 AND status IN ('pending', 'in_review', 'processing')
		RETURNING ` + itemColumns

	item, err := scanItem(r.db.QueryRow(ctx, query, id, courtID, reason))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, queue.ErrItemNotFound
		}
		return nil, fmt.Errorf("reject queue item: %w", err)
	}
	return item, nil
}

// CountByStatus returns item counts by status across all courts.
func (r *Repository) CountByStatus(ctx context.Context) (map[domain.QueueStatus]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT status, COUNT(*) FROM clerk_queue GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count queue items: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.QueueStatus]int64)
	for rows.Next() {
		var status domain.QueueStatus
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate counts: %w", err)
	}
	return counts, nil
}

func queryItems(ctx context.Context, q querier, query string, args ...any) ([]*domain.QueueItem, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]*domain.QueueItem, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan queue item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func scanItem(row pgx.Row) (*domain.QueueItem, error) {
	var item domain.QueueItem
	var metadata []byte

	err := row.Scan(
		&item.ID,
		&item.CourtID,
		&item.QueueType,
		&item.Priority,
		&item.Status,
		&item.Title,
		&item.Description,
		&item.SourceType,
		&item.SourceID,
		&item.CaseID,
		&item.CaseType,
		&item.CaseNumber,
		&item.AssignedTo,
		&item.SubmittedBy,
		&item.CurrentStep,
		&metadata,
		&item.CreatedAt,
		&item.UpdatedAt,
		&item.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	if !item.Status.IsValid() {
		return nil, fmt.Errorf("item %s: unknown status %q", item.ID, item.Status)
	}
	if !item.CurrentStep.IsValid() {
		return nil, fmt.Errorf("item %s: unknown step %q", item.ID, item.CurrentStep)
	}

	item.Metadata = domain.Metadata{}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &item.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return &item, nil
}
