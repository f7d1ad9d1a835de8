package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cloo-solutions/helpdesk-learning/internal/domain"
	"github.com/cloo-solutions/helpdesk-learning/internal/pagination"
)

// staleFinalAttemptError is recorded on items that went stale on their last attempt
const staleFinalAttemptError = "stale after final attempt"

// LearningQueueRepository persists the learning queue. Every transition is an
// UPDATE guarded by the current status, so concurrent sweeps cannot move an
// item twice.
type LearningQueueRepository struct {
	db dbtx
}

func NewLearningQueueRepository(pool *pgxpool.Pool) *LearningQueueRepository {
	return &LearningQueueRepository{db: pool}
}

const queueColumns = `id, ticket_id, status, attempts, last_error, deferred, created_at, updated_at, processed_at`

// Enqueue inserts a pending item. It reports false when the ticket is
// already queued, whatever that item's status.
func (r *LearningQueueRepository) Enqueue(ctx context.Context, item *domain.LearningQueueItem) (bool, error) {
	cmdTag, err := r.db.Exec(ctx,
		`INSERT INTO learning_queue (id, ticket_id, status, attempts, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (ticket_id) DO NOTHING`,
		item.ID, item.TicketID, item.Status, item.Attempts, item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		return false, err
	}
	return cmdTag.RowsAffected() == 1, nil
}

func (r *LearningQueueRepository) GetByID(ctx context.Context, id string) (*domain.LearningQueueItem, error) {
	item, err := scanQueueItem(r.db.QueryRow(ctx, `SELECT `+queueColumns+` FROM learning_queue WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrQueueItemNotFound
		}
		return nil, err
	}
	return item, nil
}

func (r *LearningQueueRepository) GetByTicketID(ctx context.Context, ticketID string) (*domain.LearningQueueItem, error) {
	item, err := scanQueueItem(r.db.QueryRow(ctx, `SELECT `+queueColumns+` FROM learning_queue WHERE ticket_id = $1`, ticketID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrQueueItemNotFound
		}
		return nil, err
	}
	return item, nil
}

// Claim moves up to limit items to processing, oldest first. Pending items
// and processing items idle for longer than staleAfter that still have an
// attempt left are eligible. Each claim charges an attempt unless the item
// was deferred by a quota denial.
func (r *LearningQueueRepository) Claim(ctx context.Context, limit int, staleAfter time.Duration) ([]*domain.LearningQueueItem, error) {
	if limit <= 0 {
		limit = 10
	}
	staleBefore := time.Now().UTC().Add(-staleAfter)

	rows, err := r.db.Query(ctx,
		`WITH cte AS (
			 SELECT id
			 FROM learning_queue
			 WHERE status = $1
			    OR (status = $2 AND updated_at < $3 AND attempts < $4)
			 ORDER BY created_at ASC, id
			 FOR UPDATE SKIP LOCKED
			 LIMIT $5
		 )
		 UPDATE learning_queue q
		 SET status = $2,
		     attempts = CASE WHEN q.deferred THEN q.attempts ELSE q.attempts + 1 END,
		     deferred = FALSE,
		     updated_at = now()
		 FROM cte
		 WHERE q.id = cte.id
		 RETURNING q.id, q.ticket_id, q.status, q.attempts, q.last_error, q.deferred,
		           q.created_at, q.updated_at, q.processed_at`,
		domain.LearningStatusPending, domain.LearningStatusProcessing, staleBefore, domain.MaxLearningAttempts, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*domain.LearningQueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *LearningQueueRepository) MarkCompleted(ctx context.Context, id string) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE learning_queue
		 SET status = $2, last_error = NULL, processed_at = now(), updated_at = now()
		 WHERE id = $1 AND status = $3`,
		id, domain.LearningStatusCompleted, domain.LearningStatusProcessing,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return r.transitionError(ctx, id)
	}
	return nil
}

// RecordFailure returns the item to pending, or fails it when the attempt
// that just failed was the last one. It returns the resulting status.
func (r *LearningQueueRepository) RecordFailure(ctx context.Context, id string, errMsg string) (domain.LearningStatus, error) {
	var status domain.LearningStatus
	err := r.db.QueryRow(ctx,
		`UPDATE learning_queue
		 SET status = CASE WHEN attempts >= $2 THEN $3 ELSE $4 END,
		     processed_at = CASE WHEN attempts >= $2 THEN now() ELSE NULL END,
		     last_error = $5,
		     updated_at = now()
		 WHERE id = $1 AND status = $6
		 RETURNING status`,
		id, domain.MaxLearningAttempts, domain.LearningStatusFailed, domain.LearningStatusPending,
		errMsg, domain.LearningStatusProcessing,
	).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", r.transitionError(ctx, id)
		}
		return "", err
	}
	return status, nil
}

// FailPermanently fails an item whose error no retry can fix, exhausting
// its attempt budget.
func (r *LearningQueueRepository) FailPermanently(ctx context.Context, id string, errMsg string) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE learning_queue
		 SET status = $2, attempts = $3, last_error = $4, processed_at = now(), updated_at = now()
		 WHERE id = $1 AND status = $5`,
		id, domain.LearningStatusFailed, domain.MaxLearningAttempts, errMsg, domain.LearningStatusProcessing,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return r.transitionError(ctx, id)
	}
	return nil
}

// Release returns a claimed item to pending without using up its attempt
func (r *LearningQueueRepository) Release(ctx context.Context, id string, reason string) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE learning_queue
		 SET status = $2, deferred = TRUE, last_error = $3, updated_at = now()
		 WHERE id = $1 AND status = $4`,
		id, domain.LearningStatusPending, nullableString(reason), domain.LearningStatusProcessing,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return r.transitionError(ctx, id)
	}
	return nil
}

// ReapStale fails processing items that went stale on their final attempt.
// Stale items with attempts left are reclaimed by Claim instead.
func (r *LearningQueueRepository) ReapStale(ctx context.Context, staleAfter time.Duration) (int64, error) {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE learning_queue
		 SET status = $1, last_error = $2, processed_at = now(), updated_at = now()
		 WHERE status = $3 AND updated_at < $4 AND attempts >= $5`,
		domain.LearningStatusFailed, staleFinalAttemptError, domain.LearningStatusProcessing,
		time.Now().UTC().Add(-staleAfter), domain.MaxLearningAttempts,
	)
	if err != nil {
		return 0, err
	}
	return cmdTag.RowsAffected(), nil
}

func (r *LearningQueueRepository) Stats(ctx context.Context, since time.Time) (*domain.LearningQueueStats, error) {
	var s domain.LearningQueueStats
	err := r.db.QueryRow(ctx,
		`SELECT count(*) FILTER (WHERE status = $1),
		        count(*) FILTER (WHERE status = $2),
		        count(*) FILTER (WHERE status = $3 AND processed_at >= $5),
		        count(*) FILTER (WHERE status = $4)
		 FROM learning_queue`,
		domain.LearningStatusPending, domain.LearningStatusProcessing,
		domain.LearningStatusCompleted, domain.LearningStatusFailed, since,
	).Scan(&s.Pending, &s.Processing, &s.CompletedToday, &s.Failed)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ListFailed returns failed items, most recently failed first, after cursor
func (r *LearningQueueRepository) ListFailed(ctx context.Context, cursor *pagination.Cursor, limit int) ([]*domain.FailedLearningItem, error) {
	if limit <= 0 {
		limit = 20
	}

	var rows pgx.Rows
	var err error
	if cursor != nil {
		rows, err = r.db.Query(ctx,
			`SELECT id, ticket_id, attempts, last_error, updated_at
			 FROM learning_queue
			 WHERE status = $1 AND (updated_at, id) < ($2, $3)
			 ORDER BY updated_at DESC, id DESC
			 LIMIT $4`,
			domain.LearningStatusFailed, cursor.Timestamp, cursor.LastID, limit,
		)
	} else {
		rows, err = r.db.Query(ctx,
			`SELECT id, ticket_id, attempts, last_error, updated_at
			 FROM learning_queue
			 WHERE status = $1
			 ORDER BY updated_at DESC, id DESC
			 LIMIT $2`,
			domain.LearningStatusFailed, limit,
		)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*domain.FailedLearningItem
	for rows.Next() {
		var item domain.FailedLearningItem
		var lastError pgtype.Text
		if err := rows.Scan(&item.ID, &item.TicketID, &item.Attempts, &lastError, &item.UpdatedAt); err != nil {
			return nil, err
		}
		if lastError.Valid {
			item.LastError = lastError.String
		}
		items = append(items, &item)
	}
	return items, rows.Err()
}

// transitionError explains why a guarded update matched no row
func (r *LearningQueueRepository) transitionError(ctx context.Context, id string) error {
	item, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if item.Status == domain.LearningStatusCompleted {
		return domain.ErrQueueItemCompleted
	}
	return domain.NewDomainErrorWithCause(domain.ErrCodeInvalidOperation,
		"learning queue item is not processing", errors.New(string(item.Status)))
}

func scanQueueItem(row pgx.Row) (*domain.LearningQueueItem, error) {
	var item domain.LearningQueueItem
	var lastError pgtype.Text
	if err := row.Scan(&item.ID, &item.TicketID, &item.Status, &item.Attempts, &lastError, &item.Deferred,
		&item.CreatedAt, &item.UpdatedAt, &item.ProcessedAt); err != nil {
		return nil, err
	}
	if lastError.Valid {
		item.LastError = lastError.String
	}
	return &item, nil
}
