package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"stagehand/internal/services"
	"stagehand/internal/textutil"
)

const queueColumns = "id, repo_name, feature_slug, status, cli_tool, created_at, enqueued_at, started_at, completed_at, error_message, retry_count, worker_id, updated_at"

func scanQueueItem(scanner rowScanner) (*QueueItem, error) {
	var (
		item         QueueItem
		statusStr    string
		createdRaw   string
		enqueuedRaw  string
		startedRaw   sql.NullString
		completedRaw sql.NullString
		errorMessage sql.NullString
		workerID     sql.NullString
		updatedRaw   string
	)
	if err := scanner.Scan(
		&item.ID,
		&item.RepoName,
		&item.FeatureSlug,
		&statusStr,
		&item.CLITool,
		&createdRaw,
		&enqueuedRaw,
		&startedRaw,
		&completedRaw,
		&errorMessage,
		&item.RetryCount,
		&workerID,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	item.Status = QueueStatus(statusStr)
	item.ErrorMessage = errorMessage.String
	item.WorkerID = workerID.String
	item.StartedAt = parseNullTime(startedRaw)
	item.CompletedAt = parseNullTime(completedRaw)
	if t, err := parseTimeString(createdRaw); err == nil {
		item.CreatedAt = t
	}
	if t, err := parseTimeString(enqueuedRaw); err == nil {
		item.EnqueuedAt = t
	}
	if t, err := parseTimeString(updatedRaw); err == nil {
		item.UpdatedAt = t
	}
	return &item, nil
}

func scanQueueItems(rows *sql.Rows) ([]*QueueItem, error) {
	defer rows.Close()
	var items []*QueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Enqueue adds a pending item for (repoName, featureSlug) unless one is
// already pending or running, in which case the existing item's id is
// returned with AlreadyQueued set. The partial unique index on active pairs
// makes this safe across processes.
func (s *Store) Enqueue(ctx context.Context, repoName, featureSlug, cliTool string) (EnqueueResult, error) {
	ctx = ensureContext(ctx)
	var problems []string
	for _, check := range []struct{ field, value string }{
		{"repoName", repoName},
		{"featureSlug", featureSlug},
		{"cliTool", cliTool},
	} {
		if err := textutil.CheckIdentifier(check.field, check.value); err != nil {
			problems = append(problems, err.Error())
		}
	}
	if len(problems) > 0 {
		return EnqueueResult{}, services.Wrap(services.ErrValidation, "store", "enqueue", strings.Join(problems, "; "), nil)
	}

	// The active item can finish between the insert and the lookup; a short
	// loop covers that window.
	for attempt := 0; attempt < 3; attempt++ {
		ts := s.timestamp()
		var id int64
		err := s.withTx(ctx, func(tx *sql.Tx) error {
			id = 0
			res, err := tx.ExecContext(ctx,
				`INSERT INTO queue_items (repo_name, feature_slug, status, cli_tool, created_at, enqueued_at, updated_at, retry_count)
                 VALUES (?, ?, ?, ?, ?, ?, ?, 0)
                 ON CONFLICT DO NOTHING`,
				repoName, featureSlug, QueueStatusPending, cliTool, ts, ts, ts,
			)
			if err != nil {
				return err
			}
			if affected, _ := res.RowsAffected(); affected != 1 {
				return nil
			}
			if id, err = res.LastInsertId(); err != nil {
				return fmt.Errorf("last insert id: %w", err)
			}
			return stampEnqueuedTx(ctx, tx, repoName, featureSlug, ts)
		})
		if err != nil {
			return EnqueueResult{}, fmt.Errorf("enqueue %s/%s: %w", repoName, featureSlug, err)
		}
		if id != 0 {
			return EnqueueResult{ID: id}, nil
		}

		existing, err := s.ActiveQueueItem(ctx, repoName, featureSlug)
		if err != nil {
			return EnqueueResult{}, err
		}
		if existing != nil {
			return EnqueueResult{ID: existing.ID, AlreadyQueued: true}, nil
		}
	}
	return EnqueueResult{}, services.Wrap(services.ErrConflict, "store", "enqueue",
		fmt.Sprintf("%s/%s changed state during enqueue", repoName, featureSlug), nil)
}

// stampEnqueuedTx records on the feature row when it was last queued. The
// stamp outlives the queue item, so removing or pruning items does not make
// the feature look never-queued to the scheduler.
func stampEnqueuedTx(ctx context.Context, tx *sql.Tx, repoName, featureSlug, ts string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE features SET last_enqueued_at = ? WHERE repo_name = ? AND slug = ?`,
		ts, repoName, featureSlug,
	)
	if err != nil {
		return fmt.Errorf("stamp feature enqueue: %w", err)
	}
	return nil
}

// ActiveQueueItem returns the pending or running item for a pair, or nil.
func (s *Store) ActiveQueueItem(ctx context.Context, repoName, featureSlug string) (*QueueItem, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+queueColumns+` FROM queue_items
         WHERE repo_name = ? AND feature_slug = ? AND status IN (?, ?)
         LIMIT 1`,
		repoName, featureSlug, QueueStatusPending, QueueStatusRunning,
	)
	item, err := scanQueueItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("active item: %w", err)
	}
	return item, nil
}

// Claim atomically moves the oldest pending item to running and stamps it
// with workerID. It returns nil when nothing is pending.
func (s *Store) Claim(ctx context.Context, workerID string) (*QueueItem, error) {
	ctx = ensureContext(ctx)
	if strings.TrimSpace(workerID) == "" {
		return nil, services.Wrap(services.ErrValidation, "store", "claim", "worker id is required", nil)
	}
	var item *QueueItem
	err := retryOnBusy(ctx, func() error {
		ts := s.timestamp()
		row := s.db.QueryRowContext(ctx,
			`UPDATE queue_items
             SET status = ?, started_at = ?, worker_id = ?, updated_at = ?,
                 completed_at = NULL, error_message = NULL
             WHERE id = (
                 SELECT id FROM queue_items
                 WHERE status = ?
                 ORDER BY enqueued_at, id
                 LIMIT 1
             ) AND status = ?
             RETURNING `+queueColumns,
			QueueStatusRunning, ts, workerID, ts,
			QueueStatusPending, QueueStatusPending,
		)
		claimed, err := scanQueueItem(row)
		if err != nil {
			return err
		}
		item = claimed
		return nil
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim: %w", err)
	}
	return item, nil
}

// Complete marks a running item completed.
func (s *Store) Complete(ctx context.Context, id int64) error {
	ts := s.timestamp()
	res, err := s.execWithRetry(ctx,
		`UPDATE queue_items
         SET status = ?, completed_at = ?, updated_at = ?, error_message = NULL
         WHERE id = ? AND status = ?`,
		QueueStatusCompleted, ts, ts, id, QueueStatusRunning,
	)
	if err != nil {
		return fmt.Errorf("complete item %d: %w", id, err)
	}
	return s.expectOne(ctx, res, id, "complete", QueueStatusRunning)
}

// Fail marks a running item failed, increments its retry counter, and stores
// message after redaction and capping.
func (s *Store) Fail(ctx context.Context, id int64, message string) error {
	ts := s.timestamp()
	res, err := s.execWithRetry(ctx,
		`UPDATE queue_items
         SET status = ?, completed_at = ?, updated_at = ?, error_message = ?, retry_count = retry_count + 1
         WHERE id = ? AND status = ?`,
		QueueStatusFailed, ts, ts, s.sanitize(message), id, QueueStatusRunning,
	)
	if err != nil {
		return fmt.Errorf("fail item %d: %w", id, err)
	}
	return s.expectOne(ctx, res, id, "fail", QueueStatusRunning)
}

// Requeue moves a failed item back to pending at the end of the queue. The
// retry counter is cleared when resetRetries is set and kept otherwise. It
// fails with ErrConflict while another item for the same feature is active.
func (s *Store) Requeue(ctx context.Context, id int64, resetRetries bool) error {
	ts := s.timestamp()
	var res sql.Result
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		res, err = tx.ExecContext(ctx,
			`UPDATE queue_items
         SET status = ?, enqueued_at = ?, updated_at = ?, started_at = NULL, completed_at = NULL,
             worker_id = NULL, error_message = NULL,
             retry_count = CASE WHEN ? THEN 0 ELSE retry_count END
         WHERE id = ? AND status = ?
           AND NOT EXISTS (
               SELECT 1 FROM queue_items active
               WHERE active.repo_name = queue_items.repo_name
                 AND active.feature_slug = queue_items.feature_slug
                 AND active.status IN (?, ?)
           )`,
			QueueStatusPending, ts, ts, boolToInt(resetRetries), id, QueueStatusFailed,
			QueueStatusPending, QueueStatusRunning,
		)
		if err != nil {
			return err
		}
		if affected, _ := res.RowsAffected(); affected != 1 {
			return nil
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE features SET last_enqueued_at = ?
             WHERE EXISTS (SELECT 1 FROM queue_items q
                           WHERE q.id = ? AND q.repo_name = features.repo_name AND q.feature_slug = features.slug)`,
			ts, id,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("requeue item %d: %w", id, err)
	}
	if err := s.expectOne(ctx, res, id, "requeue", QueueStatusFailed); err != nil {
		return err
	}
	return nil
}

// RemovePending deletes an item that has not been claimed yet.
func (s *Store) RemovePending(ctx context.Context, id int64) error {
	res, err := s.execWithRetry(ctx, `DELETE FROM queue_items WHERE id = ? AND status = ?`, id, QueueStatusPending)
	if err != nil {
		return fmt.Errorf("remove item %d: %w", id, err)
	}
	return s.expectOne(ctx, res, id, "remove", QueueStatusPending)
}

// Prune deletes completed and failed items whose completion is older than
// olderThanDays. Pending and running items are never touched.
func (s *Store) Prune(ctx context.Context, olderThanDays int) (int64, error) {
	if olderThanDays <= 0 {
		return 0, services.Wrap(services.ErrValidation, "store", "prune",
			fmt.Sprintf("olderThanDays must be a positive integer, got %d", olderThanDays), nil)
	}
	cutoff := s.now().Add(-time.Duration(olderThanDays) * 24 * time.Hour)
	res, err := s.execWithRetry(ctx,
		`DELETE FROM queue_items
         WHERE status IN (?, ?) AND completed_at IS NOT NULL AND completed_at < ?`,
		QueueStatusCompleted, QueueStatusFailed, formatTime(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("prune queue: %w", err)
	}
	return res.RowsAffected()
}

// FailStaleRunning fails items that have been running since before cutoff.
// A worker that dies mid-run leaves its item running; without this the
// feature could never be queued again.
func (s *Store) FailStaleRunning(ctx context.Context, cutoff time.Time, message string) (int64, error) {
	ts := s.timestamp()
	res, err := s.execWithRetry(ctx,
		`UPDATE queue_items
         SET status = ?, completed_at = ?, updated_at = ?, error_message = ?, retry_count = retry_count + 1
         WHERE status = ? AND started_at IS NOT NULL AND started_at < ?`,
		QueueStatusFailed, ts, ts, s.sanitize(message), QueueStatusRunning, formatTime(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("fail stale items: %w", err)
	}
	return res.RowsAffected()
}

// GetQueueItem fetches a queue item by identifier; nil when it does not exist.
func (s *Store) GetQueueItem(ctx context.Context, id int64) (*QueueItem, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+queueColumns+` FROM queue_items WHERE id = ?`, id)
	item, err := scanQueueItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

// ListQueue returns items filtered by status (all items when none are given)
// in claim order.
func (s *Store) ListQueue(ctx context.Context, statuses ...QueueStatus) ([]*QueueItem, error) {
	ctx = ensureContext(ctx)
	query := `SELECT ` + queueColumns + ` FROM queue_items`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, status)
		}
	}
	query += ` ORDER BY enqueued_at, id`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list queue: %w", err)
	}
	return scanQueueItems(rows)
}

// QueueStats returns a count of items grouped by status.
func (s *Store) QueueStats(ctx context.Context) (map[QueueStatus]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT status, COUNT(1) FROM queue_items GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[QueueStatus]int, len(allQueueStatuses))
	for _, status := range allQueueStatuses {
		stats[status] = 0
	}
	for rows.Next() {
		var status QueueStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

func (s *Store) sanitize(message string) string {
	message = textutil.SanitizeDiagnostic(message, s.errorLimit)
	if message == "" {
		return "unknown failure"
	}
	return message
}

// expectOne turns a guarded update that touched no row into ErrNotFound or
// ErrConflict, naming the item's current status.
func (s *Store) expectOne(ctx context.Context, res sql.Result, id int64, op string, want QueueStatus) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s item %d: rows affected: %w", op, id, err)
	}
	if affected == 1 {
		return nil
	}
	current, err := s.GetQueueItem(ctx, id)
	if err != nil {
		return err
	}
	if current == nil {
		return services.Wrap(services.ErrNotFound, "store", op, fmt.Sprintf("queue item %d does not exist", id), nil)
	}
	if current.Status == want && op == "requeue" {
		return services.Wrap(services.ErrConflict, "store", op,
			fmt.Sprintf("queue item %d: another item for %s/%s is already pending or running", id, current.RepoName, current.FeatureSlug), nil)
	}
	return services.Wrap(services.ErrConflict, "store", op,
		fmt.Sprintf("queue item %d is %s, expected %s", id, current.Status, want), nil)
}
