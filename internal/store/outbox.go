package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/roach88/shiksha/internal/model"
)

// OutboxCounts summarizes outbox items by state.
// Permanent counts failed items that will not retry on their own.
type OutboxCounts struct {
	Pending   int `json:"pending"`
	Syncing   int `json:"syncing"`
	Synced    int `json:"synced"`
	Failed    int `json:"failed"`
	Permanent int `json:"permanent"`
}

// Unsynced is the number of items not yet acknowledged by the remote.
func (c OutboxCounts) Unsynced() int {
	return c.Pending + c.Syncing + c.Failed
}

// OutboxItem returns the item with the given id.
func (s *Store) OutboxItem(ctx context.Context, id string) (model.OutboxItem, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+outboxColumns+` FROM outbox WHERE id = ?`, id)
	it, ok, err := getOne(row, scanOutboxItem)
	if err != nil {
		return model.OutboxItem{}, false, model.NewStorageError("store.OutboxItem", err)
	}
	return it, ok, nil
}

// PendingOutbox returns up to limit pending items of one kind in creation order.
// limit <= 0 means no limit.
func (s *Store) PendingOutbox(ctx context.Context, kind model.OutboxKind, limit int) ([]model.OutboxItem, error) {
	if limit <= 0 {
		limit = -1
	}
	return s.queryOutbox(ctx, "store.PendingOutbox", `
		SELECT `+outboxColumns+` FROM outbox
		WHERE state = ? AND kind = ?
		ORDER BY seq ASC
		LIMIT ?
	`, string(model.OutboxPending), string(kind), limit)
}

// FailedOutbox returns every failed item in creation order.
func (s *Store) FailedOutbox(ctx context.Context) ([]model.OutboxItem, error) {
	return s.queryOutbox(ctx, "store.FailedOutbox", `
		SELECT `+outboxColumns+` FROM outbox
		WHERE state = ?
		ORDER BY seq ASC
	`, string(model.OutboxFailed))
}

// ListOutbox returns items in creation order, filtered by state when non-empty.
func (s *Store) ListOutbox(ctx context.Context, state model.OutboxState) ([]model.OutboxItem, error) {
	return s.queryOutbox(ctx, "store.ListOutbox", `
		SELECT `+outboxColumns+` FROM outbox
		WHERE ? = '' OR state = ?
		ORDER BY seq ASC
	`, string(state), string(state))
}

func (s *Store) queryOutbox(ctx context.Context, op, query string, args ...any) ([]model.OutboxItem, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, model.NewStorageError(op, err)
	}
	out, err := collect(rows, scanOutboxItem)
	if err != nil {
		return nil, model.NewStorageError(op, err)
	}
	return out, nil
}

// BeginSubmit moves a pending item to syncing and counts the attempt.
func (s *Store) BeginSubmit(ctx context.Context, id string, now time.Time) error {
	return s.transition(ctx, "store.BeginSubmit", id, model.OutboxPending, model.OutboxSyncing,
		`attempts = attempts + 1, updated_at = ?`, toMillis(now))
}

// MarkSynced records the remote's acknowledgment of a syncing item.
func (s *Store) MarkSynced(ctx context.Context, id string, now time.Time) error {
	return s.transition(ctx, "store.MarkSynced", id, model.OutboxSyncing, model.OutboxSynced,
		`last_error = '', next_retry_at = 0, updated_at = ?`, toMillis(now))
}

// MarkFailed records a failed submission. A permanent failure is not released
// by ReleaseFailed; it waits for RetryFailed.
func (s *Store) MarkFailed(ctx context.Context, id string, now time.Time, permanent bool, nextRetryAt time.Time, reason string) error {
	return s.transition(ctx, "store.MarkFailed", id, model.OutboxSyncing, model.OutboxFailed,
		`permanent = ?, next_retry_at = ?, last_error = ?, updated_at = ?`,
		permanent, toMillis(nextRetryAt), reason, toMillis(now))
}

// RetryFailed is the operator override: a failed item, permanent or not,
// goes back to pending with a fresh attempt budget.
func (s *Store) RetryFailed(ctx context.Context, id string, now time.Time) error {
	return s.transition(ctx, "store.RetryFailed", id, model.OutboxFailed, model.OutboxPending,
		`permanent = 0, attempts = 0, next_retry_at = 0, updated_at = ?`, toMillis(now))
}

// transition applies a guarded state change. The UPDATE only matches rows
// still in from, so a concurrent or repeated call cannot skip a state.
func (s *Store) transition(ctx context.Context, op, id string, from, to model.OutboxState, set string, args ...any) error {
	if !model.CanTransition(from, to) {
		return model.NewTransitionError(op, id, from, to)
	}
	params := append([]any{string(to)}, args...)
	params = append(params, id, string(from))
	res, err := s.db.ExecContext(ctx,
		`UPDATE outbox SET state = ?, `+set+` WHERE id = ? AND state = ?`, params...)
	if err != nil {
		return model.NewStorageError(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.NewStorageError(op, err)
	}
	if n == 1 {
		return nil
	}

	var current string
	err = s.db.QueryRowContext(ctx, `SELECT state FROM outbox WHERE id = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return &model.Error{Code: model.ErrCodeInvalidTransition, Op: op, Message: "outbox item " + id + " not found"}
	}
	if err != nil {
		return model.NewStorageError(op, err)
	}
	return model.NewTransitionError(op, id, model.OutboxState(current), to)
}

// ReleaseFailed moves retryable failed items whose backoff has elapsed
// back to pending. Returns the number released.
func (s *Store) ReleaseFailed(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE outbox SET state = ?, updated_at = ?
		WHERE state = ? AND permanent = 0 AND next_retry_at <= ?
	`, string(model.OutboxPending), toMillis(now), string(model.OutboxFailed), toMillis(now))
	if err != nil {
		return 0, model.NewStorageError("store.ReleaseFailed", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// ResetStuck returns syncing items last touched at or before olderThan to
// pending. Their outcome is unknown, so they are resubmitted; the remote
// deduplicates by item id. This recovery path is the one exception to the
// forward-only state machine.
func (s *Store) ResetStuck(ctx context.Context, olderThan, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE outbox SET state = ?, updated_at = ?
		WHERE state = ? AND updated_at <= ?
	`, string(model.OutboxPending), toMillis(now), string(model.OutboxSyncing), toMillis(olderThan))
	if err != nil {
		return 0, model.NewStorageError("store.ResetStuck", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// PruneSynced deletes synced items acknowledged before the cutoff.
func (s *Store) PruneSynced(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM outbox WHERE state = ? AND updated_at < ?
	`, string(model.OutboxSynced), toMillis(before))
	if err != nil {
		return 0, model.NewStorageError("store.PruneSynced", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// OutboxCounts counts items by state, for one student when studentID is set.
func (s *Store) OutboxCounts(ctx context.Context, studentID string) (OutboxCounts, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT state, permanent, COUNT(*) FROM outbox
		WHERE ? = '' OR student_id = ?
		GROUP BY state, permanent
	`, studentID, studentID)
	if err != nil {
		return OutboxCounts{}, model.NewStorageError("store.OutboxCounts", err)
	}
	defer rows.Close()

	var c OutboxCounts
	for rows.Next() {
		var (
			state     string
			permanent bool
			n         int
		)
		if err := rows.Scan(&state, &permanent, &n); err != nil {
			return OutboxCounts{}, model.NewStorageError("store.OutboxCounts", err)
		}
		switch model.OutboxState(state) {
		case model.OutboxPending:
			c.Pending += n
		case model.OutboxSyncing:
			c.Syncing += n
		case model.OutboxSynced:
			c.Synced += n
		case model.OutboxFailed:
			c.Failed += n
			if permanent {
				c.Permanent += n
			}
		}
	}
	if err := rows.Err(); err != nil {
		return OutboxCounts{}, model.NewStorageError("store.OutboxCounts", err)
	}
	return c, nil
}
