package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/shiksha/internal/model"
)

const progressColumns = `id, student_id, entry_id, score, time_spent_sec, hints_used, mistakes, xp_earned, completed_at`

// RecordCompletion appends a progress record and its outbox item in one
// transaction. Either both persist or neither does.
//
// Recording the same record id again is a no-op and returns inserted=false.
// createdAt stamps the outbox item.
func (s *Store) RecordCompletion(ctx context.Context, rec model.ProgressRecord, createdAt time.Time) (inserted bool, err error) {
	if err := checkProgress(rec); err != nil {
		return false, fmt.Errorf("record completion: %w", err)
	}
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		inserted, err = recordCompletionTx(ctx, tx, rec, createdAt)
		return err
	})
	if err != nil {
		return false, model.NewStorageError("store.RecordCompletion", err)
	}
	return inserted, nil
}

// checkProgress rejects records that could not have come from a completion.
func checkProgress(rec model.ProgressRecord) error {
	if rec.ID == "" || rec.StudentID == "" || rec.EntryID == "" {
		return fmt.Errorf("id, student_id and entry_id are required")
	}
	if rec.Score < 0 || rec.Score > 100 {
		return fmt.Errorf("progress %s: score %d out of range [0,100]", rec.ID, rec.Score)
	}
	return nil
}

func recordCompletionTx(ctx context.Context, tx *sql.Tx, rec model.ProgressRecord, createdAt time.Time) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO progress (`+progressColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		rec.ID, rec.StudentID, rec.EntryID, rec.Score, rec.TimeSpentSec,
		rec.HintsUsed, rec.Mistakes, rec.XPEarned, toMillis(rec.CompletedAt),
	)
	if err != nil {
		return false, fmt.Errorf("insert progress: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, nil
	}
	// Round-trip through millis so the payload matches what reads return.
	rec.CompletedAt = fromMillis(toMillis(rec.CompletedAt))
	if err := enqueueTx(ctx, tx, model.OutboxProgress, rec.ID, rec.StudentID, rec, createdAt); err != nil {
		return false, err
	}
	return true, nil
}

// RecordAchievement stores an unlock event and its outbox item atomically.
// An achievement unlocks once per student; repeats return inserted=false.
func (s *Store) RecordAchievement(ctx context.Context, ev model.AchievementEvent, createdAt time.Time) (inserted bool, err error) {
	if ev.StudentID == "" || ev.AchievementID == "" {
		return false, fmt.Errorf("record achievement: student_id and achievement_id are required")
	}
	if ev.ID == "" {
		ev.ID = model.AchievementEventID(ev.StudentID, ev.AchievementID)
	}
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		inserted, err = recordAchievementTx(ctx, tx, ev, createdAt)
		return err
	})
	if err != nil {
		return false, model.NewStorageError("store.RecordAchievement", err)
	}
	return inserted, nil
}

func recordAchievementTx(ctx context.Context, tx *sql.Tx, ev model.AchievementEvent, createdAt time.Time) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO achievements (id, student_id, achievement_id, xp_reward, unlocked_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`, ev.ID, ev.StudentID, ev.AchievementID, ev.XPReward, toMillis(ev.UnlockedAt))
	if err != nil {
		return false, fmt.Errorf("insert achievement: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, nil
	}
	ev.UnlockedAt = fromMillis(toMillis(ev.UnlockedAt))
	if err := enqueueTx(ctx, tx, model.OutboxAchievement, ev.ID, ev.StudentID, ev, createdAt); err != nil {
		return false, err
	}
	return true, nil
}

// enqueueTx inserts the pending outbox item that carries payload.
func enqueueTx(ctx context.Context, tx *sql.Tx, kind model.OutboxKind, ref, studentID string, payload any, createdAt time.Time) error {
	body, err := model.MarshalCanonical(payload)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", kind, err)
	}
	hash, err := model.PayloadHash(payload)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", kind, err)
	}
	at := toMillis(createdAt)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO outbox
		(id, kind, payload_ref, student_id, payload, payload_hash, state, attempts, permanent, next_retry_at, last_error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, 0, 0, '', ?, ?)
	`, model.OutboxID(kind, ref), string(kind), ref, studentID, string(body), hash,
		string(model.OutboxPending), at, at)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", kind, err)
	}
	return nil
}

// Progress returns the record with the given id.
func (s *Store) Progress(ctx context.Context, id string) (model.ProgressRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+progressColumns+` FROM progress WHERE id = ?`, id)
	p, ok, err := getOne(row, scanProgress)
	if err != nil {
		return model.ProgressRecord{}, false, model.NewStorageError("store.Progress", err)
	}
	return p, ok, nil
}

// ProgressByStudent returns a student's history, oldest first.
func (s *Store) ProgressByStudent(ctx context.Context, studentID string) ([]model.ProgressRecord, error) {
	return s.queryProgress(ctx, "store.ProgressByStudent", `
		SELECT `+progressColumns+` FROM progress
		WHERE student_id = ?
		ORDER BY completed_at ASC, id COLLATE BINARY ASC
	`, studentID)
}

// ProgressByStudentEntry returns a student's attempts on one entry, oldest first.
func (s *Store) ProgressByStudentEntry(ctx context.Context, studentID, entryID string) ([]model.ProgressRecord, error) {
	return s.queryProgress(ctx, "store.ProgressByStudentEntry", `
		SELECT `+progressColumns+` FROM progress
		WHERE student_id = ? AND entry_id = ?
		ORDER BY completed_at ASC, id COLLATE BINARY ASC
	`, studentID, entryID)
}

// ProgressBySubject returns a student's history on entries of one subject.
// classLevel 0 matches any class. Records whose entry is not cached are omitted.
func (s *Store) ProgressBySubject(ctx context.Context, studentID, subject string, classLevel int) ([]model.ProgressRecord, error) {
	return s.queryProgress(ctx, "store.ProgressBySubject", `
		SELECT p.id, p.student_id, p.entry_id, p.score, p.time_spent_sec, p.hints_used,
			p.mistakes, p.xp_earned, p.completed_at
		FROM progress p
		JOIN catalog c ON c.id = p.entry_id
		WHERE p.student_id = ? AND c.subject_key = ? AND (? = 0 OR c.class_level = ?)
		ORDER BY p.completed_at ASC, p.id COLLATE BINARY ASC
	`, studentID, model.NormalizeSubject(subject), classLevel, classLevel)
}

func (s *Store) queryProgress(ctx context.Context, op, query string, args ...any) ([]model.ProgressRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, model.NewStorageError(op, err)
	}
	out, err := collect(rows, scanProgress)
	if err != nil {
		return nil, model.NewStorageError(op, err)
	}
	return out, nil
}

// AchievementsByStudent returns a student's unlocks ordered by time then id.
func (s *Store) AchievementsByStudent(ctx context.Context, studentID string) ([]model.AchievementEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, student_id, achievement_id, xp_reward, unlocked_at
		FROM achievements
		WHERE student_id = ?
		ORDER BY unlocked_at ASC, achievement_id COLLATE BINARY ASC
	`, studentID)
	if err != nil {
		return nil, model.NewStorageError("store.AchievementsByStudent", err)
	}
	out, err := collect(rows, scanAchievement)
	if err != nil {
		return nil, model.NewStorageError("store.AchievementsByStudent", err)
	}
	return out, nil
}

// Students returns every student id with local history, sorted.
func (s *Store) Students(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT student_id FROM progress
		ORDER BY student_id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, model.NewStorageError("store.Students", err)
	}
	out, err := collect(rows, func(r rowScanner) (string, error) {
		var id string
		err := r.Scan(&id)
		return id, err
	})
	if err != nil {
		return nil, model.NewStorageError("store.Students", err)
	}
	return out, nil
}
