package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/shiksha/internal/model"
)

// StartSession opens a play session. Any other active session of the same
// student on the same entry is closed at StartedAt, so at most one is
// resumable per (student, entry).
func (s *Store) StartSession(ctx context.Context, rec model.SessionRecord) error {
	if rec.ID == "" || rec.StudentID == "" || rec.EntryID == "" {
		return fmt.Errorf("start session: id, student_id and entry_id are required")
	}
	state, err := model.EncodeGameState(rec.GameState)
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	started := toMillis(rec.StartedAt)
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			UPDATE sessions SET is_active = 0, ended_at = ?, updated_at = ?
			WHERE student_id = ? AND entry_id = ? AND is_active = 1 AND id <> ?
		`, started, started, rec.StudentID, rec.EntryID, rec.ID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sessions (id, student_id, entry_id, started_at, ended_at, is_active, game_state, updated_at)
			VALUES (?, ?, ?, ?, 0, 1, ?, ?)
			ON CONFLICT(id) DO NOTHING
		`, rec.ID, rec.StudentID, rec.EntryID, started, state, started)
		return err
	})
	if err != nil {
		return model.NewStorageError("store.StartSession", err)
	}
	return nil
}

// SaveSessionState replaces the game state of an active session.
// Returns saved=false if the session is missing or already ended.
func (s *Store) SaveSessionState(ctx context.Context, id string, state model.GameState, now time.Time) (saved bool, err error) {
	blob, err := model.EncodeGameState(state)
	if err != nil {
		return false, fmt.Errorf("save session state: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET game_state = ?, updated_at = ?
		WHERE id = ? AND is_active = 1
	`, blob, toMillis(now), id)
	if err != nil {
		return false, model.NewStorageError("store.SaveSessionState", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Session returns the session with the given id.
func (s *Store) Session(ctx context.Context, id string) (model.SessionRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	rec, ok, err := getOne(row, scanSession)
	if err != nil {
		return model.SessionRecord{}, false, model.NewStorageError("store.Session", err)
	}
	return rec, ok, nil
}

// ActiveSession returns the most recently started active session of a
// student, restricted to one entry when entryID is set.
func (s *Store) ActiveSession(ctx context.Context, studentID, entryID string) (model.SessionRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE student_id = ? AND is_active = 1 AND (? = '' OR entry_id = ?)
		ORDER BY started_at DESC, id COLLATE BINARY DESC
		LIMIT 1
	`, studentID, entryID, entryID)
	rec, ok, err := getOne(row, scanSession)
	if err != nil {
		return model.SessionRecord{}, false, model.NewStorageError("store.ActiveSession", err)
	}
	return rec, ok, nil
}

// EndSession closes a session on completion or abandonment.
// Ending an already-closed or missing session returns ended=false.
func (s *Store) EndSession(ctx context.Context, id string, at time.Time) (ended bool, err error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET is_active = 0, ended_at = ?, updated_at = ?
		WHERE id = ? AND is_active = 1
	`, toMillis(at), toMillis(at), id)
	if err != nil {
		return false, model.NewStorageError("store.EndSession", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ClearOldSessions deletes sessions started before the cutoff, active or not.
func (s *Store) ClearOldSessions(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE started_at < ?`, toMillis(before))
	if err != nil {
		return 0, model.NewStorageError("store.ClearOldSessions", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
