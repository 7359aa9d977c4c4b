package engine

import (
	"context"

	"github.com/roach88/shiksha/internal/model"
)

// StartSession opens a resumable play session on a cached entry. A previous
// active session of the student on the same entry is closed.
func (e *Engine) StartSession(ctx context.Context, studentID, entryID string) (model.SessionRecord, error) {
	if studentID == "" || entryID == "" {
		return model.SessionRecord{}, newInvalidInputError("student id and entry id are required")
	}
	if _, ok, err := e.store.CatalogEntry(ctx, entryID); err != nil {
		return model.SessionRecord{}, err
	} else if !ok {
		return model.SessionRecord{}, newUnknownEntryError(studentID, entryID)
	}

	rec := model.SessionRecord{
		ID:        e.ids.NewID(),
		StudentID: studentID,
		EntryID:   entryID,
		StartedAt: e.now(),
		IsActive:  true,
	}
	if err := e.store.StartSession(ctx, rec); err != nil {
		return model.SessionRecord{}, err
	}
	e.logger.Debug("session started", "event", "session_start", "session_id", rec.ID, "student_id", studentID, "entry_id", entryID)
	return rec, nil
}

// SaveSessionState replaces the game state of an active session.
func (e *Engine) SaveSessionState(ctx context.Context, sessionID string, state model.GameState) error {
	saved, err := e.store.SaveSessionState(ctx, sessionID, state, e.now())
	if err != nil {
		return err
	}
	if !saved {
		return newSessionNotFoundError(sessionID)
	}
	return nil
}

// ResumeSession returns the student's active session on entryID, if any.
// An empty entryID resumes the most recent active session on any entry.
func (e *Engine) ResumeSession(ctx context.Context, studentID, entryID string) (model.SessionRecord, bool, error) {
	return e.store.ActiveSession(ctx, studentID, entryID)
}

// EndSession closes a session. Ending an ended session is an error so the
// host notices a lost or doubled end event.
func (e *Engine) EndSession(ctx context.Context, sessionID string) error {
	ended, err := e.store.EndSession(ctx, sessionID, e.now())
	if err != nil {
		return err
	}
	if !ended {
		return newSessionNotFoundError(sessionID)
	}
	e.logger.Debug("session ended", "event", "session_end", "session_id", sessionID)
	return nil
}
