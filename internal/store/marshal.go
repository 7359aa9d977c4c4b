package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/shiksha/internal/model"
)

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// toMillis converts t to unix milliseconds. The zero time maps to 0.
func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// fromMillis is the inverse of toMillis. Times come back in UTC.
func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// marshalCatalogBody stores the remote representation of an entry.
// Local bookkeeping fields live in their own columns.
func marshalCatalogBody(e model.CatalogEntry) (string, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("marshal catalog entry: %w", err)
	}
	return string(data), nil
}

func scanCatalogEntry(row rowScanner) (model.CatalogEntry, error) {
	var (
		body      string
		essential bool
		complete  bool
		updatedAt int64
	)
	if err := row.Scan(&body, &essential, &complete, &updatedAt); err != nil {
		return model.CatalogEntry{}, err
	}
	var e model.CatalogEntry
	if err := json.Unmarshal([]byte(body), &e); err != nil {
		return model.CatalogEntry{}, fmt.Errorf("unmarshal catalog entry: %w", err)
	}
	e.Essential = essential
	e.AssetsComplete = complete
	e.UpdatedAt = fromMillis(updatedAt)
	return e, nil
}

func scanAsset(row rowScanner) (model.AssetRecord, error) {
	var a model.AssetRecord
	var cachedAt int64
	if err := row.Scan(&a.ID, &a.OwnerEntryID, &a.Kind, &a.SizeBytes, &cachedAt, &a.Retained); err != nil {
		return model.AssetRecord{}, err
	}
	a.CachedAt = fromMillis(cachedAt)
	return a, nil
}

func scanCurriculum(row rowScanner) (model.CurriculumRecord, error) {
	var (
		c         model.CurriculumRecord
		content   []byte
		fetchedAt int64
	)
	if err := row.Scan(&c.ID, &c.Subject, &c.ClassLevel, &c.Topic, &c.Language,
		&c.Version, &content, &fetchedAt, &c.Retained); err != nil {
		return model.CurriculumRecord{}, err
	}
	decoded, err := model.DecodeContent(content)
	if err != nil {
		return model.CurriculumRecord{}, err
	}
	c.Content = decoded
	c.FetchedAt = fromMillis(fetchedAt)
	return c, nil
}

func scanProgress(row rowScanner) (model.ProgressRecord, error) {
	var p model.ProgressRecord
	var completedAt int64
	if err := row.Scan(&p.ID, &p.StudentID, &p.EntryID, &p.Score, &p.TimeSpentSec,
		&p.HintsUsed, &p.Mistakes, &p.XPEarned, &completedAt); err != nil {
		return model.ProgressRecord{}, err
	}
	p.CompletedAt = fromMillis(completedAt)
	return p, nil
}

func scanAchievement(row rowScanner) (model.AchievementEvent, error) {
	var a model.AchievementEvent
	var unlockedAt int64
	if err := row.Scan(&a.ID, &a.StudentID, &a.AchievementID, &a.XPReward, &unlockedAt); err != nil {
		return model.AchievementEvent{}, err
	}
	a.UnlockedAt = fromMillis(unlockedAt)
	return a, nil
}

const outboxColumns = `seq, id, kind, payload_ref, student_id, payload, payload_hash,
	state, attempts, permanent, next_retry_at, last_error, created_at, updated_at`

func scanOutboxItem(row rowScanner) (model.OutboxItem, error) {
	var (
		it                          model.OutboxItem
		kind, state, payload        string
		nextRetry, created, updated int64
	)
	if err := row.Scan(&it.Seq, &it.ID, &kind, &it.PayloadRef, &it.StudentID, &payload,
		&it.PayloadHash, &state, &it.Attempts, &it.Permanent, &nextRetry,
		&it.LastError, &created, &updated); err != nil {
		return model.OutboxItem{}, err
	}
	it.Kind = model.OutboxKind(kind)
	it.State = model.OutboxState(state)
	it.Payload = json.RawMessage(payload)
	it.NextRetryAt = fromMillis(nextRetry)
	it.CreatedAt = fromMillis(created)
	it.UpdatedAt = fromMillis(updated)
	return it, nil
}

const sessionColumns = `id, student_id, entry_id, started_at, ended_at, is_active, game_state`

func scanSession(row rowScanner) (model.SessionRecord, error) {
	var (
		s              model.SessionRecord
		started, ended int64
		state          []byte
	)
	if err := row.Scan(&s.ID, &s.StudentID, &s.EntryID, &started, &ended, &s.IsActive, &state); err != nil {
		return model.SessionRecord{}, err
	}
	gs, err := model.DecodeGameState(state)
	if err != nil {
		return model.SessionRecord{}, err
	}
	s.GameState = gs
	s.StartedAt = fromMillis(started)
	s.EndedAt = fromMillis(ended)
	return s, nil
}

// getOne runs a single-row query. A missing row is reported as found=false.
func getOne[T any](row *sql.Row, scan func(rowScanner) (T, error)) (T, bool, error) {
	v, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		var zero T
		return zero, false, nil
	}
	if err != nil {
		var zero T
		return zero, false, err
	}
	return v, true, nil
}

// collect drains rows into a non-nil slice.
func collect[T any](rows *sql.Rows, scan func(rowScanner) (T, error)) ([]T, error) {
	defer rows.Close()
	out := []T{}
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
