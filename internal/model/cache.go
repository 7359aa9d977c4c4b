package model

import "time"

// AssetRecord is a cached binary or text resource of a catalog entry.
// Retained assets belong to essential entries and are exempt from LRU eviction.
type AssetRecord struct {
	ID           string    `json:"id"`
	OwnerEntryID string    `json:"owner_entry_id"`
	Kind         string    `json:"kind"`
	SizeBytes    int64     `json:"size_bytes"`
	CachedAt     time.Time `json:"cached_at"`
	Retained     bool      `json:"retained"`
}

// CurriculumRecord is cached instructional content for a subject, class and topic.
// Stale records are replaced in place, keyed by ID.
type CurriculumRecord struct {
	ID         string    `json:"id"`
	Subject    string    `json:"subject"`
	ClassLevel int       `json:"class_level"`
	Topic      string    `json:"topic,omitempty"`
	Language   string    `json:"language,omitempty"`
	Version    int64     `json:"version"`
	FetchedAt  time.Time `json:"fetched_at"`
	Retained   bool      `json:"retained"`
	Content    Content   `json:"-"`
}

// SessionRecord is an in-progress, resumable play session.
type SessionRecord struct {
	ID        string    `json:"id"`
	StudentID string    `json:"student_id"`
	EntryID   string    `json:"entry_id"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
	IsActive  bool      `json:"is_active"`
	GameState GameState `json:"-"`
}
