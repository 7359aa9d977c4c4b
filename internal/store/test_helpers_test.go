package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/shiksha/internal/model"
)

// baseTime is the fixed wall clock used across store tests.
var baseTime = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestProgress creates a progress record with minimal required fields.
func createTestProgress(id, studentID, entryID string, at time.Time) model.ProgressRecord {
	return model.ProgressRecord{
		ID:           id,
		StudentID:    studentID,
		EntryID:      entryID,
		Score:        80,
		TimeSpentSec: 120,
		XPEarned:     50,
		CompletedAt:  at,
	}
}

// createTestEntry creates a catalog entry with minimal required fields.
func createTestEntry(id, subject string, classLevel int, version int64) model.CatalogEntry {
	return model.CatalogEntry{
		ID:              id,
		Subject:         subject,
		ClassLevel:      classLevel,
		Difficulty:      model.DifficultyBeginner,
		BaseXPReward:    100,
		TimeEstimateSec: 300,
		Version:         version,
	}
}

// mustRecord records a completion and fails the test on error.
func mustRecord(t *testing.T, s *Store, rec model.ProgressRecord) {
	t.Helper()
	if _, err := s.RecordCompletion(context.Background(), rec, rec.CompletedAt); err != nil {
		t.Fatalf("RecordCompletion(%s) failed: %v", rec.ID, err)
	}
}
