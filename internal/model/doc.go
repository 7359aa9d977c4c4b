// Package model defines the persisted and exchanged records of the offline
// learning client: catalog entries, cached assets and curriculum, progress
// records, outbox items and play sessions.
//
// This package contains type definitions, the error taxonomy shared by all
// components, and canonical JSON helpers. All other internal packages import
// model; model imports nothing internal.
//
// Key design constraints:
//   - ProgressRecord is append-only, corrections are new records
//   - Derived quantities (level, XP totals, mastery, unlocks) never appear here
//   - All JSON tags use snake_case
//   - Content-addressed IDs use canonical JSON and SHA-256 with domain separation
package model
