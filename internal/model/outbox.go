package model

import (
	"encoding/json"
	"time"
)

// OutboxState is the sync state of an outbox item.
type OutboxState string

const (
	OutboxPending OutboxState = "pending"
	OutboxSyncing OutboxState = "syncing"
	OutboxSynced  OutboxState = "synced"
	OutboxFailed  OutboxState = "failed"
)

// OutboxKind identifies the payload an outbox item carries.
type OutboxKind string

const (
	OutboxProgress    OutboxKind = "progress"
	OutboxAchievement OutboxKind = "achievement"
)

// OutboxKinds lists the kinds in drain order.
var OutboxKinds = []OutboxKind{OutboxProgress, OutboxAchievement}

// OutboxItem is a pending or in-flight mutation destined for the remote.
//
// State machine:
//
//	pending --drain--> syncing --ack--> synced (terminal, prunable)
//	                   syncing --failure--> failed --backoff elapsed--> pending
//
// failed -> pending is the only regression. Permanent failures never regress
// on their own; they wait for an explicit operator retry.
type OutboxItem struct {
	Seq         int64           `json:"seq"`
	ID          string          `json:"id"`
	Kind        OutboxKind      `json:"kind"`
	PayloadRef  string          `json:"payload_ref"`
	StudentID   string          `json:"student_id"`
	Payload     json.RawMessage `json:"payload"`
	PayloadHash string          `json:"payload_hash"`
	State       OutboxState     `json:"state"`
	Attempts    int             `json:"attempts"`
	Permanent   bool            `json:"permanent"`
	NextRetryAt time.Time       `json:"next_retry_at"`
	LastError   string          `json:"last_error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// CanTransition reports whether the outbox state machine allows from -> to.
func CanTransition(from, to OutboxState) bool {
	switch from {
	case OutboxPending:
		return to == OutboxSyncing
	case OutboxSyncing:
		return to == OutboxSynced || to == OutboxFailed
	case OutboxFailed:
		return to == OutboxPending
	}
	return false
}
