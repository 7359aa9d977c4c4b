package engine

import (
	"context"
	"slices"
	"time"

	"github.com/roach88/shiksha/internal/store"
)

// Status is the observable state of synchronization.
type Status struct {
	Online     bool               `json:"online"`
	Syncing    bool               `json:"syncing"`
	LastPassAt time.Time          `json:"last_pass_at"`
	LastSyncAt time.Time          `json:"last_sync_at"`
	Outbox     store.OutboxCounts `json:"outbox"`
	LastErrors []string           `json:"last_errors"`
}

// Status reports connectivity, whether a pass is running, the last pass
// times, the last pass's errors and outbox counts across all students.
func (s *Scheduler) Status(ctx context.Context) (Status, error) {
	counts, err := s.store.OutboxCounts(ctx, "")
	if err != nil {
		return Status{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	errs := slices.Clone(s.lastErrors)
	if errs == nil {
		errs = []string{}
	}
	return Status{
		Online:     s.port.Online(),
		Syncing:    s.running,
		LastPassAt: s.lastPassAt,
		LastSyncAt: s.lastSyncAt,
		Outbox:     counts,
		LastErrors: errs,
	}, nil
}
