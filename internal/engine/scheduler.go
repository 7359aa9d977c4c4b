package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	rcron "github.com/robfig/cron/v3"

	"github.com/roach88/shiksha/internal/cache"
	"github.com/roach88/shiksha/internal/connectivity"
	"github.com/roach88/shiksha/internal/model"
	"github.com/roach88/shiksha/internal/remote"
	"github.com/roach88/shiksha/internal/store"
)

// Scheduler drains the outbox against the remote and refreshes the cache.
//
// Triggers (timer, offline to online, explicit) land in a signal channel with
// a buffer of one, so any number of triggers during a pass collapse into a
// single follow-up pass.
//
// Thread-safety: Trigger, RunPass and Status are safe from any goroutine.
// Run must be called from at most one goroutine.
type Scheduler struct {
	store  *store.Store
	remote remote.Adapter
	port   connectivity.Port
	cache  *cache.Manager
	now    func() time.Time
	logger *slog.Logger

	interval    time.Duration
	grace       time.Duration
	retention   time.Duration
	sessionTTL  time.Duration
	maxAttempts int
	batchSize   int

	signal chan struct{} // buffered, size 1

	passMu sync.Mutex  // held for the whole pass
	again  atomic.Bool // a pass was requested while one was running

	beforeUnlock func() // test hook, runs with passMu held after the last pass

	unsubscribe func()

	mu         sync.Mutex
	passCancel context.CancelFunc
	running    bool
	lastPassAt time.Time
	lastSyncAt time.Time
	lastErrors []string
}

func newScheduler(s *store.Store, r remote.Adapter, port connectivity.Port, c *cache.Manager, cfg settings) *Scheduler {
	sched := &Scheduler{
		store:       s,
		remote:      r,
		port:        port,
		cache:       c,
		now:         cfg.now,
		logger:      cfg.logger,
		interval:    cfg.interval,
		grace:       cfg.grace,
		retention:   cfg.retention,
		sessionTTL:  cfg.sessionTTL,
		maxAttempts: cfg.maxAttempts,
		batchSize:   cfg.batchSize,
		signal:      make(chan struct{}, 1),
	}
	sched.unsubscribe = port.Subscribe(sched.connectivityChanged)
	return sched
}

// connectivityChanged cancels a running pass when the device goes offline
// and requests one when it comes back.
func (s *Scheduler) connectivityChanged(online bool) {
	if online {
		s.logger.Info("connectivity restored", "event", "sync_online")
		s.Trigger()
		return
	}
	s.logger.Info("connectivity lost", "event", "sync_offline")
	s.cancelPass()
}

// Close detaches the scheduler from the connectivity port.
func (s *Scheduler) Close() {
	s.unsubscribe()
}

// PassResult summarizes one sync pass.
type PassResult struct {
	// Coalesced is true when the call found a pass running and folded its
	// request into that pass's follow-up instead of running its own.
	Coalesced bool `json:"coalesced"`

	// Offline is true when the pass was skipped for lack of connectivity.
	Offline bool `json:"offline"`

	// Aborted is true when connectivity dropped mid-pass.
	Aborted bool `json:"aborted"`

	Reset     int64 `json:"reset"`
	Released  int64 `json:"released"`
	Synced    int   `json:"synced"`
	Failed    int   `json:"failed"`
	Permanent int   `json:"permanent"`
	Pruned    int64 `json:"pruned"`

	// SessionsCleared counts game sessions older than the session retention.
	SessionsCleared int64 `json:"sessions_cleared"`

	Refresh *cache.RefreshResult `json:"refresh,omitempty"`
}

// Trigger requests a pass from the Run loop without blocking.
func (s *Scheduler) Trigger() {
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// Run drives passes until ctx is cancelled. It starts the timer trigger and
// runs an initial pass.
func (s *Scheduler) Run(ctx context.Context) error {
	c := rcron.New()
	if _, err := c.AddFunc("@every "+s.interval.String(), s.Trigger); err != nil {
		return fmt.Errorf("schedule sync timer: %w", err)
	}
	c.Start()
	defer c.Stop()

	s.logger.Info("scheduler started", "event", "scheduler_start", "interval", s.interval.String())
	s.Trigger()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped", "event", "scheduler_stop")
			return ctx.Err()
		case <-s.signal:
			if _, err := s.RunPass(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("sync pass failed", "event", "sync_pass_error", "error", err)
			}
		}
	}
}

// RunPass runs a pass now. If one is already running, the request is folded
// into a single follow-up pass run by the current pass's owner, and the call
// returns immediately with Coalesced set.
func (s *Scheduler) RunPass(ctx context.Context) (PassResult, error) {
	if !s.passMu.TryLock() {
		s.again.Store(true)
		return PassResult{Coalesced: true}, nil
	}
	for {
		res, err := s.passes(ctx)
		if s.beforeUnlock != nil {
			s.beforeUnlock()
		}
		s.passMu.Unlock()

		// A request that failed TryLock after the last check still needs its
		// pass. If the lock is taken again, that owner serves it.
		if err != nil || ctx.Err() != nil || !s.again.Load() || !s.passMu.TryLock() {
			return res, err
		}
	}
}

// passes runs passes until no follow-up was requested. Caller holds passMu.
func (s *Scheduler) passes(ctx context.Context) (PassResult, error) {
	for {
		s.again.Store(false)
		res, err := s.pass(ctx)
		if err != nil || !s.again.Load() || ctx.Err() != nil {
			return res, err
		}
	}
}

func (s *Scheduler) pass(ctx context.Context) (PassResult, error) {
	var res PassResult
	start := s.now()

	// Session cleanup is local and runs offline too.
	if s.sessionTTL > 0 {
		n, err := s.store.ClearOldSessions(ctx, start.Add(-s.sessionTTL))
		if err != nil {
			s.finish(start, res, []string{err.Error()})
			return res, err
		}
		res.SessionsCleared = n
	}

	if !s.port.Online() {
		res.Offline = true
		s.finish(start, res, nil)
		return res, nil
	}

	passCtx, cancel := context.WithCancel(ctx)
	s.beginPass(cancel)
	defer cancel()
	if !s.port.Online() {
		// Dropped between the check and beginPass; the callback found nothing to cancel.
		cancel()
	}

	errs, err := s.drainOutbox(ctx, passCtx, start, &res)
	if err != nil {
		s.finish(start, res, append(errs, err.Error()))
		return res, err
	}

	if !res.Aborted && s.cache != nil && len(s.cache.PrioritySubjects()) > 0 {
		refresh, err := s.cache.Refresh(passCtx, nil)
		switch {
		case passCtx.Err() != nil:
			res.Aborted = true
		case err != nil && !errors.Is(err, cache.ErrNoSource):
			s.logger.Warn("cache refresh failed", "event", "sync_refresh_error", "error", err)
			errs = append(errs, "refresh: "+err.Error())
		case err == nil:
			res.Refresh = &refresh
		}
	}

	s.finish(start, res, errs)
	s.logger.Info("sync pass complete",
		"event", "sync_pass",
		"synced", res.Synced,
		"failed", res.Failed,
		"permanent", res.Permanent,
		"reset", res.Reset,
		"released", res.Released,
		"pruned", res.Pruned,
		"sessions_cleared", res.SessionsCleared,
		"aborted", res.Aborted,
	)
	return res, nil
}

// drainOutbox runs the outbox half of a pass. Store writes use ctx so an
// acknowledgment received just before connectivity dropped is still
// recorded; uploads use passCtx so a drop cancels them.
func (s *Scheduler) drainOutbox(ctx, passCtx context.Context, start time.Time, res *PassResult) ([]string, error) {
	var errs []string
	var err error

	if res.Reset, err = s.store.ResetStuck(ctx, start.Add(-s.grace), start); err != nil {
		return errs, err
	}
	if res.Reset > 0 {
		s.logger.Warn("stuck outbox items reset", "event", "outbox_reset_stuck", "count", res.Reset)
	}
	if res.Released, err = s.store.ReleaseFailed(ctx, start); err != nil {
		return errs, err
	}

	if s.remote == nil {
		return errs, nil
	}

drain:
	for _, kind := range model.OutboxKinds {
		items, err := s.store.PendingOutbox(ctx, kind, s.batchSize)
		if err != nil {
			return errs, err
		}
		for _, item := range items {
			if passCtx.Err() != nil {
				res.Aborted = true
				break drain
			}
			msg, err := s.submit(ctx, passCtx, item, res)
			if err != nil {
				return errs, err
			}
			if msg != "" {
				errs = append(errs, msg)
			}
			if res.Aborted {
				break drain
			}
		}
	}

	if res.Aborted {
		s.logger.Info("sync pass aborted", "event", "sync_aborted")
		return errs, nil
	}

	if res.Pruned, err = s.store.PruneSynced(ctx, s.now().Add(-s.retention)); err != nil {
		return errs, err
	}
	return errs, nil
}

// submit uploads one item and records the outcome. It returns a message for
// the status error list when the item failed.
func (s *Scheduler) submit(ctx, passCtx context.Context, item model.OutboxItem, res *PassResult) (string, error) {
	if err := s.store.BeginSubmit(ctx, item.ID, s.now()); err != nil {
		if model.IsInvalidTransition(err) {
			// Claimed or retried concurrently; the next pass sees its new state.
			return "", nil
		}
		return "", err
	}
	item.State = model.OutboxSyncing
	item.Attempts++

	uploadErr := s.remote.UploadProgress(passCtx, item)
	now := s.now()
	switch {
	case uploadErr == nil:
		if err := s.store.MarkSynced(ctx, item.ID, now); err != nil {
			return "", err
		}
		res.Synced++
		return "", nil

	case passCtx.Err() != nil:
		// Outcome unknown. The item stays syncing and the grace timeout
		// resubmits it; the remote deduplicates by id.
		res.Aborted = true
		return "", nil

	case model.IsPermanent(uploadErr) || (s.maxAttempts > 0 && item.Attempts >= s.maxAttempts):
		reason := uploadErr.Error()
		if !model.IsPermanent(uploadErr) {
			reason = fmt.Sprintf("max attempts (%d) reached: %s", s.maxAttempts, reason)
		}
		if err := s.store.MarkFailed(ctx, item.ID, now, true, time.Time{}, reason); err != nil {
			return "", err
		}
		res.Permanent++
		s.logger.Warn("outbox item rejected",
			"event", "outbox_permanent",
			"item_id", item.ID,
			"kind", string(item.Kind),
			"attempts", item.Attempts,
			"error", reason,
		)
		return item.ID + ": " + reason, nil

	default:
		delay := Backoff(item.Attempts)
		if err := s.store.MarkFailed(ctx, item.ID, now, false, now.Add(delay), uploadErr.Error()); err != nil {
			return "", err
		}
		res.Failed++
		s.logger.Info("outbox item failed",
			"event", "outbox_retry_scheduled",
			"item_id", item.ID,
			"kind", string(item.Kind),
			"attempts", item.Attempts,
			"backoff", delay.String(),
			"error", uploadErr,
		)
		return item.ID + ": " + uploadErr.Error(), nil
	}
}

func (s *Scheduler) beginPass(cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = true
	s.passCancel = cancel
}

func (s *Scheduler) finish(start time.Time, res PassResult, errs []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.passCancel = nil
	s.lastPassAt = start
	if !res.Offline && !res.Aborted {
		s.lastSyncAt = start
	}
	if len(errs) > 0 {
		s.lastErrors = errs
	} else if !res.Offline {
		s.lastErrors = nil
	}
}

// cancelPass aborts the running pass, if any.
func (s *Scheduler) cancelPass() {
	s.mu.Lock()
	cancel := s.passCancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
