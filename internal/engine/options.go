package engine

import (
	"log/slog"
	"time"

	"github.com/roach88/shiksha/internal/cache"
	"github.com/roach88/shiksha/internal/progression"
)

const (
	// DefaultSyncInterval is the period of the timer trigger.
	DefaultSyncInterval = 30 * time.Second

	// DefaultGraceTimeout is how long an item may stay syncing before a pass
	// assumes its outcome was lost and resubmits it.
	DefaultGraceTimeout = 2 * time.Minute

	// DefaultRetention is how long synced items are kept before pruning.
	DefaultRetention = 24 * time.Hour

	// DefaultSessionRetention is how long a game session is kept after it
	// started.
	DefaultSessionRetention = 7 * 24 * time.Hour

	// DefaultBatchSize bounds the items read per kind per pass.
	DefaultBatchSize = 100
)

type settings struct {
	logger      *slog.Logger
	now         func() time.Time
	ids         IDGenerator
	rules       *progression.Rules
	location    *time.Location
	interval    time.Duration
	grace       time.Duration
	retention   time.Duration
	sessionTTL  time.Duration
	maxAttempts int
	batchSize   int
	cacheOpts   []cache.Option
}

func defaultSettings() settings {
	return settings{
		logger:     slog.Default(),
		now:        time.Now,
		ids:        UUIDv7Generator{},
		interval:   DefaultSyncInterval,
		grace:      DefaultGraceTimeout,
		retention:  DefaultRetention,
		sessionTTL: DefaultSessionRetention,
		batchSize:  DefaultBatchSize,
	}
}

// Option configures an Engine.
type Option func(*settings)

// WithLogger sets the logger used by the engine and everything it builds.
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithNow injects the wall clock.
func WithNow(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator sets the generator for progress record and session ids.
func WithIDGenerator(g IDGenerator) Option {
	return func(s *settings) {
		if g != nil {
			s.ids = g
		}
	}
}

// WithRules replaces the built-in unlock and achievement rules.
func WithRules(r *progression.Rules) Option {
	return func(s *settings) { s.rules = r }
}

// WithLocation sets the time zone that defines calendar days for streaks.
func WithLocation(loc *time.Location) Option {
	return func(s *settings) { s.location = loc }
}

// WithSyncInterval sets the timer trigger period.
//
// Default: 30s (DefaultSyncInterval)
func WithSyncInterval(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithGraceTimeout sets how long an item may stay syncing before it is reset.
//
// Default: 2m (DefaultGraceTimeout)
func WithGraceTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.grace = d
		}
	}
}

// WithRetention sets how long synced items are kept.
//
// Default: 24h (DefaultRetention)
func WithRetention(d time.Duration) Option {
	return func(s *settings) {
		if d >= 0 {
			s.retention = d
		}
	}
}

// WithSessionRetention sets how long game sessions are kept before a pass
// deletes them. 0 keeps them forever.
//
// Default: 168h (DefaultSessionRetention)
func WithSessionRetention(d time.Duration) Option {
	return func(s *settings) {
		if d >= 0 {
			s.sessionTTL = d
		}
	}
}

// WithMaxAttempts makes an item permanent after n failed submissions.
// 0 means retry forever.
func WithMaxAttempts(n int) Option {
	return func(s *settings) {
		if n >= 0 {
			s.maxAttempts = n
		}
	}
}

// WithBatchSize bounds the items drained per kind per pass.
func WithBatchSize(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithCacheOptions passes options through to the cache manager.
func WithCacheOptions(opts ...cache.Option) Option {
	return func(s *settings) { s.cacheOpts = append(s.cacheOpts, opts...) }
}
