// Package cache keeps catalog assets and curriculum on the device within a
// storage budget.
//
// Content of priority subjects is pinned: it is written with the retained
// flag and only an explicit Reset removes it. Everything else is evicted
// oldest first once usage crosses the eviction threshold.
package cache

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/roach88/shiksha/internal/model"
	"github.com/roach88/shiksha/internal/remote"
	"github.com/roach88/shiksha/internal/store"
)

const (
	DefaultMaxBytes    int64 = 100 << 20
	DefaultEvictRatio        = 0.8
	DefaultConcurrency       = 4
)

// Source is the part of the remote adapter the cache pulls from.
type Source interface {
	FetchCatalogManifest(ctx context.Context, subjects []string) ([]remote.ManifestEntry, error)
	FetchCatalogEntries(ctx context.Context, ids []string) ([]model.CatalogEntry, error)
	FetchCurriculum(ctx context.Context, subject string, classLevel int, topic string) (model.CurriculumRecord, error)
	FetchAsset(ctx context.Context, assetID string) ([]byte, error)
}

// QuotaSource reports the host storage quota. connectivity.Port satisfies it.
type QuotaSource interface {
	Quota(ctx context.Context) (used, limit int64, err error)
}

// Manager enforces the cache budget over the store's asset and curriculum
// tables.
type Manager struct {
	store       *store.Store
	src         Source
	quota       QuotaSource
	maxBytes    int64
	evictRatio  float64
	priority    []string
	pinned      map[string]bool
	concurrency int
	logger      *slog.Logger
	now         func() time.Time

	// writeMu serializes admission and write so the usage a write was
	// admitted against is the usage it lands on.
	writeMu sync.Mutex
}

// Option configures a Manager.
type Option func(*Manager)

// WithQuotaSource caps the budget by the host-reported limit.
func WithQuotaSource(q QuotaSource) Option {
	return func(m *Manager) { m.quota = q }
}

// WithMaxBytes sets the configured budget.
func WithMaxBytes(n int64) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxBytes = n
		}
	}
}

// WithEvictRatio sets the fraction of the budget above which eviction runs.
func WithEvictRatio(r float64) Option {
	return func(m *Manager) {
		if r > 0 && r <= 1 {
			m.evictRatio = r
		}
	}
}

// WithPrioritySubjects sets the subjects whose content is pinned and
// refreshed by default.
func WithPrioritySubjects(subjects ...string) Option {
	return func(m *Manager) {
		m.priority = nil
		m.pinned = make(map[string]bool, len(subjects))
		for _, s := range subjects {
			key := model.NormalizeSubject(s)
			if key == "" || m.pinned[key] {
				continue
			}
			m.pinned[key] = true
			m.priority = append(m.priority, key)
		}
		sort.Strings(m.priority)
	}
}

// WithConcurrency bounds parallel asset downloads.
func WithConcurrency(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.concurrency = n
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithNow sets the clock used for cachedAt stamps.
func WithNow(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// New creates a manager. src may be nil when the cache is only written locally.
func New(s *store.Store, src Source, opts ...Option) *Manager {
	m := &Manager{
		store:       s,
		src:         src,
		maxBytes:    DefaultMaxBytes,
		evictRatio:  DefaultEvictRatio,
		priority:    []string{},
		pinned:      map[string]bool{},
		concurrency: DefaultConcurrency,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Pinned reports whether content of subject is exempt from eviction.
func (m *Manager) Pinned(subject string) bool {
	return m.pinned[model.NormalizeSubject(subject)]
}

// PrioritySubjects returns the pinned subject keys, sorted.
func (m *Manager) PrioritySubjects() []string {
	out := make([]string, len(m.priority))
	copy(out, m.priority)
	return out
}

// Limit returns the effective budget: the configured maximum, lowered to the
// host limit when the host reports one. A failing quota query is logged and
// the configured maximum used.
func (m *Manager) Limit(ctx context.Context) int64 {
	limit := m.maxBytes
	if m.quota == nil {
		return limit
	}
	_, host, err := m.quota.Quota(ctx)
	if err != nil {
		m.logger.Warn("storage quota unavailable",
			"event", "quota_unavailable",
			"error", err,
		)
		return limit
	}
	if host > 0 && host < limit {
		limit = host
	}
	return limit
}

// threshold is the usage above which eviction runs.
func (m *Manager) threshold(limit int64) int64 {
	return int64(float64(limit) * m.evictRatio)
}

// Stats describes cache occupancy.
type Stats struct {
	UsedBytes         int64 `json:"used_bytes"`
	LimitBytes        int64 `json:"limit_bytes"`
	ThresholdBytes    int64 `json:"threshold_bytes"`
	Assets            int   `json:"assets"`
	AssetBytes        int64 `json:"asset_bytes"`
	RetainedAssets    int   `json:"retained_assets"`
	Curriculum        int   `json:"curriculum"`
	CurriculumBytes   int64 `json:"curriculum_bytes"`
	IncompleteEntries int   `json:"incomplete_entries"`
}

// Stats reports usage against the current budget.
func (m *Manager) Stats(ctx context.Context) (Stats, error) {
	st, err := m.store.Stats(ctx)
	if err != nil {
		return Stats{}, err
	}
	limit := m.Limit(ctx)
	return Stats{
		UsedBytes:         st.CacheBytes(),
		LimitBytes:        limit,
		ThresholdBytes:    m.threshold(limit),
		Assets:            st.Assets,
		AssetBytes:        st.AssetBytes,
		RetainedAssets:    st.RetainedAssets,
		Curriculum:        st.Curriculum,
		CurriculumBytes:   st.CurriculumBytes,
		IncompleteEntries: st.IncompleteEntries,
	}, nil
}

// Reset drops all cached content, pinned included.
func (m *Manager) Reset(ctx context.Context) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if err := m.store.ResetCache(ctx); err != nil {
		return err
	}
	m.logger.Info("cache reset", "event", "cache_reset")
	return nil
}
