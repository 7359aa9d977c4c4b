package connectivity

import (
	"context"
	"sync"
)

// Manual is a Port driven by the host, or by tests.
type Manual struct {
	notifier

	qmu      sync.Mutex
	used     int64
	limit    int64
	quotaErr error
}

// NewManual creates a port in the given state.
func NewManual(online bool) *Manual {
	m := &Manual{}
	m.online = online
	return m
}

// SetOnline changes the state. Subscribers hear about transitions only.
// Returns true if the state changed.
func (m *Manual) SetOnline(online bool) bool {
	return m.set(online)
}

// SetQuota sets the values returned by Quota.
func (m *Manual) SetQuota(used, limit int64) {
	m.qmu.Lock()
	defer m.qmu.Unlock()
	m.used, m.limit, m.quotaErr = used, limit, nil
}

// FailQuota makes Quota return err until the next SetQuota.
func (m *Manual) FailQuota(err error) {
	m.qmu.Lock()
	defer m.qmu.Unlock()
	m.quotaErr = err
}

func (m *Manual) Quota(ctx context.Context) (int64, int64, error) {
	m.qmu.Lock()
	defer m.qmu.Unlock()
	if m.quotaErr != nil {
		return 0, 0, m.quotaErr
	}
	return m.used, m.limit, nil
}
