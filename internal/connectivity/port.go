// Package connectivity supplies the host signals the sync engine depends on:
// online/offline transitions and the device storage quota.
package connectivity

import (
	"context"
	"sync"
)

// Port is the host environment boundary.
//
// Subscribe registers fn for transitions only; it is not called with the
// current state. The returned function removes the subscription and is safe
// to call more than once.
//
// Quota reports storage used and available to the app. A limit of 0 means
// the host does not report one.
type Port interface {
	Online() bool
	Subscribe(fn func(online bool)) (unsubscribe func())
	Quota(ctx context.Context) (used, limit int64, err error)
}

// notifier fans transitions out to subscribers in subscription order.
type notifier struct {
	mu     sync.Mutex
	online bool
	nextID int
	subs   []subscription
}

type subscription struct {
	id int
	fn func(bool)
}

func (n *notifier) Online() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.online
}

func (n *notifier) Subscribe(fn func(online bool)) func() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nextID++
	id := n.nextID
	n.subs = append(n.subs, subscription{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			for i, s := range n.subs {
				if s.id == id {
					n.subs = append(n.subs[:i:i], n.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// set records the state and notifies subscribers if it changed.
// Callbacks run outside the lock so they may call back into the port.
func (n *notifier) set(online bool) bool {
	n.mu.Lock()
	if n.online == online {
		n.mu.Unlock()
		return false
	}
	n.online = online
	subs := make([]subscription, len(n.subs))
	copy(subs, n.subs)
	n.mu.Unlock()

	for _, s := range subs {
		s.fn(online)
	}
	return true
}
