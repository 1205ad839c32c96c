// Package lock serializes mutations of one publication entity: at most one
// publish or cancel per entity is in flight at a time.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrLockNotAcquired is returned when another holder has the lock.
	ErrLockNotAcquired = errors.New("lock not acquired")
	// ErrLockNotHeld is returned when releasing a lock that expired or was
	// taken over.
	ErrLockNotHeld = errors.New("lock not held")
)

// Lease is a held lock.
type Lease interface {
	Release(ctx context.Context) error
}

// Locker hands out leases on keys. Acquire never waits: it fails with
// ErrLockNotAcquired when the key is held.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

// WithLock runs fn while holding key.
func WithLock(ctx context.Context, l Locker, key string, ttl time.Duration, fn func(ctx context.Context) error) error {
	lease, err := l.Acquire(ctx, key, ttl)
	if err != nil {
		return err
	}
	defer lease.Release(context.WithoutCancel(ctx)) //nolint:errcheck

	return fn(ctx)
}

// Local is an in-process Locker for single-instance deployments and tests.
type Local struct {
	mu    sync.Mutex
	held  map[string]localHold
	now   func() time.Time
	token uint64
}

type localHold struct {
	token    uint64
	deadline time.Time
}

// NewLocal creates an in-process Locker.
func NewLocal() *Local {
	return &Local{held: make(map[string]localHold), now: time.Now}
}

func (l *Local) Acquire(_ context.Context, key string, ttl time.Duration) (Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if h, ok := l.held[key]; ok && now.Before(h.deadline) {
		return nil, ErrLockNotAcquired
	}
	l.token++
	l.held[key] = localHold{token: l.token, deadline: now.Add(ttl)}
	return &localLease{locker: l, key: key, token: l.token}, nil
}

type localLease struct {
	locker *Local
	key    string
	token  uint64
}

func (ll *localLease) Release(context.Context) error {
	l := ll.locker
	l.mu.Lock()
	defer l.mu.Unlock()

	h, ok := l.held[ll.key]
	if !ok || h.token != ll.token {
		return ErrLockNotHeld
	}
	delete(l.held, ll.key)
	return nil
}
