// Package lock serializes work on one key (an appointment id) across
// requests and, with Redis, across server instances.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNotObtained is returned when another holder owns the key.
var ErrNotObtained = errors.New("lock: not obtained")

type Lock interface {
	Release(ctx context.Context) error
}

type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (Lock, error)
}

// LocalLocker is an in-process Locker for single-instance deployments.
type LocalLocker struct {
	mu      sync.Mutex
	held    map[string]localHold
	nowFunc func() time.Time
	seq     uint64
}

type localHold struct {
	token   uint64
	expires time.Time
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]localHold), nowFunc: time.Now}
}

func (l *LocalLocker) Obtain(_ context.Context, key string, ttl time.Duration) (Lock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFunc()
	if h, ok := l.held[key]; ok && now.Before(h.expires) {
		return nil, ErrNotObtained
	}
	l.seq++
	l.held[key] = localHold{token: l.seq, expires: now.Add(ttl)}
	return &localLock{owner: l, key: key, token: l.seq}, nil
}

type localLock struct {
	owner *LocalLocker
	key   string
	token uint64
}

// Release is a no-op when the lock expired and was taken by someone else.
func (l *localLock) Release(context.Context) error {
	l.owner.mu.Lock()
	defer l.owner.mu.Unlock()
	if h, ok := l.owner.held[l.key]; ok && h.token == l.token {
		delete(l.owner.held, l.key)
	}
	return nil
}
