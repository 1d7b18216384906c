package dailyentry

import (
	"context"
	"sync"
	"time"
)

// Locker grants exclusive, expiring ownership of a submission key.
type Locker interface {
	// TryLock returns ok=false without blocking when the key is held.
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

// LocalLocker is a process-local Locker.
type LocalLocker struct {
	mu    sync.Mutex
	held  map[string]uint64
	next  uint64
	until map[string]time.Time
	now   func() time.Time
}

// NewLocalLocker returns an empty LocalLocker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{
		held:  make(map[string]uint64),
		until: make(map[string]time.Time),
		now:   time.Now,
	}
}

// TryLock implements Locker. An expired hold is taken over; its late release
// is ignored.
func (l *LocalLocker) TryLock(_ context.Context, key string, ttl time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if _, taken := l.held[key]; taken && now.Before(l.until[key]) {
		return nil, false, nil
	}

	l.next++
	token := l.next
	l.held[key] = token
	l.until[key] = now.Add(ttl)

	var once sync.Once
	release := func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if l.held[key] == token {
				delete(l.held, key)
				delete(l.until, key)
			}
		})
	}
	return release, true, nil
}
