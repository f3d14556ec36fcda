package lock

import (
	"context"
	"sync"
	"time"
)

// memoryLocker implementa Locker in-process. Útil para desarrollo y testing;
// en deployments multi-host debe usarse el backend Redis.
type memoryLocker struct {
	mu    sync.Mutex
	held  map[string]time.Time // key → expiración
	clock func() time.Time
}

// NewMemory crea un Locker en memoria.
func NewMemory() Locker {
	return &memoryLocker{
		held:  make(map[string]time.Time),
		clock: time.Now,
	}
}

func (l *memoryLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Release, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	if exp, ok := l.held[key]; ok && exp.After(now) {
		return nil, ErrContended
	}
	l.held[key] = now.Add(ttl)

	released := false
	return func(ctx context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if released {
			return nil
		}
		released = true
		delete(l.held, key)
		return nil
	}, nil
}
