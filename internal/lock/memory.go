package lock

import (
	"context"
	"sync"
)

// MemoryLocker is an in-process Locker backed by one buffered channel per name.
type MemoryLocker struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

// NewMemoryLocker creates an in-process locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{slots: make(map[string]chan struct{})}
}

func (l *MemoryLocker) slot(name string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.slots[name]
	if !ok {
		s = make(chan struct{}, 1)
		l.slots[name] = s
	}
	return s
}

// Lock acquires name, waiting until ctx is done.
func (l *MemoryLocker) Lock(ctx context.Context, name string) (func(), error) {
	s := l.slot(name)
	select {
	case s <- struct{}{}:
	case <-ctx.Done():
		return nil, ErrNotAcquired
	}

	var once sync.Once
	return func() {
		once.Do(func() { <-s })
	}, nil
}

// Close is a no-op for the memory locker.
func (l *MemoryLocker) Close() error {
	return nil
}

var _ Locker = (*MemoryLocker)(nil)
