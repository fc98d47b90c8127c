package lock

import "context"

// Locker serializes work on a named resource. Swapping the memory
// implementation for the Redis one extends the guarantee across processes.
type Locker interface {
	// Lock blocks until name is held or ctx is done. The returned func
	// releases the lock and is safe to call more than once.
	Lock(ctx context.Context, name string) (unlock func(), err error)

	// Close releases resources held by the locker.
	Close() error
}

// LockError is returned when a lock cannot be acquired.
type LockError string

func (e LockError) Error() string { return string(e) }

const (
	// ErrNotAcquired indicates ctx ended before the lock was obtained.
	ErrNotAcquired LockError = "lock not acquired"
)
