package lock

import (
	"context"
	"errors"
	"hash/fnv"
)

// ErrLockTimeout is returned when a key could not be acquired before the
// context was done.
var ErrLockTimeout = errors.New("lock: timed out waiting for key")

// KeyLocker serialises work on a string key. The returned unlock func must be
// called exactly once.
type KeyLocker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

const stripes = 64

// MemoryLocker is an in-process KeyLocker. Keys are hashed onto a fixed set
// of stripes, so two different keys may occasionally share a stripe.
type MemoryLocker struct {
	slots [stripes]chan struct{}
}

func NewMemoryLocker() *MemoryLocker {
	l := &MemoryLocker{}
	for i := range l.slots {
		l.slots[i] = make(chan struct{}, 1)
	}
	return l
}

func (l *MemoryLocker) Lock(ctx context.Context, key string) (func(), error) {
	h := fnv.New32a()
	h.Write([]byte(key))
	slot := l.slots[h.Sum32()%stripes]

	select {
	case slot <- struct{}{}:
		return func() { <-slot }, nil
	case <-ctx.Done():
		return nil, errors.Join(ErrLockTimeout, ctx.Err())
	}
}
