package memory

import (
	"context"
	"sync"

	"telegram-ai-consult/internal/domain/ports/repository"
)

var _ repository.Locker = (*KeyedLocker)(nil)

// KeyedLocker hands out one mutex per key. Entries are reference counted and
// dropped when the last holder or waiter leaves, so the map stays small.
type KeyedLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{} // buffered(1); a token in the channel means "held"
	refs int
}

func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{locks: make(map[string]*keyLock)}
}

func (l *KeyedLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	select {
	case kl.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, kl)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-kl.ch
			l.release(key, kl)
		})
	}, nil
}

func (l *KeyedLocker) release(key string, kl *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
}
