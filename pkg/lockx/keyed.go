// Package lockx provides a mutex keyed by string so work on one key is
// serialised while different keys proceed in parallel.
package lockx

import (
	"context"
	"sync"
)

type entry struct {
	ch   chan struct{} // 1-buffered; holding the token means holding the lock
	refs int
}

// Keyed is a set of per-key locks. Entries are reference counted and removed
// once nobody holds or waits on them, so the map stays bounded by the number
// of keys in flight. The zero value is ready to use.
type Keyed struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// Lock blocks until the lock for key is held or ctx is done. On success the
// returned func releases the lock and must be called exactly once.
func (k *Keyed) Lock(ctx context.Context, key string) (func(), error) {
	e := k.acquire(key)

	select {
	case e.ch <- struct{}{}:
		return func() {
			<-e.ch
			k.release(key, e)
		}, nil
	case <-ctx.Done():
		k.release(key, e)
		return nil, ctx.Err()
	}
}

func (k *Keyed) acquire(key string) *entry {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.entries == nil {
		k.entries = make(map[string]*entry)
	}
	e, ok := k.entries[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		k.entries[key] = e
	}
	e.refs++
	return e
}

func (k *Keyed) release(key string, e *entry) {
	k.mu.Lock()
	defer k.mu.Unlock()

	e.refs--
	if e.refs == 0 {
		delete(k.entries, key)
	}
}
