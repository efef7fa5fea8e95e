package session

import "sync"

// KeyedLocks serializes work per session id. Messages for the same session
// must not interleave their read-modify-write cycles (including the LLM
// calls in the middle), while unrelated sessions never block on each other.
// Lock entries are never removed; a dangling mutex per dead session is a few
// dozen bytes and removal would race with a concurrent Lock on the same id.
type KeyedLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewKeyedLocks returns an empty lock registry.
func NewKeyedLocks() *KeyedLocks {
	return &KeyedLocks{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for key, creating it on first use.
func (k *KeyedLocks) Lock(key string) {
	k.get(key).Lock()
}

// Unlock releases the mutex for key.
func (k *KeyedLocks) Unlock(key string) {
	k.get(key).Unlock()
}

func (k *KeyedLocks) get(key string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	return m
}
