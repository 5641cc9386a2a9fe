package statesync

import "sync"

// keyedMutex serializes operations per conversation id. Send, regenerate
// and the background message fetch for the same conversation take the same
// lock, so their splices can never interleave; operations on different
// conversations proceed in parallel.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{
		locks: map[string]*sync.Mutex{},
	}
}

// Lock acquires the lock for the given key and returns the unlock function.
// Locks are kept for the lifetime of the map; the population is bounded by
// the number of conversations.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	k.mu.Unlock()

	l.Lock()
	return l.Unlock
}
