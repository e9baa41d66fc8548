package review

import "sync"

// keyedLocks serializes work per file id. Entries are reference counted and
// removed once the last holder releases, so the map stays proportional to
// in-flight decisions rather than total files.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[int64]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedLocks) lock(id int64) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[int64]*lockEntry)
	}
	entry, ok := k.locks[id]
	if !ok {
		entry = &lockEntry{}
		k.locks[id] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, id)
		}
		k.mu.Unlock()
	}
}
