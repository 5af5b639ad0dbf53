// Package keymutex implements a table of per-key mutexes that is created
// on demand and self-cleaning: an entry is dropped once its last waiter
// releases it, so the table's size tracks current contention rather than
// the set of every key ever touched.
package keymutex

import "sync"

type entry struct {
	mu       sync.Mutex
	waiters  int
}

// Table is a keyed mutex. The zero value is ready to use.
type Table struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// New returns a ready-to-use Table.
func New() *Table {
	return &Table{entries: make(map[string]*entry)}
}

// Lock blocks until the mutex for key is acquired and returns an unlock
// function. Locks on distinct keys never block each other. Waiters on the
// same key contend on one sync.Mutex, so they are not guaranteed to be
// served in acquisition order.
func (t *Table) Lock(key string) func() {
	t.mu.Lock()
	if t.entries == nil {
		t.entries = make(map[string]*entry)
	}
	e, ok := t.entries[key]
	if !ok {
		e = &entry{}
		t.entries[key] = e
	}
	e.waiters++
	t.mu.Unlock()

	e.mu.Lock()

	unlocked := false
	return func() {
		if unlocked {
			return
		}
		unlocked = true

		e.mu.Unlock()

		t.mu.Lock()
		e.waiters--
		if e.waiters == 0 {
			// No one else is queued for this key; drop the entry so the
			// table doesn't grow without bound over the key space.
			delete(t.entries, key)
		}
		t.mu.Unlock()
	}
}

// Len reports the number of keys currently contended (held or waited on).
// Intended for tests and diagnostics.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
