package tracker

import (
	"sync"

	"github.com/justapithecus/throttlekeep/record"
)

// Notification names published on the tracker's lifecycle bus.
const (
	EventImmediate     = "immediate"
	EventDeferred      = "deferred"
	EventIgnored       = "ignored"
	EventProcessed     = "processed"
	EventRetry         = "retry"
	EventProcessFailed = "process_failed"
	EventConfigUpdated = "config_updated"
	EventError         = "error"
)

// RetryPayload is published before each backoff sleep in the retry loop.
type RetryPayload struct {
	Attempt    int
	MaxRetries int
	Delay      int64 // milliseconds
	Events     []*record.Record
}

// ProcessFailedPayload is published once a batch exhausts its retries.
type ProcessFailedPayload struct {
	Err      error
	Events   []*record.Record
	Attempts int
}

// IgnoredPayload is the uniform shape of an "ignored" trackEvent outcome,
// regardless of the reason.
type IgnoredPayload struct {
	Reason   string
	Category string
	ID       string
	Details  any
}

type listener func(payload any)

// bus is a mutex-guarded pub/sub fan-out, used by the tracker to publish
// lifecycle notifications without coupling publishers to subscribers'
// identities.
type bus struct {
	mu        sync.Mutex
	nextID    int
	listeners map[string]map[int]listener
}

func newBus() *bus {
	return &bus{listeners: make(map[string]map[int]listener)}
}

// Subscribe registers fn for event and returns an idempotent unsubscribe
// closure.
func (b *bus) Subscribe(event string, fn listener) func() {
	b.mu.Lock()
	if b.listeners[event] == nil {
		b.listeners[event] = make(map[int]listener)
	}
	id := b.nextID
	b.nextID++
	b.listeners[event][id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.listeners[event], id)
			b.mu.Unlock()
		})
	}
}

func (b *bus) publish(event string, payload any) {
	b.mu.Lock()
	fns := make([]listener, 0, len(b.listeners[event]))
	for _, fn := range b.listeners[event] {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(payload)
	}
}

// clear removes every subscriber, called from Destroy.
func (b *bus) clear() {
	b.mu.Lock()
	b.listeners = make(map[string]map[int]listener)
	b.mu.Unlock()
}
