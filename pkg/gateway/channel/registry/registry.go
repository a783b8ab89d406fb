// Package registry tracks the open interaction channels so a shutdown can
// warn them, close them and wait for them to finish.
package registry

import (
	"context"
	"sync"
)

// Channel is what the registry needs from an open connection.
type Channel interface {
	ID() string
	Cancel()
	SendWarning(code, message string) error
}

type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	wg      sync.WaitGroup
}

type entry struct {
	ch   Channel
	once sync.Once
}

func New() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Add registers ch under its ID. The returned func removes it and must be
// called when the channel's Run returns. A second Add with the same ID
// replaces the first registration.
func (r *Registry) Add(ch Channel) (remove func()) {
	if r == nil || ch == nil {
		return func() {}
	}
	id := ch.ID()
	e := &entry{ch: ch}

	r.mu.Lock()
	if r.entries == nil {
		r.entries = make(map[string]*entry)
	}
	old := r.entries[id]
	r.entries[id] = e
	r.wg.Add(1)
	r.mu.Unlock()

	if old != nil {
		r.remove(id, old)
	}
	return func() { r.remove(id, e) }
}

func (r *Registry) remove(id string, e *entry) {
	e.once.Do(func() {
		r.mu.Lock()
		if r.entries[id] == e {
			delete(r.entries, id)
		}
		r.mu.Unlock()
		r.wg.Done()
	})
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *Registry) snapshot() []Channel {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Channel, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.ch)
	}
	return out
}

// WarnAll queues a warning on every open channel and returns how many
// accepted it. A channel with a full queue is skipped.
func (r *Registry) WarnAll(code, message string) (sent int) {
	if r == nil {
		return 0
	}
	for _, ch := range r.snapshot() {
		if err := ch.SendWarning(code, message); err == nil {
			sent++
		}
	}
	return sent
}

// CloseAll cancels every open channel.
func (r *Registry) CloseAll() (closed int) {
	if r == nil {
		return 0
	}
	for _, ch := range r.snapshot() {
		ch.Cancel()
		closed++
	}
	return closed
}

// Wait blocks until every registered channel has been removed or ctx ends.
// It reports whether all channels finished.
func (r *Registry) Wait(ctx context.Context) bool {
	if r == nil {
		return true
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.wg.Wait()
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
