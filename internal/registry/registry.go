// Package registry deduplicates error text into stable, sequential
// identifiers suitable for compact logging and operator cross-referencing.
//
// Grounded on original_source/src/core/error.rs's ErrorRegistry, restated
// as sequential "ERR_<n>" IDs (the original groups by category with a
// Vec<String>; this registry instead assigns one stable ID per distinct
// message text).
package registry

import (
	"fmt"
	"sync"
	"time"
)

// Entry is one distinct registered error message.
type Entry struct {
	ID        string
	Text      string
	FirstSeen time.Time
}

// Registry maps distinct error text to stable, sequential identifiers of
// the form "ERR_<n>", starting at ERR_1. Registering the same text twice
// returns the same ID. Registry is safe for concurrent use.
type Registry struct {
	now     func() time.Time
	mu      sync.Mutex
	idByMsg map[string]string
	entries map[string]Entry
	next    int
}

// New returns an empty *Registry.
func New() *Registry {
	return &Registry{
		now:     time.Now,
		idByMsg: make(map[string]string),
		entries: make(map[string]Entry),
		next:    1,
	}
}

// Register returns the stable ID for text, assigning a new one if text has
// not been seen before.
func (r *Registry) Register(text string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.idByMsg[text]; ok {
		return id
	}

	id := fmt.Sprintf("ERR_%d", r.next)
	r.next++
	r.idByMsg[text] = id
	r.entries[id] = Entry{ID: id, Text: text, FirstSeen: r.now()}
	return id
}

// Lookup returns the text registered under id, if any.
func (r *Registry) Lookup(id string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[id]
	return entry.Text, ok
}

// Len returns the number of distinct messages registered so far.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.idByMsg)
}

// Entries returns every registered entry in ID order.
func (r *Registry) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Entry, 0, len(r.entries))
	for i := 1; i < r.next; i++ {
		id := fmt.Sprintf("ERR_%d", i)
		if entry, ok := r.entries[id]; ok {
			out = append(out, entry)
		}
	}
	return out
}
