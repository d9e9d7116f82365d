package queue

import (
	"sync"

	"github.com/appprecos/scan-gateway/models"
)

// EventType distinguishes store mutations broadcast to subscribers.
type EventType string

const (
	EventUpdated EventType = "updated"
	EventRemoved EventType = "removed"
)

// Event describes one store mutation. Entry is a copy taken at mutation time.
type Event struct {
	Type  EventType
	Entry models.QueueEntry
}

// Subscriber receives store events. Callbacks run synchronously on the
// mutating goroutine after the store lock is released; they must not block
// for long.
type Subscriber func(Event)

// Store is the mutex-guarded, insertion-ordered collection of queue entries.
// The URL is the lookup key for the lifetime of an entry.
type Store struct {
	mu          sync.Mutex
	entries     []models.QueueEntry
	subscribers []Subscriber
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{}
}

// Subscribe registers a callback for every subsequent mutation. There is no
// unsubscribe; subscriptions live as long as the store.
func (s *Store) Subscribe(fn Subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

// Append adds an entry to the tail of the queue.
func (s *Store) Append(entry models.QueueEntry) {
	s.mu.Lock()
	s.entries = append(s.entries, entry)
	subs := s.subscribers
	s.mu.Unlock()

	s.notify(subs, Event{Type: EventUpdated, Entry: entry})
}

// List returns a snapshot of all entries in insertion order.
func (s *Store) List() []models.QueueEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.QueueEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Get returns the entry for the given URL.
func (s *Store) Get(url string) (models.QueueEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.entries {
		if s.entries[i].URL == url {
			return s.entries[i], true
		}
	}
	return models.QueueEntry{}, false
}

// Contains reports whether an entry with the given URL is present.
func (s *Store) Contains(url string) bool {
	_, ok := s.Get(url)
	return ok
}

// ContainsTrace reports whether the exact entry identified by trace id is
// still present. A resubmitted URL gets a fresh trace id, so stale runners
// see false here even when the URL is occupied again.
func (s *Store) ContainsTrace(traceID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.entries {
		if s.entries[i].TraceID == traceID {
			return true
		}
	}
	return false
}

// ActiveCount returns the number of entries in a non-terminal status.
func (s *Store) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for i := range s.entries {
		if s.entries[i].Status.IsActive() {
			n++
		}
	}
	return n
}

// Update applies a partial patch to the entry with the given trace id and
// reports whether it was applied. Matching on trace id rather than URL keeps
// a runner from mutating a newer entry for the same URL after its own entry
// was dismissed. Updating an absent entry is a silent no-op. A terminal
// entry never transitions to another status, and an assigned record id is
// never overwritten.
func (s *Store) Update(traceID string, patch models.EntryPatch) bool {
	s.mu.Lock()
	var updated *models.QueueEntry
	for i := range s.entries {
		if s.entries[i].TraceID != traceID {
			continue
		}
		e := &s.entries[i]
		if patch.Status != nil && !e.Status.IsTerminal() {
			e.Status = *patch.Status
		}
		if patch.RecordID != nil && e.RecordID == 0 {
			e.RecordID = *patch.RecordID
		}
		if patch.MarketName != nil {
			e.MarketName = *patch.MarketName
		}
		if patch.ProductsCount != nil {
			e.ProductsCount = *patch.ProductsCount
		}
		if patch.ErrorMessage != nil {
			e.ErrorMessage = *patch.ErrorMessage
		}
		copied := *e
		updated = &copied
		break
	}
	subs := s.subscribers
	s.mu.Unlock()

	if updated == nil {
		return false
	}
	s.notify(subs, Event{Type: EventUpdated, Entry: *updated})
	return true
}

// Remove deletes the entry with the given URL. Used for user dismissal,
// where the URL is the handle the client holds. Removing an absent entry
// is a no-op.
func (s *Store) Remove(url string) bool {
	return s.remove(func(e *models.QueueEntry) bool { return e.URL == url })
}

// RemoveByTrace deletes the exact entry identified by trace id. Deferred
// cleanup uses this so a timer armed for a dismissed entry cannot delete a
// newer entry that reuses the URL.
func (s *Store) RemoveByTrace(traceID string) bool {
	return s.remove(func(e *models.QueueEntry) bool { return e.TraceID == traceID })
}

func (s *Store) remove(match func(*models.QueueEntry) bool) bool {
	s.mu.Lock()
	var removed *models.QueueEntry
	for i := range s.entries {
		if match(&s.entries[i]) {
			copied := s.entries[i]
			removed = &copied
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			break
		}
	}
	subs := s.subscribers
	s.mu.Unlock()

	if removed == nil {
		return false
	}
	s.notify(subs, Event{Type: EventRemoved, Entry: *removed})
	return true
}

func (s *Store) notify(subs []Subscriber, event Event) {
	for _, fn := range subs {
		fn(event)
	}
}
