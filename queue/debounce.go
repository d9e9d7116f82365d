package queue

import "time"

// recencyTracker remembers when each URL was last submitted so rapid
// re-scans of the same code can be rejected. Not safe for concurrent use;
// the manager serializes access through its gate mutex.
type recencyTracker struct {
	lastSeen map[string]time.Time
	horizon  time.Duration
}

func newRecencyTracker(horizon time.Duration) *recencyTracker {
	return &recencyTracker{
		lastSeen: make(map[string]time.Time),
		horizon:  horizon,
	}
}

// WithinWindow reports whether the URL was recorded less than window ago.
// Stale records past the horizon are pruned on every call so the map stays
// bounded by recent submission volume.
func (t *recencyTracker) WithinWindow(url string, window time.Duration, now time.Time) bool {
	t.prune(now)
	last, ok := t.lastSeen[url]
	if !ok {
		return false
	}
	return now.Sub(last) < window
}

// Record marks the URL as submitted at the given instant.
func (t *recencyTracker) Record(url string, now time.Time) {
	t.lastSeen[url] = now
}

func (t *recencyTracker) prune(now time.Time) {
	for url, last := range t.lastSeen {
		if now.Sub(last) >= t.horizon {
			delete(t.lastSeen, url)
		}
	}
}
