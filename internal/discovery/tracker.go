// Package discovery tracks which sensors are currently announcing themselves
// on the broker. It is pure bookkeeping: the clock is injected per call and
// no network I/O happens here. The tracker has its own lock so discovery
// never serializes against measurement.
package discovery

import (
	"sort"
	"sync"
	"time"
)

// Tracker records the last time each sensor was seen publishing.
type Tracker struct {
	mu   sync.Mutex
	seen map[string]time.Time
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{seen: make(map[string]time.Time)}
}

// Announce records or refreshes the last-seen timestamp for a sensor.
// Empty identifiers are ignored.
func (t *Tracker) Announce(sensorID string, now time.Time) {
	if sensorID == "" {
		return
	}
	t.mu.Lock()
	t.seen[sensorID] = now
	t.mu.Unlock()
}

// Active returns the sensors seen within staleAfter of now, sorted, and
// evicts stale entries from the table. Evicted ids are returned so the
// caller can drop them from an active selection; the tracker itself never
// touches selection state.
func (t *Tracker) Active(now time.Time, staleAfter time.Duration) (active, evicted []string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for id, last := range t.seen {
		if now.Sub(last) > staleAfter {
			delete(t.seen, id)
			evicted = append(evicted, id)
			continue
		}
		active = append(active, id)
	}
	sort.Strings(active)
	sort.Strings(evicted)
	return active, evicted
}

// Snapshot returns the sensors seen within staleAfter of now, sorted,
// without evicting anything. Read-side callers use this so eviction stays
// the poll loop's job.
func (t *Tracker) Snapshot(now time.Time, staleAfter time.Duration) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var active []string
	for id, last := range t.seen {
		if now.Sub(last) > staleAfter {
			continue
		}
		active = append(active, id)
	}
	sort.Strings(active)
	return active
}

// Len reports how many sensors are currently tracked.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.seen)
}
