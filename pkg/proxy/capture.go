// pkg/proxy/capture.go
package proxy

import "sync"

// RecentRequests is a concurrency-safe bounded ring of the latest
// RequestRecord entries, fed by the server's observer chain and served by
// the admin /requests endpoint.
type RecentRequests struct {
	mu      sync.Mutex
	entries []RequestRecord
	max     int
}

// NewRecentRequests creates a ring holding at most maxEntries records.
func NewRecentRequests(maxEntries int) *RecentRequests {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &RecentRequests{max: maxEntries}
}

// Add appends a record, evicting the oldest past capacity.
func (c *RecentRequests) Add(r RequestRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) >= c.max {
		c.entries = c.entries[1:]
	}
	c.entries = append(c.entries, r)
}

// List returns a snapshot copy of entries, oldest first.
func (c *RecentRequests) List() []RequestRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]RequestRecord, len(c.entries))
	copy(out, c.entries)
	return out
}

// Clear empties the ring.
func (c *RecentRequests) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = nil
}
