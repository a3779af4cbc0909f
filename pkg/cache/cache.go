// Package cache implements the proxy's bounded in-memory response store: a
// thread-safe LRU keyed by the raw request bytes, charged by payload + key +
// bookkeeping size against a fixed byte capacity.
package cache

import (
	"container/list"
	"sync"
)

const (
	// DefaultCapacityBytes bounds the whole store when no capacity is configured.
	DefaultCapacityBytes = 200 << 20
	// DefaultMaxEntryBytes bounds a single entry when no limit is configured.
	DefaultMaxEntryBytes = 10 << 20

	// EntryOverhead is the fixed per-entry bookkeeping charge (index cell,
	// list element, entry header) counted against capacity in addition to
	// the key and payload bytes.
	EntryOverhead = 64
)

// Stats is a point-in-time snapshot of store occupancy and traffic.
type Stats struct {
	Entries   int    `json:"entries"`
	Bytes     int64  `json:"bytes"`
	Capacity  int64  `json:"capacity_bytes"`
	MaxEntry  int64  `json:"max_entry_bytes"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
	Rejected  uint64 `json:"rejected"`
}

type entry struct {
	key     string
	payload []byte
	size    int64
}

// Store is a size-bounded LRU table. All operations take the single store
// lock, so readers never observe a half-applied put or eviction. The
// recency list keeps the most recently used entry at the front.
type Store struct {
	mu       sync.Mutex
	capacity int64
	maxEntry int64
	size     int64
	ll       *list.List
	index    map[string]*list.Element

	hits      uint64
	misses    uint64
	evictions uint64
	rejected  uint64
}

// New creates a Store holding at most capacityBytes in total and
// maxEntryBytes per entry. Non-positive limits fall back to the defaults.
func New(capacityBytes, maxEntryBytes int64) *Store {
	if capacityBytes <= 0 {
		capacityBytes = DefaultCapacityBytes
	}
	if maxEntryBytes <= 0 {
		maxEntryBytes = DefaultMaxEntryBytes
	}
	return &Store{
		capacity: capacityBytes,
		maxEntry: maxEntryBytes,
		ll:       list.New(),
		index:    make(map[string]*list.Element),
	}
}

// EntrySize reports the capacity charge for a key/payload pair.
func EntrySize(key string, payloadLen int) int64 {
	return int64(payloadLen) + int64(len(key)) + EntryOverhead
}

// Get returns a copy of the payload stored under key and promotes the entry
// to most recently used. The second result is false on a miss; a miss does
// not mutate the store beyond its counters.
func (s *Store) Get(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.index[key]
	if !ok {
		s.misses++
		return nil, false
	}
	s.ll.MoveToFront(el)
	s.hits++

	ent := el.Value.(*entry)
	out := make([]byte, len(ent.payload))
	copy(out, ent.payload)
	return out, true
}

// Put stores a copy of payload under key at the most-recently-used position.
// It returns false, leaving the store untouched, when the charged size
// exceeds the per-entry limit or the whole capacity. An existing entry for
// key is replaced. Least-recently-used entries are evicted until the new
// entry fits; replace, evict and insert happen under one critical section.
func (s *Store) Put(key string, payload []byte) bool {
	size := EntrySize(key, len(payload))

	s.mu.Lock()
	defer s.mu.Unlock()

	if size > s.maxEntry || size > s.capacity {
		s.rejected++
		return false
	}

	if el, ok := s.index[key]; ok {
		s.remove(el)
	}
	for s.size+size > s.capacity {
		oldest := s.ll.Back()
		if oldest == nil {
			break
		}
		s.remove(oldest)
		s.evictions++
	}

	buf := make([]byte, len(payload))
	copy(buf, payload)
	s.index[key] = s.ll.PushFront(&entry{key: key, payload: buf, size: size})
	s.size += size
	return true
}

// remove unlinks el and returns its size to the pool. Callers hold s.mu.
func (s *Store) remove(el *list.Element) {
	ent := s.ll.Remove(el).(*entry)
	delete(s.index, ent.key)
	s.size -= ent.size
}

// Len reports the number of resident entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ll.Len()
}

// Size reports the bytes currently charged against capacity.
func (s *Store) Size() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// Stats returns a snapshot of occupancy and counters.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Entries:   s.ll.Len(),
		Bytes:     s.size,
		Capacity:  s.capacity,
		MaxEntry:  s.maxEntry,
		Hits:      s.hits,
		Misses:    s.misses,
		Evictions: s.evictions,
		Rejected:  s.rejected,
	}
}
