// Package recent provides a short-window membership test over recently seen
// packets, used to de-duplicate mDNS messages.
//
// Identical messages arrive more than once as a matter of course: a host
// joined to the multicast group on several interfaces receives its own
// broadcasts back, and some platforms deliver one datagram per group
// membership. See https://tools.ietf.org/html/rfc6762#section-7.
package recent

import (
	"sync"
	"time"
)

// DefaultTTL is how long an entry remains a member of the set.
const DefaultTTL = time.Second

// DefaultCapacity is the maximum number of entries retained before the
// oldest entries are discarded.
const DefaultCapacity = 1024

// Option is a function that applies an option to a set created by New().
type Option func(*Set)

// UseTTL returns an option that sets the membership window of the set.
func UseTTL(d time.Duration) Option {
	return func(s *Set) {
		s.ttl = d
	}
}

// UseCapacity returns an option that sets the maximum number of entries
// retained by the set.
func UseCapacity(n int) Option {
	return func(s *Set) {
		s.capacity = n
	}
}

// UseClock returns an option that sets the clock used by the set.
func UseClock(now func() time.Time) Option {
	return func(s *Set) {
		s.now = now
	}
}

// Set is a bounded set of opaque packets with a fixed membership window.
//
// Membership is decided by byte-equality of the full packet. An entry
// inserted more than the TTL ago is treated as absent; expired entries are
// collected lazily. All methods are safe for concurrent use.
type Set struct {
	ttl      time.Duration
	capacity int
	now      func() time.Time

	m       sync.Mutex
	entries map[string]time.Time
	order   []string
}

// New returns an empty set.
func New(options ...Option) *Set {
	s := &Set{
		ttl:      DefaultTTL,
		capacity: DefaultCapacity,
		now:      time.Now,
		entries:  map[string]time.Time{},
	}

	for _, opt := range options {
		opt(s)
	}

	return s
}

// TryAdd inserts p into the set.
//
// It returns true if p was not already a member, false if an identical
// packet was inserted within the membership window.
func (s *Set) TryAdd(p []byte) bool {
	// Keying the map on string(p) copies the packet and compares members by
	// their full content, never by hash alone.
	k := string(p)
	now := s.now()

	s.m.Lock()
	defer s.m.Unlock()

	s.prune(now)

	if t, ok := s.entries[k]; ok && now.Sub(t) < s.ttl {
		return false
	}

	s.entries[k] = now
	s.order = append(s.order, k)

	// An entry dropped under memory pressure is indistinguishable from an
	// expired one.
	for len(s.entries) > s.capacity {
		s.evictOldest()
	}

	return true
}

// Len returns the number of entries currently retained, including entries
// that have expired but have not yet been collected.
func (s *Set) Len() int {
	s.m.Lock()
	defer s.m.Unlock()
	return len(s.entries)
}

// prune collects entries from the front of the insertion order that have
// passed the membership window.
func (s *Set) prune(now time.Time) {
	for len(s.order) > 0 {
		k := s.order[0]

		t, ok := s.entries[k]
		if ok && now.Sub(t) < s.ttl {
			return
		}

		s.order = s.order[1:]
		if ok {
			delete(s.entries, k)
		}
	}
}

func (s *Set) evictOldest() {
	for len(s.order) > 0 {
		k := s.order[0]
		s.order = s.order[1:]

		if _, ok := s.entries[k]; ok {
			delete(s.entries, k)
			return
		}
	}
}
