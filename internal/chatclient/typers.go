package chatclient

import (
	"slices"
	"time"
)

// DefaultTyperTTL is how long a typing indicator survives without a refresh.
const DefaultTyperTTL = 5 * time.Second

// TyperSet is an insertion-ordered set of peers that are typing. Every entry
// expires ttl after its last Add; a ttl of zero keeps entries until removed.
// A TyperSet is not safe for concurrent use.
type TyperSet struct {
	ttl     time.Duration
	now     func() time.Time
	order   []string
	expires map[string]time.Time
}

// NewTyperSet returns an empty set. now defaults to time.Now.
func NewTyperSet(ttl time.Duration, now func() time.Time) *TyperSet {
	if now == nil {
		now = time.Now
	}
	if ttl < 0 {
		ttl = 0
	}
	return &TyperSet{
		ttl:     ttl,
		now:     now,
		expires: make(map[string]time.Time),
	}
}

// Add inserts name or refreshes its expiry. It reports whether name was new.
func (s *TyperSet) Add(name string) bool {
	s.prune()

	var expiry time.Time
	if s.ttl > 0 {
		expiry = s.now().Add(s.ttl)
	}
	_, exists := s.expires[name]
	s.expires[name] = expiry
	if !exists {
		s.order = append(s.order, name)
	}
	return !exists
}

// Remove deletes name and reports whether it was present.
func (s *TyperSet) Remove(name string) bool {
	if _, ok := s.expires[name]; !ok {
		return false
	}
	delete(s.expires, name)
	s.order = slices.DeleteFunc(s.order, func(n string) bool { return n == name })
	return true
}

// Contains reports whether name is typing.
func (s *TyperSet) Contains(name string) bool {
	s.prune()
	_, ok := s.expires[name]
	return ok
}

// Len returns the number of live entries.
func (s *TyperSet) Len() int {
	s.prune()
	return len(s.order)
}

// Names returns the live entries in the order they were first added.
func (s *TyperSet) Names() []string {
	s.prune()
	return slices.Clone(s.order)
}

func (s *TyperSet) prune() {
	if s.ttl == 0 || len(s.order) == 0 {
		return
	}
	now := s.now()
	s.order = slices.DeleteFunc(s.order, func(name string) bool {
		if now.Before(s.expires[name]) {
			return false
		}
		delete(s.expires, name)
		return true
	})
}
