package scheduler

import "sync"

// SeenSet records which message ids have already been handed on, per user.
// Entries are never removed.
type SeenSet struct {
	mu    sync.RWMutex
	users map[string]map[string]struct{}
}

func NewSeenSet() *SeenSet {
	return &SeenSet{users: make(map[string]map[string]struct{})}
}

// Seed marks the user as known and records ids as seen.
func (s *SeenSet) Seed(userID string, ids ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := s.userSet(userID)
	for _, id := range ids {
		set[id] = struct{}{}
	}
}

// Add records id and reports whether it was new.
func (s *SeenSet) Add(userID, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := s.userSet(userID)
	if _, ok := set[id]; ok {
		return false
	}
	set[id] = struct{}{}
	return true
}

func (s *SeenSet) Contains(userID, id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.users[userID][id]
	return ok
}

// KnowsUser reports whether the user has been bootstrapped.
func (s *SeenSet) KnowsUser(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.users[userID]
	return ok
}

// Len returns the number of ids seen for the user.
func (s *SeenSet) Len(userID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.users[userID])
}

func (s *SeenSet) userSet(userID string) map[string]struct{} {
	set, ok := s.users[userID]
	if !ok {
		set = make(map[string]struct{})
		s.users[userID] = set
	}
	return set
}
