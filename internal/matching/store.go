package matching

import "sync"

// Store is the in-memory collection of pending match requests, ordered by
// arrival (FIFO) and keyed by user ID. At most one entry exists per user at
// any instant. The store holds no matching logic: selection and removal
// decisions belong to the engine.
type Store struct {
	mu     sync.Mutex
	order  []*MatchRequest // FIFO by EnqueuedAt
	byUser map[string]*MatchRequest
}

// NewStore creates an empty request store.
func NewStore() *Store {
	return &Store{byUser: make(map[string]*MatchRequest)}
}

// Enqueue inserts a request at the back of the queue. If an entry already
// exists for the same user (duplicate broker delivery), its filters are
// refreshed in place: the original queue position and EnqueuedAt stamp are
// kept so the wait timeout is not extended. Returns true if the request was
// newly inserted, false if it refreshed an existing entry.
func (s *Store) Enqueue(req *MatchRequest) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.byUser[req.UserID]; ok {
		existing.UserName = req.UserName
		existing.Difficulty = req.Difficulty
		existing.Language = req.Language
		existing.Categories = req.Categories
		return false
	}

	s.order = append(s.order, req)
	s.byUser[req.UserID] = req
	return true
}

// Get returns the pending request for the given user, or nil.
func (s *Store) Get(userID string) *MatchRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byUser[userID]
}

// Remove deletes the entry for the given user and reports whether one
// existed. Removing an absent user is a no-op.
func (s *Store) Remove(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byUser[userID]; !ok {
		return false
	}
	delete(s.byUser, userID)

	for i, r := range s.order {
		if r.UserID == userID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// Snapshot returns the pending requests satisfying pred, in FIFO order.
// The returned slice is a copy; iterating it never observes later mutations.
// A nil pred matches everything.
func (s *Store) Snapshot(pred func(*MatchRequest) bool) []*MatchRequest {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*MatchRequest, 0, len(s.order))
	for _, r := range s.order {
		if pred == nil || pred(r) {
			out = append(out, r)
		}
	}
	return out
}

// Len returns the number of pending requests.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}
