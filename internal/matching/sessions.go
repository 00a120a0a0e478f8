package matching

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// MatchSession is the record of a successfully formed pair. It is created
// the instant a pairing commits and never mutated afterwards; downstream
// collaboration setup consumes it read-only.
type MatchSession struct {
	MatchID          string    `json:"matchId"`
	UserA            string    `json:"userA"`
	UserB            string    `json:"userB"`
	Difficulty       string    `json:"difficulty"`
	Language         string    `json:"language,omitempty"`
	SharedCategories []string  `json:"sharedCategories"`
	CreatedAt        time.Time `json:"createdAt"`
}

// NewMatchSession builds a session record for two paired requests with a
// freshly generated match ID.
func NewMatchSession(a, b *MatchRequest) *MatchSession {
	language := a.Language
	if language == "" {
		language = b.Language
	}
	return &MatchSession{
		MatchID:          uuid.New().String(),
		UserA:            a.UserID,
		UserB:            b.UserID,
		Difficulty:       a.Difficulty,
		Language:         language,
		SharedCategories: a.SharedCategories(b),
		CreatedAt:        time.Now(),
	}
}

// Partner returns the other participant's user ID, or "" if userID is not
// part of the session.
func (m *MatchSession) Partner(userID string) string {
	switch userID {
	case m.UserA:
		return m.UserB
	case m.UserB:
		return m.UserA
	}
	return ""
}

// SessionRegistry is the engine-owned map of live match sessions, queryable
// by participant so collaborators can ask "does this user already have a
// match". Only the engine mutates it.
type SessionRegistry struct {
	mu     sync.RWMutex
	byID   map[string]*MatchSession
	byUser map[string]*MatchSession
}

// NewSessionRegistry creates an empty session registry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		byID:   make(map[string]*MatchSession),
		byUser: make(map[string]*MatchSession),
	}
}

// Add registers a session under its match ID and both participants.
func (r *SessionRegistry) Add(sess *MatchSession) {
	r.mu.Lock()
	r.byID[sess.MatchID] = sess
	r.byUser[sess.UserA] = sess
	r.byUser[sess.UserB] = sess
	r.mu.Unlock()
}

// ForUser returns the live session the given user participates in, or nil.
func (r *SessionRegistry) ForUser(userID string) *MatchSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byUser[userID]
}

// Get returns the session with the given match ID, or nil.
func (r *SessionRegistry) Get(matchID string) *MatchSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byID[matchID]
}

// Remove drops a session by match ID, e.g. when the collaboration ends.
// Returns true if the session existed.
func (r *SessionRegistry) Remove(matchID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.byID[matchID]
	if !ok {
		return false
	}
	delete(r.byID, matchID)
	delete(r.byUser, sess.UserA)
	delete(r.byUser, sess.UserB)
	return true
}

// Len returns the number of live sessions.
func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
