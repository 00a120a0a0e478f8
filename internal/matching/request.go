package matching

import (
	"fmt"
	"time"
)

// Difficulty levels accepted in match requests.
const (
	DifficultyEasy   = "Easy"
	DifficultyMedium = "Medium"
	DifficultyHard   = "Hard"
)

// MatchRequest is the broker payload sent when a user asks for a partner.
// Delivery is at-least-once: a duplicate for the same user ID refreshes the
// existing queue entry instead of creating a second one.
type MatchRequest struct {
	UserID     string   `json:"userId"`
	UserName   string   `json:"userName"`
	Difficulty string   `json:"difficulty"`
	Language   string   `json:"language,omitempty"`
	Categories []string `json:"categories"`

	// EnqueuedAt is stamped by the engine when the request is first
	// accepted. It drives FIFO ordering and the wait-timeout computation
	// and is never sent over the wire.
	EnqueuedAt time.Time `json:"-"`
}

// CancelRequest is the broker payload sent when a user cancels matching.
type CancelRequest struct {
	UserID string `json:"userId"`
}

// Validate checks that the request carries a user ID, a known difficulty,
// and at least one category.
func (r *MatchRequest) Validate() error {
	if r.UserID == "" {
		return fmt.Errorf("matching: request missing userId")
	}
	switch r.Difficulty {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
	default:
		return fmt.Errorf("matching: unknown difficulty %q for user %s", r.Difficulty, r.UserID)
	}
	if len(r.Categories) == 0 {
		return fmt.Errorf("matching: request from %s has no categories", r.UserID)
	}
	return nil
}

// SharedCategories returns the categories both requests have in common,
// preserving the order of r's category list.
func (r *MatchRequest) SharedCategories(other *MatchRequest) []string {
	theirs := make(map[string]bool, len(other.Categories))
	for _, c := range other.Categories {
		theirs[c] = true
	}

	var shared []string
	for _, c := range r.Categories {
		if theirs[c] {
			shared = append(shared, c)
		}
	}
	return shared
}
