package matching

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/peerprep/matching-service/internal/history"
	"github.com/peerprep/matching-service/internal/messaging"
	"github.com/peerprep/matching-service/internal/session"
)

// MatchFoundEvent is delivered to each participant of a formed pair,
// identifying the partner and the derived match session.
type MatchFoundEvent struct {
	MatchID          string   `json:"matchId"`
	PartnerID        string   `json:"partnerId"`
	PartnerName      string   `json:"partnerName"`
	Difficulty       string   `json:"difficulty"`
	Language         string   `json:"language,omitempty"`
	SharedCategories []string `json:"sharedCategories"`
}

// NoMatchEvent is delivered to a requester whose wait timed out unmatched.
type NoMatchEvent struct {
	Message string `json:"message"`
}

// CancelledEvent acknowledges an explicit cancellation.
type CancelledEvent struct {
	Message string `json:"message"`
}

// ErrorEvent reports a request that could not be associated with a known
// identity.
type ErrorEvent struct {
	Message string `json:"message"`
}

// Notifier delivers match outcomes to participants. The engine commits all
// queue and timer state before calling it; delivery failure never unwinds a
// committed pairing.
type Notifier interface {
	MatchFound(sess *MatchSession, a, b *MatchRequest)
	NoMatchFound(req *MatchRequest)
	Cancelled(userID string)
	Error(userID string, msg string)
}

// EventPublisher is the production Notifier. It emits per-user events over
// NATS, skipping participants with no live presence record, mirrors the
// session state to Redis, and records completed pairings in the match
// history store. Presence and history are optional collaborators.
type EventPublisher struct {
	nats     *messaging.NATSClient
	presence *session.Store
	history  *history.Store
}

// NewEventPublisher creates an EventPublisher. presence and hist may be nil,
// in which case reachability checks and history recording are disabled.
func NewEventPublisher(nats *messaging.NATSClient, presence *session.Store, hist *history.Store) *EventPublisher {
	return &EventPublisher{nats: nats, presence: presence, history: hist}
}

// MatchFound emits a matchFound event to both participants and performs the
// best-effort side recording (Redis session mirror, Postgres history). Any
// individual failure is logged and does not affect the others: the pairing
// is already committed.
func (p *EventPublisher) MatchFound(sess *MatchSession, a, b *MatchRequest) {
	p.emitMatchFound(sess, a, b)
	p.emitMatchFound(sess, b, a)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if p.presence != nil {
		if err := p.presence.SetMatch(ctx, a.UserID, sess.MatchID); err != nil {
			log.Printf("[notifier] mark %s matched: %v", a.UserID, err)
		}
		if err := p.presence.SetMatch(ctx, b.UserID, sess.MatchID); err != nil {
			log.Printf("[notifier] mark %s matched: %v", b.UserID, err)
		}
	}

	if p.history != nil {
		rec := &history.Record{
			MatchID:    sess.MatchID,
			UserA:      sess.UserA,
			UserB:      sess.UserB,
			Difficulty: sess.Difficulty,
			Language:   sess.Language,
			Categories: sess.SharedCategories,
			CreatedAt:  sess.CreatedAt,
		}
		if err := p.history.Record(ctx, rec); err != nil {
			log.Printf("[notifier] record match %s: %v", sess.MatchID, err)
		}
	}
}

// emitMatchFound sends the event for one side of the pair. If the recipient
// has no live presence record the emission is skipped, not retried.
func (p *EventPublisher) emitMatchFound(sess *MatchSession, to, partner *MatchRequest) {
	if !p.reachable(to.UserID) {
		log.Printf("[notifier] %s not reachable, skipping matchFound", to.UserID)
		return
	}

	event := MatchFoundEvent{
		MatchID:          sess.MatchID,
		PartnerID:        partner.UserID,
		PartnerName:      partner.UserName,
		Difficulty:       sess.Difficulty,
		Language:         sess.Language,
		SharedCategories: sess.SharedCategories,
	}
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("[notifier] marshal matchFound for %s: %v", to.UserID, err)
		return
	}
	if err := p.nats.PublishMatchFound(to.UserID, data); err != nil {
		log.Printf("[notifier] publish matchFound for %s: %v", to.UserID, err)
	}
}

// NoMatchFound tells a lone timed-out requester that no partner was found.
func (p *EventPublisher) NoMatchFound(req *MatchRequest) {
	if !p.reachable(req.UserID) {
		log.Printf("[notifier] %s not reachable, skipping noMatchFound", req.UserID)
		return
	}

	data, _ := json.Marshal(NoMatchEvent{Message: "No suitable match found at this time"})
	if err := p.nats.PublishNoMatch(req.UserID, data); err != nil {
		log.Printf("[notifier] publish noMatchFound for %s: %v", req.UserID, err)
	}
}

// Cancelled acknowledges a cancellation to the requester.
func (p *EventPublisher) Cancelled(userID string) {
	data, _ := json.Marshal(CancelledEvent{Message: "Your match request has been cancelled"})
	if err := p.nats.PublishCancelled(userID, data); err != nil {
		log.Printf("[notifier] publish cancelled for %s: %v", userID, err)
	}
}

// Error emits an error event to the given user.
func (p *EventPublisher) Error(userID string, msg string) {
	data, _ := json.Marshal(ErrorEvent{Message: msg})
	if err := p.nats.PublishMatchError(userID, data); err != nil {
		log.Printf("[notifier] publish error for %s: %v", userID, err)
	}
}

// reachable checks the presence registry for a live session. Without a
// presence store every user is considered reachable.
func (p *EventPublisher) reachable(userID string) bool {
	if p.presence == nil {
		return true
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	online, err := p.presence.IsOnline(ctx, userID)
	if err != nil {
		// Fail open: an unavailable registry should not suppress outcomes.
		log.Printf("[notifier] presence check for %s: %v", userID, err)
		return true
	}
	return online
}

var _ Notifier = (*EventPublisher)(nil)
