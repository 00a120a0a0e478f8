package matching

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/peerprep/matching-service/internal/messaging"
	"github.com/peerprep/matching-service/internal/metrics"
)

// DefaultMatchTimeout is how long a request waits in the queue before the
// deferred matching pass resolves it, to a partner or to a noMatchFound
// outcome.
const DefaultMatchTimeout = 5 * time.Minute

// Config holds the engine's tunables.
type Config struct {
	// MatchTimeout is the wait before the deferred matching pass runs for
	// a request that was not matched on arrival.
	MatchTimeout time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{MatchTimeout: DefaultMatchTimeout}
}

// Service is the matchmaking scheduling engine. It exclusively owns the
// request store, the timer registry, and the active-session registry; all
// mutation flows through its operations (enqueue, cancel, matching passes).
//
// Mutual exclusion: schedMu is the single-flight guard serializing matching
// passes and cancellations, so no pass ever observes a half-removed pair.
// The immediate trigger keeps its best-effort semantics with TryLock — when
// another pass is running the new arrival just stays queued and its timeout
// pass is the guaranteed fallback. The timeout trigger blocks on the mutex
// instead of spin-retrying, so it cannot starve.
type Service struct {
	cfg      Config
	nats     *messaging.NATSClient
	notifier Notifier

	schedMu  sync.Mutex
	store    *Store
	timers   *TimerRegistry
	sessions *SessionRegistry
}

// NewService creates the engine. nats may be nil when the broker
// subscriptions are not needed (tests drive Enqueue/Cancel directly).
func NewService(cfg Config, nats *messaging.NATSClient, notifier Notifier) *Service {
	if cfg.MatchTimeout <= 0 {
		cfg.MatchTimeout = DefaultMatchTimeout
	}
	return &Service{
		cfg:      cfg,
		nats:     nats,
		notifier: notifier,
		store:    NewStore(),
		timers:   NewTimerRegistry(),
		sessions: NewSessionRegistry(),
	}
}

// Start subscribes to the broker intake subjects.
func (s *Service) Start() error {
	if err := s.nats.SubscribeMatchRequest(s.handleMatchRequest); err != nil {
		return err
	}
	if err := s.nats.SubscribeMatchCancel(s.handleCancelRequest); err != nil {
		return err
	}
	log.Printf("[matcher] service started (timeout=%s)", s.cfg.MatchTimeout)
	return nil
}

// Stop cancels all pending timers. Queued requests are dropped; the queue
// is rebuilt from zero on restart.
func (s *Service) Stop() {
	s.timers.StopAll()
	log.Println("[matcher] service stopped")
}

// Sessions exposes the active-session registry, so collaborators can ask
// whether a user already has a live match.
func (s *Service) Sessions() *SessionRegistry {
	return s.sessions
}

// QueueLen returns the number of pending requests.
func (s *Service) QueueLen() int {
	return s.store.Len()
}

func (s *Service) handleMatchRequest(data []byte) {
	var req MatchRequest
	if err := json.Unmarshal(data, &req); err != nil {
		metrics.RequestsTotal.WithLabelValues("invalid").Inc()
		log.Printf("[matcher] invalid match request: %v", err)
		return
	}
	if err := req.Validate(); err != nil {
		metrics.RequestsTotal.WithLabelValues("invalid").Inc()
		log.Printf("[matcher] rejected match request: %v", err)
		// A rejected request that still carries an identity gets told why.
		if req.UserID != "" {
			s.notifier.Error(req.UserID, err.Error())
		}
		return
	}
	s.Enqueue(&req)
}

func (s *Service) handleCancelRequest(data []byte) {
	var req CancelRequest
	if err := json.Unmarshal(data, &req); err != nil {
		log.Printf("[matcher] invalid cancel request: %v", err)
		return
	}
	if req.UserID == "" {
		log.Printf("[matcher] cancel request missing userId")
		return
	}
	s.Cancel(req.UserID)
}

// Enqueue accepts a validated request: inserts it (or refreshes the
// existing entry on duplicate delivery), attempts an immediate match, and
// arms the wait timer if the request is still pending.
func (s *Service) Enqueue(req *MatchRequest) {
	if req.EnqueuedAt.IsZero() {
		req.EnqueuedAt = time.Now()
	}

	if !s.store.Enqueue(req) {
		metrics.RequestsTotal.WithLabelValues("duplicate").Inc()
		log.Printf("[matcher] duplicate request from %s refreshed in place", req.UserID)
		return
	}
	metrics.RequestsTotal.WithLabelValues("accepted").Inc()
	metrics.QueueSize.Set(float64(s.store.Len()))
	log.Printf("[matcher] enqueued %s (difficulty=%s lang=%q categories=%v, queue size: %d)",
		req.UserID, req.Difficulty, req.Language, req.Categories, s.store.Len())

	if s.schedMu.TryLock() {
		matched := s.immediatePassLocked(req)
		s.schedMu.Unlock()
		if matched {
			return
		}
	} else {
		log.Printf("[matcher] pass in progress, deferring %s to timeout pass", req.UserID)
	}

	// Arm only while the request is still pending. A pass that matches it
	// in this window leaves a stale timer behind; the fired timer finds no
	// entry and reaps itself.
	if s.store.Get(req.UserID) != nil {
		s.timers.Arm(req.UserID, s.cfg.MatchTimeout, func() {
			s.timeoutPass(req.UserID)
		})
	}
}

// Cancel removes a pending request and its timer. Idempotent: cancelling an
// unknown user only logs. A cancellation arriving while a pass holds the
// scheduler lock waits for it; a committed match is never rolled back, the
// late cancel just becomes a no-op.
func (s *Service) Cancel(userID string) {
	s.schedMu.Lock()
	removed := s.store.Remove(userID)
	s.timers.Cancel(userID)
	s.schedMu.Unlock()

	if removed {
		metrics.CancellationsTotal.Inc()
		metrics.QueueSize.Set(float64(s.store.Len()))
		log.Printf("[matcher] %s removed from the queue via cancellation", userID)
	} else {
		log.Printf("[matcher] %s not found in the queue during cancellation", userID)
	}
	s.notifier.Cancelled(userID)
}

// immediatePassLocked pairs a newly arrived request against all currently
// pending requests. Caller holds schedMu. Returns true when a pair was
// committed.
func (s *Service) immediatePassLocked(req *MatchRequest) bool {
	candidates := s.store.Snapshot(func(r *MatchRequest) bool {
		return Compatible(req, r)
	})
	partner := FirstCompatible(req, candidates)
	if partner == nil {
		return false
	}

	s.store.Remove(req.UserID)
	s.store.Remove(partner.UserID)
	s.timers.Cancel(req.UserID)
	s.timers.Cancel(partner.UserID)
	s.commitMatchLocked(req, partner)
	return true
}

// timeoutPass resolves a request whose wait timer expired. The request
// leaves the queue either way: paired with a partner still inside the
// eligibility window, or removed with exactly one noMatchFound outcome.
// It never re-arms.
func (s *Service) timeoutPass(userID string) {
	s.schedMu.Lock()
	defer s.schedMu.Unlock()

	// Reap this pass's own fired timer handle.
	defer s.timers.Cancel(userID)

	req := s.store.Get(userID)
	if req == nil {
		log.Printf("[matcher] %s already matched or cancelled before timeout", userID)
		return
	}

	// Entries older than the window are excluded from candidacy but not
	// purged here: each owns a timer guaranteed to resolve it.
	now := time.Now()
	candidates := s.store.Snapshot(func(r *MatchRequest) bool {
		return r.UserID != userID && now.Sub(r.EnqueuedAt) <= s.cfg.MatchTimeout
	})
	partner := FirstCompatible(req, candidates)

	s.store.Remove(userID)

	if partner == nil {
		metrics.TimeoutsTotal.Inc()
		metrics.QueueSize.Set(float64(s.store.Len()))
		log.Printf("[matcher] no match for %s within %s", userID, s.cfg.MatchTimeout)
		s.notifier.NoMatchFound(req)
		return
	}

	s.store.Remove(partner.UserID)
	s.timers.Cancel(partner.UserID)
	s.commitMatchLocked(req, partner)
}

// commitMatchLocked registers the session and hands the pair to the
// notifier. Both queue entries and timers are already gone; from here on
// the pairing is committed and delivery failures cannot unwind it. Caller
// holds schedMu.
func (s *Service) commitMatchLocked(a, b *MatchRequest) {
	sess := NewMatchSession(a, b)
	s.sessions.Add(sess)

	metrics.MatchesTotal.Inc()
	metrics.ActiveSessions.Set(float64(s.sessions.Len()))
	metrics.QueueSize.Set(float64(s.store.Len()))
	metrics.MatchWaitSeconds.Observe(time.Since(a.EnqueuedAt).Seconds())
	metrics.MatchWaitSeconds.Observe(time.Since(b.EnqueuedAt).Seconds())

	log.Printf("[matcher] matched %s with %s (match=%s shared=%v)",
		a.UserID, b.UserID, sess.MatchID, sess.SharedCategories)

	s.notifier.MatchFound(sess, a, b)
}
