package matching

import (
	"sync"
	"time"
)

// TimerRegistry tracks the single deferred-match timer armed for each
// pending user. A timer is created when a request is enqueued without an
// immediate match and destroyed on match, cancellation, or expiry. The
// registry never holds two timers for the same identity.
type TimerRegistry struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewTimerRegistry creates an empty timer registry.
func NewTimerRegistry() *TimerRegistry {
	return &TimerRegistry{timers: make(map[string]*time.Timer)}
}

// Arm schedules fn to run after d on behalf of the given user. If a timer is
// already registered for that user the call is a no-op and returns false, so
// duplicate broker deliveries cannot stack timers.
func (t *TimerRegistry) Arm(userID string, d time.Duration, fn func()) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.timers[userID]; ok {
		return false
	}
	t.timers[userID] = time.AfterFunc(d, fn)
	return true
}

// Cancel stops and forgets the user's timer, reporting whether one existed.
// Cancelling a fired or absent timer is a no-op.
func (t *TimerRegistry) Cancel(userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	timer, ok := t.timers[userID]
	if !ok {
		return false
	}
	timer.Stop()
	delete(t.timers, userID)
	return true
}

// StopAll stops every registered timer. Used on shutdown.
func (t *TimerRegistry) StopAll() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for id, timer := range t.timers {
		timer.Stop()
		delete(t.timers, id)
	}
}

// Len returns the number of armed timers.
func (t *TimerRegistry) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.timers)
}
