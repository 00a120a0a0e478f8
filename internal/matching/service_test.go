package matching

import (
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"
)

// fakeNotifier records outcome deliveries for assertions.
type fakeNotifier struct {
	mu        sync.Mutex
	matches   []*MatchSession
	noMatches []string // user IDs
	cancels   []string
	errors    []string
}

func (f *fakeNotifier) MatchFound(sess *MatchSession, a, b *MatchRequest) {
	f.mu.Lock()
	f.matches = append(f.matches, sess)
	f.mu.Unlock()
}

func (f *fakeNotifier) NoMatchFound(req *MatchRequest) {
	f.mu.Lock()
	f.noMatches = append(f.noMatches, req.UserID)
	f.mu.Unlock()
}

func (f *fakeNotifier) Cancelled(userID string) {
	f.mu.Lock()
	f.cancels = append(f.cancels, userID)
	f.mu.Unlock()
}

func (f *fakeNotifier) Error(userID string, msg string) {
	f.mu.Lock()
	f.errors = append(f.errors, userID)
	f.mu.Unlock()
}

func (f *fakeNotifier) matchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.matches)
}

func (f *fakeNotifier) noMatchesFor(userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, id := range f.noMatches {
		if id == userID {
			n++
		}
	}
	return n
}

// newTestService builds an engine with a short timeout and no broker.
func newTestService(timeout time.Duration) (*Service, *fakeNotifier) {
	fake := &fakeNotifier{}
	svc := NewService(Config{MatchTimeout: timeout}, nil, fake)
	return svc, fake
}

func TestService_ImmediateMatchOnArrival(t *testing.T) {
	svc, fake := newTestService(time.Hour)
	defer svc.Stop()

	// A waits alone, B arrives compatible: immediate pairing on B's arrival.
	svc.Enqueue(testRequest("alice", DifficultyEasy, []string{"Arrays"}, 0))
	if fake.matchCount() != 0 {
		t.Fatal("lone request must not match")
	}

	svc.Enqueue(testRequest("bob", DifficultyEasy, []string{"Arrays", "Strings"}, 0))

	if fake.matchCount() != 1 {
		t.Fatalf("expected exactly 1 match, got %d", fake.matchCount())
	}
	sess := fake.matches[0]
	if sess.Partner("alice") != "bob" || sess.Partner("bob") != "alice" {
		t.Errorf("session should pair alice and bob: %+v", sess)
	}
	if len(sess.SharedCategories) != 1 || sess.SharedCategories[0] != "Arrays" {
		t.Errorf("expected shared categories [Arrays], got %v", sess.SharedCategories)
	}

	// A successful pairing removes exactly two entries and both timers.
	if svc.QueueLen() != 0 {
		t.Errorf("store should be empty, has %d entries", svc.QueueLen())
	}
	if svc.timers.Len() != 0 {
		t.Errorf("all timers should be cancelled, %d remain", svc.timers.Len())
	}
	if svc.Sessions().ForUser("alice") == nil || svc.Sessions().ForUser("bob") == nil {
		t.Error("both participants should have a registered session")
	}
}

func TestService_PairRemovesExactlyTwo(t *testing.T) {
	svc, fake := newTestService(time.Hour)
	defer svc.Stop()

	svc.Enqueue(testRequest("alice", DifficultyEasy, []string{"Arrays"}, 0))
	svc.Enqueue(testRequest("carol", DifficultyHard, []string{"Arrays"}, 0))
	svc.Enqueue(testRequest("bob", DifficultyEasy, []string{"Arrays"}, 0))

	if fake.matchCount() != 1 {
		t.Fatalf("expected 1 match, got %d", fake.matchCount())
	}
	if svc.QueueLen() != 1 {
		t.Fatalf("expected 1 leftover entry, got %d", svc.QueueLen())
	}
	if svc.store.Get("carol") == nil {
		t.Error("the incompatible request should stay queued")
	}
	if svc.timers.Len() != 1 {
		t.Errorf("only the leftover request should keep a timer, got %d", svc.timers.Len())
	}
}

func TestService_LoneRequesterTimesOut(t *testing.T) {
	svc, fake := newTestService(30 * time.Millisecond)
	defer svc.Stop()

	svc.Enqueue(testRequest("carl", DifficultyHard, []string{"Recursion"}, 0))

	deadline := time.After(2 * time.Second)
	for fake.noMatchesFor("carl") == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for noMatchFound")
		case <-time.After(10 * time.Millisecond):
		}
	}

	// Give any spurious second resolution a chance to surface.
	time.Sleep(100 * time.Millisecond)

	if n := fake.noMatchesFor("carl"); n != 1 {
		t.Errorf("expected exactly one noMatchFound for carl, got %d", n)
	}
	if fake.matchCount() != 0 {
		t.Errorf("no match should have been formed, got %d", fake.matchCount())
	}
	if svc.QueueLen() != 0 {
		t.Errorf("store should end empty, has %d entries", svc.QueueLen())
	}
	if svc.timers.Len() != 0 {
		t.Errorf("no timers should remain, got %d", svc.timers.Len())
	}
}

func TestService_TimeoutPairsWithWaitingCandidate(t *testing.T) {
	svc, fake := newTestService(time.Minute)
	defer svc.Stop()

	// Stage the store directly so the immediate trigger is not involved,
	// then drive the deferred pass by hand.
	a := testRequest("alice", DifficultyMedium, []string{"Trees"}, -2*time.Second)
	b := testRequest("bob", DifficultyMedium, []string{"Trees"}, -1*time.Second)
	svc.store.Enqueue(a)
	svc.store.Enqueue(b)

	svc.timeoutPass("alice")

	if fake.matchCount() != 1 {
		t.Fatalf("expected 1 match from timeout pass, got %d", fake.matchCount())
	}
	if svc.QueueLen() != 0 {
		t.Errorf("both entries should be removed, %d remain", svc.QueueLen())
	}
}

func TestService_TimeoutExcludesStaleCandidates(t *testing.T) {
	svc, fake := newTestService(time.Minute)
	defer svc.Stop()

	a := testRequest("alice", DifficultyMedium, []string{"Trees"}, -time.Second)
	stale := testRequest("bob", DifficultyMedium, []string{"Trees"}, -3*time.Minute)
	svc.store.Enqueue(a)
	svc.store.Enqueue(stale)

	svc.timeoutPass("alice")

	if fake.matchCount() != 0 {
		t.Fatal("a candidate beyond the wait window must not be eligible")
	}
	if fake.noMatchesFor("alice") != 1 {
		t.Error("alice should receive exactly one noMatchFound")
	}
	// Stale entries are not purged here; their own timers resolve them.
	if svc.store.Get("bob") == nil {
		t.Error("the stale entry should remain for its own timer")
	}
}

func TestService_TimeoutAfterResolutionIsNoOp(t *testing.T) {
	svc, fake := newTestService(time.Minute)
	defer svc.Stop()

	svc.timeoutPass("ghost")

	if fake.matchCount() != 0 || len(fake.noMatches) != 0 {
		t.Error("a pass for a resolved request must have no side effects")
	}
}

func TestService_CancelBeforeTimeout(t *testing.T) {
	svc, fake := newTestService(50 * time.Millisecond)
	defer svc.Stop()

	svc.Enqueue(testRequest("dave", DifficultyEasy, []string{"Arrays"}, 0))
	svc.Cancel("dave")

	if svc.QueueLen() != 0 {
		t.Error("cancelled request should leave the store")
	}
	if svc.timers.Len() != 0 {
		t.Error("cancelled request's timer should be gone")
	}

	// Past the would-be timeout: no match/timeout event may surface.
	time.Sleep(150 * time.Millisecond)

	if fake.matchCount() != 0 {
		t.Error("no match event expected for a cancelled request")
	}
	if len(fake.noMatches) != 0 {
		t.Errorf("no timeout event expected for a cancelled request, got %v", fake.noMatches)
	}
	if len(fake.cancels) != 1 || fake.cancels[0] != "dave" {
		t.Errorf("expected one cancellation ack for dave, got %v", fake.cancels)
	}
}

func TestService_CancelUnknownIsNoOp(t *testing.T) {
	svc, fake := newTestService(time.Hour)
	defer svc.Stop()

	svc.Cancel("nobody")

	if svc.QueueLen() != 0 || svc.timers.Len() != 0 {
		t.Error("cancelling an unknown user must not touch state")
	}
	if len(fake.cancels) != 1 {
		t.Errorf("cancellation should still be acknowledged, got %v", fake.cancels)
	}
	if fake.matchCount() != 0 || len(fake.noMatches) != 0 {
		t.Error("no other events expected")
	}
}

func TestService_DifficultyMismatchNeverMatches(t *testing.T) {
	svc, fake := newTestService(30 * time.Millisecond)
	defer svc.Stop()

	svc.Enqueue(testRequest("easy", DifficultyEasy, []string{"Arrays", "Strings"}, 0))
	svc.Enqueue(testRequest("hard", DifficultyHard, []string{"Arrays", "Strings"}, 0))

	deadline := time.After(2 * time.Second)
	for fake.noMatchesFor("easy") == 0 || fake.noMatchesFor("hard") == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for both timeout resolutions")
		case <-time.After(10 * time.Millisecond):
		}
	}

	if fake.matchCount() != 0 {
		t.Error("different difficulties must never match")
	}
	if svc.QueueLen() != 0 {
		t.Errorf("store should end empty, has %d entries", svc.QueueLen())
	}
}

func TestService_DuplicateDeliverySingleSlot(t *testing.T) {
	svc, _ := newTestService(time.Hour)
	defer svc.Stop()

	svc.Enqueue(testRequest("erin", DifficultyMedium, []string{"Graphs"}, 0))
	svc.Enqueue(testRequest("erin", DifficultyMedium, []string{"Graphs", "Trees"}, 0))
	svc.Enqueue(testRequest("erin", DifficultyMedium, []string{"Trees"}, 0))

	if svc.QueueLen() != 1 {
		t.Errorf("duplicate deliveries must share one slot, got %d", svc.QueueLen())
	}
	if svc.timers.Len() != 1 {
		t.Errorf("duplicate deliveries must share one timer, got %d", svc.timers.Len())
	}
}

func TestService_ConcurrentEnqueueUniqueness(t *testing.T) {
	svc, _ := newTestService(time.Hour)
	defer svc.Stop()

	// Hammer the engine with concurrent arrivals, including duplicates.
	// No user ID may ever occupy two slots, whatever the interleaving.
	const users = 20
	var wg sync.WaitGroup
	for i := 0; i < users; i++ {
		for dup := 0; dup < 3; dup++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				// Distinct per-user categories so nothing pairs up and the
				// final count is deterministic.
				svc.Enqueue(testRequest(
					fmt.Sprintf("user-%d", i),
					DifficultyEasy,
					[]string{fmt.Sprintf("cat-%d", i)},
					0,
				))
			}(i)
		}
	}
	wg.Wait()

	if svc.QueueLen() != users {
		t.Errorf("expected %d entries, got %d", users, svc.QueueLen())
	}

	seen := make(map[string]bool)
	for _, r := range svc.store.Snapshot(nil) {
		if seen[r.UserID] {
			t.Fatalf("user %s appears twice in the store", r.UserID)
		}
		seen[r.UserID] = true
	}
	if svc.timers.Len() != users {
		t.Errorf("expected %d timers, got %d", users, svc.timers.Len())
	}
}

func TestService_InvalidPayloadsDropped(t *testing.T) {
	svc, fake := newTestService(time.Hour)
	defer svc.Stop()

	svc.handleMatchRequest([]byte("not json"))
	svc.handleMatchRequest([]byte(`{"userId":"x","difficulty":"Impossible","categories":["a"]}`))
	svc.handleMatchRequest([]byte(`{"userId":"","difficulty":"Easy","categories":["a"]}`))
	svc.handleCancelRequest([]byte("still not json"))
	svc.handleCancelRequest([]byte(`{"userId":""}`))

	if svc.QueueLen() != 0 {
		t.Errorf("malformed payloads must not reach the store, got %d entries", svc.QueueLen())
	}
	if len(fake.cancels) != 0 {
		t.Error("malformed cancels must not be acknowledged")
	}
	// Only the rejection with a known identity produces an error event.
	if !reflect.DeepEqual(fake.errors, []string{"x"}) {
		t.Errorf("expected one error event for x, got %v", fake.errors)
	}
}
