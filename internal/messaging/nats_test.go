package messaging

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
)

// newTestClient connects to a local NATS instance. Tests that call this
// helper require a running NATS server on localhost:4222.
func newTestClient(t *testing.T) *NATSClient {
	t.Helper()
	config := DefaultNATSConfig()
	config.Name = "messaging-test"
	config.ConnectRetries = 1
	client, err := NewNATSClient(config)
	if err != nil {
		t.Skipf("nats not available: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

// waitFor polls until the counter reaches want or the deadline passes.
func waitFor(t *testing.T, counter *int32, want int32) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for atomic.LoadInt32(counter) < want {
		select {
		case <-deadline:
			t.Fatalf("expected %d deliveries, got %d", want, atomic.LoadInt32(counter))
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestSubscribe_ResubscribeReplacesOldSubscription(t *testing.T) {
	client := newTestClient(t)
	userID := "test_" + uuid.New().String()

	var first, second int32
	if err := client.SubscribeMatchFound(userID, func(data []byte) {
		atomic.AddInt32(&first, 1)
	}); err != nil {
		t.Fatalf("first subscribe: %v", err)
	}
	// Second login on the same connection re-subscribes the same subject.
	if err := client.SubscribeMatchFound(userID, func(data []byte) {
		atomic.AddInt32(&second, 1)
	}); err != nil {
		t.Fatalf("second subscribe: %v", err)
	}

	if err := client.PublishMatchFound(userID, []byte(`{"matchId":"m1"}`)); err != nil {
		t.Fatalf("publish: %v", err)
	}

	waitFor(t, &second, 1)
	// Give a leaked first subscription time to show up.
	time.Sleep(100 * time.Millisecond)

	if n := atomic.LoadInt32(&first); n != 0 {
		t.Errorf("replaced subscription received %d events, want 0", n)
	}
	if n := atomic.LoadInt32(&second); n != 1 {
		t.Errorf("expected exactly one delivery, got %d", n)
	}
}

func TestUnsubscribeUser_ReachesCurrentSubscriptions(t *testing.T) {
	client := newTestClient(t)
	userID := "test_" + uuid.New().String()

	var delivered int32
	handler := func(data []byte) { atomic.AddInt32(&delivered, 1) }

	// Subscribe twice so the live handles are the replacements, then drop
	// them all. Nothing may be delivered afterwards.
	for i := 0; i < 2; i++ {
		if err := client.SubscribeMatchFound(userID, handler); err != nil {
			t.Fatalf("subscribe matchFound: %v", err)
		}
		if err := client.SubscribeNoMatch(userID, handler); err != nil {
			t.Fatalf("subscribe noMatch: %v", err)
		}
		if err := client.SubscribeCancelled(userID, handler); err != nil {
			t.Fatalf("subscribe cancelled: %v", err)
		}
		if err := client.SubscribeMatchError(userID, handler); err != nil {
			t.Fatalf("subscribe error: %v", err)
		}
	}
	client.UnsubscribeUser(userID)

	if err := client.PublishMatchFound(userID, []byte(`{}`)); err != nil {
		t.Fatalf("publish matchFound: %v", err)
	}
	if err := client.PublishNoMatch(userID, []byte(`{}`)); err != nil {
		t.Fatalf("publish noMatch: %v", err)
	}
	if err := client.PublishCancelled(userID, []byte(`{}`)); err != nil {
		t.Fatalf("publish cancelled: %v", err)
	}
	if err := client.PublishMatchError(userID, []byte(`{}`)); err != nil {
		t.Fatalf("publish error: %v", err)
	}

	time.Sleep(200 * time.Millisecond)
	if n := atomic.LoadInt32(&delivered); n != 0 {
		t.Errorf("received %d events after UnsubscribeUser, want 0", n)
	}
}

func TestPublishSubscribeRoundTrip(t *testing.T) {
	client := newTestClient(t)

	var got int32
	if err := client.SubscribeMatchRequest(func(data []byte) {
		atomic.AddInt32(&got, 1)
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := client.PublishMatchRequest([]byte(`{"userId":"u1"}`)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	waitFor(t, &got, 1)
}
