// Package messaging provides a NATS client wrapper for pub/sub messaging
// between the matching engine and its gateways. It handles connection
// lifecycle with bounded startup retries, subject-based subscriptions, and
// convenience methods for the matchmaking channels.
package messaging

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// NATS subject patterns used by the matching service.
const (
	SubjectMatchRequest   = "match.request"
	SubjectMatchCancel    = "match.cancel"
	SubjectMatchFound     = "match.found"     // + .<user_id>
	SubjectNoMatch        = "match.nomatch"   // + .<user_id>
	SubjectMatchCancelled = "match.cancelled" // + .<user_id>
	SubjectMatchError     = "match.error"     // + .<user_id>
)

// NATSClient wraps the NATS connection with helper methods for pub/sub.
type NATSClient struct {
	conn *nats.Conn
	mu   sync.Mutex
	subs map[string]*nats.Subscription
}

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	URL            string        // nats://localhost:4222
	Name           string        // client name for identification
	ConnectRetries int           // bounded initial connection attempts
	ConnectBackoff time.Duration // fixed delay between attempts
	ReconnectWait  time.Duration // time between reconnect attempts once connected
	MaxReconnects  int           // max reconnect attempts (-1 for infinite)
}

// DefaultNATSConfig returns sensible defaults. The initial connection is
// retried 3 times, 15 seconds apart; matching cannot run without the intake
// channel, so callers treat exhaustion as fatal.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:            "nats://localhost:4222",
		Name:           "matching",
		ConnectRetries: 3,
		ConnectBackoff: 15 * time.Second,
		ReconnectWait:  2 * time.Second,
		MaxReconnects:  -1,
	}
}

// NewNATSClient connects to NATS with the given config and returns a ready
// client. The initial connection is attempted a bounded number of times with
// a fixed backoff; the error returned after the last attempt carries the
// underlying cause.
func NewNATSClient(config NATSConfig) (*NATSClient, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[nats] disconnected: %v", err)
			} else {
				log.Printf("[nats] disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[nats] reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Printf("[nats] connection closed")
		}),
	}

	attempts := config.ConnectRetries
	if attempts < 1 {
		attempts = 1
	}

	var nc *nats.Conn
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		log.Printf("[nats] attempt %d: connecting to %s", attempt, config.URL)
		nc, err = nats.Connect(config.URL, opts...)
		if err == nil {
			break
		}
		log.Printf("[nats] attempt %d: connect failed: %v", attempt, err)
		if attempt < attempts {
			log.Printf("[nats] retrying in %s", config.ConnectBackoff)
			time.Sleep(config.ConnectBackoff)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("nats connect after %d attempts: %w", attempts, err)
	}

	log.Printf("[nats] connected to %s", nc.ConnectedUrl())

	return &NATSClient{
		conn: nc,
		subs: make(map[string]*nats.Subscription),
	}, nil
}

// Publish sends data to the given NATS subject.
func (c *NATSClient) Publish(subject string, data []byte) error {
	return c.conn.Publish(subject, data)
}

// Subscribe registers a handler for the given subject and stores the
// subscription internally for later cleanup. A repeated subscribe for the
// same subject (e.g. a second login on a live connection) replaces the old
// subscription rather than orphaning it, so each event is delivered once.
func (c *NATSClient) Subscribe(subject string, handler func(msg *nats.Msg)) error {
	sub, err := c.conn.Subscribe(subject, handler)
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	c.mu.Lock()
	prev := c.subs[subject]
	c.subs[subject] = sub
	c.mu.Unlock()

	if prev != nil {
		if err := prev.Unsubscribe(); err != nil {
			log.Printf("[nats] unsubscribe replaced %s: %v", subject, err)
		}
	}
	return nil
}

// PublishMatchRequest publishes a match request to the intake subject.
func (c *NATSClient) PublishMatchRequest(data []byte) error {
	return c.Publish(SubjectMatchRequest, data)
}

// SubscribeMatchRequest subscribes to match requests from gateways.
func (c *NATSClient) SubscribeMatchRequest(handler func(data []byte)) error {
	return c.Subscribe(SubjectMatchRequest, func(msg *nats.Msg) {
		handler(msg.Data)
	})
}

// PublishMatchCancel publishes a match cancellation request.
func (c *NATSClient) PublishMatchCancel(data []byte) error {
	return c.Publish(SubjectMatchCancel, data)
}

// SubscribeMatchCancel subscribes to match cancellation requests.
func (c *NATSClient) SubscribeMatchCancel(handler func(data []byte)) error {
	return c.Subscribe(SubjectMatchCancel, func(msg *nats.Msg) {
		handler(msg.Data)
	})
}

// PublishMatchFound publishes a matchFound event to a specific user.
func (c *NATSClient) PublishMatchFound(userID string, data []byte) error {
	return c.Publish(SubjectMatchFound+"."+userID, data)
}

// SubscribeMatchFound subscribes to matchFound events for a specific user.
func (c *NATSClient) SubscribeMatchFound(userID string, handler func(data []byte)) error {
	return c.Subscribe(SubjectMatchFound+"."+userID, func(msg *nats.Msg) {
		handler(msg.Data)
	})
}

// PublishNoMatch publishes a noMatchFound event to a specific user.
func (c *NATSClient) PublishNoMatch(userID string, data []byte) error {
	return c.Publish(SubjectNoMatch+"."+userID, data)
}

// SubscribeNoMatch subscribes to noMatchFound events for a specific user.
func (c *NATSClient) SubscribeNoMatch(userID string, handler func(data []byte)) error {
	return c.Subscribe(SubjectNoMatch+"."+userID, func(msg *nats.Msg) {
		handler(msg.Data)
	})
}

// PublishCancelled publishes a cancellation acknowledgment to a specific user.
func (c *NATSClient) PublishCancelled(userID string, data []byte) error {
	return c.Publish(SubjectMatchCancelled+"."+userID, data)
}

// SubscribeCancelled subscribes to cancellation acknowledgments for a user.
func (c *NATSClient) SubscribeCancelled(userID string, handler func(data []byte)) error {
	return c.Subscribe(SubjectMatchCancelled+"."+userID, func(msg *nats.Msg) {
		handler(msg.Data)
	})
}

// PublishMatchError publishes an error event to a specific user.
func (c *NATSClient) PublishMatchError(userID string, data []byte) error {
	return c.Publish(SubjectMatchError+"."+userID, data)
}

// SubscribeMatchError subscribes to error events for a specific user.
func (c *NATSClient) SubscribeMatchError(userID string, handler func(data []byte)) error {
	return c.Subscribe(SubjectMatchError+"."+userID, func(msg *nats.Msg) {
		handler(msg.Data)
	})
}

// UnsubscribeUser drops all per-user outcome subscriptions for the given
// user, e.g. when their gateway connection closes.
func (c *NATSClient) UnsubscribeUser(userID string) {
	for _, prefix := range []string{SubjectMatchFound, SubjectNoMatch, SubjectMatchCancelled, SubjectMatchError} {
		_ = c.unsubscribe(prefix + "." + userID)
	}
}

// Close drains all active subscriptions and closes the NATS connection.
func (c *NATSClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for subject, sub := range c.subs {
		if err := sub.Drain(); err != nil {
			log.Printf("[nats] drain %s: %v", subject, err)
		}
	}
	c.subs = make(map[string]*nats.Subscription)

	if err := c.conn.Drain(); err != nil {
		log.Printf("[nats] connection drain: %v", err)
	}

	log.Printf("[nats] client closed")
}

// unsubscribe removes and unsubscribes from a specific subject.
func (c *NATSClient) unsubscribe(subject string) error {
	c.mu.Lock()
	sub, ok := c.subs[subject]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("nats: no subscription for subject %s", subject)
	}
	delete(c.subs, subject)
	c.mu.Unlock()

	if err := sub.Unsubscribe(); err != nil {
		return fmt.Errorf("nats unsubscribe %s: %w", subject, err)
	}
	return nil
}
