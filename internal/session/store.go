package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// SessionPrefix is the Redis key prefix for all session hashes.
	SessionPrefix = "session:"

	// SessionTTL is the time-to-live for session keys in Redis.
	SessionTTL = 1 * time.Hour

	// Status constants for the session state machine.
	StatusIdle     = "idle"
	StatusMatching = "matching"
	StatusMatched  = "matched"
)

// Session represents a user's presence state stored in Redis.
type Session struct {
	UserID     string `redis:"user_id"`
	Status     string `redis:"status"`      // idle | matching | matched
	MatchID    string `redis:"match_id"`    // empty unless matched
	Server     string `redis:"server"`      // which gateway instance
	CreatedAt  int64  `redis:"created_at"`  // unix timestamp
	LastActive int64  `redis:"last_active"` // unix timestamp
}

// Store manages session state in Redis.
type Store struct {
	client     *redis.Client
	serverName string // identifier for this gateway instance
}

// NewStore creates a new session store connected to Redis.
func NewStore(redisAddr string, serverName string) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	// Verify connection.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("session: redis connection failed: %w", err)
	}

	return &Store{client: client, serverName: serverName}, nil
}

// NewStoreWithClient wraps an existing Redis client, for components that
// share a connection (e.g. the matcher's notifier).
func NewStoreWithClient(client *redis.Client, serverName string) *Store {
	return &Store{client: client, serverName: serverName}
}

// Create stores a new session in Redis with idle status and the default TTL.
func (s *Store) Create(ctx context.Context, userID string) error {
	key := SessionPrefix + userID
	now := time.Now().Unix()

	session := map[string]interface{}{
		"user_id":     userID,
		"status":      StatusIdle,
		"match_id":    "",
		"server":      s.serverName,
		"created_at":  now,
		"last_active": now,
	}

	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key, session)
	pipe.Expire(ctx, key, SessionTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// Get retrieves a session from Redis. Returns nil if not found.
func (s *Store) Get(ctx context.Context, userID string) (*Session, error) {
	key := SessionPrefix + userID
	var session Session
	err := s.client.HGetAll(ctx, key).Scan(&session)
	if err != nil {
		return nil, err
	}
	if session.UserID == "" {
		return nil, nil // not found
	}
	return &session, nil
}

// IsOnline reports whether a presence record exists for the user.
func (s *Store) IsOnline(ctx context.Context, userID string) (bool, error) {
	n, err := s.client.Exists(ctx, SessionPrefix+userID).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, err
	}
	return n > 0, nil
}

// UpdateStatus updates the session status and refreshes the TTL.
func (s *Store) UpdateStatus(ctx context.Context, userID string, status string) error {
	key := SessionPrefix + userID
	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key, "status", status, "last_active", time.Now().Unix())
	pipe.Expire(ctx, key, SessionTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// SetMatch records the user's live match and marks the status as matched.
func (s *Store) SetMatch(ctx context.Context, userID string, matchID string) error {
	key := SessionPrefix + userID
	return s.client.HSet(ctx, key, "match_id", matchID, "status", StatusMatched, "last_active", time.Now().Unix()).Err()
}

// ClearMatch removes the live match and resets status to idle, e.g. when
// the collaboration session ends.
func (s *Store) ClearMatch(ctx context.Context, userID string) error {
	key := SessionPrefix + userID
	return s.client.HSet(ctx, key, "match_id", "", "status", StatusIdle, "last_active", time.Now().Unix()).Err()
}

// RefreshTTL extends the session's TTL.
func (s *Store) RefreshTTL(ctx context.Context, userID string) error {
	return s.client.Expire(ctx, SessionPrefix+userID, SessionTTL).Err()
}

// Delete removes a session from Redis.
func (s *Store) Delete(ctx context.Context, userID string) error {
	return s.client.Del(ctx, SessionPrefix+userID).Err()
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// Client returns the underlying Redis client for use by other packages.
func (s *Store) Client() *redis.Client {
	return s.client
}
