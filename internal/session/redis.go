// Package session reads per-shop OAuth sessions from Redis. The OAuth flow
// that writes them lives outside this service; here the store is a read-only
// credential source for the admin mutation tier and the webhook admin API.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when a shop has no stored session.
var ErrNotFound = errors.New("no session for shop")

// Session is the stored OAuth session for one shop.
type Session struct {
	Shop        string    `json:"shop"`
	AccessToken string    `json:"access_token"`
	Scope       string    `json:"scope"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store holds shop sessions under session:<shop> as JSON values.
type Store struct {
	client *redis.Client
}

// New connects to Redis and fails fast if it is unreachable.
func New(redisURL string) (*Store, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &Store{client: client}, nil
}

// Ping is used by the readiness endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}

func sessionKey(shop string) string {
	return "session:" + shop
}

// Get returns the session for a shop, or ErrNotFound.
func (s *Store) Get(ctx context.Context, shop string) (Session, error) {
	data, err := s.client.Get(ctx, sessionKey(shop)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, err
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return Session{}, err
	}
	return sess, nil
}

// AccessToken returns just the admin access token for a shop. Implements
// mutation.TokenSource.
func (s *Store) AccessToken(ctx context.Context, shop string) (string, error) {
	sess, err := s.Get(ctx, shop)
	if err != nil {
		return "", err
	}
	if sess.AccessToken == "" {
		return "", ErrNotFound
	}
	return sess.AccessToken, nil
}
