package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"jobtrack_server/core/port/out"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// OAuthStateKey Redis key prefix for OAuth state
const OAuthStateKey = "oauth:state:"

// ErrStateNotFound is returned for unknown, expired or already used states.
var ErrStateNotFound = errors.New("state not found or expired")

// RedisOAuthStateStore binds a consent-flow state to the owner who started it.
type RedisOAuthStateStore struct {
	client *redis.Client
}

func NewRedisOAuthStateStore(client *redis.Client) *RedisOAuthStateStore {
	return &RedisOAuthStateStore{client: client}
}

// StoreState saves state with a TTL.
func (s *RedisOAuthStateStore) StoreState(ctx context.Context, state string, ownerID uuid.UUID, ttl time.Duration) error {
	if state == "" {
		return errors.New("state cannot be empty")
	}
	if ownerID == uuid.Nil {
		return errors.New("ownerID cannot be nil")
	}

	if err := s.client.Set(ctx, OAuthStateKey+state, ownerID.String(), ttl).Err(); err != nil {
		return fmt.Errorf("failed to store OAuth state: %w", err)
	}
	return nil
}

// ValidateState returns the owner and deletes the state in the same command,
// so a state can be redeemed once.
func (s *RedisOAuthStateStore) ValidateState(ctx context.Context, state string) (uuid.UUID, error) {
	if state == "" {
		return uuid.Nil, ErrStateNotFound
	}

	ownerIDStr, err := s.client.GetDel(ctx, OAuthStateKey+state).Result()
	if err == redis.Nil {
		return uuid.Nil, ErrStateNotFound
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to validate OAuth state: %w", err)
	}

	ownerID, err := uuid.Parse(ownerIDStr)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid ownerID in state: %w", err)
	}
	return ownerID, nil
}

var _ out.StateStore = (*RedisOAuthStateStore)(nil)
