package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const pwdVersionKeyPrefix = "pwd:ver:"

// PasswordVersions tracks the per-user password generation counter in Redis.
// Tokens embed the counter at issue time; bumping it invalidates every token
// issued before the change.
type PasswordVersions struct {
	client *redis.Client
}

// NewPasswordVersions constructs the store.
func NewPasswordVersions(client *redis.Client) *PasswordVersions {
	return &PasswordVersions{client: client}
}

// Current returns the live counter for the user, zero when none was ever
// recorded.
func (s *PasswordVersions) Current(ctx context.Context, userID int64) (int64, error) {
	v, err := s.client.Get(ctx, s.key(userID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("auth: read password version: %w", err)
	}
	return v, nil
}

// Bump increments the counter after a password change, returning the new
// value to embed in freshly issued tokens.
func (s *PasswordVersions) Bump(ctx context.Context, userID int64) (int64, error) {
	v, err := s.client.Incr(ctx, s.key(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("auth: bump password version: %w", err)
	}
	return v, nil
}

func (s *PasswordVersions) key(userID int64) string {
	return fmt.Sprintf("%s%d", pwdVersionKeyPrefix, userID)
}
