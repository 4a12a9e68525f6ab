package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const loginAttemptPrefix = "session:login_failures:"

// LoginAttemptRepository counts failed logins per account within a window.
type LoginAttemptRepository interface {
	Count(ctx context.Context, email string) (int64, error)
	RecordFailure(ctx context.Context, email string, window time.Duration) (int64, error)
	Reset(ctx context.Context, email string) error
}

type loginAttemptRepository struct {
	client *redis.Client
}

// NewLoginAttemptRepository returns a Redis-backed implementation.
func NewLoginAttemptRepository(client *redis.Client) LoginAttemptRepository {
	return &loginAttemptRepository{client: client}
}

func (r *loginAttemptRepository) Count(ctx context.Context, email string) (int64, error) {
	n, err := r.client.Get(ctx, loginAttemptKey(email)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

// RecordFailure increments the counter; the window starts at the first failure.
func (r *loginAttemptRepository) RecordFailure(ctx context.Context, email string, window time.Duration) (int64, error) {
	key := loginAttemptKey(email)
	n, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if n == 1 {
		if err := r.client.Expire(ctx, key, window).Err(); err != nil {
			return n, err
		}
	}
	return n, nil
}

func (r *loginAttemptRepository) Reset(ctx context.Context, email string) error {
	return r.client.Del(ctx, loginAttemptKey(email)).Err()
}

func loginAttemptKey(email string) string {
	return loginAttemptPrefix + strings.ToLower(strings.TrimSpace(email))
}
