package repository

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestLoginAttemptKeyNormalizesEmail(t *testing.T) {
	assert.Equal(t, "session:login_failures:a@x.com", loginAttemptKey("  A@X.com "))
	assert.Equal(t, loginAttemptKey("a@x.com"), loginAttemptKey("A@x.COM"))
}

func TestLoginAttemptsSurfaceStoreErrors(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()
	repo := NewLoginAttemptRepository(client)
	ctx := context.Background()

	_, err := repo.Count(ctx, "a@x.com")
	assert.Error(t, err)

	_, err = repo.RecordFailure(ctx, "a@x.com", time.Minute)
	assert.Error(t, err)

	assert.Error(t, repo.Reset(ctx, "a@x.com"))
}
