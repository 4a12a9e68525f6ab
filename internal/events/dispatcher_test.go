package events

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/session-service/internal/domain"
)

func TestDispatcherDeliversToSubscribers(t *testing.T) {
	d := NewInMemoryDispatcher()

	var got []EventType
	d.Subscribe(EventUserLoggedIn, func(_ context.Context, e Event) error {
		got = append(got, e.Type)
		return nil
	})
	d.Subscribe(EventUserLoggedIn, func(_ context.Context, e Event) error {
		got = append(got, e.Type)
		return nil
	})

	require.NoError(t, d.Publish(context.Background(), NewEvent(EventUserLoggedIn, Actor{Username: "ada"}, nil)))
	require.NoError(t, d.Publish(context.Background(), NewEvent(EventSessionLoggedOut, Actor{}, nil)))

	assert.Equal(t, []EventType{EventUserLoggedIn, EventUserLoggedIn}, got)
}

func TestDispatcherRunsAllHandlersAndJoinsErrors(t *testing.T) {
	d := NewInMemoryDispatcher()
	boom := errors.New("boom")

	calls := 0
	d.Subscribe(EventLoginFailed, func(context.Context, Event) error {
		calls++
		return boom
	})
	d.Subscribe(EventLoginFailed, func(context.Context, Event) error {
		calls++
		return nil
	})

	err := d.Publish(context.Background(), NewEvent(EventLoginFailed, Actor{}, LoginFailedPayload{Email: "a@x.com"}))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls)
}

func TestDispatcherConcurrentUse(t *testing.T) {
	d := NewInMemoryDispatcher()
	var mu sync.Mutex
	count := 0

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Subscribe(EventUserRegistered, func(context.Context, Event) error {
				mu.Lock()
				count++
				mu.Unlock()
				return nil
			})
			_ = d.Publish(context.Background(), NewEvent(EventUserRegistered, Actor{}, nil))
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Positive(t, count)
}

func TestNewEvent(t *testing.T) {
	user := &domain.User{ID: "u1", Username: "ada", Role: domain.RoleConsumer}
	e := NewEvent(EventUserRegistered, ActorFromUser(user), nil)

	assert.NotEmpty(t, e.ID)
	assert.False(t, e.Timestamp.IsZero())
	assert.Equal(t, Actor{UserID: "u1", Username: "ada", Role: domain.RoleConsumer}, e.Actor)
	assert.Equal(t, Actor{}, ActorFromUser(nil))
	assert.Len(t, AllEventTypes(), 6)
}
