package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spec-kit/session-service/internal/domain"
	"github.com/spec-kit/session-service/internal/events"
	"github.com/spec-kit/session-service/internal/observability"
)

func TestAuditServiceLogsEvents(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()

	audit := NewAuditService(dispatcher, zap.New(core), metrics)
	audit.RegisterHandlers()

	ctx := context.Background()
	user := &domain.User{ID: "u-1", Username: "ada", Role: domain.RoleConsumer}
	require.NoError(t, dispatcher.Publish(ctx, events.NewEvent(events.EventUserLoggedIn, events.ActorFromUser(user), nil)))
	require.NoError(t, dispatcher.Publish(ctx, events.NewEvent(events.EventLoginFailed, events.Actor{}, events.LoginFailedPayload{
		Email:  "a@x.com",
		Reason: "bad_password",
	})))

	entries := logs.All()
	require.Len(t, entries, 2)

	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	fields := entries[0].ContextMap()
	assert.Equal(t, "user_logged_in", fields["event_type"])
	assert.Equal(t, "u-1", fields["user_id"])
	assert.Equal(t, "ada", fields["username"])
	assert.Equal(t, "consumer", fields["role"])

	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.NotContains(t, entries[1].ContextMap(), "user_id")

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), `session_service_session_events_total{type="login_failed"} 1`)
	assert.Contains(t, rec.Body.String(), `session_service_session_events_total{type="user_logged_in"} 1`)
}

func TestAuditServiceWithoutDispatcher(t *testing.T) {
	audit := NewAuditService(nil, nil, nil)
	assert.NotPanics(t, audit.RegisterHandlers)
}
