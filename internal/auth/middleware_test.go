package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/session-service/internal/domain"
	apperrors "github.com/spec-kit/session-service/pkg/util"
)

func newErrorApp() *fiber.App {
	return fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var de *apperrors.DomainError
			if errors.As(err, &de) {
				return c.Status(de.HTTPStatus).SendString(de.Code)
			}
			return fiber.DefaultErrorHandler(c, err)
		},
	})
}

func newGuardedApp(tokens *AccessTokenManager, roles ...domain.Role) *fiber.App {
	app := newErrorApp()
	app.Get("/guarded", NewAuthMiddleware(tokens).Handle, RequireRole(roles...), func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return errors.New("principal missing")
		}
		return c.JSON(principal.User)
	})
	return app
}

func doGuarded(t *testing.T, app *fiber.App, header string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/guarded", nil)
	if header != "" {
		req.Header.Set(fiber.HeaderAuthorization, header)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func TestAuthMiddleware(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	tokens := NewAccessTokenManager(testAccessSecret, 15*time.Minute, WithClock(clock.Now))
	token, _, err := tokens.Issue(testUser())
	require.NoError(t, err)

	t.Run("valid bearer", func(t *testing.T) {
		resp := doGuarded(t, newGuardedApp(tokens), "Bearer "+string(token))
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body UserClaims
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "ada", body.Username)
		assert.Equal(t, domain.RoleCreator, body.Role)
	})

	t.Run("scheme is case insensitive", func(t *testing.T) {
		resp := doGuarded(t, newGuardedApp(tokens), "bearer "+string(token))
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("missing header", func(t *testing.T) {
		resp := doGuarded(t, newGuardedApp(tokens), "")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("wrong scheme", func(t *testing.T) {
		resp := doGuarded(t, newGuardedApp(tokens), "Basic abc")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("garbage token", func(t *testing.T) {
		resp := doGuarded(t, newGuardedApp(tokens), "Bearer nope")
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("refresh token is refused", func(t *testing.T) {
		refresh, _, err := NewRefreshTokenManager(testRefreshSecret, time.Hour).Issue(testUser())
		require.NoError(t, err)
		resp := doGuarded(t, newGuardedApp(tokens), "Bearer "+string(refresh))
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})
}

func TestRequireRole(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	tokens := NewAccessTokenManager(testAccessSecret, 15*time.Minute, WithClock(clock.Now))

	consumer := testUser()
	consumer.Role = domain.RoleConsumer
	consumerToken, _, err := tokens.Issue(consumer)
	require.NoError(t, err)

	creatorToken, _, err := tokens.Issue(testUser())
	require.NoError(t, err)

	app := newGuardedApp(tokens, domain.RoleCreator)
	assert.Equal(t, http.StatusOK, doGuarded(t, app, "Bearer "+string(creatorToken)).StatusCode)
	assert.Equal(t, http.StatusForbidden, doGuarded(t, app, "Bearer "+string(consumerToken)).StatusCode)
}

func TestRequireRoleWithoutPrincipal(t *testing.T) {
	app := newErrorApp()
	app.Get("/", RequireRole(), func(c *fiber.Ctx) error { return c.SendStatus(http.StatusOK) })

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
