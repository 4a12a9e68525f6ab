package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/session-service/internal/auth"
	"github.com/spec-kit/session-service/internal/domain"
	"github.com/spec-kit/session-service/pkg/identity"
)

// fakeService imitates the session endpoints closely enough to exercise the client.
type fakeService struct {
	issuerPtr atomic.Pointer[auth.TokenIssuer]
	userPtr   atomic.Pointer[domain.User]
	refreshes atomic.Int32
	logouts   atomic.Int32
}

func newFakeService(t *testing.T) *fakeService {
	t.Helper()
	f := &fakeService{}
	f.setRefreshSecret("refresh-secret")
	f.userPtr.Store(&domain.User{ID: "u-1", Name: "Ada", Username: "ada", Email: "a@x.com", Role: domain.RoleConsumer})
	return f
}

func (f *fakeService) setRefreshSecret(secret string) {
	f.issuerPtr.Store(auth.NewTokenIssuer(
		auth.NewAccessTokenManager("access-secret", 15*time.Minute),
		auth.NewRefreshTokenManager(secret, 7*24*time.Hour),
	))
}

func (f *fakeService) issuer() *auth.TokenIssuer { return f.issuerPtr.Load() }

func (f *fakeService) user() *domain.User { return f.userPtr.Load() }

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]string{"code": code, "message": message}})
}

func writeToken(w http.ResponseWriter, status int, token auth.AccessToken, exp time.Time) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"accessToken": token, "expiresAt": exp})
}

func (f *fakeService) session(w http.ResponseWriter, status int) {
	pair, err := f.issuer().Issue(f.user())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     "jwt",
		Value:    string(pair.RefreshToken),
		Path:     "/",
		MaxAge:   int((7 * 24 * time.Hour).Seconds()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
	})
	writeToken(w, status, pair.AccessToken, pair.AccessExpiresAt)
}

func (f *fakeService) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var in loginParams
		_ = json.NewDecoder(r.Body).Decode(&in)
		if in.Email != f.user().Email || in.Password != "secret1" {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Incorrect Password!")
			return
		}
		f.session(w, http.StatusOK)
	})
	mux.HandleFunc("POST /api/auth/register", func(w http.ResponseWriter, r *http.Request) {
		var in RegisterParams
		_ = json.NewDecoder(r.Body).Decode(&in)
		if in.Email == f.user().Email {
			writeError(w, http.StatusConflict, "CONFLICT", "User already exists with this email")
			return
		}
		f.userPtr.Store(&domain.User{ID: "u-2", Name: in.Name, Username: in.Username, Email: in.Email, Role: domain.Role(in.Role).OrDefault()})
		f.session(w, http.StatusCreated)
	})
	mux.HandleFunc("GET /api/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		f.refreshes.Add(1)
		cookie, err := r.Cookie("jwt")
		if err != nil {
			writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "Please login again")
			return
		}
		if _, err := f.issuer().Refresh().Verify(auth.RefreshToken(cookie.Value)); err != nil {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden")
			return
		}
		token, exp, err := f.issuer().IssueAccess(f.user())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
			return
		}
		writeToken(w, http.StatusOK, token, exp)
	})
	mux.HandleFunc("POST /api/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		f.logouts.Add(1)
		if _, err := r.Cookie("jwt"); err != nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "jwt", Path: "/", MaxAge: -1, HttpOnly: true, Secure: true, SameSite: http.SameSiteNoneMode})
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"message":"Cookie cleared"}`))
	})
	mux.HandleFunc("GET /api/auth/me", func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if len(header) < len("Bearer ") {
			writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "missing authorization header")
			return
		}
		claims, err := f.issuer().Access().Verify(auth.AccessToken(header[len("Bearer "):]))
		if err != nil {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "invalid token")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"user": claims.User, "expiresAt": claims.ExpiresAt.Time})
	})
	return mux
}

func newTestClient(t *testing.T) (*Client, *fakeService) {
	t.Helper()
	fake := newFakeService(t)
	srv := httptest.NewTLSServer(fake.handler())
	t.Cleanup(srv.Close)

	c, err := New(srv.URL, WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return c, fake
}

func TestLoginStoresCredentials(t *testing.T) {
	c, _ := newTestClient(t)

	view, err := c.Login(context.Background(), "a@x.com", "secret1")
	require.NoError(t, err)
	assert.True(t, view.IsAuthenticated)
	assert.Equal(t, "ada", view.Username)
	assert.Equal(t, identity.RoleConsumer, view.Role)
	assert.NotEmpty(t, c.AccessToken())
	assert.Equal(t, view, c.Identity())

	req := httptest.NewRequest(http.MethodGet, "/anything", nil)
	c.Authorize(req)
	assert.Equal(t, "Bearer "+c.AccessToken(), req.Header.Get("Authorization"))
}

func TestLoginFailure(t *testing.T) {
	c, _ := newTestClient(t)

	_, err := c.Login(context.Background(), "a@x.com", "wrong")
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, StatusOf(err))

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Incorrect Password!", apiErr.Message)
	assert.False(t, c.Identity().IsAuthenticated)
}

func TestRegister(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	view, err := c.Register(ctx, RegisterParams{Name: "Bob", Username: "bob", Email: "b@x.com", Password: "pw", Role: "creator"})
	require.NoError(t, err)
	assert.True(t, view.IsCreator())

	_, err = c.Register(ctx, RegisterParams{Name: "Ada", Username: "ada", Email: "b@x.com", Password: "pw"})
	assert.Equal(t, http.StatusConflict, StatusOf(err))
}

func TestRefreshUsesCookie(t *testing.T) {
	c, fake := newTestClient(t)
	ctx := context.Background()

	_, err := c.Refresh(ctx)
	require.ErrorIs(t, err, ErrSessionExpired)
	assert.Equal(t, http.StatusUnauthorized, StatusOf(err))

	_, err = c.Login(ctx, "a@x.com", "secret1")
	require.NoError(t, err)

	view, err := c.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ada", view.Username)
	assert.Equal(t, int32(2), fake.refreshes.Load())

	me, err := c.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, "u-1", me.ID)
}

func TestRefreshFailureClearsCredentials(t *testing.T) {
	c, fake := newTestClient(t)
	ctx := context.Background()

	_, err := c.Login(ctx, "a@x.com", "secret1")
	require.NoError(t, err)

	// Rotating the server's refresh secret invalidates the cookie the client holds.
	fake.setRefreshSecret("rotated-secret")

	_, err = c.Refresh(ctx)
	require.ErrorIs(t, err, ErrSessionExpired)
	assert.Equal(t, http.StatusForbidden, StatusOf(err))
	assert.Empty(t, c.AccessToken())
	assert.False(t, c.Identity().IsAuthenticated)
}

func TestLogoutAlwaysClears(t *testing.T) {
	c, fake := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.Logout(ctx))

	_, err := c.Login(ctx, "a@x.com", "secret1")
	require.NoError(t, err)
	require.NoError(t, c.Logout(ctx))
	assert.Empty(t, c.AccessToken())
	assert.Equal(t, int32(2), fake.logouts.Load())

	_, err = c.Refresh(ctx)
	assert.ErrorIs(t, err, ErrSessionExpired, "cleared cookie is not sent again")
}

func TestEnsureFresh(t *testing.T) {
	c, fake := newTestClient(t)
	ctx := context.Background()

	_, err := c.Login(ctx, "a@x.com", "secret1")
	require.NoError(t, err)

	_, err = c.EnsureFresh(ctx, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int32(0), fake.refreshes.Load())

	_, err = c.EnsureFresh(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int32(1), fake.refreshes.Load())
}

func TestRefreshTransportErrorKeepsCredentials(t *testing.T) {
	fake := newFakeService(t)
	srv := httptest.NewTLSServer(fake.handler())
	c, err := New(srv.URL, WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	_, err = c.Login(context.Background(), "a@x.com", "secret1")
	require.NoError(t, err)
	srv.Close()

	_, err = c.Refresh(context.Background())
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrSessionExpired))
	assert.NotEmpty(t, c.AccessToken())
}

func TestNewRejectsRelativeURL(t *testing.T) {
	_, err := New("/api")
	assert.Error(t, err)
}

func TestCredentialStore(t *testing.T) {
	store := NewCredentialStore(nil)
	assert.Empty(t, store.Token())

	view := store.SetCredentials("garbage")
	assert.False(t, view.IsAuthenticated)
	assert.Equal(t, "garbage", store.Token())

	store.SetCredentials("")
	assert.Equal(t, "garbage", store.Token())

	store.Clear()
	assert.Empty(t, store.Token())
	assert.Equal(t, identity.View{}, store.User())
}

func TestCredentialStoreDerivesUserFromHeldToken(t *testing.T) {
	access := auth.NewAccessTokenManager("access-secret", 15*time.Minute)
	adaToken, _, err := access.Issue(&domain.User{ID: "u-1", Username: "ada", Role: domain.RoleConsumer})
	require.NoError(t, err)
	graceToken, _, err := access.Issue(&domain.User{ID: "u-2", Username: "grace", Role: domain.RoleCreator})
	require.NoError(t, err)

	store := NewCredentialStore(nil)
	assert.False(t, store.User().IsAuthenticated)

	view := store.SetCredentials(string(adaToken))
	assert.Equal(t, view, store.User())
	assert.Equal(t, "ada", store.User().Username)

	store.SetCredentials(string(graceToken))
	assert.Equal(t, "grace", store.User().Username)
	assert.True(t, store.User().IsCreator())

	store.Clear()
	assert.False(t, store.User().IsAuthenticated)
}
