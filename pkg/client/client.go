// Package client is a Go client for the session endpoints. It keeps the access
// token in a CredentialStore and lets a cookie jar carry the refresh cookie.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/session-service/pkg/identity"
)

const (
	defaultTimeout = 15 * time.Second
	maxErrorBody   = 64 * 1024
)

// ErrSessionExpired means the refresh cookie was missing or rejected; the
// caller has to log in again.
var ErrSessionExpired = errors.New("session expired, please login again")

// APIError is a non-2xx response from the service.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("session api: status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("session api: status %d %s: %s", e.Status, e.Code, e.Message)
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// RegisterParams is the registration payload. Role may be empty.
type RegisterParams struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

type loginParams struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Client talks to the session endpoints.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	store   *CredentialStore
	logger  *zap.Logger
	now     func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient uses hc for all requests. A cookie jar is added when hc has none.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithStore shares a credential store between clients.
func WithStore(store *CredentialStore) Option {
	return func(c *Client) {
		if store != nil {
			c.store = store
		}
	}
}

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// New creates a client for the service at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}

	c := &Client{
		baseURL: u,
		http:    &http.Client{Timeout: defaultTimeout},
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.store == nil {
		c.store = NewCredentialStore(identity.NewDeriver(c.logger))
	}
	if c.http.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("create cookie jar: %w", err)
		}
		c.http.Jar = jar
	}
	return c, nil
}

// Login exchanges credentials for a session.
func (c *Client) Login(ctx context.Context, email, password string) (identity.View, error) {
	var out tokenResponse
	if err := c.call(ctx, http.MethodPost, "/api/auth/login", loginParams{Email: email, Password: password}, &out); err != nil {
		return identity.View{}, err
	}
	return c.store.SetCredentials(out.AccessToken), nil
}

// Register creates an account and starts a session for it.
func (c *Client) Register(ctx context.Context, params RegisterParams) (identity.View, error) {
	var out tokenResponse
	if err := c.call(ctx, http.MethodPost, "/api/auth/register", params, &out); err != nil {
		return identity.View{}, err
	}
	return c.store.SetCredentials(out.AccessToken), nil
}

// Refresh obtains a new access token using the refresh cookie. When the
// service refuses, local credentials are dropped and ErrSessionExpired is returned.
func (c *Client) Refresh(ctx context.Context) (identity.View, error) {
	var out tokenResponse
	err := c.call(ctx, http.MethodGet, "/api/auth/refresh", nil, &out)
	if err != nil {
		if StatusOf(err) != 0 {
			c.logger.Info("refresh refused", zap.Error(err))
			c.store.Clear()
			return identity.View{}, fmt.Errorf("%w: %w", ErrSessionExpired, err)
		}
		return identity.View{}, err
	}
	return c.store.SetCredentials(out.AccessToken), nil
}

// Logout asks the service to clear the refresh cookie. Local credentials are
// dropped whatever the outcome.
func (c *Client) Logout(ctx context.Context) error {
	defer c.store.Clear()
	return c.call(ctx, http.MethodPost, "/api/auth/logout", nil, nil)
}

// Identity derives the current user from the held access token.
func (c *Client) Identity() identity.View {
	return c.store.User()
}

// AccessToken returns the held access token.
func (c *Client) AccessToken() string {
	return c.store.Token()
}

// Authorize attaches the held access token to req as a bearer credential.
func (c *Client) Authorize(req *http.Request) {
	if token := c.store.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// EnsureFresh refreshes when the held token expires within leeway.
func (c *Client) EnsureFresh(ctx context.Context, leeway time.Duration) (identity.View, error) {
	view := c.store.User()
	if view.IsAuthenticated && !view.ExpiresWithin(c.now(), leeway) {
		return view, nil
	}
	return c.Refresh(ctx)
}

// Me fetches the principal the service sees behind the held access token.
func (c *Client) Me(ctx context.Context) (identity.View, error) {
	var out struct {
		User      identity.View `json:"user"`
		ExpiresAt time.Time     `json:"expiresAt"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/auth/me", nil, &out); err != nil {
		return identity.View{}, err
	}
	view := out.User
	view.IsAuthenticated = true
	view.ExpiresAt = out.ExpiresAt
	return view, nil
}

func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.Authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(raw) == 0 {
		return apiErr
	}
	var envelope errorResponse
	if json.Unmarshal(raw, &envelope) == nil && envelope.Error.Message != "" {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
	}
	return apiErr
}
