// Package identity derives the caller's identity from an access token on the
// client side. Tokens are decoded, never verified: the signature is the
// server's concern and the client only needs the embedded user snapshot.
package identity

import (
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// Roles carried in access tokens.
const (
	RoleCreator  = "creator"
	RoleConsumer = "consumer"
)

// ErrNoUser is returned when a token decodes but carries no user snapshot.
var ErrNoUser = errors.New("token carries no user")

// View is what the client knows about the current user.
type View struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Username        string    `json:"username"`
	Email           string    `json:"email"`
	ProfilePicture  string    `json:"profilePicture"`
	Bio             string    `json:"bio"`
	Role            string    `json:"role,omitempty"`
	IsAuthenticated bool      `json:"isAuthenticated"`
	ExpiresAt       time.Time `json:"expiresAt,omitempty"`
}

// IsCreator reports whether the view belongs to an authenticated creator.
func (v View) IsCreator() bool {
	return v.IsAuthenticated && v.Role == RoleCreator
}

// IsConsumer reports whether the view belongs to an authenticated consumer.
func (v View) IsConsumer() bool {
	return v.IsAuthenticated && v.Role == RoleConsumer
}

// ExpiresWithin reports whether the token behind the view expires within d of now.
// Views without an expiry never do.
func (v View) ExpiresWithin(now time.Time, d time.Duration) bool {
	if v.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(d).Before(v.ExpiresAt)
}

type snapshot struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Username       string `json:"username"`
	Email          string `json:"email"`
	ProfilePicture string `json:"profilePicture"`
	Bio            string `json:"bio"`
	Role           string `json:"role"`
}

type claims struct {
	User *snapshot `json:"user"`
	jwt.RegisteredClaims
}

// Deriver turns access tokens into views.
type Deriver struct {
	parser *jwt.Parser
	logger *zap.Logger
}

// NewDeriver constructs a deriver. A nil logger discards decode failures.
func NewDeriver(logger *zap.Logger) *Deriver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Deriver{parser: jwt.NewParser(), logger: logger}
}

// Derive returns the view for token. An empty or undecodable token yields the
// unauthenticated zero view; Derive never fails.
func (d *Deriver) Derive(token string) View {
	if token == "" {
		return View{}
	}
	view, err := d.decode(token)
	if err != nil {
		d.logger.Debug("invalid token", zap.Error(err))
		return View{}
	}
	return view
}

// Decode is Derive with the failure reported instead of logged.
func (d *Deriver) Decode(token string) (View, error) {
	return d.decode(token)
}

func (d *Deriver) decode(token string) (View, error) {
	var c claims
	if _, _, err := d.parser.ParseUnverified(token, &c); err != nil {
		return View{}, err
	}
	if c.User == nil || (c.User.ID == "" && c.User.Username == "") {
		return View{}, ErrNoUser
	}

	role := c.User.Role
	if role == "" {
		role = RoleConsumer
	}
	view := View{
		ID:              c.User.ID,
		Name:            c.User.Name,
		Username:        c.User.Username,
		Email:           c.User.Email,
		ProfilePicture:  c.User.ProfilePicture,
		Bio:             c.User.Bio,
		Role:            role,
		IsAuthenticated: true,
	}
	if c.ExpiresAt != nil {
		view.ExpiresAt = c.ExpiresAt.Time.UTC()
	}
	return view, nil
}

var defaultDeriver = NewDeriver(nil)

// Derive decodes token with a deriver that discards failures.
func Derive(token string) View {
	return defaultDeriver.Derive(token)
}
