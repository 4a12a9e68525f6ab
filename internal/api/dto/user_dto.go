package dto

import (
	"time"

	"github.com/spec-kit/session-service/internal/auth"
)

// RegisterRequest payload for new accounts. Role is optional.
type RegisterRequest struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

// LoginRequest payload for login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AccessTokenResponse is returned by login, register and refresh.
// The refresh token never appears in a body; it travels in the cookie.
type AccessTokenResponse struct {
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// MessageResponse carries a plain confirmation.
type MessageResponse struct {
	Message string `json:"message"`
}

// MeResponse describes the principal behind the presented access token.
type MeResponse struct {
	User      auth.UserClaims `json:"user"`
	ExpiresAt *time.Time      `json:"expiresAt,omitempty"`
}
