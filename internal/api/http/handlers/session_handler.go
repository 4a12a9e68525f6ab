package handlers

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/session-service/internal/api/dto"
	"github.com/spec-kit/session-service/internal/auth"
	"github.com/spec-kit/session-service/internal/config"
	"github.com/spec-kit/session-service/internal/domain"
	"github.com/spec-kit/session-service/internal/service"
	apperrors "github.com/spec-kit/session-service/pkg/util"
)

// SessionHandler exposes the login, register, refresh and logout endpoints.
type SessionHandler struct {
	sessions   *service.SessionService
	cookie     config.CookieConfig
	refreshTTL time.Duration
}

// NewSessionHandler constructs handler.
func NewSessionHandler(sessions *service.SessionService, cookie config.CookieConfig, refreshTTL time.Duration) *SessionHandler {
	return &SessionHandler{sessions: sessions, cookie: cookie, refreshTTL: refreshTTL}
}

// Login handles POST /api/auth/login.
func (h *SessionHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	session, err := h.sessions.Login(c.UserContext(), service.LoginInput{Email: req.Email, Password: req.Password})
	if err != nil {
		return err
	}

	h.setRefreshCookie(c, session.Tokens.RefreshToken)
	return c.JSON(dto.AccessTokenResponse{
		AccessToken: string(session.Tokens.AccessToken),
		ExpiresAt:   session.Tokens.AccessExpiresAt,
	})
}

// Register handles POST /api/auth/register.
func (h *SessionHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	session, err := h.sessions.Register(c.UserContext(), service.RegisterInput{
		Name:     req.Name,
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Role:     domain.Role(req.Role),
	})
	if err != nil {
		return err
	}

	h.setRefreshCookie(c, session.Tokens.RefreshToken)
	return c.Status(http.StatusCreated).JSON(dto.AccessTokenResponse{
		AccessToken: string(session.Tokens.AccessToken),
		ExpiresAt:   session.Tokens.AccessExpiresAt,
	})
}

// Refresh handles GET /api/auth/refresh. Only the cookie is consulted.
func (h *SessionHandler) Refresh(c *fiber.Ctx) error {
	grant, err := h.sessions.Refresh(c.UserContext(), c.Cookies(h.cookie.Name))
	if err != nil {
		return err
	}
	return c.JSON(dto.AccessTokenResponse{
		AccessToken: string(grant.AccessToken),
		ExpiresAt:   grant.ExpiresAt,
	})
}

// Logout handles POST /api/auth/logout. Without a cookie it is a no-op.
func (h *SessionHandler) Logout(c *fiber.Ctx) error {
	if !h.sessions.Logout(c.UserContext(), c.Cookies(h.cookie.Name)) {
		return c.SendStatus(http.StatusNoContent)
	}
	h.clearRefreshCookie(c)
	return c.JSON(dto.MessageResponse{Message: service.MsgCookieCleared})
}

// Me handles GET /api/auth/me behind the bearer middleware.
func (h *SessionHandler) Me(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthenticated("missing principal")
	}
	resp := dto.MeResponse{User: principal.User}
	if principal.Claims != nil && principal.Claims.ExpiresAt != nil {
		exp := principal.Claims.ExpiresAt.Time
		resp.ExpiresAt = &exp
	}
	return c.JSON(resp)
}

// The set and clear cookies carry identical attributes; browsers ignore a clear that differs.
func (h *SessionHandler) setRefreshCookie(c *fiber.Ctx, token auth.RefreshToken) {
	cookie := h.baseCookie()
	cookie.Value = string(token)
	cookie.MaxAge = int(h.refreshTTL / time.Second)
	c.Cookie(cookie)
}

func (h *SessionHandler) clearRefreshCookie(c *fiber.Ctx) {
	cookie := h.baseCookie()
	cookie.Expires = time.Unix(0, 0)
	c.Cookie(cookie)
}

func (h *SessionHandler) baseCookie() *fiber.Cookie {
	return &fiber.Cookie{
		Name:     h.cookie.Name,
		Path:     h.cookie.Path,
		Domain:   h.cookie.Domain,
		HTTPOnly: true,
		Secure:   true,
		SameSite: fiber.CookieSameSiteNoneMode,
	}
}
