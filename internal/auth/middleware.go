package auth

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	apperrors "github.com/spec-kit/session-service/pkg/util"
)

const principalKey = "auth_principal"

// Principal represents the authenticated caller as described by its access token.
type Principal struct {
	User   UserClaims
	Claims *AccessClaims
}

// AuthMiddleware validates bearer access tokens.
type AuthMiddleware struct {
	tokens *AccessTokenManager
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *AccessTokenManager) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get(fiber.HeaderAuthorization)
	if authHeader == "" {
		return apperrors.NewUnauthenticated("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthenticated("invalid authorization header")
	}

	claims, err := m.tokens.Verify(AccessToken(strings.TrimSpace(parts[1])))
	if err != nil {
		if errors.Is(err, ErrTokenExpired) {
			return apperrors.NewForbidden("token expired")
		}
		return apperrors.NewForbidden("invalid token")
	}

	c.Locals(principalKey, &Principal{User: claims.User, Claims: claims})
	return c.Next()
}

// PrincipalFromContext retrieves the authenticated caller.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok
}
