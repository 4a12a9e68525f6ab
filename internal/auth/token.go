package auth

import (
	"errors"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/spec-kit/session-service/internal/domain"
)

// AccessToken is a signed short-lived credential carrying a user snapshot.
type AccessToken string

// RefreshToken is a signed long-lived credential carrying username and role only.
type RefreshToken string

// UserClaims is the user snapshot embedded in access tokens.
type UserClaims struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"`
	Username       string      `json:"username"`
	Email          string      `json:"email"`
	ProfilePicture string      `json:"profilePicture"`
	Bio            string      `json:"bio"`
	Role           domain.Role `json:"role"`
}

// SnapshotOf projects a user into its token snapshot. Unknown roles read as consumer.
func SnapshotOf(user *domain.User) UserClaims {
	return UserClaims{
		ID:             user.ID,
		Name:           user.Name,
		Username:       user.Username,
		Email:          user.Email,
		ProfilePicture: user.ProfilePicture,
		Bio:            user.Bio,
		Role:           user.Role.OrDefault(),
	}
}

// AccessClaims describes the access token payload.
type AccessClaims struct {
	User UserClaims `json:"user"`
	jwt.RegisteredClaims
}

// Validate rejects payloads without a user snapshot, such as refresh claims.
func (c AccessClaims) Validate() error {
	if c.User.ID == "" || c.User.Username == "" {
		return errors.New("access claims carry no user")
	}
	return nil
}

// RefreshClaims describes the refresh token payload.
type RefreshClaims struct {
	Username string      `json:"username"`
	Role     domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// Validate rejects payloads without a username, such as access claims.
func (c RefreshClaims) Validate() error {
	if c.Username == "" {
		return errors.New("refresh claims carry no username")
	}
	return nil
}

// TokenOption customizes a token manager.
type TokenOption func(*signer)

// WithClock overrides the time source used for issuing and verifying.
func WithClock(now func() time.Time) TokenOption {
	return func(s *signer) {
		if now != nil {
			s.now = now
		}
	}
}

type signer struct {
	kind   domain.TokenKind
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func newSigner(kind domain.TokenKind, secret string, ttl time.Duration, opts []TokenOption) signer {
	s := signer{kind: kind, secret: []byte(secret), ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// window returns issued-at and expiry at whole-second precision so exp-iat equals the ttl.
func (s *signer) window() (time.Time, time.Time) {
	issuedAt := s.now().Truncate(time.Second)
	return issuedAt, issuedAt.Add(s.ttl)
}

func (s *signer) sign(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", s.kind, err)
	}
	return signed, nil
}

func (s *signer) parse(tokenStr string, claims jwt.Claims) error {
	parsed, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return fmt.Errorf("%s token: %w", s.kind, ErrTokenExpired)
		}
		return fmt.Errorf("%s token: %w: %v", s.kind, ErrTokenMalformed, err)
	}
	if !parsed.Valid {
		return fmt.Errorf("%s token: %w", s.kind, ErrTokenMalformed)
	}
	return nil
}

// AccessTokenManager issues and verifies access tokens with the access secret.
type AccessTokenManager struct {
	signer signer
}

// NewAccessTokenManager builds a manager for access tokens.
func NewAccessTokenManager(secret string, ttl time.Duration, opts ...TokenOption) *AccessTokenManager {
	return &AccessTokenManager{signer: newSigner(domain.TokenKindAccess, secret, ttl, opts)}
}

// Issue signs an access token for the user snapshot.
func (m *AccessTokenManager) Issue(user *domain.User) (AccessToken, time.Time, error) {
	issuedAt, expiresAt := m.signer.window()
	claims := &AccessClaims{
		User: SnapshotOf(user),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := m.signer.sign(claims)
	if err != nil {
		return "", time.Time{}, err
	}
	return AccessToken(signed), expiresAt, nil
}

// Verify validates signature and expiry and returns the claims.
func (m *AccessTokenManager) Verify(token AccessToken) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := m.signer.parse(string(token), claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// TTL returns the access token lifetime.
func (m *AccessTokenManager) TTL() time.Duration {
	return m.signer.ttl
}

// RefreshTokenManager issues and verifies refresh tokens with the refresh secret.
type RefreshTokenManager struct {
	signer signer
}

// NewRefreshTokenManager builds a manager for refresh tokens.
func NewRefreshTokenManager(secret string, ttl time.Duration, opts ...TokenOption) *RefreshTokenManager {
	return &RefreshTokenManager{signer: newSigner(domain.TokenKindRefresh, secret, ttl, opts)}
}

// Issue signs a refresh token holding only username and role.
func (m *RefreshTokenManager) Issue(user *domain.User) (RefreshToken, time.Time, error) {
	issuedAt, expiresAt := m.signer.window()
	claims := &RefreshClaims{
		Username: user.Username,
		Role:     user.Role.OrDefault(),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := m.signer.sign(claims)
	if err != nil {
		return "", time.Time{}, err
	}
	return RefreshToken(signed), expiresAt, nil
}

// Verify validates signature and expiry and returns the claims.
func (m *RefreshTokenManager) Verify(token RefreshToken) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := m.signer.parse(string(token), claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// TTL returns the refresh token lifetime.
func (m *RefreshTokenManager) TTL() time.Duration {
	return m.signer.ttl
}

// TokenPair is the credential pair handed out on login and registration.
type TokenPair struct {
	AccessToken      AccessToken
	AccessExpiresAt  time.Time
	RefreshToken     RefreshToken
	RefreshExpiresAt time.Time
}

// TokenIssuer mints access and refresh tokens from their respective managers.
type TokenIssuer struct {
	access  *AccessTokenManager
	refresh *RefreshTokenManager
}

// NewTokenIssuer combines the two managers.
func NewTokenIssuer(access *AccessTokenManager, refresh *RefreshTokenManager) *TokenIssuer {
	return &TokenIssuer{access: access, refresh: refresh}
}

// Issue mints a fresh pair for the user.
func (i *TokenIssuer) Issue(user *domain.User) (*TokenPair, error) {
	access, accessExp, err := i.access.Issue(user)
	if err != nil {
		return nil, err
	}
	refresh, refreshExp, err := i.refresh.Issue(user)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// IssueAccess mints only an access token; refresh tokens are not rotated.
func (i *TokenIssuer) IssueAccess(user *domain.User) (AccessToken, time.Time, error) {
	return i.access.Issue(user)
}

// Access exposes the access token manager for bearer middleware.
func (i *TokenIssuer) Access() *AccessTokenManager {
	return i.access
}

// Refresh exposes the refresh token manager.
func (i *TokenIssuer) Refresh() *RefreshTokenManager {
	return i.refresh
}
