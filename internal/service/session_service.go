package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"go.uber.org/zap"

	"github.com/spec-kit/session-service/internal/auth"
	"github.com/spec-kit/session-service/internal/config"
	"github.com/spec-kit/session-service/internal/domain"
	"github.com/spec-kit/session-service/internal/events"
	"github.com/spec-kit/session-service/internal/repository"
	apperrors "github.com/spec-kit/session-service/pkg/util"
)

// User-facing messages. Login distinguishes unknown email from wrong password.
const (
	MsgAllFieldsRequired = "All fields are required!"
	MsgInvalidEmail      = "Invalid Email!"
	MsgIncorrectPassword = "Incorrect Password!"
	MsgInvalidRole       = "Invalid role specified"
	MsgPasswordTooLong   = "Password is too long"
	MsgDuplicateEmail    = "User already exists with this email"
	MsgDuplicateUsername = "Username already taken"
	MsgLoginAgain        = "Please login again"
	MsgForbidden         = "Forbidden"
	MsgUnknownAccount    = "Unauthorized"
	MsgTooManyAttempts   = "Too many failed login attempts, try again later"
	MsgCookieCleared     = "Cookie cleared"
)

// LoginInput carries login credentials.
type LoginInput struct {
	Email    string
	Password string
}

// RegisterInput carries a registration request. Role is optional.
type RegisterInput struct {
	Name     string      `json:"name"`
	Username string      `json:"username"`
	Email    string      `json:"email"`
	Password string      `json:"password"`
	Role     domain.Role `json:"role"`
}

// Validate checks required fields first, then the role enumeration, then the
// password length bcrypt can hash.
func (in RegisterInput) Validate() error {
	if err := validation.ValidateStruct(&in,
		validation.Field(&in.Name, validation.Required),
		validation.Field(&in.Username, validation.Required),
		validation.Field(&in.Email, validation.Required),
		validation.Field(&in.Password, validation.Required),
	); err != nil {
		return apperrors.NewValidationError(MsgAllFieldsRequired, validationDetails(err))
	}

	roles := make([]interface{}, 0, len(domain.Roles()))
	for _, role := range domain.Roles() {
		roles = append(roles, role)
	}
	if err := validation.Validate(in.Role, validation.In(roles...)); err != nil {
		return apperrors.NewValidationError(MsgInvalidRole, map[string]any{"role": err.Error()})
	}
	if len(in.Password) > auth.MaxPasswordBytes {
		return passwordTooLong()
	}
	return nil
}

func passwordTooLong() error {
	return apperrors.NewValidationError(MsgPasswordTooLong, map[string]any{
		"password": fmt.Sprintf("must be at most %d bytes", auth.MaxPasswordBytes),
	})
}

// Session is the outcome of a successful login or registration.
type Session struct {
	User   *domain.User
	Tokens *auth.TokenPair
}

// AccessGrant is the outcome of a successful refresh.
type AccessGrant struct {
	User        *domain.User
	AccessToken auth.AccessToken
	ExpiresAt   time.Time
}

// SessionService coordinates the login, register, refresh and logout flows.
type SessionService struct {
	users         repository.UserRepository
	attempts      repository.LoginAttemptRepository
	credentials   *auth.CredentialVerifier
	hasher        auth.PasswordHasher
	tokens        *auth.TokenIssuer
	dispatcher    events.Dispatcher
	logger        *zap.Logger
	maxAttempts   int
	attemptWindow time.Duration
}

// SessionDependencies encapsulates collaborators for the session service.
// LoginAttempts, Hasher, Dispatcher and Logger are optional.
type SessionDependencies struct {
	UserRepo      repository.UserRepository
	LoginAttempts repository.LoginAttemptRepository
	Hasher        auth.PasswordHasher
	Dispatcher    events.Dispatcher
	Logger        *zap.Logger
	TokenOptions  []auth.TokenOption
}

// NewSessionService builds the service.
func NewSessionService(cfg config.Config, deps SessionDependencies) *SessionService {
	hasher := deps.Hasher
	if hasher == nil {
		hasher = auth.NewBcryptHasher(cfg.Auth.BcryptCost)
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	tokens := auth.NewTokenIssuer(
		auth.NewAccessTokenManager(cfg.Auth.AccessTokenSecret, cfg.Auth.AccessTokenTTL(), deps.TokenOptions...),
		auth.NewRefreshTokenManager(cfg.Auth.RefreshTokenSecret, cfg.Auth.RefreshTokenTTL(), deps.TokenOptions...),
	)

	return &SessionService{
		users:         deps.UserRepo,
		attempts:      deps.LoginAttempts,
		credentials:   auth.NewCredentialVerifier(deps.UserRepo, hasher),
		hasher:        hasher,
		tokens:        tokens,
		dispatcher:    deps.Dispatcher,
		logger:        logger,
		maxAttempts:   cfg.Auth.LoginMaxAttempts,
		attemptWindow: cfg.Auth.LoginAttemptWindow(),
	}
}

// Login verifies credentials and issues a token pair.
func (s *SessionService) Login(ctx context.Context, in LoginInput) (*Session, error) {
	if in.Email == "" || in.Password == "" {
		return nil, apperrors.NewValidationError(MsgAllFieldsRequired, nil)
	}
	if s.throttled(ctx, in.Email) {
		return nil, apperrors.NewTooManyRequests(MsgTooManyAttempts)
	}

	user, err := s.credentials.Verify(ctx, in.Email, in.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrMissingField):
			return nil, apperrors.NewValidationError(MsgAllFieldsRequired, nil)
		case errors.Is(err, auth.ErrNoSuchUser):
			s.recordFailure(ctx, in.Email, "unknown_email")
			return nil, apperrors.NewUnauthorized(MsgInvalidEmail)
		case errors.Is(err, auth.ErrBadPassword):
			s.recordFailure(ctx, in.Email, "bad_password")
			return nil, apperrors.NewUnauthorized(MsgIncorrectPassword)
		default:
			return nil, fmt.Errorf("verify credentials: %w", err)
		}
	}
	s.resetFailures(ctx, in.Email)

	pair, err := s.tokens.Issue(user)
	if err != nil {
		return nil, fmt.Errorf("issue tokens: %w", err)
	}

	s.publish(ctx, events.NewEvent(events.EventUserLoggedIn, events.ActorFromUser(user), tokenIssuedPayload(pair)))
	return &Session{User: user, Tokens: pair}, nil
}

// Register validates and persists a new account, then issues a token pair.
// Every validation and uniqueness check runs before the store write.
func (s *SessionService) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	if _, err := s.users.GetByEmail(ctx, in.Email); err == nil {
		return nil, apperrors.NewConflict(MsgDuplicateEmail, map[string]any{"field": "email"})
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("check email: %w", err)
	}

	if _, err := s.users.GetByUsername(ctx, in.Username); err == nil {
		return nil, apperrors.NewConflict(MsgDuplicateUsername, map[string]any{"field": "username"})
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("check username: %w", err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if errors.Is(err, auth.ErrPasswordTooLong) {
		return nil, passwordTooLong()
	}
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		Name:         in.Name,
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         in.Role.OrDefault(),
	}
	if err := s.users.Create(ctx, user); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateEmail):
			return nil, apperrors.NewConflict(MsgDuplicateEmail, map[string]any{"field": "email"})
		case errors.Is(err, repository.ErrDuplicateUsername):
			return nil, apperrors.NewConflict(MsgDuplicateUsername, map[string]any{"field": "username"})
		default:
			return nil, fmt.Errorf("create user: %w", err)
		}
	}

	pair, err := s.tokens.Issue(user)
	if err != nil {
		return nil, fmt.Errorf("issue tokens: %w", err)
	}

	s.publish(ctx, events.NewEvent(events.EventUserRegistered, events.ActorFromUser(user), tokenIssuedPayload(pair)))
	return &Session{User: user, Tokens: pair}, nil
}

// Refresh mints a new access token from a refresh token. The refresh token itself
// is not rotated and stays valid until its own expiry.
func (s *SessionService) Refresh(ctx context.Context, refreshToken string) (*AccessGrant, error) {
	if refreshToken == "" {
		return nil, apperrors.NewUnauthenticated(MsgLoginAgain)
	}

	claims, err := s.tokens.Refresh().Verify(auth.RefreshToken(refreshToken))
	if err != nil {
		reason := "malformed"
		if errors.Is(err, auth.ErrTokenExpired) {
			reason = "expired"
		}
		s.publish(ctx, events.NewEvent(events.EventRefreshRejected, events.Actor{}, events.RefreshRejectedPayload{
			Kind:   domain.TokenKindRefresh,
			Reason: reason,
		}))
		return nil, apperrors.NewForbidden(MsgForbidden)
	}

	user, err := s.users.GetByUsername(ctx, claims.Username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.publish(ctx, events.NewEvent(events.EventRefreshRejected, events.Actor{Username: claims.Username}, events.RefreshRejectedPayload{
				Kind:   domain.TokenKindRefresh,
				Reason: "unknown_user",
			}))
			return nil, apperrors.NewForbidden(MsgUnknownAccount)
		}
		return nil, fmt.Errorf("lookup user by username: %w", err)
	}

	token, expiresAt, err := s.tokens.IssueAccess(user)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	s.publish(ctx, events.NewEvent(events.EventAccessTokenRefreshed, events.ActorFromUser(user), events.TokenIssuedPayload{
		AccessExpiresAt: expiresAt,
	}))
	return &AccessGrant{User: user, AccessToken: token, ExpiresAt: expiresAt}, nil
}

// Logout reports whether there was a refresh token to clear. It never fails:
// the token is only inspected to attribute the audit event.
func (s *SessionService) Logout(ctx context.Context, refreshToken string) bool {
	if refreshToken == "" {
		return false
	}

	actor := events.Actor{}
	if claims, err := s.tokens.Refresh().Verify(auth.RefreshToken(refreshToken)); err == nil {
		actor = events.Actor{Username: claims.Username, Role: claims.Role}
	}
	s.publish(ctx, events.NewEvent(events.EventSessionLoggedOut, actor, nil))
	return true
}

// AccessTokens exposes the access token manager for bearer middleware usage.
func (s *SessionService) AccessTokens() *auth.AccessTokenManager {
	return s.tokens.Access()
}

func (s *SessionService) throttled(ctx context.Context, email string) bool {
	if s.attempts == nil || s.maxAttempts <= 0 {
		return false
	}
	count, err := s.attempts.Count(ctx, email)
	if err != nil {
		s.logger.Warn("login attempt lookup failed", zap.Error(err))
		return false
	}
	return count >= int64(s.maxAttempts)
}

func (s *SessionService) recordFailure(ctx context.Context, email, reason string) {
	s.publish(ctx, events.NewEvent(events.EventLoginFailed, events.Actor{}, events.LoginFailedPayload{
		Email:  email,
		Reason: reason,
	}))
	if s.attempts == nil || s.maxAttempts <= 0 {
		return
	}
	if _, err := s.attempts.RecordFailure(ctx, email, s.attemptWindow); err != nil {
		s.logger.Warn("record login failure", zap.Error(err))
	}
}

func (s *SessionService) resetFailures(ctx context.Context, email string) {
	if s.attempts == nil || s.maxAttempts <= 0 {
		return
	}
	if err := s.attempts.Reset(ctx, email); err != nil {
		s.logger.Warn("reset login failures", zap.Error(err))
	}
}

func (s *SessionService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("publish session event", zap.String("type", string(event.Type)), zap.Error(err))
	}
}

func tokenIssuedPayload(pair *auth.TokenPair) events.TokenIssuedPayload {
	refreshExp := pair.RefreshExpiresAt
	return events.TokenIssuedPayload{
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: &refreshExp,
	}
}

func validationDetails(err error) map[string]any {
	details := map[string]any{}
	var fieldErrs validation.Errors
	if errors.As(err, &fieldErrs) {
		for field, fieldErr := range fieldErrs {
			details[field] = fieldErr.Error()
		}
	}
	return details
}
