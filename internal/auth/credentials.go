package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/spec-kit/session-service/internal/domain"
	"github.com/spec-kit/session-service/internal/repository"
)

// UserFinder is the user store lookup needed to verify credentials.
type UserFinder interface {
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
}

// CredentialVerifier checks an email and password pair against stored credentials.
type CredentialVerifier struct {
	users  UserFinder
	hasher PasswordHasher
}

// NewCredentialVerifier constructs a verifier.
func NewCredentialVerifier(users UserFinder, hasher PasswordHasher) *CredentialVerifier {
	return &CredentialVerifier{users: users, hasher: hasher}
}

// Verify returns the stored user when the password matches its hash.
// It fails with ErrMissingField, ErrNoSuchUser or ErrBadPassword; store and
// hashing failures are returned wrapped.
func (v *CredentialVerifier) Verify(ctx context.Context, email, password string) (*domain.User, error) {
	if email == "" || password == "" {
		return nil, ErrMissingField
	}

	user, err := v.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNoSuchUser
		}
		return nil, fmt.Errorf("lookup user by email: %w", err)
	}

	ok, err := v.hasher.Compare(user.PasswordHash, password)
	if err != nil {
		return nil, fmt.Errorf("compare password: %w", err)
	}
	if !ok {
		return nil, ErrBadPassword
	}
	return user, nil
}
