package auth

import "errors"

var (
	// ErrMissingField is returned when an email or password is absent.
	ErrMissingField = errors.New("missing credential field")
	// ErrNoSuchUser is returned when no account matches the email.
	ErrNoSuchUser = errors.New("no such user")
	// ErrBadPassword is returned when the password does not match the stored hash.
	ErrBadPassword = errors.New("password mismatch")

	// ErrTokenMalformed covers structural, signature and claim-shape failures.
	ErrTokenMalformed = errors.New("token malformed")
	// ErrTokenExpired is returned for a correctly signed token past its expiry.
	ErrTokenExpired = errors.New("token expired")
)
