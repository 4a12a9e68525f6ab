package repository

import "errors"

var (
	// ErrNotFound is returned when a lookup matches no record.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateEmail is returned when the store rejects an already registered email.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrDuplicateUsername is returned when the store rejects a taken username.
	ErrDuplicateUsername = errors.New("username already taken")
)
