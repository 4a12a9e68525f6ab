package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/session-service/internal/domain"
)

type sqliteUserRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteUserRepository returns a UserRepository backed by an embedded SQLite database.
// The users table is created by persistence.OpenSQLite.
func NewSQLiteUserRepository(db *sql.DB) UserRepository {
	return &sqliteUserRepository{db: db, now: time.Now}
}

const sqliteUserColumns = `id, name, username, email, password_hash, profile_picture, bio, role, created_at, updated_at`

func (r *sqliteUserRepository) Create(ctx context.Context, user *domain.User) error {
	const query = `
        INSERT INTO users (id, name, username, email, password_hash, profile_picture, bio, role, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	id := uuid.NewString()
	now := r.now().UTC()
	stamp := now.Format(time.RFC3339Nano)

	if _, err := r.db.ExecContext(ctx, query,
		id,
		user.Name,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.ProfilePicture,
		user.Bio,
		string(user.Role),
		stamp,
		stamp,
	); err != nil {
		return mapSQLiteError(err)
	}

	user.ID = id
	user.CreatedAt = now
	user.UpdatedAt = now
	return nil
}

func (r *sqliteUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+sqliteUserColumns+` FROM users WHERE id=?`, id)
}

func (r *sqliteUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+sqliteUserColumns+` FROM users WHERE email=?`, email)
}

func (r *sqliteUserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+sqliteUserColumns+` FROM users WHERE username=?`, username)
}

func (r *sqliteUserRepository) getOne(ctx context.Context, query string, arg string) (*domain.User, error) {
	var (
		user      domain.User
		role      string
		createdAt string
		updatedAt string
	)
	if err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID,
		&user.Name,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.ProfilePicture,
		&user.Bio,
		&role,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, mapSQLiteError(err)
	}

	user.Role = domain.Role(role)
	var err error
	if user.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if user.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &user, nil
}

func mapSQLiteError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	msg := err.Error()
	if strings.Contains(msg, "UNIQUE constraint failed") {
		switch {
		case strings.Contains(msg, "users.email"):
			return ErrDuplicateEmail
		case strings.Contains(msg, "users.username"):
			return ErrDuplicateUsername
		}
	}
	return err
}
