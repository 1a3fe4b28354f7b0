package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	taskerrors "github.com/Aman-CERP/tasksearch/internal/errors"
)

// bcryptCost is lowered in tests.
var bcryptCost = bcrypt.DefaultCost

// CreateUser registers username with a bcrypt hash of password.
func (s *SQLiteStore) CreateUser(ctx context.Context, username, password string) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, taskerrors.ValidationError("username is required", nil).WithDetail("field", "username")
	}
	if password == "" {
		return nil, taskerrors.ValidationError("password is required", nil).WithDetail("field", "password")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		// bcrypt rejects passwords longer than 72 bytes.
		return nil, taskerrors.ValidationError("password cannot be hashed", err).WithDetail("field", "password")
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (username, hashed_password, created_at) VALUES (?, ?, ?)`,
		username, string(hash), formatTime(s.now()))
	if isUniqueViolation(err) {
		return nil, taskerrors.New(taskerrors.ErrCodeDuplicate, "username already registered", err).
			WithDetail("username", username)
	}
	if err != nil {
		return nil, taskerrors.StorageError("failed to create user", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, taskerrors.StorageError("failed to read new user id", err)
	}
	return s.GetUser(ctx, id)
}

func scanUser(row rowScanner) (*User, error) {
	var (
		u         User
		createdAt string
	)
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &createdAt); err != nil {
		return nil, err
	}
	t, err := parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("user %d created_at: %w", u.ID, err)
	}
	u.CreatedAt = t
	return &u, nil
}

// GetUser returns the user with id, or nil if absent.
func (s *SQLiteStore) GetUser(ctx context.Context, id int64) (*User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, username, hashed_password, created_at FROM users WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, taskerrors.StorageError(fmt.Sprintf("failed to get user %d", id), err)
	}
	return u, nil
}

// GetUserByUsername returns the user named username, or nil if absent.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, username, hashed_password, created_at FROM users WHERE username = ?`, username))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, taskerrors.StorageError("failed to get user by name", err)
	}
	return u, nil
}

// UserExists reports whether a user with id exists.
func (s *SQLiteStore) UserExists(ctx context.Context, id int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, taskerrors.StorageError(fmt.Sprintf("failed to check user %d", id), err)
	}
	return true, nil
}
