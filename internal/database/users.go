package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const userColumns = `id, username, email, password_hash, is_superuser, is_active, created_at, last_login`

func (db *DB) getUser(ctx context.Context, where string, arg interface{}) (*User, error) {
	var user User
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + where + ` LIMIT 1`

	if err := db.GetContext(ctx, &user, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &user, nil
}

// FindByEmail retrieves a user by email address, ignoring case
func (db *DB) FindByEmail(ctx context.Context, email string) (*User, error) {
	return db.getUser(ctx, `lower(email) = lower($1)`, email)
}

// FindByID retrieves a user by primary key
func (db *DB) FindByID(ctx context.Context, id int64) (*User, error) {
	return db.getUser(ctx, `id = $1`, id)
}

// CreateUser inserts a new user and fills in its ID and creation time
func (db *DB) CreateUser(ctx context.Context, user *User) error {
	query := `INSERT INTO users (username, email, password_hash, is_superuser, is_active, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`

	now := time.Now().UTC()
	err := db.GetContext(ctx, &user.ID, query,
		user.Username, user.Email, user.PasswordHash, user.IsSuperuser, user.IsActive, now)
	if err != nil {
		if isUniquenessError(err) {
			return ErrConflict
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	user.CreatedAt = now
	return nil
}

// DeleteUser removes a user together with all of its page permissions in a
// single transaction
func (db *DB) DeleteUser(ctx context.Context, id int64) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	// Permissions go first; the foreign key cascade only backs this up.
	if err := deleteAllForUser(ctx, tx, id); err != nil {
		_ = tx.Rollback()
		return err
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to delete user: %w", err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		_ = tx.Rollback()
		return ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit user deletion: %w", err)
	}
	return nil
}

// ListUsers lists all users ordered by id
func (db *DB) ListUsers(ctx context.Context) ([]User, error) {
	users := []User{}
	query := `SELECT ` + userColumns + ` FROM users ORDER BY id`
	if err := db.SelectContext(ctx, &users, query); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// UpdateLastLogin updates the last login timestamp for a user
func (db *DB) UpdateLastLogin(ctx context.Context, id int64) error {
	return db.updateUser(ctx, `UPDATE users SET last_login = $1 WHERE id = $2`, time.Now().UTC(), id)
}

// SetActive enables or disables an account
func (db *DB) SetActive(ctx context.Context, id int64, active bool) error {
	return db.updateUser(ctx, `UPDATE users SET is_active = $1 WHERE id = $2`, active, id)
}

// SetPasswordHash replaces the stored password hash of an account
func (db *DB) SetPasswordHash(ctx context.Context, id int64, hash string) error {
	return db.updateUser(ctx, `UPDATE users SET password_hash = $1 WHERE id = $2`, hash, id)
}

func (db *DB) updateUser(ctx context.Context, query string, value interface{}, id int64) error {
	res, err := db.ExecContext(ctx, query, value, id)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
