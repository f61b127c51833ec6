package database

import (
	"context"
	"errors"

	"github.com/MaNn0/Super-Admin-Dashboard-with-User-Access-Control/internal/permission"
)

var (
	// ErrNotFound is returned when the referenced user does not exist
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when an account with the same email already exists
	ErrConflict = errors.New("conflict")
)

// UserDirectory defines the account operations the service relies on
type UserDirectory interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id int64) (*User, error)
	CreateUser(ctx context.Context, user *User) error
	DeleteUser(ctx context.Context, id int64) error
	ListUsers(ctx context.Context) ([]User, error)
	UpdateLastLogin(ctx context.Context, id int64) error
	SetActive(ctx context.Context, id int64, active bool) error
	SetPasswordHash(ctx context.Context, id int64, hash string) error
}

// PermissionStore owns the per-user, per-page permission rows. There is at
// most one row for any (user, page) pair.
type PermissionStore interface {
	ListForUser(ctx context.Context, userID int64) ([]PagePermission, error)
	ListForUsers(ctx context.Context, userIDs []int64) (map[int64][]PagePermission, error)
	Upsert(ctx context.Context, userID int64, page permission.Page, flags permission.Flags) (*PagePermission, error)
	DeleteAllForUser(ctx context.Context, userID int64) error
}

// Store is a complete storage backend
type Store interface {
	UserDirectory
	PermissionStore
	Ping(ctx context.Context) error
	Close() error
}
