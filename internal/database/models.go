package database

import (
	"time"

	"github.com/MaNn0/Super-Admin-Dashboard-with-User-Access-Control/internal/permission"
)

// User represents a dashboard account in the database
type User struct {
	ID           int64      `db:"id"`
	Username     string     `db:"username"`
	Email        string     `db:"email"`
	PasswordHash string     `db:"password_hash"`
	IsSuperuser  bool       `db:"is_superuser"`
	IsActive     bool       `db:"is_active"`
	CreatedAt    time.Time  `db:"created_at"`
	LastLogin    *time.Time `db:"last_login"`
}

// PagePermission represents the CRUD flags a user holds on one page
type PagePermission struct {
	ID     int64           `db:"id"`
	UserID int64           `db:"user_id"`
	Page   permission.Page `db:"page"`
	permission.Flags
	UpdatedAt time.Time `db:"updated_at"`
}

// Entry converts the row into its wire representation
func (p PagePermission) Entry() permission.Entry {
	return permission.Entry{Page: p.Page, Flags: p.Flags}
}

// Entries converts rows into wire entries; never returns nil
func Entries(perms []PagePermission) []permission.Entry {
	out := make([]permission.Entry, 0, len(perms))
	for _, p := range perms {
		out = append(out, p.Entry())
	}
	return out
}
