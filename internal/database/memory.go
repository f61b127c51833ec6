package database

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/MaNn0/Super-Admin-Dashboard-with-User-Access-Control/internal/permission"
)

// MemoryStore is an in-process Store. A single mutex gives it the same
// guarantees the unique index and the deletion transaction give PostgreSQL.
type MemoryStore struct {
	mu          sync.RWMutex
	users       map[int64]*User
	permissions map[int64]map[permission.Page]*PagePermission
	lastUserID  int64
	lastPermID  int64
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:       make(map[int64]*User),
		permissions: make(map[int64]map[permission.Page]*PagePermission),
	}
}

// FindByEmail looks up an account by email, ignoring case
func (m *MemoryStore) FindByEmail(_ context.Context, email string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// FindByID looks up an account by id
func (m *MemoryStore) FindByID(_ context.Context, id int64) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

// CreateUser stores a new account and assigns its id and creation time.
// Emails are unique regardless of case.
func (m *MemoryStore) CreateUser(_ context.Context, user *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if strings.EqualFold(u.Email, user.Email) || u.Username == user.Username {
			return ErrConflict
		}
	}

	m.lastUserID++
	user.ID = m.lastUserID
	user.CreatedAt = time.Now().UTC()
	cp := *user
	m.users[user.ID] = &cp
	return nil
}

// DeleteUser removes an account and its permissions under one lock
func (m *MemoryStore) DeleteUser(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[id]; !ok {
		return ErrNotFound
	}
	m.deleteAllForUserLocked(id)
	delete(m.users, id)
	return nil
}

// ListUsers returns every account ordered by id
func (m *MemoryStore) ListUsers(_ context.Context) ([]User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	users := make([]User, 0, len(m.users))
	for _, u := range m.users {
		users = append(users, *u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

// UpdateLastLogin stamps the account with the current time
func (m *MemoryStore) UpdateLastLogin(_ context.Context, id int64) error {
	return m.update(id, func(u *User) {
		now := time.Now().UTC()
		u.LastLogin = &now
	})
}

// SetActive enables or disables an account
func (m *MemoryStore) SetActive(_ context.Context, id int64, active bool) error {
	return m.update(id, func(u *User) { u.IsActive = active })
}

// SetPasswordHash replaces the stored password hash of an account
func (m *MemoryStore) SetPasswordHash(_ context.Context, id int64, hash string) error {
	return m.update(id, func(u *User) { u.PasswordHash = hash })
}

func (m *MemoryStore) update(id int64, fn func(*User)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	fn(u)
	return nil
}

// ListForUser returns copies of a user's permissions ordered by page
func (m *MemoryStore) ListForUser(_ context.Context, userID int64) ([]PagePermission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.listLocked(userID), nil
}

// ListForUsers returns the permissions of several users keyed by user id.
// Users without permissions are absent from the map.
func (m *MemoryStore) ListForUsers(_ context.Context, userIDs []int64) (map[int64][]PagePermission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[int64][]PagePermission, len(userIDs))
	for _, id := range userIDs {
		if perms := m.listLocked(id); len(perms) > 0 {
			out[id] = perms
		}
	}
	return out, nil
}

// listLocked requires m.mu to be held
func (m *MemoryStore) listLocked(userID int64) []PagePermission {
	perms := make([]PagePermission, 0, len(m.permissions[userID]))
	for _, p := range m.permissions[userID] {
		perms = append(perms, *p)
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i].Page < perms[j].Page })
	return perms
}

// Upsert creates or fully replaces the permission entry for (userID, page)
func (m *MemoryStore) Upsert(_ context.Context, userID int64, page permission.Page, flags permission.Flags) (*PagePermission, error) {
	if !page.Valid() {
		return nil, fmt.Errorf("%w: %q", permission.ErrInvalidPage, page)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[userID]; !ok {
		return nil, ErrNotFound
	}

	byPage, ok := m.permissions[userID]
	if !ok {
		byPage = make(map[permission.Page]*PagePermission)
		m.permissions[userID] = byPage
	}

	perm, ok := byPage[page]
	if !ok {
		m.lastPermID++
		perm = &PagePermission{ID: m.lastPermID, UserID: userID, Page: page}
		byPage[page] = perm
	}
	perm.Flags = flags
	perm.UpdatedAt = time.Now().UTC()

	cp := *perm
	return &cp, nil
}

// DeleteAllForUser removes every permission entry owned by a user
func (m *MemoryStore) DeleteAllForUser(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.deleteAllForUserLocked(userID)
	return nil
}

func (m *MemoryStore) deleteAllForUserLocked(userID int64) {
	delete(m.permissions, userID)
}

// Ping always succeeds
func (m *MemoryStore) Ping(context.Context) error {
	return nil
}

// Close is a no-op
func (m *MemoryStore) Close() error {
	return nil
}
