package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/MaNn0/Super-Admin-Dashboard-with-User-Access-Control/internal/permission"
)

// ErrInvalidCredentials is returned when an email/password pair does not match
// an active account
var ErrInvalidCredentials = errors.New("invalid credentials")

// MaxPasswordBytes is the longest password bcrypt accepts
const MaxPasswordBytes = 72

// ErrPasswordTooLong is returned when a password exceeds MaxPasswordBytes
var ErrPasswordTooLong = fmt.Errorf("password must be at most %d bytes", MaxPasswordBytes)

// dummyHash is compared against when no account matches, so that unknown
// emails cost the same as wrong passwords
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("dummy-password"), bcrypt.DefaultCost)

// HashPassword hashes a password with bcrypt. A cost of zero selects the
// bcrypt default.
func HashPassword(password string, cost int) (string, error) {
	if len(password) > MaxPasswordBytes {
		return "", ErrPasswordTooLong
	}
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

// CheckPassword reports whether password matches the bcrypt hash
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// VerifyPassword reports whether password matches the account's hash. A nil
// user is compared against a dummy hash and never matches.
func VerifyPassword(user *User, password string) bool {
	if user == nil {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return false
	}
	return CheckPassword(user.PasswordHash, password)
}

// Authenticate looks an account up by email and checks its password.
// Unknown emails, inactive accounts and wrong passwords all yield
// ErrInvalidCredentials.
func Authenticate(ctx context.Context, users UserDirectory, email, password string) (*User, error) {
	user, err := users.FindByEmail(ctx, email)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}

	if !VerifyPassword(user, password) {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		logrus.WithField("user_id", user.ID).Debug("Rejected login for inactive account")
		return nil, ErrInvalidCredentials
	}

	return user, nil
}

// UserManager provides user management functionality
type UserManager struct {
	users      UserDirectory
	perms      PermissionStore
	bcryptCost int
}

// NewUserManager creates a new user manager
func NewUserManager(store Store, bcryptCost int) *UserManager {
	return &UserManager{users: store, perms: store, bcryptCost: bcryptCost}
}

// CreateUser creates a new active account; the username is the email
func (um *UserManager) CreateUser(ctx context.Context, email, password string, superuser bool) (*User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, fmt.Errorf("email and password are required")
	}

	hashed, err := HashPassword(password, um.bcryptCost)
	if err != nil {
		return nil, err
	}

	user := &User{
		Username:     email,
		Email:        email,
		PasswordHash: hashed,
		IsSuperuser:  superuser,
		IsActive:     true,
	}

	if err := um.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	return user, nil
}

// AuthenticateUser verifies user credentials
func (um *UserManager) AuthenticateUser(ctx context.Context, email, password string) (*User, error) {
	return Authenticate(ctx, um.users, email, password)
}

// DisableUser disables a user account
func (um *UserManager) DisableUser(ctx context.Context, email string) error {
	user, err := um.users.FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	return um.users.SetActive(ctx, user.ID, false)
}

// EnableUser enables a user account
func (um *UserManager) EnableUser(ctx context.Context, email string) error {
	user, err := um.users.FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	return um.users.SetActive(ctx, user.ID, true)
}

// UpdateUserPassword updates a user's password
func (um *UserManager) UpdateUserPassword(ctx context.Context, email, newPassword string) error {
	if newPassword == "" {
		return fmt.Errorf("password is required")
	}
	user, err := um.users.FindByEmail(ctx, email)
	if err != nil {
		return err
	}

	hashed, err := HashPassword(newPassword, um.bcryptCost)
	if err != nil {
		return err
	}
	return um.users.SetPasswordHash(ctx, user.ID, hashed)
}

// GrantPagePermission replaces the flags a user holds on a page
func (um *UserManager) GrantPagePermission(ctx context.Context, email string, page permission.Page, flags permission.Flags) (*PagePermission, error) {
	user, err := um.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	return um.perms.Upsert(ctx, user.ID, page, flags)
}

// UserPermissions lists the page permissions of a user
func (um *UserManager) UserPermissions(ctx context.Context, email string) ([]PagePermission, error) {
	user, err := um.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	return um.perms.ListForUser(ctx, user.ID)
}

// DeleteUser deletes an account and its permissions
func (um *UserManager) DeleteUser(ctx context.Context, email string) error {
	user, err := um.users.FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	return um.users.DeleteUser(ctx, user.ID)
}

// ListUsers lists all users
func (um *UserManager) ListUsers(ctx context.Context) ([]User, error) {
	return um.users.ListUsers(ctx)
}
