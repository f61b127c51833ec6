// Package access implements the dashboard access control operations: login,
// permission reads and the superuser-only account and permission management.
package access

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/MaNn0/Super-Admin-Dashboard-with-User-Access-Control/internal/auth"
	"github.com/MaNn0/Super-Admin-Dashboard-with-User-Access-Control/internal/database"
	"github.com/MaNn0/Super-Admin-Dashboard-with-User-Access-Control/internal/logging"
	"github.com/MaNn0/Super-Admin-Dashboard-with-User-Access-Control/internal/metrics"
	"github.com/MaNn0/Super-Admin-Dashboard-with-User-Access-Control/internal/permission"
)

// Operation names used in logs, metrics and audit events
const (
	OpLogin             = "login"
	OpRefresh           = "refresh"
	OpLogout            = "logout"
	OpGetOwnPermissions = "get_own_permissions"
	OpListUsers         = "list_users"
	OpCreateUser        = "create_user"
	OpSetPagePermission = "set_page_permission"
	OpDeleteUser        = "delete_user"
	OpListPages         = "list_pages"
)

// superuserOps lists the operations reserved for superusers
var superuserOps = map[string]bool{
	OpListUsers:         true,
	OpCreateUser:        true,
	OpSetPagePermission: true,
	OpDeleteUser:        true,
}

type callerKey struct{}

// verifiedCaller is the account a bearer token resolved to earlier in the
// request
type verifiedCaller struct {
	token string
	user  *database.User
}

// UserPayload is a user together with its page permissions
type UserPayload struct {
	ID          int64              `json:"id"`
	Username    string             `json:"username"`
	Email       string             `json:"email"`
	IsSuperuser bool               `json:"is_superuser"`
	Permissions []permission.Entry `json:"permissions"`
}

// UserListEntry is a user as shown in the superuser listing
type UserListEntry struct {
	UserPayload
	IsActive bool `json:"is_active"`
}

// LoginResult is returned by a successful login
type LoginResult struct {
	User   UserPayload    `json:"user"`
	Tokens auth.TokenPair `json:"tokens"`
}

// Service enforces authentication and authorization in front of the user
// directory and the permission store
type Service struct {
	users      database.UserDirectory
	perms      database.PermissionStore
	authn      auth.Authenticator
	metrics    *metrics.Metrics
	audit      *logging.AuditLogger
	bcryptCost int
	validate   *validator.Validate
}

// Option configures optional collaborators of the Service
type Option func(*Service)

// WithMetrics records login, denial and change counters
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithAuditLogger writes security events to the audit log
func WithAuditLogger(a *logging.AuditLogger) Option {
	return func(s *Service) { s.audit = a }
}

// WithBcryptCost sets the cost used to hash passwords of new accounts
func WithBcryptCost(cost int) Option {
	return func(s *Service) { s.bcryptCost = cost }
}

// NewService creates the access control service
func NewService(users database.UserDirectory, perms database.PermissionStore, authn auth.Authenticator, opts ...Option) *Service {
	s := &Service{
		users:    users,
		perms:    perms,
		authn:    authn,
		validate: newValidator(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Login verifies credentials and returns the account, its permissions and a
// fresh token pair. Unknown emails, wrong passwords and disabled accounts
// all fail with the same InvalidCredentials error.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if err := s.validateRequest(req); err != nil {
		return nil, s.reject(OpLogin, 0, err)
	}

	user, err := s.authn.VerifyCredentials(ctx, req.Identifier(), req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		s.metrics.IncLogin("failure")
		s.audit.LogAuthEvent(OpLogin, 0, false)
		return nil, s.reject(OpLogin, 0, newError(KindInvalidCredentials, "Invalid credentials"))
	}
	if err != nil {
		return nil, fmt.Errorf("verify credentials: %w", err)
	}

	if err := s.users.UpdateLastLogin(ctx, user.ID); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"operation": OpLogin,
			"user_id":   user.ID,
		}).Warn("Failed to update last login")
	}

	tokens, err := s.authn.IssueTokenPair(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("issue tokens: %w", err)
	}

	payload, err := s.userPayload(ctx, user)
	if err != nil {
		return nil, err
	}

	s.metrics.IncLogin("success")
	s.audit.LogAuthEvent(OpLogin, user.ID, true)
	logrus.WithFields(logrus.Fields{
		"operation": OpLogin,
		"user_id":   user.ID,
	}).Info("User logged in")

	return &LoginResult{User: *payload, Tokens: tokens}, nil
}

// Refresh exchanges a refresh token for a new token pair
func (s *Service) Refresh(ctx context.Context, req RefreshRequest) (auth.TokenPair, error) {
	if err := s.validateRequest(req); err != nil {
		return auth.TokenPair{}, s.reject(OpRefresh, 0, err)
	}

	pair, user, err := s.authn.Refresh(ctx, req.Refresh)
	if errors.Is(err, auth.ErrInvalidToken) {
		s.metrics.IncTokenRefresh("failure")
		s.audit.LogAuthEvent(OpRefresh, 0, false)
		return auth.TokenPair{}, s.reject(OpRefresh, 0, newError(KindUnauthenticated, "Token is invalid or expired"))
	}
	if err != nil {
		return auth.TokenPair{}, fmt.Errorf("refresh token: %w", err)
	}

	s.metrics.IncTokenRefresh("success")
	s.audit.LogAuthEvent(OpRefresh, user.ID, true)
	return pair, nil
}

// Logout revokes a refresh token
func (s *Service) Logout(ctx context.Context, req RefreshRequest) error {
	if err := s.validateRequest(req); err != nil {
		return s.reject(OpLogout, 0, err)
	}

	err := s.authn.Revoke(ctx, req.Refresh)
	if errors.Is(err, auth.ErrInvalidToken) {
		return s.reject(OpLogout, 0, newError(KindUnauthenticated, "Token is invalid or expired"))
	}
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}

	s.audit.LogAuthEvent(OpLogout, 0, true)
	return nil
}

// GetOwnPermissions returns the calling user and its permissions
func (s *Service) GetOwnPermissions(ctx context.Context, token string) (*UserPayload, error) {
	caller, err := s.authenticate(ctx, OpGetOwnPermissions, token)
	if err != nil {
		return nil, err
	}
	return s.userPayload(ctx, caller)
}

// ListPages returns the page catalogue to any authenticated caller
func (s *Service) ListPages(ctx context.Context, token string) ([]permission.PageInfo, error) {
	if _, err := s.authenticate(ctx, OpListPages, token); err != nil {
		return nil, err
	}
	return permission.Pages(), nil
}

// ListUsers returns every account with its permissions. Superuser only.
func (s *Service) ListUsers(ctx context.Context, token string) ([]UserListEntry, error) {
	if _, err := s.authorizeSuperuser(ctx, OpListUsers, token); err != nil {
		return nil, err
	}

	users, err := s.users.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	ids := make([]int64, len(users))
	for i, u := range users {
		ids[i] = u.ID
	}
	byUser, err := s.perms.ListForUsers(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list permissions: %w", err)
	}

	out := make([]UserListEntry, 0, len(users))
	for _, u := range users {
		out = append(out, UserListEntry{
			UserPayload: newUserPayload(&u, byUser[u.ID]),
			IsActive:    u.IsActive,
		})
	}
	return out, nil
}

// CreateUser creates an active, non-superuser account whose username is its
// email and returns the new user id. Superuser only.
func (s *Service) CreateUser(ctx context.Context, token string, req CreateUserRequest) (int64, error) {
	caller, err := s.authorizeSuperuser(ctx, OpCreateUser, token)
	if err != nil {
		return 0, err
	}

	req.Email = strings.TrimSpace(req.Email)
	if err := s.validateRequest(req); err != nil {
		return 0, s.reject(OpCreateUser, caller.ID, err)
	}

	hashed, err := database.HashPassword(req.Password, s.bcryptCost)
	if err != nil {
		return 0, fmt.Errorf("hash password: %w", err)
	}

	user := &database.User{
		Username:     req.Email,
		Email:        req.Email,
		PasswordHash: hashed,
		IsActive:     true,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, database.ErrConflict) {
			return 0, s.reject(OpCreateUser, caller.ID, newError(KindConflict, "A user with this email already exists"))
		}
		return 0, fmt.Errorf("create user: %w", err)
	}

	s.metrics.IncUserChange("create")
	s.audit.LogChange(OpCreateUser, caller.ID, user.ID, nil)
	logrus.WithFields(logrus.Fields{
		"operation":      OpCreateUser,
		"user_id":        caller.ID,
		"target_user_id": user.ID,
	}).Info("User created")

	return user.ID, nil
}

// SetPagePermission creates or fully replaces the flags targetUserID holds
// on a page. Superuser only.
func (s *Service) SetPagePermission(ctx context.Context, token string, targetUserID int64, req SetPermissionRequest) (*permission.Entry, error) {
	caller, err := s.authorizeSuperuser(ctx, OpSetPagePermission, token)
	if err != nil {
		return nil, err
	}

	req.Page = strings.TrimSpace(req.Page)
	if err := s.validateRequest(req); err != nil {
		return nil, s.reject(OpSetPagePermission, caller.ID, err)
	}

	if _, err := s.users.FindByID(ctx, targetUserID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, s.reject(OpSetPagePermission, caller.ID, newError(KindNotFound, "User not found"))
		}
		return nil, fmt.Errorf("find user: %w", err)
	}

	page := permission.Page(req.Page)
	perm, err := s.perms.Upsert(ctx, targetUserID, page, req.Flags())
	switch {
	case errors.Is(err, database.ErrNotFound):
		return nil, s.reject(OpSetPagePermission, caller.ID, newError(KindNotFound, "User not found"))
	case errors.Is(err, permission.ErrInvalidPage):
		return nil, s.reject(OpSetPagePermission, caller.ID, &Error{
			Kind:    KindValidation,
			Message: "Validation failed",
			Fields:  []FieldError{{Field: "page", Message: fmt.Sprintf("Invalid page %q", req.Page)}},
		})
	case err != nil:
		return nil, fmt.Errorf("upsert permission: %w", err)
	}

	s.metrics.IncPermissionWrite(string(page))
	s.audit.LogChange(OpSetPagePermission, caller.ID, targetUserID, logrus.Fields{
		"page":       page,
		"can_view":   perm.CanView,
		"can_edit":   perm.CanEdit,
		"can_create": perm.CanCreate,
		"can_delete": perm.CanDelete,
	})

	entry := perm.Entry()
	return &entry, nil
}

// DeleteUser removes an account and all of its permissions. Superuser only.
func (s *Service) DeleteUser(ctx context.Context, token string, targetUserID int64) error {
	caller, err := s.authorizeSuperuser(ctx, OpDeleteUser, token)
	if err != nil {
		return err
	}

	if err := s.users.DeleteUser(ctx, targetUserID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return s.reject(OpDeleteUser, caller.ID, newError(KindNotFound, "User not found"))
		}
		return fmt.Errorf("delete user: %w", err)
	}

	s.metrics.IncUserChange("delete")
	s.audit.LogChange(OpDeleteUser, caller.ID, targetUserID, nil)
	logrus.WithFields(logrus.Fields{
		"operation":      OpDeleteUser,
		"user_id":        caller.ID,
		"target_user_id": targetUserID,
	}).Info("User deleted")

	return nil
}

// Authorize checks that token may run op and returns a context carrying the
// verified caller. HTTP handlers call it before reading the request body, so
// an anonymous or unprivileged caller learns nothing from body parsing.
// Service methods given the returned context reuse the caller instead of
// verifying the token again.
func (s *Service) Authorize(ctx context.Context, op, token string) (context.Context, error) {
	var (
		caller *database.User
		err    error
	)
	if superuserOps[op] {
		caller, err = s.authorizeSuperuser(ctx, op, token)
	} else {
		caller, err = s.authenticate(ctx, op, token)
	}
	if err != nil {
		return ctx, err
	}
	return context.WithValue(ctx, callerKey{}, verifiedCaller{token: token, user: caller}), nil
}

// MissingCredentials rejects a request whose credentials could not be read
func (s *Service) MissingCredentials(op string) error {
	return s.reject(op, 0, newError(KindUnauthenticated, "Authentication credentials were not provided"))
}

// authenticate resolves the bearer token to its account
func (s *Service) authenticate(ctx context.Context, op, token string) (*database.User, error) {
	if strings.TrimSpace(token) == "" {
		return nil, s.MissingCredentials(op)
	}
	if c, ok := ctx.Value(callerKey{}).(verifiedCaller); ok && c.token == token {
		return c.user, nil
	}

	user, err := s.authn.VerifyToken(ctx, token)
	if errors.Is(err, auth.ErrInvalidToken) {
		return nil, s.reject(op, 0, newError(KindUnauthenticated, "Token is invalid or expired"))
	}
	if err != nil {
		return nil, fmt.Errorf("verify token: %w", err)
	}
	return user, nil
}

// authorizeSuperuser authenticates the caller and requires superuser rights
func (s *Service) authorizeSuperuser(ctx context.Context, op, token string) (*database.User, error) {
	caller, err := s.authenticate(ctx, op, token)
	if err != nil {
		return nil, err
	}
	if !caller.IsSuperuser {
		s.audit.LogAccessDenied(caller.ID, op, "superuser required")
		return nil, s.reject(op, caller.ID, newError(KindUnauthorized, "Only superusers can perform this action"))
	}
	return caller, nil
}

// reject records a domain error before returning it
func (s *Service) reject(op string, callerID int64, err error) error {
	kind := KindOf(err)
	s.metrics.IncAccessDenied(op, string(kind))

	entry := logrus.WithFields(logrus.Fields{
		"operation": op,
		"kind":      string(kind),
	})
	if callerID != 0 {
		entry = entry.WithField("user_id", callerID)
	}
	entry.Debug("Request rejected")

	return err
}

func (s *Service) userPayload(ctx context.Context, user *database.User) (*UserPayload, error) {
	perms, err := s.perms.ListForUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("list permissions: %w", err)
	}
	payload := newUserPayload(user, perms)
	return &payload, nil
}

func newUserPayload(user *database.User, perms []database.PagePermission) UserPayload {
	return UserPayload{
		ID:          user.ID,
		Username:    user.Username,
		Email:       user.Email,
		IsSuperuser: user.IsSuperuser,
		Permissions: database.Entries(perms),
	}
}
