package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/MaNn0/Super-Admin-Dashboard-with-User-Access-Control/internal/permission"
)

const permissionColumns = `id, user_id, page, can_view, can_edit, can_create, can_delete, updated_at`

// ListForUser returns the permissions of a user ordered by page
func (db *DB) ListForUser(ctx context.Context, userID int64) ([]PagePermission, error) {
	perms := []PagePermission{}
	query := `SELECT ` + permissionColumns + ` FROM user_page_permissions WHERE user_id = $1 ORDER BY page`
	if err := db.SelectContext(ctx, &perms, query, userID); err != nil {
		return nil, fmt.Errorf("failed to get user permissions: %w", err)
	}
	return perms, nil
}

// ListForUsers returns the permissions of several users keyed by user id.
// Users without permissions are absent from the map.
func (db *DB) ListForUsers(ctx context.Context, userIDs []int64) (map[int64][]PagePermission, error) {
	out := make(map[int64][]PagePermission, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}

	query, args, err := sqlx.In(`SELECT `+permissionColumns+` FROM user_page_permissions WHERE user_id IN (?) ORDER BY user_id, page`, userIDs)
	if err != nil {
		return nil, err
	}

	var perms []PagePermission
	if err := db.SelectContext(ctx, &perms, db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to get user permissions: %w", err)
	}

	for _, p := range perms {
		out[p.UserID] = append(out[p.UserID], p)
	}
	return out, nil
}

// Upsert creates or fully replaces the permission row for (userID, page).
// The unique (user_id, page) constraint serializes concurrent writers.
func (db *DB) Upsert(ctx context.Context, userID int64, page permission.Page, flags permission.Flags) (*PagePermission, error) {
	if !page.Valid() {
		return nil, fmt.Errorf("%w: %q", permission.ErrInvalidPage, page)
	}

	var perm PagePermission
	err := db.GetContext(ctx, &perm, `
		INSERT INTO user_page_permissions (user_id, page, can_view, can_edit, can_create, can_delete, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, page)
		DO
			UPDATE SET can_view = EXCLUDED.can_view,
			           can_edit = EXCLUDED.can_edit,
			           can_create = EXCLUDED.can_create,
			           can_delete = EXCLUDED.can_delete,
			           updated_at = EXCLUDED.updated_at
		RETURNING `+permissionColumns,
		userID, page, flags.CanView, flags.CanEdit, flags.CanCreate, flags.CanDelete, time.Now().UTC())
	if err != nil {
		if isForeignKeyError(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to upsert permission: %w", err)
	}

	return &perm, nil
}

// DeleteAllForUser removes every permission row owned by a user
func (db *DB) DeleteAllForUser(ctx context.Context, userID int64) error {
	return deleteAllForUser(ctx, db, userID)
}

// deleteAllForUser runs on the pool or inside a caller's transaction
func deleteAllForUser(ctx context.Context, exec sqlx.ExecerContext, userID int64) error {
	if _, err := exec.ExecContext(ctx, `DELETE FROM user_page_permissions WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to delete user permissions: %w", err)
	}
	return nil
}
