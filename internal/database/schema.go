package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/MaNn0/Super-Admin-Dashboard-with-User-Access-Control/internal/permission"
)

const schemaVersionTable = `
CREATE TABLE IF NOT EXISTS _schema (
	version integer UNIQUE,
	created_at timestamp with time zone DEFAULT now()
);
`

// migrations[i] upgrades the schema from version i to version i+1
var migrations = []string{
	`
CREATE TABLE IF NOT EXISTS users (
	id            BIGSERIAL PRIMARY KEY,
	username      VARCHAR(254) NOT NULL UNIQUE,
	email         VARCHAR(254) NOT NULL,
	password_hash TEXT NOT NULL,
	is_superuser  BOOLEAN NOT NULL DEFAULT FALSE,
	is_active     BOOLEAN NOT NULL DEFAULT TRUE,
	created_at    TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now(),
	last_login    TIMESTAMP WITH TIME ZONE
);

CREATE UNIQUE INDEX IF NOT EXISTS uix_users_email ON users (lower(email));
`,
	`
CREATE TABLE IF NOT EXISTS user_page_permissions (
	id         BIGSERIAL PRIMARY KEY,
	user_id    BIGINT NOT NULL REFERENCES users (id) ON DELETE CASCADE,
	page       VARCHAR(50) NOT NULL CHECK (page IN (` + pageList() + `)),
	can_view   BOOLEAN NOT NULL DEFAULT FALSE,
	can_edit   BOOLEAN NOT NULL DEFAULT FALSE,
	can_create BOOLEAN NOT NULL DEFAULT FALSE,
	can_delete BOOLEAN NOT NULL DEFAULT FALSE,
	updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now(),
	CONSTRAINT uix_user_page_permissions_user_page UNIQUE (user_id, page)
);
`,
}

func pageList() string {
	pages := permission.Pages()
	quoted := make([]string, len(pages))
	for i, p := range pages {
		quoted[i] = "'" + string(p.Page) + "'"
	}
	return strings.Join(quoted, ", ")
}

// SchemaVersion is the version Migrate brings the database to
func SchemaVersion() int {
	return len(migrations)
}

// Migrate applies every pending schema migration, one transaction each
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, schemaVersionTable); err != nil {
		return fmt.Errorf("failed to create schema table: %w", err)
	}

	version := 0
	err := db.QueryRowContext(ctx, `SELECT version FROM _schema ORDER BY version DESC LIMIT 1`).Scan(&version)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	if version > len(migrations) {
		return fmt.Errorf("database is newer than we can support! (%d > %d)", version, len(migrations))
	}

	for ; version < len(migrations); version++ {
		tx, err := db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migrations[version]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to apply migration %d: %w", version+1, err)
		}

		if _, err := tx.ExecContext(ctx, `INSERT INTO _schema(version) VALUES($1)`, version+1); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", version+1, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", version+1, err)
		}

		logrus.WithField("version", version+1).Info("Applied database migration")
	}

	return nil
}
