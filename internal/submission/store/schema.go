package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS form_data (
	id            BIGSERIAL PRIMARY KEY,
	name          VARCHAR(100)  NOT NULL,
	last_name     VARCHAR(100)  NOT NULL,
	img_file_name VARCHAR(1000) NOT NULL,
	img_file      BYTEA         NOT NULL,
	pdf_file_name VARCHAR(1000) NOT NULL,
	pdf_file      BYTEA         NOT NULL,
	comment_field VARCHAR(1000) NOT NULL DEFAULT '',
	email         VARCHAR(100),
	created_at    TIMESTAMPTZ   NOT NULL DEFAULT now()
)`

// AUTOINCREMENT keeps ids monotonic: SQLite never reuses a rowid.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS form_data (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	name          TEXT     NOT NULL,
	last_name     TEXT     NOT NULL,
	img_file_name TEXT     NOT NULL,
	img_file      BLOB     NOT NULL,
	pdf_file_name TEXT     NOT NULL,
	pdf_file      BLOB     NOT NULL,
	comment_field TEXT     NOT NULL DEFAULT '',
	email         TEXT,
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

// Migrate creates the submissions table for the connection's dialect.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	var ddl string
	switch db.DriverName() {
	case "postgres", "pgx":
		ddl = postgresSchema
	case "sqlite3":
		ddl = sqliteSchema
	default:
		return fmt.Errorf("migrate: unsupported driver %q", db.DriverName())
	}
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("migrate form_data: %w", err)
	}
	return nil
}
