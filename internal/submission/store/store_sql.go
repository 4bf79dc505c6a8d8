package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"formvault/internal/submission/models"
	"formvault/pkg/platform/sentinel"
	"formvault/pkg/platform/tx"
)

// Queries use ? placeholders and are rebound for the driver at construction.
const (
	insertSubmission = `
INSERT INTO form_data (name, last_name, img_file_name, img_file, pdf_file_name, pdf_file, comment_field, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
RETURNING id`

	attachEmail = `UPDATE form_data SET email = ? WHERE id = ? AND email IS NULL`

	submissionExists = `SELECT COUNT(1) FROM form_data WHERE id = ?`

	selectSubmission = `
SELECT id, name, last_name, img_file_name, img_file, pdf_file_name, pdf_file, comment_field, email, created_at
FROM form_data
WHERE id = ?`
)

// SQLStore persists submissions through sqlx. It works with lib/pq and
// go-sqlite3 connections; ids are assigned by the database.
type SQLStore struct {
	db *sqlx.DB

	insertQuery string
	attachQuery string
	existsQuery string
	selectQuery string
}

func NewSQL(db *sqlx.DB) *SQLStore {
	return &SQLStore{
		db:          db,
		insertQuery: db.Rebind(insertSubmission),
		attachQuery: db.Rebind(attachEmail),
		existsQuery: db.Rebind(submissionExists),
		selectQuery: db.Rebind(selectSubmission),
	}
}

func (s *SQLStore) Create(ctx context.Context, sub *models.Submission) (int64, error) {
	var id int64
	err := s.db.QueryRowxContext(ctx, s.insertQuery,
		sub.Name,
		sub.LastName,
		sub.ImageFilename,
		nonNil(sub.Image),
		sub.PDFFilename,
		nonNil(sub.PDF),
		sub.Comment,
		sub.CreatedAt.UTC(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert submission: %w", err)
	}
	return id, nil
}

// AttachEmail sets the email of a row that has none. The update and the
// follow-up existence check run in one transaction.
func (s *SQLStore) AttachEmail(ctx context.Context, id int64, email string) error {
	return tx.Run(ctx, s.db, func(ctx context.Context, q *sqlx.Tx) error {
		res, err := q.ExecContext(ctx, s.attachQuery, email, id)
		if err != nil {
			return fmt.Errorf("attach email: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("attach email rows affected: %w", err)
		}
		if n == 1 {
			return nil
		}

		var count int
		if err := q.GetContext(ctx, &count, s.existsQuery, id); err != nil {
			return fmt.Errorf("check submission %d: %w", id, err)
		}
		if count == 0 {
			return fmt.Errorf("submission %d: %w", id, sentinel.ErrNotFound)
		}
		return fmt.Errorf("submission %d email: %w", id, sentinel.ErrAlreadyUsed)
	})
}

func (s *SQLStore) FindByID(ctx context.Context, id int64) (*models.Submission, error) {
	var sub models.Submission
	if err := s.db.GetContext(ctx, &sub, s.selectQuery, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("submission %d: %w", id, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find submission %d: %w", id, err)
	}
	return &sub, nil
}

// Ping reports whether the database answers; used by the health endpoint.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
