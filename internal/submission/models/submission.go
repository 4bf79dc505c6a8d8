package models

import (
	"database/sql"
	"time"
)

// Submission is one visitor's record: identity, two uploaded files, an
// optional comment and, after the second step, an email.
type Submission struct {
	ID            int64          `db:"id"`
	Name          string         `db:"name"`
	LastName      string         `db:"last_name"`
	ImageFilename string         `db:"img_file_name"`
	Image         []byte         `db:"img_file"`
	PDFFilename   string         `db:"pdf_file_name"`
	PDF           []byte         `db:"pdf_file"`
	Comment       string         `db:"comment_field"`
	Email         sql.NullString `db:"email"`
	CreatedAt     time.Time      `db:"created_at"`
}

// Complete reports whether the record has everything a retrieval token needs.
func (s *Submission) Complete() bool {
	return s.ID != 0 && s.Name != "" && s.LastName != "" && s.Email.Valid && s.Email.String != ""
}

// EmailAddress returns the attached email or "".
func (s *Submission) EmailAddress() string {
	if s.Email.Valid {
		return s.Email.String
	}
	return ""
}

// Attachment selects one of the submission's stored files.
func (s *Submission) Attachment(kind AttachmentKind) (*Attachment, bool) {
	switch kind {
	case AttachmentPDF:
		return &Attachment{Kind: kind, Filename: s.PDFFilename, Content: s.PDF}, true
	case AttachmentImage:
		return &Attachment{Kind: kind, Filename: s.ImageFilename, Content: s.Image}, true
	default:
		return nil, false
	}
}

// AttachmentKind is the value of the ?file= query parameter.
type AttachmentKind string

const (
	AttachmentPDF   AttachmentKind = "pdf"
	AttachmentImage AttachmentKind = "img"
)

// ParseAttachmentKind accepts the two supported query values.
func ParseAttachmentKind(v string) (AttachmentKind, bool) {
	switch AttachmentKind(v) {
	case AttachmentPDF, AttachmentImage:
		return AttachmentKind(v), true
	default:
		return "", false
	}
}

// Attachment is a stored file with its original upload name.
type Attachment struct {
	Kind     AttachmentKind
	Filename string
	Content  []byte
}

// RegisterInput carries a validated step-one form into the service.
type RegisterInput struct {
	Name          string
	LastName      string
	ImageFilename string
	Image         []byte
	PDFFilename   string
	PDF           []byte
	Comment       string
}
