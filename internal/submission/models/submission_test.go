package models

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubmissionComplete(t *testing.T) {
	s := &Submission{ID: 1, Name: "Ann", LastName: "Lee"}
	assert.False(t, s.Complete(), "no email yet")

	s.Email = sql.NullString{String: "ann@x.com", Valid: true}
	assert.True(t, s.Complete())
	assert.Equal(t, "ann@x.com", s.EmailAddress())
}

func TestSubmissionAttachment(t *testing.T) {
	s := &Submission{
		PDFFilename:   "a.pdf",
		PDF:           []byte("%PDF-1.4"),
		ImageFilename: "a.png",
		Image:         []byte{0x89, 'P', 'N', 'G'},
	}

	pdf, ok := s.Attachment(AttachmentPDF)
	assert.True(t, ok)
	assert.Equal(t, "a.pdf", pdf.Filename)
	assert.Equal(t, []byte("%PDF-1.4"), pdf.Content)

	img, ok := s.Attachment(AttachmentImage)
	assert.True(t, ok)
	assert.Equal(t, "a.png", img.Filename)

	_, ok = s.Attachment(AttachmentKind("zip"))
	assert.False(t, ok)
}

func TestParseAttachmentKind(t *testing.T) {
	kind, ok := ParseAttachmentKind("img")
	assert.True(t, ok)
	assert.Equal(t, AttachmentImage, kind)

	_, ok = ParseAttachmentKind("PDF")
	assert.False(t, ok)
	_, ok = ParseAttachmentKind("")
	assert.False(t, ok)
}
