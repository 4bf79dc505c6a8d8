package audit

import (
	"context"
	"time"
)

// EventCategory classifies audit events so sinks can route or retain them
// differently.
type EventCategory string

const (
	// CategoryCompliance covers changes to stored personal data.
	CategoryCompliance EventCategory = "compliance"
	// CategorySecurity covers rejected credentials and access violations.
	CategorySecurity EventCategory = "security"
	// CategoryOperations covers routine activity.
	CategoryOperations EventCategory = "operations"
)

type AuditEvent string

const (
	EventSubmissionCreated    AuditEvent = "submission_created"
	EventEmailAttached        AuditEvent = "email_attached"
	EventTokenIssued          AuditEvent = "token_issued"
	EventAttachmentDownloaded AuditEvent = "attachment_downloaded"
	EventSessionReset         AuditEvent = "session_reset"
	EventTokenRejected        AuditEvent = "token_rejected"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventSubmissionCreated:    CategoryCompliance,
	EventEmailAttached:        CategoryCompliance,
	EventTokenRejected:        CategorySecurity,
	EventTokenIssued:          CategoryOperations,
	EventAttachmentDownloaded: CategoryOperations,
	EventSessionReset:         CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Event is emitted from domain logic to capture key actions. It carries no
// form content beyond identifiers: names, emails and files stay in the store.
type Event struct {
	ID           string        `json:"id"`
	Category     EventCategory `json:"category"`
	Action       AuditEvent    `json:"action"`
	Timestamp    time.Time     `json:"timestamp"`
	SubmissionID int64         `json:"submission_id,omitempty"`
	Subject      string        `json:"subject,omitempty"`
	Reason       string        `json:"reason,omitempty"`
	RequestID    string        `json:"request_id,omitempty"`
	SessionID    string        `json:"session_id,omitempty"`
	ClientIP     string        `json:"client_ip,omitempty"`
}

// Store is a destination for audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// Emitter is what domain services depend on.
type Emitter interface {
	Emit(ctx context.Context, event Event) error
}
