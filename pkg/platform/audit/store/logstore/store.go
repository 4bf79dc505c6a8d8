package logstore

import (
	"context"
	"log/slog"

	audit "formvault/pkg/platform/audit"
)

// Store writes audit events as structured log records. Security events are
// logged at warn level.
type Store struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Store {
	return &Store{logger: logger}
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	level := slog.LevelInfo
	if event.Category == audit.CategorySecurity {
		level = slog.LevelWarn
	}
	s.logger.Log(ctx, level, "audit",
		"event_id", event.ID,
		"category", event.Category,
		"action", event.Action,
		"submission_id", event.SubmissionID,
		"subject", event.Subject,
		"reason", event.Reason,
		"request_id", event.RequestID,
		"session_id", event.SessionID,
		"client_ip", event.ClientIP,
		"timestamp", event.Timestamp,
	)
	return nil
}
