package worker

import (
	"context"
	"log/slog"

	audit "formvault/pkg/platform/audit"
)

// Worker drains an inbox of audit events into a store. A failed append is
// logged and the worker moves on to the next event.
type Worker struct {
	store  audit.Store
	inbox  <-chan audit.Event
	logger *slog.Logger
}

func NewWorker(store audit.Store, inbox <-chan audit.Event, logger *slog.Logger) *Worker {
	return &Worker{store: store, inbox: inbox, logger: logger}
}

// Run returns once the inbox is closed and empty.
func (w *Worker) Run(ctx context.Context) {
	for event := range w.inbox {
		if err := w.store.Append(ctx, event); err != nil && w.logger != nil {
			w.logger.WarnContext(ctx, "failed to append audit event",
				"event_id", event.ID,
				"action", event.Action,
				"error", err,
			)
		}
	}
}
