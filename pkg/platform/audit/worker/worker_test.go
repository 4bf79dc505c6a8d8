package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	audit "formvault/pkg/platform/audit"
)

type flakyStore struct {
	seen []audit.AuditEvent
}

func (s *flakyStore) Append(_ context.Context, e audit.Event) error {
	s.seen = append(s.seen, e.Action)
	if e.Action == audit.EventTokenRejected {
		return errors.New("sink down")
	}
	return nil
}

func TestWorkerContinuesAfterAppendError(t *testing.T) {
	inbox := make(chan audit.Event, 3)
	inbox <- audit.Event{Action: audit.EventSubmissionCreated}
	inbox <- audit.Event{Action: audit.EventTokenRejected}
	inbox <- audit.Event{Action: audit.EventSessionReset}
	close(inbox)

	store := &flakyStore{}
	NewWorker(store, inbox, nil).Run(context.Background())

	assert.Equal(t, []audit.AuditEvent{
		audit.EventSubmissionCreated,
		audit.EventTokenRejected,
		audit.EventSessionReset,
	}, store.seen)
}
