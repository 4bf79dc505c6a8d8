//go:build integration

package kafka_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "formvault/pkg/platform/audit"
	"formvault/pkg/platform/audit/store/kafka"
	"formvault/pkg/testutil/containers"
)

func TestKafkaStoreProducesEvents(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := containers.NewRedpandaContainer(t)
	store, err := kafka.New(broker.Brokers, "formvault.audit.test")
	require.NoError(t, err)
	t.Cleanup(store.Close)

	require.NoError(t, store.EnsureTopic(ctx, 1, 1))
	require.NoError(t, store.EnsureTopic(ctx, 1, 1), "existing topic is tolerated")
	require.NoError(t, store.Ping(ctx))

	event := audit.Event{
		ID:           "evt-1",
		Category:     audit.CategoryCompliance,
		Action:       audit.EventSubmissionCreated,
		Timestamp:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		SubmissionID: 42,
	}
	require.NoError(t, store.Append(ctx, event))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(broker.Brokers...),
		kgo.ConsumeTopics("formvault.audit.test"),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	t.Cleanup(consumer.Close)

	fetches := consumer.PollFetches(ctx)
	require.Empty(t, fetches.Errors())
	records := fetches.Records()
	require.Len(t, records, 1)

	assert.Equal(t, "evt-1", string(records[0].Key))
	var got audit.Event
	require.NoError(t, json.Unmarshal(records[0].Value, &got))
	assert.Equal(t, event, got)
}
