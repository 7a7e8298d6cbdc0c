package audit

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataroomhq/dataroom/pkg/apierror"
	"github.com/dataroomhq/dataroom/pkg/docstore"
	"github.com/dataroomhq/dataroom/pkg/events"
)

func testLogger() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}

func record(t *testing.T, log *Log, n events.Notification) {
	t.Helper()
	require.NoError(t, log.Publish(context.Background(), n))
}

func TestLogRecordsAndQueries(t *testing.T) {
	log := NewLog(docstore.NewMemory(), testLogger())
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	record(t, log, events.Notification{
		Timestamp:    base,
		Operation:    events.OperationCreated,
		ResourceType: "loan",
		ResourceID:   "loan-1",
		Actor:        "auth0|alice",
		Diff:         docstore.Doc{"state": "DRAFT"},
	})
	record(t, log, events.Notification{
		Timestamp:    base.Add(time.Minute),
		Operation:    events.OperationUpdated,
		ResourceType: "loan",
		ResourceID:   "loan-1",
		SectionName:  "terms",
		Actor:        "auth0|root",
	})
	record(t, log, events.Notification{
		Timestamp:    base.Add(2 * time.Minute),
		Operation:    events.OperationCreated,
		ResourceType: "deal",
		ResourceID:   "deal-1",
		Actor:        "auth0|alice",
	})

	entries, err := log.Query(ctx, QueryParams{ResourceType: "loan"})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// newest first
	assert.Equal(t, "updated", entries[0].Operation)
	assert.Equal(t, "terms", entries[0].SectionName)
	assert.Equal(t, "auth0|root", entries[0].Actor)
	assert.Equal(t, "created", entries[1].Operation)
	assert.Equal(t, "DRAFT", entries[1].Diff["state"])
}

func TestLogQueryFilters(t *testing.T) {
	log := NewLog(docstore.NewMemory(), testLogger())
	ctx := context.Background()
	now := time.Now().UTC()

	record(t, log, events.Notification{Timestamp: now, Operation: events.OperationCreated, ResourceType: "loan", ResourceID: "loan-1", Actor: "auth0|alice"})
	record(t, log, events.Notification{Timestamp: now, Operation: events.OperationDeleted, ResourceType: "loan", ResourceID: "loan-2", Actor: "auth0|root"})

	byID, err := log.Query(ctx, QueryParams{ResourceType: "loan", ResourceID: "loan-2"})
	require.NoError(t, err)
	require.Len(t, byID, 1)
	assert.Equal(t, "deleted", byID[0].Operation)

	byActor, err := log.Query(ctx, QueryParams{ResourceType: "loan", Actor: "auth0|alice"})
	require.NoError(t, err)
	require.Len(t, byActor, 1)
	assert.Equal(t, "loan-1", byActor[0].ResourceID)
}

func TestLogQueryRequiresResourceType(t *testing.T) {
	log := NewLog(docstore.NewMemory(), testLogger())

	_, err := log.Query(context.Background(), QueryParams{})
	require.Error(t, err)
	assert.True(t, apierror.IsBadRequest(err))
}

func TestLogQueryLimit(t *testing.T) {
	log := NewLog(docstore.NewMemory(), testLogger())
	ctx := context.Background()
	base := time.Now().UTC()

	for i := 0; i < 5; i++ {
		record(t, log, events.Notification{
			Timestamp:    base.Add(time.Duration(i) * time.Second),
			Operation:    events.OperationUpdated,
			ResourceType: "loan",
			ResourceID:   "loan-1",
		})
	}

	entries, err := log.Query(ctx, QueryParams{ResourceType: "loan", Limit: 2})
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
