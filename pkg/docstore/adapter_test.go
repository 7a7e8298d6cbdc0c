package docstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataroomhq/dataroom/pkg/apierror"
)

func newTestAdapter(t *testing.T) *Adapter {
	t.Helper()
	return NewAdapter(NewMemory(), []string{"loan", "customer"}, nil)
}

func TestAdapterRejectsUnknownCollection(t *testing.T) {
	ctx := context.Background()
	adapter := newTestAdapter(t)

	_, err := adapter.Find(ctx, "secrets", nil, nil)
	require.Error(t, err)
	assert.True(t, apierror.IsForbidden(err))

	_, err = adapter.Insert(ctx, "secrets", Doc{})
	assert.True(t, apierror.IsForbidden(err))

	err = adapter.Delete(ctx, "secrets", "x")
	assert.True(t, apierror.IsForbidden(err))
}

func TestAdapterInsertStampsTimestamps(t *testing.T) {
	ctx := context.Background()
	adapter := newTestAdapter(t)
	fixed := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	adapter.WithClock(func() time.Time { return fixed })

	// client-supplied timestamps must be overridden
	id, err := adapter.Insert(ctx, "loan", Doc{
		"state":     "DRAFT",
		"createdAt": time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC),
		"updatedAt": time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	doc, err := adapter.GetByID(ctx, "loan", id, nil)
	require.NoError(t, err)
	assert.Equal(t, fixed, doc[FieldCreatedAt])
	assert.Equal(t, fixed, doc[FieldUpdatedAt])
}

func TestAdapterUpdateReturnsPostUpdateDocument(t *testing.T) {
	ctx := context.Background()
	adapter := newTestAdapter(t)

	id, err := adapter.Insert(ctx, "loan", Doc{"state": "DRAFT"})
	require.NoError(t, err)

	later := time.Date(2024, 6, 2, 12, 0, 0, 0, time.UTC)
	adapter.WithClock(func() time.Time { return later })

	doc, err := adapter.UpdateOne(ctx, "loan", id, Doc{"state": "SIGNED"})
	require.NoError(t, err)
	assert.Equal(t, "SIGNED", doc["state"])
	assert.Equal(t, later, doc[FieldUpdatedAt])
}

func TestAdapterNotFoundTranslation(t *testing.T) {
	ctx := context.Background()
	adapter := newTestAdapter(t)

	_, err := adapter.GetByID(ctx, "loan", "missing", nil)
	assert.True(t, apierror.IsNotFound(err))

	_, err = adapter.UpdateOne(ctx, "loan", "missing", Doc{"state": "X"})
	assert.True(t, apierror.IsNotFound(err))

	err = adapter.Delete(ctx, "loan", "missing")
	assert.True(t, apierror.IsNotFound(err))
}

func TestAdapterEnsureIndexesSwallowsErrors(t *testing.T) {
	ctx := context.Background()
	adapter := newTestAdapter(t)

	// invalid index shape fails inside the store but must not propagate
	adapter.EnsureIndexes(ctx, "loan", []Index{{Key: nil}})
	adapter.EnsureIndexes(ctx, "not-whitelisted", []Index{{Key: map[string]int{"state": 1}}})
}
