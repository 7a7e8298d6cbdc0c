package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataroomhq/dataroom/pkg/docstore"
	"github.com/dataroomhq/dataroom/pkg/events"
)

func testLogger() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}

type captured struct {
	payload   []byte
	signature string
	event     string
	delivery  string
}

func TestDispatcherDeliversSignedNotification(t *testing.T) {
	received := make(chan captured, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		received <- captured{
			payload:   body,
			signature: r.Header.Get(headerSignature),
			event:     r.Header.Get(headerEvent),
			delivery:  r.Header.Get(headerDelivery),
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	manager := NewManager(docstore.NewMemory())
	ctx := context.Background()
	sub := &Subscription{URL: server.URL, Secret: "s3cret", ResourceTypes: []string{"loan"}}
	require.NoError(t, manager.Create(ctx, sub))

	dispatcher := NewDispatcher(ctx, manager, DispatcherConfig{Logger: testLogger()})
	defer dispatcher.Close()

	require.NoError(t, dispatcher.Publish(ctx, events.Notification{
		Operation:    events.OperationUpdated,
		ResourceType: "loan",
		ResourceID:   "loan-1",
		Actor:        "auth0|alice",
	}))

	select {
	case got := <-received:
		assert.Equal(t, "updated", got.event)
		assert.NotEmpty(t, got.delivery)
		assert.True(t, VerifySignature(got.payload, got.signature, "s3cret"))

		var n events.Notification
		require.NoError(t, json.Unmarshal(got.payload, &n))
		assert.Equal(t, "loan-1", n.ResourceID)
	case <-time.After(2 * time.Second):
		t.Fatal("webhook was not delivered")
	}

	require.Eventually(t, func() bool {
		deliveries := dispatcher.Deliveries().BySubscription(sub.ID, 10)
		return len(deliveries) == 1 && deliveries[0].Status == DeliverySuccess
	}, 2*time.Second, 20*time.Millisecond)
}

func TestDispatcherFiltersByResourceType(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer server.Close()

	manager := NewManager(docstore.NewMemory())
	ctx := context.Background()
	require.NoError(t, manager.Create(ctx, &Subscription{URL: server.URL, ResourceTypes: []string{"loan"}}))

	dispatcher := NewDispatcher(ctx, manager, DispatcherConfig{Logger: testLogger()})
	defer dispatcher.Close()

	require.NoError(t, dispatcher.Publish(ctx, events.Notification{
		Operation:    events.OperationCreated,
		ResourceType: "deal",
		ResourceID:   "deal-1",
	}))

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&hits))
}

func TestDispatcherSchedulesRetry(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	manager := NewManager(docstore.NewMemory())
	ctx := context.Background()
	sub := &Subscription{URL: server.URL}
	require.NoError(t, manager.Create(ctx, sub))

	dispatcher := NewDispatcher(ctx, manager, DispatcherConfig{
		Retry:  RetryConfig{MaxAttempts: 3},
		Logger: testLogger(),
	})
	defer dispatcher.Close()

	require.NoError(t, dispatcher.Publish(ctx, events.Notification{
		Operation:    events.OperationDeleted,
		ResourceType: "loan",
		ResourceID:   "loan-1",
	}))

	require.Eventually(t, func() bool {
		deliveries := dispatcher.Deliveries().BySubscription(sub.ID, 10)
		if len(deliveries) != 1 {
			return false
		}
		d := deliveries[0]
		return d.Status == DeliveryRetrying && d.NextRetryAt != nil && d.Attempts == 1
	}, 2*time.Second, 20*time.Millisecond)
}

func TestDispatcherAbandonsAfterMaxAttempts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	manager := NewManager(docstore.NewMemory())
	ctx := context.Background()
	sub := &Subscription{URL: server.URL}
	require.NoError(t, manager.Create(ctx, sub))

	dispatcher := NewDispatcher(ctx, manager, DispatcherConfig{
		Retry:  RetryConfig{MaxAttempts: 1},
		Logger: testLogger(),
	})
	defer dispatcher.Close()

	require.NoError(t, dispatcher.Publish(ctx, events.Notification{
		Operation:    events.OperationCreated,
		ResourceType: "loan",
		ResourceID:   "loan-1",
	}))

	require.Eventually(t, func() bool {
		deliveries := dispatcher.Deliveries().BySubscription(sub.ID, 10)
		return len(deliveries) == 1 && deliveries[0].Status == DeliveryFailed
	}, 2*time.Second, 20*time.Millisecond)

	stats := dispatcher.Deliveries().StatsFor(sub.ID)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 0.0, stats.SuccessRate)
}
