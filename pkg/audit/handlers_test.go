package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataroomhq/dataroom/pkg/docstore"
	"github.com/dataroomhq/dataroom/pkg/events"
	"github.com/dataroomhq/dataroom/pkg/identity"
)

func queryAs(router *mux.Router, actor *identity.Actor, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if actor != nil {
		req = req.WithContext(identity.WithActor(req.Context(), actor))
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAuditEndpoint(t *testing.T) {
	log := NewLog(docstore.NewMemory(), testLogger())
	require.NoError(t, log.Publish(context.Background(), events.Notification{
		Timestamp:    time.Now().UTC(),
		Operation:    events.OperationCreated,
		ResourceType: "loan",
		ResourceID:   "loan-1",
		Actor:        "auth0|alice",
	}))

	router := mux.NewRouter()
	NewHandlers(log, testLogger()).Register(router)
	admin := &identity.Actor{SubjectID: "auth0|root", Groups: []string{"admin"}}

	w := queryAs(router, admin, "/audit?resourceType=loan")
	require.Equal(t, http.StatusOK, w.Code)

	var entries []Entry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "loan-1", entries[0].ResourceID)

	// missing resourceType
	w = queryAs(router, admin, "/audit")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// bad limit
	w = queryAs(router, admin, "/audit?resourceType=loan&limit=zero")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// non-admin denied
	customer := &identity.Actor{SubjectID: "auth0|alice", Groups: []string{"customer"}}
	w = queryAs(router, customer, "/audit?resourceType=loan")
	assert.Equal(t, http.StatusForbidden, w.Code)
}
