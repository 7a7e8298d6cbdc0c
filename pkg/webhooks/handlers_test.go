package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataroomhq/dataroom/pkg/docstore"
	"github.com/dataroomhq/dataroom/pkg/identity"
)

func newTestRouter(t *testing.T) (*mux.Router, *Manager) {
	t.Helper()
	manager := NewManager(docstore.NewMemory())
	handlers := NewHandlers(manager, nil, testLogger())
	router := mux.NewRouter()
	handlers.Register(router)
	return router, manager
}

func doAs(router *mux.Router, actor *identity.Actor, method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if actor != nil {
		req = req.WithContext(identity.WithActor(req.Context(), actor))
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func adminActor() *identity.Actor {
	return &identity.Actor{SubjectID: "auth0|root", Groups: []string{"admin"}}
}

func TestHandlersCreateListDelete(t *testing.T) {
	router, _ := newTestRouter(t)

	body := []byte(`{"url":"https://example.com/hook","secret":"s3cret","resourceTypes":["loan"]}`)
	w := doAs(router, adminActor(), http.MethodPost, "/webhooks", body)
	require.Equal(t, http.StatusCreated, w.Code)

	var created Subscription
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)
	// secrets never leave the API
	assert.Empty(t, created.Secret)

	w = doAs(router, adminActor(), http.MethodGet, "/webhooks", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var listed []Subscription
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	assert.Len(t, listed, 1)

	w = doAs(router, adminActor(), http.MethodDelete, "/webhooks/"+created.ID, nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = doAs(router, adminActor(), http.MethodGet, "/webhooks/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandlersSetActive(t *testing.T) {
	router, manager := newTestRouter(t)

	sub := &Subscription{URL: "https://example.com/hook"}
	require.NoError(t, manager.Create(context.Background(), sub))

	w := doAs(router, adminActor(), http.MethodPut, "/webhooks/"+sub.ID+"/active", []byte(`{"active":false}`))
	require.Equal(t, http.StatusNoContent, w.Code)

	got, err := manager.Get(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)
}

func TestHandlersRequireAdmin(t *testing.T) {
	router, _ := newTestRouter(t)

	customer := &identity.Actor{SubjectID: "auth0|alice", Groups: []string{"customer"}}
	w := doAs(router, customer, http.MethodGet, "/webhooks", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doAs(router, nil, http.MethodGet, "/webhooks", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestHandlersCreateValidation(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doAs(router, adminActor(), http.MethodPost, "/webhooks", []byte(`{"url":""}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doAs(router, adminActor(), http.MethodPost, "/webhooks", []byte(`not json`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
