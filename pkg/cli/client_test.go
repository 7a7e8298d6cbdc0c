package cli

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataroomhq/dataroom/pkg/httputil"
)

func newFakeServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/loan/loan-1", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			httputil.WriteErrorMessage(w, http.StatusForbidden, "unknown bearer token")
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]any{"_id": "loan-1", "state": "DRAFT"})
	})
	mux.HandleFunc("GET /api/v1/loan", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]any{
			"items":   []any{map[string]any{"_id": "loan-1"}},
			"hasMore": false,
			"limit":   r.URL.Query().Get("limit"),
			"state":   r.URL.Query().Get("state"),
		})
	})
	mux.HandleFunc("POST /api/v1/loan", func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		payload["_id"] = "loan-2"
		httputil.WriteJSON(w, http.StatusCreated, payload)
	})
	mux.HandleFunc("DELETE /api/v1/loan/loan-1", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteNoContent(w)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestGetCommand(t *testing.T) {
	server := newFakeServer(t)

	output, err := captureStdout(t, func() error {
		return runGet([]string{"-type", "loan", "-id", "loan-1", "-server", server.URL, "-token", "secret"})
	})
	require.NoError(t, err)
	assert.Contains(t, output, `"_id": "loan-1"`)
	assert.Contains(t, output, `"state": "DRAFT"`)
}

func TestGetCommand_ServerError(t *testing.T) {
	server := newFakeServer(t)

	_, err := captureStdout(t, func() error {
		return runGet([]string{"-type", "loan", "-id", "loan-1", "-server", server.URL, "-token", "wrong"})
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown bearer token")
}

func TestGetCommand_MissingFlags(t *testing.T) {
	err := runGet([]string{"-type", "loan"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "type and id are required")
}

func TestListCommand(t *testing.T) {
	server := newFakeServer(t)

	output, err := captureStdout(t, func() error {
		return runList([]string{
			"-type", "loan",
			"-limit", "5",
			"-filter", "state=DRAFT",
			"-server", server.URL,
			"-token", "secret",
		})
	})
	require.NoError(t, err)
	assert.Contains(t, output, `"limit": "5"`)
	assert.Contains(t, output, `"state": "DRAFT"`)
	assert.Contains(t, output, `"_id": "loan-1"`)
}

func TestListCommand_BadFilter(t *testing.T) {
	err := runList([]string{"-type", "loan", "-filter", "nonsense"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected field=value")
}

func TestCreateCommand(t *testing.T) {
	server := newFakeServer(t)

	payload := filepath.Join(t.TempDir(), "loan.json")
	require.NoError(t, os.WriteFile(payload, []byte(`{"amount": 1200}`), 0o644))

	output, err := captureStdout(t, func() error {
		return runCreate([]string{"-type", "loan", "-file", payload, "-server", server.URL, "-token", "secret"})
	})
	require.NoError(t, err)
	assert.Contains(t, output, `"_id": "loan-2"`)
	assert.Contains(t, output, `"amount": 1200`)
}

func TestCreateCommand_InvalidPayload(t *testing.T) {
	payload := filepath.Join(t.TempDir(), "loan.json")
	require.NoError(t, os.WriteFile(payload, []byte(`not json`), 0o644))

	err := runCreate([]string{"-type", "loan", "-file", payload})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not valid JSON")
}

func TestDeleteCommand(t *testing.T) {
	server := newFakeServer(t)

	output, err := captureStdout(t, func() error {
		return runDelete([]string{"-type", "loan", "-id", "loan-1", "-server", server.URL, "-token", "secret"})
	})
	require.NoError(t, err)
	assert.Contains(t, output, "Deleted loan loan-1")
}
