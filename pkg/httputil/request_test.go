package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataroomhq/dataroom/pkg/apierror"
)

func TestDecodeDoc(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/api/v1/loan",
		strings.NewReader(`{"amount": 500, "customerId": "cust-1"}`))

	doc, err := DecodeDoc(r)
	require.NoError(t, err)
	assert.Equal(t, "cust-1", doc["customerId"])
	// numbers arrive as json.Number, not float64
	assert.Equal(t, json.Number("500"), doc["amount"])
}

func TestDecodeDocInvalidJSON(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/api/v1/loan", strings.NewReader(`{"amount":`))

	_, err := DecodeDoc(r)
	assert.True(t, apierror.IsBadRequest(err))
}

func TestPathVar(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/v1/loan/loan-001", nil)
	r = mux.SetURLVars(r, map[string]string{"id": "loan-001"})

	id, err := PathVar(r, "id")
	require.NoError(t, err)
	assert.Equal(t, "loan-001", id)

	_, err = PathVar(r, "section")
	assert.True(t, apierror.IsBadRequest(err))
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		token   string
		wantErr bool
	}{
		{"valid", "Bearer abc123", "abc123", false},
		{"missing", "", "", true},
		{"wrong scheme", "Basic abc123", "", true},
		{"bare prefix", "Bearer ", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/v1/loan", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			token, err := BearerToken(r)
			if tt.wantErr {
				assert.True(t, apierror.IsForbidden(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.token, token)
		})
	}
}

func TestChainOrderAndRequestID(t *testing.T) {
	var order []string
	tag := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	handler := Chain(tag("outer"), tag("inner"), RequestID)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			WriteNoContent(w)
		}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"outer", "inner"}, order)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRequestIDEchoesCaller(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Request-ID", "req-42")

	RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).ServeHTTP(w, r)

	assert.Equal(t, "req-42", w.Header().Get("X-Request-ID"))
}

func TestRecoveryTurnsPanicsInto500(t *testing.T) {
	handler := Recovery(testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "internal server error")
}
