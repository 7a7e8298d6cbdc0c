package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/dataroomhq/dataroom/pkg/apierror"
	"github.com/dataroomhq/dataroom/pkg/docstore"
)

// DecodeDoc reads the request body as a JSON object. Numbers stay json.Number
// so integer payload fields survive the round trip through the document store.
func DecodeDoc(r *http.Request) (docstore.Doc, error) {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	var doc docstore.Doc
	if err := dec.Decode(&doc); err != nil {
		return nil, apierror.BadRequestf("invalid JSON body: %v", err)
	}
	return doc, nil
}

// PathVar returns a named path segment, failing as a bad request when absent.
func PathVar(r *http.Request, key string) (string, error) {
	value := mux.Vars(r)[key]
	if value == "" {
		return "", apierror.BadRequestf("missing path parameter %q", key)
	}
	return value, nil
}

// BearerToken extracts the token from an Authorization header.
func BearerToken(r *http.Request) (string, error) {
	const prefix = "Bearer "
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", apierror.Forbiddenf("missing Authorization header")
	}
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		return "", apierror.Forbiddenf("Authorization header is not a bearer token")
	}
	return header[len(prefix):], nil
}
