package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/dataroomhq/dataroom/pkg/apierror"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error   string   `json:"error"`
	Kind    string   `json:"kind"`
	Details []string `json:"details,omitempty"`
}

// WriteJSON writes data as a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// WriteNoContent writes an empty 204 response.
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// StatusOf maps a classified error to its HTTP status code. Unclassified
// errors count as internal.
func StatusOf(err error) int {
	switch apierror.KindOf(err) {
	case apierror.KindBadRequest:
		return http.StatusBadRequest
	case apierror.KindForbidden:
		return http.StatusForbidden
	case apierror.KindNotFound:
		return http.StatusNotFound
	case apierror.KindPreconditionFailed:
		return http.StatusPreconditionFailed
	default:
		return http.StatusInternalServerError
	}
}

// WriteError renders err in the standard error shape. Internal errors are
// logged with their real message but reported to the client opaquely.
func WriteError(w http.ResponseWriter, logger *logrus.Entry, err error) {
	status := StatusOf(err)
	body := ErrorBody{Error: err.Error(), Kind: string(apierror.KindOf(err))}

	var apiErr *apierror.Error
	if errors.As(err, &apiErr) {
		body.Details = apiErr.Details
	}

	if status == http.StatusInternalServerError {
		if logger != nil {
			logger.WithError(err).Error("request failed")
		}
		body.Error = "internal server error"
		body.Details = nil
	}
	WriteJSON(w, status, body)
}

// WriteErrorMessage renders a bare message at the given status.
func WriteErrorMessage(w http.ResponseWriter, status int, message string) {
	kind := apierror.KindInternal
	switch status {
	case http.StatusBadRequest:
		kind = apierror.KindBadRequest
	case http.StatusUnauthorized, http.StatusForbidden:
		kind = apierror.KindForbidden
	case http.StatusNotFound:
		kind = apierror.KindNotFound
	case http.StatusPreconditionFailed:
		kind = apierror.KindPreconditionFailed
	}
	WriteJSON(w, status, ErrorBody{Error: message, Kind: string(kind)})
}
