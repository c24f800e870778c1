package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jeffersonhds/storefront/internal/apperr"
	"github.com/jeffersonhds/storefront/internal/domain"
	"github.com/jeffersonhds/storefront/internal/identity"
	"github.com/jeffersonhds/storefront/internal/retry"
	"github.com/sirupsen/logrus"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logrus.WithError(err).Warn("failed to encode response")
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// handleAppError maps the error kind to an HTTP status. The body carries the
// customer facing message, never the raw error.
func handleAppError(w http.ResponseWriter, log logrus.FieldLogger, err error) {
	var failed *retry.FailedError
	if errors.As(err, &failed) {
		respondError(w, http.StatusServiceUnavailable, "service_unavailable", failed.Message)
		return
	}

	c := apperr.Classify(err)
	var status int
	var code string
	switch c.Kind {
	case apperr.KindInvalid:
		status = http.StatusBadRequest
		code = "invalid_argument"
	case apperr.KindNotFound:
		status = http.StatusNotFound
		code = "not_found"
	case apperr.KindUnauthenticated:
		status = http.StatusUnauthorized
		code = "unauthenticated"
	case apperr.KindUnauthorized:
		status = http.StatusForbidden
		code = "permission_denied"
	case apperr.KindTransient:
		switch c.Cause {
		case apperr.CauseTimeout:
			status = http.StatusGatewayTimeout
			code = "timeout"
		case apperr.CauseServer:
			status = http.StatusBadGateway
			code = "upstream_error"
		default:
			status = http.StatusServiceUnavailable
			code = "service_unavailable"
		}
	default:
		status = http.StatusInternalServerError
		code = "internal_error"
	}
	if status >= http.StatusInternalServerError {
		log.WithError(err).WithField("status", status).Warn("request failed")
	}

	details := ""
	if c.Kind == apperr.KindInvalid {
		details = invalidDetails(err)
	}
	respondJSON(w, status, ErrorResponse{Error: apperr.UserMessage(err), Code: code, Details: details})
}

// invalidDetails exposes validation failures, which are safe to show.
func invalidDetails(err error) string {
	var ae *apperr.Error
	if errors.As(err, &ae) && ae.Err != nil {
		return ae.Err.Error()
	}
	return ""
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return false
	}
	return true
}

// signedIn returns the current identity, or answers 401 for anonymous callers.
func signedIn(w http.ResponseWriter, r *http.Request, p identity.Provider) (domain.Identity, bool) {
	user := p.Current(r.Context())
	if user.IsAnonymous() {
		respondError(w, http.StatusUnauthorized, "unauthenticated", "please sign in again")
		return user, false
	}
	return user, true
}
