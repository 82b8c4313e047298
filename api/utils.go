package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/pkg/errors"

	"github.com/stornet-labs/ledger/core"
)

type httpError struct {
	cause  error
	status int
}

func (e *httpError) Error() string {
	return e.cause.Error()
}

// HTTPError creates an error carrying an http status code.
func HTTPError(cause error, status int) error {
	return &httpError{cause: cause, status: status}
}

func BadRequest(cause error) error {
	return &httpError{cause: cause, status: http.StatusBadRequest}
}

// HandlerFunc is like http.HandlerFunc but returns an error. httpError
// responds with its status, domain errors map onto a status by kind, anything
// else responds 500.
type HandlerFunc func(http.ResponseWriter, *http.Request) error

func WrapHandlerFunc(f HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := f(w, r)
		if err == nil {
			return
		}
		if he, ok := err.(*httpError); ok {
			http.Error(w, he.cause.Error(), he.status)
			return
		}
		http.Error(w, err.Error(), domainStatus(err))
	}
}

// domainStatus maps the core error taxonomy onto http status codes so API
// callers can tell "fix your input" from "try again later".
func domainStatus(err error) int {
	var pe *core.ProposalError
	if errors.As(err, &pe) {
		if pe.Kind == core.ProposalNotFound {
			return http.StatusNotFound
		}
		return http.StatusConflict
	}
	var re *core.RewardError
	if errors.As(err, &re) {
		return http.StatusConflict
	}

	switch {
	case errors.Is(err, core.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, core.ErrTimelockActive), errors.Is(err, core.ErrCooldownActive):
		return http.StatusTooManyRequests
	case errors.Is(err, core.ErrQuotaExceeded):
		return http.StatusConflict
	case errors.Is(err, core.ErrPaused):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

const jsonContentType = "application/json; charset=utf-8"

// ParseJSON parses a JSON object using strict mode.
func ParseJSON(r io.Reader, v any) error {
	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

// WriteJSON responds an object in JSON encoding.
func WriteJSON(w http.ResponseWriter, obj any) error {
	w.Header().Set("Content-Type", jsonContentType)
	return json.NewEncoder(w).Encode(obj)
}

// M shortcut for type map[string]interface{}.
type M map[string]interface{}
