package client

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"courier-dispatch/internal/apperr"
	"courier-dispatch/internal/http/handlers"
)

// APIError is a non-2xx answer. Body is kept verbatim for display.
type APIError struct {
	Status  int
	Code    string
	Message string
	Field   string
	Body    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if body := strings.TrimSpace(e.Body); body != "" {
		return body
	}
	return fmt.Sprintf("http %d", e.Status)
}

// Unwrap exposes the matching apperr sentinel so callers can use errors.Is/As.
func (e *APIError) Unwrap() error {
	switch {
	case e.Status == http.StatusUnauthorized:
		return apperr.ErrUnauthorized
	case e.Code == handlers.CodeRaceLost:
		return apperr.ErrRaceLost
	case e.Code == handlers.CodeStaleState:
		return apperr.ErrStaleState
	case e.Status == http.StatusBadRequest, e.Status == http.StatusUnprocessableEntity:
		return &apperr.ValidationError{Field: e.Field, Reason: e.Message}
	case e.Status == http.StatusForbidden:
		return apperr.ErrForbidden
	case e.Status == http.StatusNotFound:
		return apperr.ErrNotFound
	case e.Status == http.StatusConflict:
		return apperr.ErrConflict
	default:
		return nil
	}
}

// Temporary reports whether re-triggering the call by hand may help.
func (e *APIError) Temporary() bool {
	return e.Status >= 500 || e.Status == http.StatusTooManyRequests
}

func decodeAPIError(status int, body []byte) *APIError {
	e := &APIError{Status: status, Body: string(body)}
	var payload handlers.ErrorResponse
	if err := json.Unmarshal(body, &payload); err == nil {
		e.Code = payload.Code
		e.Message = payload.Error
		e.Field = payload.Field
	}
	return e
}
