package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"courier-dispatch/internal/apperr"
	"courier-dispatch/internal/auth"
	"courier-dispatch/internal/domain"
	"courier-dispatch/internal/logx"
	"courier-dispatch/internal/visibility"
)

// Error codes carried in every error body.
const (
	CodeBadRequest   = "bad_request"
	CodeInvalid      = "invalid"
	CodeUnauthorized = "unauthorized"
	CodeForbidden    = "forbidden"
	CodeNotFound     = "not_found"
	CodeConflict     = "conflict"
	CodeRaceLost     = "race_lost"
	CodeStaleState   = "stale_state"
	CodeRateLimited  = "rate_limited"
	CodeInternal     = "internal"
)

func reqID(ctx context.Context) string {
	if id := middleware.GetReqID(ctx); id != "" {
		return id
	}
	return "-"
}

func writeJSON(logger logx.Logger, w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil && logger != nil {
		logger.Error("json encode error",
			logx.String("request_id", reqID(r.Context())),
			logx.Err(err),
		)
	}
}

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Field string `json:"field,omitempty"`
}

func writeError(logger logx.Logger, w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	writeJSON(logger, w, r, status, ErrorResponse{Error: msg, Code: code})
}

// writeErr maps a service error onto the wire. Internal details stay in the log.
func writeErr(logger logx.Logger, w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	body := ErrorResponse{Error: err.Error(), Code: code}

	var ve *apperr.ValidationError
	if errors.As(err, &ve) {
		body.Field = ve.Field
	}
	if status == http.StatusInternalServerError {
		body.Error = "internal error"
		if logger != nil {
			logger.Error("request failed",
				logx.String("request_id", reqID(r.Context())),
				logx.String("path", r.URL.Path),
				logx.Err(err),
			)
		}
	}
	writeJSON(logger, w, r, status, body)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, apperr.ErrRaceLost):
		return http.StatusConflict, CodeRaceLost
	case errors.Is(err, apperr.ErrStaleState):
		return http.StatusConflict, CodeStaleState
	case errors.Is(err, apperr.ErrInvalid):
		return http.StatusUnprocessableEntity, CodeInvalid
	case errors.Is(err, apperr.ErrUnauthorized):
		return http.StatusUnauthorized, CodeUnauthorized
	case errors.Is(err, apperr.ErrForbidden):
		return http.StatusForbidden, CodeForbidden
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, apperr.ErrConflict):
		return http.StatusConflict, CodeConflict
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// ErrorCode returns the stable wire code for err.
func ErrorCode(err error) string {
	_, code := classify(err)
	return code
}

const (
	bodyLimit = 1 << 20
)

// decodeJSON reads exactly one JSON document into dst and validates it.
func decodeJSON[T any](logger logx.Logger, w http.ResponseWriter, r *http.Request, dst *T) bool {
	r.Body = http.MaxBytesReader(w, r.Body, bodyLimit)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		writeError(logger, w, r, http.StatusBadRequest, CodeBadRequest, "invalid json")
		return false
	}
	if err := dec.Decode(new(struct{})); err != io.EOF {
		writeError(logger, w, r, http.StatusBadRequest, CodeBadRequest, "invalid json: trailing data")
		return false
	}
	if err := validateStruct(dst); err != nil {
		writeErr(logger, w, r, err)
		return false
	}
	return true
}

func idFromURL(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, apperr.Invalid(name, "must be a UUID")
	}
	return id, nil
}

// viewerFrom returns the caller as a visibility viewer. Pending accounts get
// an empty role and are refused by the services.
func viewerFrom(r *http.Request) (visibility.Viewer, domain.Session, bool) {
	s, ok := auth.SessionFrom(r.Context())
	if !ok || s.Account == nil {
		return visibility.Viewer{}, domain.Session{}, false
	}
	return visibility.Viewer{ID: s.Account.AccountID(), Role: s.Role()}, s, true
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, apperr.Invalid(name, "must be a non-negative integer")
	}
	return v, nil
}

func queryFloat(r *http.Request, name string) (*float64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, apperr.Invalid(name, "must be a number")
	}
	return &v, nil
}
