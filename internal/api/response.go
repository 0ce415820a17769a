package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"aqua-backend/internal/compat"
	"aqua-backend/internal/feeding"
	"aqua-backend/internal/mqtt"
	"aqua-backend/internal/recommend"
)

const maxBodySize = 1 << 20

// httpError is an expected failure that is returned to the client as is
type httpError struct {
	Status  int
	Message string
}

func (e *httpError) Error() string {
	return e.Message
}

func badRequest(format string, args ...any) error {
	return &httpError{Status: http.StatusBadRequest, Message: fmt.Sprintf(format, args...)}
}

type errorBody struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// handlerFunc is an HTTP handler that can fail
type handlerFunc func(w http.ResponseWriter, r *http.Request) error

// statusFor maps domain errors onto HTTP status codes. Anything unknown is a 500.
func statusFor(err error) (int, bool) {
	var httpErr *httpError
	var apiErr *recommend.APIError
	switch {
	case errors.As(err, &httpErr):
		return httpErr.Status, true
	case errors.Is(err, mqtt.ErrNotConnected), errors.Is(err, feeding.ErrFeedInProgress):
		return http.StatusConflict, true
	case errors.Is(err, feeding.ErrScheduleNotFound),
		errors.Is(err, compat.ErrProfileNotFound),
		errors.Is(err, recommend.ErrFishNotFound):
		return http.StatusNotFound, true
	case errors.Is(err, feeding.ErrInvalidTime), errors.Is(err, recommend.ErrInvalidTank):
		return http.StatusBadRequest, true
	case errors.As(err, &apiErr):
		return http.StatusBadGateway, true
	}
	return http.StatusInternalServerError, false
}

func (s *Server) handle(fn handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := fn(w, r)
		if err == nil {
			return
		}

		reqID := middleware.GetReqID(r.Context())
		status, expected := statusFor(err)
		if !expected {
			s.logger.Error("internal error",
				zap.String("request_id", reqID),
				zap.String("path", r.URL.Path),
				zap.Error(err))
			s.respondJSON(w, http.StatusInternalServerError, errorBody{Error: "internal server error", RequestID: reqID})
			return
		}

		s.logger.Debug("request failed",
			zap.String("request_id", reqID),
			zap.Int("status", status),
			zap.Error(err))
		s.respondJSON(w, status, errorBody{Error: err.Error(), RequestID: reqID})
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// headers are already out
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}

// decodeJSON reads a single JSON object, rejecting unknown fields
func decodeJSON[T any](r *http.Request) (T, error) {
	var v T
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodySize))
	dec.DisallowUnknownFields()

	if err := dec.Decode(&v); err != nil {
		var (
			syntaxErr  *json.SyntaxError
			typeErr    *json.UnmarshalTypeError
			maxBodyErr *http.MaxBytesError
		)
		switch {
		case errors.Is(err, io.EOF):
			return v, badRequest("request body is empty")
		case errors.As(err, &syntaxErr):
			return v, badRequest("invalid JSON syntax at position %d", syntaxErr.Offset)
		case errors.As(err, &typeErr):
			return v, badRequest("invalid type for field %q", typeErr.Field)
		case errors.As(err, &maxBodyErr):
			return v, &httpError{Status: http.StatusRequestEntityTooLarge, Message: "request body too large"}
		default:
			return v, badRequest("invalid JSON payload: %v", err)
		}
	}
	return v, nil
}
