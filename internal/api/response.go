package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/aTrapDeer/portfolio-backend/internal/apperrors"
	"github.com/aTrapDeer/portfolio-backend/internal/query"
)

const maxBodyBytes = 1 << 20

// ErrorBody is the JSON shape of every error response. Retryable tells the
// client a retry button makes sense.
type ErrorBody struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// errorStatus maps an error onto a status code. Reads that fail with no
// cached data surface as 502 since the upstream store is at fault.
func errorStatus(err error, read bool) int {
	switch {
	case errors.Is(err, apperrors.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, apperrors.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperrors.ErrConflict):
		return http.StatusConflict
	case read:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error, read bool) {
	status := errorStatus(err, read)
	body := ErrorBody{Error: err.Error()}
	if status >= 500 {
		s.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err))
		body = ErrorBody{Error: http.StatusText(status), Retryable: true}
	}
	if werr := writeJSON(w, status, body); werr != nil {
		s.logger.Error("failed to write error response", zap.Error(werr))
	}
}

func (s *Server) respond(w http.ResponseWriter, status int, data any) {
	if err := writeJSON(w, status, data); err != nil {
		s.logger.Error("failed to write response", zap.Error(err))
	}
}

// serveRead writes a cached read, flagging stale data and a failed refresh
// in response headers.
func serveRead[T any](s *Server, w http.ResponseWriter, r *http.Request, res query.Result[T], err error) {
	if err != nil {
		s.fail(w, r, err, true)
		return
	}
	if res.Stale {
		w.Header().Set("X-Cache-Stale", "true")
	}
	if res.Err != nil {
		w.Header().Set("X-Cache-Error", res.Err.Error())
	}
	s.respond(w, http.StatusOK, res.Data)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: malformed request body: %v", apperrors.ErrInvalid, err)
	}
	return nil
}
