// Package respond writes JSON responses and maps domain errors to HTTP statuses.
package respond

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/render"
	"go.uber.org/zap"

	"github.com/itsfredrick/vayva-platform-sub007/internal/consent/domain"
	"github.com/itsfredrick/vayva-platform-sub007/internal/phone"
)

// maxBodyBytes caps request bodies read by Decode.
const maxBodyBytes = 64 << 10

// retryAfterSeconds is sent with 503 responses for transient storage failures.
const retryAfterSeconds = "2"

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error string `json:"error"`
}

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	render.Status(r, status)
	render.JSON(w, r, v)
}

// Error writes {"error": msg} with the given status.
func Error(w http.ResponseWriter, r *http.Request, status int, msg string) {
	JSON(w, r, status, ErrorBody{Error: msg})
}

// Err maps err to a status and writes a generic message. Unexpected errors are logged.
func Err(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	switch {
	case errors.Is(err, phone.ErrNotNormalizable):
		Error(w, r, http.StatusUnprocessableEntity, "phone number cannot be normalized")
	case errors.Is(err, domain.ErrInvalidInput):
		Error(w, r, http.StatusBadRequest, "invalid input")
	case errors.Is(err, domain.ErrStorageUnavailable):
		w.Header().Set("Retry-After", retryAfterSeconds)
		Error(w, r, http.StatusServiceUnavailable, "storage unavailable, retry later")
	default:
		if logger != nil {
			logger.Error("unhandled error", zap.String("path", r.URL.Path), zap.Error(err))
		}
		Error(w, r, http.StatusInternalServerError, "internal error")
	}
}

// Decode reads a JSON body into v. An empty body is an error.
func Decode(r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	if err := render.DecodeJSON(r.Body, v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return err
	}
	return nil
}
