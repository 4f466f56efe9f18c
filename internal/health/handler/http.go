package handler

import (
	"net/http"

	"github.com/go-chi/render"
	"go.uber.org/zap"
)

type statusBody struct {
	Status string `json:"status"`
}

// Healthz reports liveness; it never touches dependencies.
func Healthz(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, statusBody{Status: "ok"})
}

// Readyz returns a handler answering 200 when c is ready and 503 otherwise.
func Readyz(c *Checker, logger *zap.Logger) http.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if err := c.Ready(r.Context()); err != nil {
			logger.Warn("health: not ready", zap.Error(err))
			render.Status(r, http.StatusServiceUnavailable)
			render.JSON(w, r, statusBody{Status: "unavailable"})
			return
		}
		render.JSON(w, r, statusBody{Status: "ready"})
	}
}
