// Package api contains the HTTP handlers for the lifecycle service
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Pinger reports whether the persistence backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler serves the operational endpoints.
type Handler struct {
	store   Pinger
	version string
}

// NewHandler creates a new Handler with required dependencies
func NewHandler(store Pinger, version string) *Handler {
	return &Handler{store: store, version: version}
}

// HealthStatus represents the health check response
type HealthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
	Version   string    `json:"version"`
	Detail    string    `json:"detail,omitempty"`
}

// HandleHealth returns basic health status (always returns 200 OK)
func (h *Handler) HandleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, h.status("ok", ""))
}

// HandleReady pings the store and returns 503 when it is unreachable.
func (h *Handler) HandleReady(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		return c.JSON(http.StatusServiceUnavailable, h.status("unavailable", err.Error()))
	}
	return c.JSON(http.StatusOK, h.status("ok", ""))
}

func (h *Handler) status(status, detail string) HealthStatus {
	return HealthStatus{
		Status:    status,
		Timestamp: time.Now().UTC(),
		Service:   "hr-lifecycle",
		Version:   h.version,
		Detail:    detail,
	}
}
