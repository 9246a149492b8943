package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"hr-lifecycle/backend/internal/auth"
	"hr-lifecycle/backend/internal/engine"
	"hr-lifecycle/backend/internal/repository"
	"hr-lifecycle/backend/internal/services"
)

// ProblemDetails represents an RFC 7807 Problem Details response
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance,omitempty"`
	// Reason is the machine-readable error kind, e.g. illegal_transition.
	Reason string `json:"reason,omitempty"`
}

// Logger is the logging surface the error handler needs.
type Logger interface {
	Error(msg string, args ...any)
}

// problemFor maps an error to a problem document.
func problemFor(err error) ProblemDetails {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		detail := http.StatusText(he.Code)
		if he.Message != nil {
			detail = fmt.Sprint(he.Message)
		}
		return ProblemDetails{Type: "about:blank", Title: http.StatusText(he.Code), Status: he.Code, Detail: detail}
	}

	status := http.StatusInternalServerError
	reason := engine.Reason(err)
	switch {
	case errors.Is(err, auth.ErrForbidden):
		status, reason = http.StatusForbidden, "forbidden"
	case errors.Is(err, services.ErrEmployeeNotFound):
		status, reason = http.StatusNotFound, "employee_not_found"
	case errors.Is(err, engine.ErrUnknownTrack),
		errors.Is(err, engine.ErrUnknownTask),
		errors.Is(err, engine.ErrWorkflowNotFound):
		status = http.StatusNotFound
	case errors.Is(err, repository.ErrVersionConflict):
		status, reason = http.StatusConflict, "version_conflict"
	case errors.Is(err, engine.ErrIllegalTransition),
		errors.Is(err, engine.ErrDependencyNotSatisfied),
		errors.Is(err, engine.ErrWorkflowNotActive),
		errors.Is(err, engine.ErrReplayMismatch):
		status = http.StatusConflict
	case errors.Is(err, engine.ErrPersistence):
		status = http.StatusServiceUnavailable
	case errors.Is(err, engine.ErrInvalidRequest):
		status = http.StatusBadRequest
	}
	return ProblemDetails{
		Type:   "about:blank",
		Title:  http.StatusText(status),
		Status: status,
		Detail: err.Error(),
		Reason: reason,
	}
}

// ErrorHandler writes every handler error as application/problem+json.
func ErrorHandler(logger Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		problem := problemFor(err)
		problem.Instance = c.Request().URL.Path
		if problem.Status >= http.StatusInternalServerError {
			logger.Error("request failed", "method", c.Request().Method, "path", problem.Instance, "status", problem.Status, "error", err)
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(problem.Status)
		} else {
			c.Response().Header().Set(echo.HeaderContentType, "application/problem+json")
			err = c.JSON(problem.Status, problem)
		}
		if err != nil {
			logger.Error("failed to write error response", "error", err)
		}
	}
}
