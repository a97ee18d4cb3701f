package handlers

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/surajsub/deployassist/credentials"
	"github.com/surajsub/deployassist/db"
	"github.com/surajsub/deployassist/instructions"
	"github.com/surajsub/deployassist/wizard"
	"golang.org/x/time/rate"
)

const requestIDKey = "requestID"

func RequestIDMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		requestID := c.Request().Header.Get(echo.HeaderXRequestID)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set(requestIDKey, requestID)
		c.Response().Header().Set(echo.HeaderXRequestID, requestID)
		return next(c)
	}
}

func requestID(c echo.Context) string {
	if id, ok := c.Get(requestIDKey).(string); ok && id != "" {
		return id
	}
	id := uuid.New().String()
	c.Set(requestIDKey, id)
	return id
}

// CustomHTTPErrorHandler maps domain errors to status codes. Anything it does
// not recognize is logged and hidden behind the request id.
func CustomHTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var (
		validation *wizard.ValidationError
		httpErr    *echo.HTTPError
	)
	switch {
	case errors.As(err, &validation):
		_ = c.JSON(http.StatusUnprocessableEntity, map[string]any{
			"error":  "validation failed",
			"step":   validation.Step,
			"errors": validation.Fields,
		})
		return
	case errors.As(err, &httpErr):
		msg := httpErr.Message
		if s, ok := msg.(string); ok {
			msg = map[string]string{"error": s}
		}
		_ = c.JSON(httpErr.Code, msg)
		return
	case errors.Is(err, db.ErrNotFound):
		_ = c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	case errors.Is(err, wizard.ErrFinalized), errors.Is(err, wizard.ErrNotRetryable), errors.Is(err, instructions.ErrNotProvisioned):
		_ = c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
		return
	case errors.Is(err, credentials.ErrNoKey), errors.Is(err, credentials.ErrKeyVersion):
		c.Logger().Errorf("Request ID: %s | Credential key error: %v", requestID(c), err)
		_ = c.JSON(http.StatusServiceUnavailable, map[string]any{
			"error":      "Credential store unavailable. Please contact support with the request ID.",
			"request_id": requestID(c),
		})
		return
	}

	id := requestID(c)
	c.Logger().Errorf("Request ID: %s | Internal error: %v", id, err)

	// Hide internal error message from user
	_ = c.JSON(http.StatusInternalServerError, map[string]any{
		"error":      "Internal server error. Please contact support with the request ID.",
		"request_id": id,
	})
}

// AdminOnly requires X-Admin-Token to match token when required is set.
func AdminOnly(required bool, token string) echo.MiddlewareFunc {
	if !required {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	return middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
		KeyLookup: "header:X-Admin-Token",
		Validator: func(key string, _ echo.Context) (bool, error) {
			return subtle.ConstantTimeCompare([]byte(key), []byte(token)) == 1, nil
		},
		ErrorHandler: func(error, echo.Context) error {
			return echo.NewHTTPError(http.StatusUnauthorized, "admin token required")
		},
	})
}

// RateLimit limits requests per client IP. A non-positive limit disables it.
func RateLimit(perSecond float64, burst int) echo.MiddlewareFunc {
	if perSecond <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	if burst < 1 {
		burst = int(perSecond) + 1
	}
	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(perSecond),
		Burst:     burst,
		ExpiresIn: 3 * time.Minute,
	})
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Skipper: func(c echo.Context) bool {
			p := c.Path()
			return p == "/healthz" || p == "/metrics"
		},
		Store: store,
		DenyHandler: func(c echo.Context, _ string, _ error) error {
			return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
		},
	})
}
