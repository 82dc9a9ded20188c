package middleware

import (
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"jobtrack_server/pkg/apperr"
	"jobtrack_server/pkg/logger"
	"jobtrack_server/pkg/metrics"
	"jobtrack_server/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const localRequestID = "request_id"

// ErrorHandler is the fiber error handler. AppErrors keep their code and
// status; anything else becomes a 500 without leaking its message.
func ErrorHandler() fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		requestID, _ := c.Locals(localRequestID).(string)

		var (
			status int
			detail response.ErrorInfo
			appErr *apperr.AppError
			fbErr  *fiber.Error
		)

		switch {
		case errors.As(err, &appErr):
			status = appErr.Status
			detail = response.ErrorInfo{Code: appErr.Code, Message: appErr.Message, Details: appErr.Details}

			log := logger.WithField("request_id", requestID).
				WithField("error_code", appErr.Code).
				WithError(appErr.Err)
			if status >= 500 {
				log.Error("Internal error: %s", appErr.Message)
			} else {
				log.Warn("Client error: %s", appErr.Message)
			}

		case errors.As(err, &fbErr):
			status = fbErr.Code
			detail = response.ErrorInfo{Code: mapHTTPStatusToCode(fbErr.Code), Message: fbErr.Message}

		default:
			status = fiber.StatusInternalServerError
			detail = response.ErrorInfo{Code: apperr.CodeInternalError, Message: "An unexpected error occurred"}

			logger.WithField("request_id", requestID).
				WithError(err).
				WithField("stack", string(debug.Stack())).
				Error("Unexpected error: %s", err.Error())
		}

		if status == 0 {
			status = fiber.StatusInternalServerError
		}
		return response.Fail(c, status, detail, requestID)
	}
}

// RequestID adds a unique request ID to each request.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		requestID := c.Get(fiber.HeaderXRequestID)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Locals(localRequestID, requestID)
		c.Set(fiber.HeaderXRequestID, requestID)
		return c.Next()
	}
}

// RequestLogger logs each request once it completes and records its latency
// under the matched route pattern.
func RequestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		elapsed := time.Since(start)
		metrics.RecordLatency(c.Method()+" "+c.Route().Path, elapsed)

		// The error handler has not run yet; derive the final status here.
		status := c.Response().StatusCode()
		if err != nil {
			status = apperr.GetHTTPStatus(err)
			var fbErr *fiber.Error
			if errors.As(err, &fbErr) {
				status = fbErr.Code
			}
		}

		requestID, _ := c.Locals(localRequestID).(string)
		log := logger.WithFields(map[string]any{
			"request_id":  requestID,
			"method":      c.Method(),
			"path":        c.Path(),
			"status":      status,
			"duration_ms": float64(elapsed.Microseconds()) / 1000.0,
			"ip":          c.IP(),
		})
		if ownerID, ok := c.Locals(LocalOwnerID).(uuid.UUID); ok {
			log = log.WithField("owner_id", ownerID.String())
		}

		switch {
		case status >= 500:
			log.Error("Request failed: %s %s -> %d", c.Method(), c.Path(), status)
		case status >= 400:
			log.Warn("Request error: %s %s -> %d", c.Method(), c.Path(), status)
		default:
			log.Info("Request completed: %s %s -> %d", c.Method(), c.Path(), status)
		}
		return err
	}
}

// Recover turns a handler panic into a 500 response.
func Recover() fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				requestID, _ := c.Locals(localRequestID).(string)
				logger.WithFields(map[string]any{
					"request_id": requestID,
					"panic":      fmt.Sprintf("%v", r),
					"path":       c.Path(),
					"method":     c.Method(),
					"stack":      string(debug.Stack()),
				}).Error("Panic recovered")

				err = response.Fail(c, fiber.StatusInternalServerError, response.ErrorInfo{
					Code:    apperr.CodeInternalError,
					Message: "An unexpected error occurred",
				}, requestID)
			}
		}()
		return c.Next()
	}
}

func mapHTTPStatusToCode(status int) string {
	switch status {
	case 400:
		return apperr.CodeBadRequest
	case 401:
		return apperr.CodeUnauthorized
	case 403:
		return apperr.CodeForbidden
	case 404:
		return apperr.CodeNotFound
	case 405:
		return "METHOD_NOT_ALLOWED"
	case 409:
		return apperr.CodeConflict
	case 429:
		return "RATE_LIMITED"
	case 500:
		return apperr.CodeInternalError
	case 502, 503, 504:
		return "SERVICE_UNAVAILABLE"
	default:
		return "UNKNOWN_ERROR"
	}
}
