// Package response builds the JSON envelope every API route returns.
package response

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// =============================================================================
// Standard API Response
// =============================================================================

// Response is the standard API response structure.
type Response struct {
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
	Meta      *Meta      `json:"meta,omitempty"`
	RequestID string     `json:"request_id,omitempty"`
	Timestamp string     `json:"timestamp,omitempty"`
}

// ErrorInfo contains error details.
type ErrorInfo struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Meta carries paging information for list responses.
type Meta struct {
	Count   int  `json:"count"`
	Limit   int  `json:"limit,omitempty"`
	Offset  int  `json:"offset,omitempty"`
	HasMore bool `json:"has_more,omitempty"`
}

// =============================================================================
// Response Builders
// =============================================================================

func OK(c *fiber.Ctx, data any) error {
	return c.JSON(Response{Success: true, Data: data})
}

// OKWithMeta returns a successful response with metadata.
func OKWithMeta(c *fiber.Ctx, data any, meta *Meta) error {
	return c.JSON(Response{Success: true, Data: data, Meta: meta})
}

// Accepted returns a 202 for work handed to the background.
func Accepted(c *fiber.Ctx, data any) error {
	return c.Status(fiber.StatusAccepted).JSON(Response{Success: true, Data: data})
}

func NoContent(c *fiber.Ctx) error {
	return c.SendStatus(fiber.StatusNoContent)
}

// Fail writes an error envelope.
func Fail(c *fiber.Ctx, status int, info ErrorInfo, requestID string) error {
	return c.Status(status).JSON(Response{
		Success:   false,
		Error:     &info,
		RequestID: requestID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// =============================================================================
// Pagination Helper
// =============================================================================

// Page is a limit/offset window read from the query string.
type Page struct {
	Limit  int
	Offset int
}

// GetPage reads limit and offset, clamping limit to [1, maxLimit].
func GetPage(c *fiber.Ctx, defaultLimit, maxLimit int) Page {
	limit := c.QueryInt("limit", defaultLimit)
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	offset := c.QueryInt("offset", 0)
	if offset < 0 {
		offset = 0
	}
	return Page{Limit: limit, Offset: offset}
}

// MetaFor describes a page of n items.
func MetaFor(p Page, n int) *Meta {
	return &Meta{Count: n, Limit: p.Limit, Offset: p.Offset, HasMore: n == p.Limit}
}
