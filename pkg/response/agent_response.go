// Package response provides the standard admin API response envelope.
package response

import "github.com/gofiber/fiber/v2"

// Envelope is the shape every admin endpoint returns.
type Envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
	Meta    *Meta      `json:"meta,omitempty"`
}

// ErrorInfo carries machine-readable error details.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Meta carries list metadata.
type Meta struct {
	Count int `json:"count"`
}

// OK writes a 200 with data.
func OK(c *fiber.Ctx, data any) error {
	return c.JSON(Envelope{Success: true, Data: data})
}

// List writes a 200 with data and a count.
func List(c *fiber.Ctx, data any, count int) error {
	return c.JSON(Envelope{Success: true, Data: data, Meta: &Meta{Count: count}})
}

// Fail writes an error envelope with the given status.
func Fail(c *fiber.Ctx, status int, code, message string, data any) error {
	return c.Status(status).JSON(Envelope{
		Success: false,
		Data:    data,
		Error:   &ErrorInfo{Code: code, Message: message},
	})
}
