package presenter

import "github.com/gofiber/fiber/v2"

type ErrorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func JSON(c *fiber.Ctx, status int, v any) error {
	return c.Status(status).JSON(v)
}

func Error(c *fiber.Ctx, status int, message string) error {
	return JSON(c, status, ErrorResponse{Message: message})
}

// ErrorWithCode attaches a machine-readable code for cases the client
// must tell apart beyond the status (e.g. unconfirmed account on login).
func ErrorWithCode(c *fiber.Ctx, status int, message, code string) error {
	return JSON(c, status, ErrorResponse{Message: message, Code: code})
}
