package api

import (
	"log"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/routerdiscovery/engine/internal/models"
)

var validate = validator.New()

// ErrorResponse is the sanitised error body returned to API clients.
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// sanitizeError logs the detailed error server-side and returns a
// user-friendly message, following the teacher's pattern-matching
// translation layer.
func sanitizeError(err error, userMessage string) string {
	if err == nil {
		return userMessage
	}
	log.Printf("[API Error] %s: %v", userMessage, err)

	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "UNIQUE constraint"), strings.Contains(errStr, "duplicate key"):
		return "A resource with this value already exists"
	case strings.Contains(errStr, "record not found"), strings.Contains(errStr, "not found"):
		return "Resource not found"
	case strings.Contains(errStr, "keyring"), strings.Contains(errStr, "keychain"):
		return "Failed to manage credentials securely"
	case strings.Contains(errStr, "failed to dial"), strings.Contains(errStr, "ssh open"):
		return "Unable to connect to router"
	case strings.Contains(errStr, "authentication failed"), strings.Contains(errStr, "unable to authenticate"):
		return "Authentication failed - check credentials"
	default:
		return userMessage
	}
}

// HandleError returns a sanitised error response, preferring a structured
// APIError's own code/message/details when the error is one.
func HandleError(c *fiber.Ctx, statusCode int, err error, defaultMessage string) error {
	if apiErr, ok := err.(*models.APIError); ok {
		return c.Status(statusCode).JSON(ErrorResponse{
			Error:   apiErr.Message,
			Code:    apiErr.Code,
			Details: apiErr.Details,
		})
	}
	return c.Status(statusCode).JSON(ErrorResponse{Error: sanitizeError(err, defaultMessage)})
}

// ValidateRequest validates req against its struct tags and, on failure,
// writes a 400 response and returns a non-nil error for the caller to
// propagate.
func ValidateRequest(c *fiber.Ctx, req interface{}) error {
	if err := validate.Struct(req); err != nil {
		log.Printf("[Validation Error] %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error: "Invalid request - please check your input and try again",
		})
	}
	return nil
}
