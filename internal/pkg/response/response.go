package response

import (
	"talentgate-backend/internal/domain"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// SuccessBody is the standardized success JSON shape.
type SuccessBody struct {
	Status   string      `json:"status"`
	Message  string      `json:"message"`
	Data     interface{} `json:"data"`
	Metadata interface{} `json:"metadata,omitempty"`
}

// ErrorBody is the standardized error JSON shape.
type ErrorBody struct {
	Status string      `json:"status"`
	Error  ErrorDetail `json:"error"`
}

// ErrorDetail is the nested error object. Code is the stable machine-readable
// error code clients branch on.
type ErrorDetail struct {
	Message    string      `json:"message"`
	StatusCode int         `json:"statusCode"`
	Code       string      `json:"code,omitempty"`
	Details    interface{} `json:"details,omitempty"`
}

const statusSuccess = "success"
const statusError = "error"

const internalMessage = "Internal Server Error"

func send(c *fiber.Ctx, status int, message string, data interface{}, metadata interface{}) error {
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	return c.Status(status).JSON(SuccessBody{
		Status:   statusSuccess,
		Message:  message,
		Data:     data,
		Metadata: metadata,
	})
}

// Success sends a 200 OK response with the standard success format.
func Success(c *fiber.Ctx, message string, data interface{}, metadata interface{}) error {
	return send(c, fiber.StatusOK, message, data, metadata)
}

// SuccessCreated sends a 201 Created response with the standard success format.
func SuccessCreated(c *fiber.Ctx, message string, data interface{}, metadata interface{}) error {
	return send(c, fiber.StatusCreated, message, data, metadata)
}

// Accepted sends 202 for work that continues in the background.
func Accepted(c *fiber.Ctx, message string, data interface{}) error {
	return send(c, fiber.StatusAccepted, message, data, nil)
}

// Error sends a response with the standard error format.
func Error(c *fiber.Ctx, message string, statusCode int, details interface{}) error {
	return errorWithCode(c, message, statusCode, "", details)
}

func errorWithCode(c *fiber.Ctx, message string, statusCode int, code string, details interface{}) error {
	if details == nil {
		details = map[string]interface{}{}
	}
	return c.Status(statusCode).JSON(ErrorBody{
		Status: statusError,
		Error: ErrorDetail{
			Message:    message,
			StatusCode: statusCode,
			Code:       code,
			Details:    details,
		},
	})
}

// FromError renders err. Domain errors keep their status, code and details;
// anything else is logged and hidden behind a generic 500.
func FromError(c *fiber.Ctx, err error) error {
	if de, ok := domain.AsError(err); ok {
		return errorWithCode(c, de.Message, de.Status, de.Code, de.Details)
	}
	if fe, ok := err.(*fiber.Error); ok {
		return errorWithCode(c, fe.Message, fe.Code, "", nil)
	}
	traceID, _ := c.Locals("trace_id").(string)
	log.Error().Err(err).Str("trace_id", traceID).Str("method", c.Method()).Str("path", c.Path()).Msg("unhandled error")
	return errorWithCode(c, internalMessage, fiber.StatusInternalServerError, "INTERNAL", nil)
}

// Unauthorized sends 401 with the same shape as other errors (status "error", error.message).
func Unauthorized(c *fiber.Ctx, message string) error {
	return Error(c, message, fiber.StatusUnauthorized, nil)
}
