package response

import (
	"net/http"

	"testbridge/pkg/errors"
	"testbridge/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorBody is the JSON body written for failed requests.
type ErrorBody struct {
	Error   string           `json:"error"`              // Human readable message
	Code    errors.ErrorCode `json:"code"`               // Error code
	Details interface{}      `json:"details,omitempty"`  // Additional details (omit if empty)
	TraceID string           `json:"trace_id,omitempty"` // Request trace ID
}

// MessageBody is the JSON body for acknowledgement style responses.
type MessageBody struct {
	Message string `json:"message"`
}

// Message sends 200 with {"message": msg}.
func Message(c *gin.Context, msg string) {
	c.JSON(http.StatusOK, MessageBody{Message: msg})
}

// JSON sends 200 with an arbitrary payload.
func JSON(c *gin.Context, payload interface{}) {
	c.JSON(http.StatusOK, payload)
}

// Error sends an error response
// It automatically extracts error code and message from the error
func Error(c *gin.Context, err error) {
	customErr := errors.GetError(err)

	fields := []zap.Field{
		zap.Int("code", int(customErr.Code)),
		zap.String("message", customErr.Error()),
		zap.Any("details", customErr.Details),
	}
	status := customErr.Code.HTTPStatus()
	if status >= http.StatusInternalServerError {
		logger.Error(c.Request.Context(), "request error", append(fields, zap.String("stack", customErr.Stack))...)
	} else {
		logger.Warn(c.Request.Context(), "request rejected", fields...)
	}

	body := ErrorBody{
		Error:   customErr.Error(),
		Code:    customErr.Code,
		TraceID: getTraceID(c),
	}
	if len(customErr.Details) > 0 {
		body.Details = customErr.Details
	}
	c.JSON(status, body)
}

// ErrorWithCode sends an error response with specific error code
func ErrorWithCode(c *gin.Context, code errors.ErrorCode, message string) {
	if message == "" {
		message = code.Message()
	}
	Error(c, errors.New(code).WithMessage(message))
}

// BadRequest sends a 400 bad request error
func BadRequest(c *gin.Context, message string) {
	ErrorWithCode(c, errors.InvalidParams, message)
}

// getTraceID extracts trace ID from context
func getTraceID(c *gin.Context) string {
	if traceID, exists := c.Get("trace_id"); exists {
		if s, ok := traceID.(string); ok {
			return s
		}
	}
	return ""
}
