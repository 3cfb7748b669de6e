package response

import (
	"errors"
	"net/http"

	"guardian-api/internal/services"
	"guardian-api/pkg/logging"

	"github.com/gin-gonic/gin"
)

// Response represents a standard API response
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Success returns a success response
func Success(data interface{}) Response {
	return Response{
		Success: true,
		Message: "success",
		Data:    data,
	}
}

// Error returns an error response
func Error(message string) Response {
	return Response{
		Success: false,
		Message: message,
	}
}

// JSON sends a JSON response
func JSON(c *gin.Context, statusCode int, response Response) {
	c.JSON(statusCode, response)
}

// SuccessJSON sends a success JSON response
func SuccessJSON(c *gin.Context, data interface{}) {
	JSON(c, http.StatusOK, Success(data))
}

// CreatedJSON sends a 201 success JSON response
func CreatedJSON(c *gin.Context, data interface{}) {
	JSON(c, http.StatusCreated, Success(data))
}

// ErrorJSON sends an error JSON response
func ErrorJSON(c *gin.Context, statusCode int, message string) {
	JSON(c, statusCode, Error(message))
}

// AbortJSON sends an error JSON response and stops the handler chain
func AbortJSON(c *gin.Context, statusCode int, message string) {
	c.AbortWithStatusJSON(statusCode, Error(message))
}

var statusByError = []struct {
	err    error
	status int
}{
	{services.ErrInvalidInput, http.StatusBadRequest},
	{services.ErrUnauthenticated, http.StatusUnauthorized},
	{services.ErrNotFound, http.StatusNotFound},
	{services.ErrConflict, http.StatusConflict},
	{services.ErrInvalidState, http.StatusConflict},
	{services.ErrNoMatchingTier, http.StatusUnprocessableEntity},
	{services.ErrRateLimited, http.StatusTooManyRequests},
	{services.ErrExternalDependency, http.StatusServiceUnavailable},
	{services.ErrKeySpaceExhausted, http.StatusServiceUnavailable},
}

// StatusFor returns the HTTP status for a service error
func StatusFor(err error) int {
	for _, m := range statusByError {
		if errors.Is(err, m.err) {
			return m.status
		}
	}
	return http.StatusInternalServerError
}

// Fail sends the error response for a service error. Client errors carry
// the error text; server errors get a generic message and are logged.
func Fail(c *gin.Context, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		logging.Ctx(c.Request.Context()).Error().
			Err(err).
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", status).
			Msg("request failed")
	}

	switch status {
	case http.StatusInternalServerError:
		ErrorJSON(c, status, "Internal server error")
	case http.StatusServiceUnavailable:
		ErrorJSON(c, status, "Service temporarily unavailable, please try again later")
	default:
		ErrorJSON(c, status, err.Error())
	}
}
