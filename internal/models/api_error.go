package models

import "fmt"

// ErrorCode is a string type for consistent error codes.
type ErrorCode string

const (
	ErrorCodeInternalServerError ErrorCode = "internal_server_error"
	ErrorCodeBadRequest          ErrorCode = "bad_request"
	ErrorCodeUnauthorized        ErrorCode = "unauthorized"
	ErrorCodeMethodNotAllowed    ErrorCode = "method_not_allowed"

	ErrorCodeInvalidCommand ErrorCode = "invalid_command"
	ErrorCodeInvalidFormat  ErrorCode = "invalid_format"
	ErrorCodePublishFailed  ErrorCode = "publish_failed"
)

// APIError is the error body returned by the HTTP API.
type APIError struct {
	Status     string    `json:"status"` // always "error"
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	StatusCode int       `json:"-"`
}

// Error makes APIError implement the error interface.
func (e APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// NewAPIError is a constructor for APIError.
func NewAPIError(code ErrorCode, message string, statusCode int) APIError {
	return APIError{
		Status:     "error",
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}
