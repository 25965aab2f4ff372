package rest

import "fmt"

// Error codes classifying a failed call by its HTTP status class.
const (
	CodeNetwork    = "network_error"
	CodeAuth       = "auth_error"
	CodePermission = "permission_error"
	CodeNotFound   = "not_found"
	CodeValidation = "validation_error"
	CodeThrottled  = "throttled"
	CodeServer     = "server_error"
	CodeUnknown    = "api_error"
)

// APIError describes one failed REST call in terms the UI can show.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
}

// classify maps an HTTP status onto a stable code and default message.
func classify(status int) *APIError {
	var code, msg string
	switch {
	case status == 400 || status == 422:
		code, msg = CodeValidation, "the request contained invalid data"
	case status == 401:
		code, msg = CodeAuth, "not authenticated, sign in again"
	case status == 403:
		code, msg = CodePermission, "you do not have permission for this action"
	case status == 404:
		code, msg = CodeNotFound, "the requested resource does not exist"
	case status == 429:
		code, msg = CodeThrottled, "too many requests, try again later"
	case status >= 500:
		code, msg = CodeServer, "the server failed to process the request"
	default:
		code, msg = CodeUnknown, "unexpected error"
	}
	return &APIError{Status: status, Code: code, Message: msg}
}
