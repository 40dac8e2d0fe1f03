package apierror

import "fmt"

// APIError is an error that already knows how it is rendered to clients.
// An optional cause stays reachable through errors.Is and errors.As.
type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	HTTPStatus int    `json:"-"`

	cause error
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}

	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}

	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

func New(code string, message string, details string, status int) *APIError {
	return &APIError{Code: code, Message: message, Details: details, HTTPStatus: status}
}

// Wrap is New with a cause, typically a domain sentinel error.
func Wrap(cause error, code string, message string, details string, status int) *APIError {
	e := New(code, message, details, status)
	e.cause = cause
	return e
}
