package apierr

import "fmt"

// Error carries the HTTP status and machine-readable code for a failed
// service operation, so the feed and write-side services can signal
// outcomes like user_not_found or username_taken without importing the
// HTTP layer. Handlers unwrap it via errors.As (see response.RespondFromError).
type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with the status and code the API should respond with.
func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}
