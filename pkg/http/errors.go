package http

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// AppError is an error together with the status and code it is reported with.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// StatusError builds an AppError whose code follows the status text, so 403
// becomes ERR_FORBIDDEN.
func StatusError(status int, message string, err error) *AppError {
	code := "ERR_" + strings.ToUpper(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	return &AppError{Code: code, Message: message, Status: status, Err: err}
}

// ErrorRule reports errors matching any of Targets with Status.
type ErrorRule struct {
	Status  int
	Targets []error
}

// ErrorMapper turns domain errors into AppErrors. Rules are tried in order.
type ErrorMapper []ErrorRule

// Map returns err itself when it already is an AppError. Errors no rule
// matches become a 500 that does not leak the cause.
func (m ErrorMapper) Map(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	for _, r := range m {
		for _, target := range r.Targets {
			if errors.Is(err, target) {
				return StatusError(r.Status, err.Error(), err)
			}
		}
	}
	return StatusError(http.StatusInternalServerError, "internal error", err)
}
