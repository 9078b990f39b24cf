package service

import (
	"fmt"

	"backoffice-service/internal/osimport"
)

// RequestError wraps input that failed validation
type RequestError struct {
	Err error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("invalid request: %v", e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// ValidationError is returned when an extracted service order has blocking issues
type ValidationError struct {
	Validation osimport.Validation
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("service order has %d blocking issue(s)", len(e.Validation.Errors))
}
