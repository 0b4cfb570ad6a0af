package pipeline

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an operation failure
type Kind int

const (
	// KindConversion is a failure of the transformation itself (500)
	KindConversion Kind = iota
	// KindValidation is a problem with the request (400)
	KindValidation
	// KindAuth is a wrong or missing credential for an encrypted document (400)
	KindAuth
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation_error"
	case KindAuth:
		return "auth_error"
	default:
		return "conversion_error"
	}
}

// OperationError carries the client-facing message and the underlying cause of a failure
type OperationError struct {
	Kind    Kind
	Message string
	Cause   error
	// Cleanup lists extra paths to remove once the error response is written
	Cleanup []string
}

func (e *OperationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *OperationError) Unwrap() error {
	return e.Cause
}

// Status returns the HTTP status code for the error kind
func (e *OperationError) Status() int {
	switch e.Kind {
	case KindValidation, KindAuth:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Validation returns a 400 error
func Validation(message string, cause error) *OperationError {
	return &OperationError{Kind: KindValidation, Message: message, Cause: cause}
}

// Auth returns a 400 error for credential problems
func Auth(message string, cause error) *OperationError {
	return &OperationError{Kind: KindAuth, Message: message, Cause: cause}
}

// Conversion returns a 500 error
func Conversion(message string, cause error) *OperationError {
	return &OperationError{Kind: KindConversion, Message: message, Cause: cause}
}

// classify maps any error returned by an operation onto an OperationError
func classify(err error, def Definition) *OperationError {
	var opErr *OperationError
	if errors.As(err, &opErr) {
		return opErr
	}

	message := def.FailureMessage
	if message == "" {
		message = "Error processing the request."
	}
	return Conversion(message, err)
}

// ErrorResponse is the JSON body of every failed request
type ErrorResponse struct {
	Message   string `json:"message"`
	Error     string `json:"error,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}
