package functions

import (
	"errors"
	"fmt"
)

var (
	// ErrFunctionNotFound is returned when looking up an unknown function.
	ErrFunctionNotFound = errors.New("function not found")
	// ErrDuplicateName is returned when two functions declare the same name.
	ErrDuplicateName = errors.New("duplicate function name")
)

// Error codes surfaced in invocation records and API responses.
const (
	CodeValidation    = "VALIDATION"
	CodeAuthorization = "AUTHORIZATION"
	CodeTimeout       = "TIMEOUT"
	CodeRuntime       = "RUNTIME"
)

// ValidationError reports a payload or return value that does not conform
// to the function's declared schema.
type ValidationError struct {
	// Stage is "input" or "output".
	Stage  string
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s validation failed: %s", e.Stage, e.Detail)
}

// AuthorizationError reports a caller that lacks the capability or fails
// the access rule of a function.
type AuthorizationError struct {
	Function string
	Reason   string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("not authorized to call %q: %s", e.Function, e.Reason)
}

// ManifestError reports an invalid function manifest.
type ManifestError struct {
	Path   string
	Detail string
}

func (e *ManifestError) Error() string {
	return fmt.Sprintf("invalid manifest %s: %s", e.Path, e.Detail)
}
