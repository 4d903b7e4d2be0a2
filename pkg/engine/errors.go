package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aws/smithy-go"
)

// ErrorClass represents the classification of a service error for
// lifecycle decision logic.
type ErrorClass string

const (
	// ErrorClassNotFound indicates the resource does not exist. During
	// provisioning this is the expected trigger for the create branch;
	// during teardown it is an idempotent no-op.
	ErrorClassNotFound ErrorClass = "not_found"

	// ErrorClassConflict indicates an operation on the resource is already
	// in progress or the resource is busy.
	ErrorClassConflict ErrorClass = "conflict"

	// ErrorClassPrecondition indicates the operation cannot proceed until
	// some dependent cleanup happens first.
	// Examples: bucket not empty, role still holding policies.
	ErrorClassPrecondition ErrorClass = "precondition"

	// ErrorClassTimeout indicates a wait budget was exceeded.
	ErrorClassTimeout ErrorClass = "timeout"

	// ErrorClassMisconfigured indicates a required identifier or setting is
	// absent. Raised before any network call.
	ErrorClassMisconfigured ErrorClass = "misconfigured"

	// ErrorClassUnknown indicates an unclassified service error.
	ErrorClassUnknown ErrorClass = "unknown"
)

// OpError represents a classified error with resource and operation context.
type OpError struct {
	// Class is the error classification.
	Class ErrorClass

	// Message is the human-readable error message.
	Message string

	// Code is the service's error code, when one was returned.
	Code string

	// Kind is the resource kind involved, if applicable.
	Kind ResourceKind

	// Op is the operation being performed when the error occurred.
	Op string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *OpError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.Class, e.Message)
	if e.Kind != "" || e.Op != "" {
		fmt.Fprintf(&b, " (kind=%s, op=%s)", e.Kind, e.Op)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying error for error chain inspection.
func (e *OpError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *OpError) Is(target error) bool {
	t, ok := target.(*OpError)
	if !ok {
		return false
	}
	return e.Class == t.Class && (t.Code == "" || e.Code == t.Code)
}

// WithKind adds resource kind context to an error.
func (e *OpError) WithKind(kind ResourceKind) *OpError {
	e.Kind = kind
	return e
}

// WithOp adds operation context to an error.
func (e *OpError) WithOp(op string) *OpError {
	e.Op = op
	return e
}

// NewNotFoundError creates a new not-found error.
func NewNotFoundError(message string, err error) *OpError {
	return &OpError{Class: ErrorClassNotFound, Message: message, Err: err}
}

// NewTimeoutError creates a new timeout error.
func NewTimeoutError(message string) *OpError {
	return &OpError{Class: ErrorClassTimeout, Message: message}
}

// NewMisconfiguredError creates a new misconfiguration error.
func NewMisconfiguredError(message string) *OpError {
	return &OpError{Class: ErrorClassMisconfigured, Message: message}
}

// IsNotFound returns true if the error is classified as not-found.
func IsNotFound(err error) bool { return classOf(err) == ErrorClassNotFound }

// IsConflict returns true if the error is classified as a conflict.
func IsConflict(err error) bool { return classOf(err) == ErrorClassConflict }

// IsPrecondition returns true if the error is classified as a failed
// precondition.
func IsPrecondition(err error) bool { return classOf(err) == ErrorClassPrecondition }

// IsTimeout returns true if the error is classified as a timeout.
func IsTimeout(err error) bool { return classOf(err) == ErrorClassTimeout }

// IsMisconfigured returns true if the error is classified as a
// misconfiguration.
func IsMisconfigured(err error) bool { return classOf(err) == ErrorClassMisconfigured }

func classOf(err error) ErrorClass {
	var e *OpError
	if errors.As(err, &e) {
		return e.Class
	}
	return ""
}

// notFoundCodes are service error codes that mean the resource is absent.
// S3 HeadBucket surfaces bare "404"/"NotFound" codes rather than a modeled
// exception type.
var notFoundCodes = map[string]struct{}{
	"404":                       {},
	"NotFound":                  {},
	"NoSuchBucket":              {},
	"NoSuchKey":                 {},
	"NotFoundException":         {},
	"NoSuchEntity":              {},
	"ResourceNotFoundException": {},
}

var conflictCodes = map[string]struct{}{
	"409":               {},
	"ConflictException": {},
	"OperationAborted":  {},
}

var preconditionCodes = map[string]struct{}{
	"BucketNotEmpty": {},
	"DeleteConflict": {},
}

// Classify maps an AWS service error into an OpError. Errors that already
// carry a classification are returned unchanged. Anything unrecognized
// becomes ErrorClassUnknown with the service code preserved for logging.
func Classify(err error) *OpError {
	if err == nil {
		return nil
	}

	var classified *OpError
	if errors.As(err, &classified) {
		return classified
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		class := ErrorClassUnknown
		switch {
		case hasCode(notFoundCodes, code):
			class = ErrorClassNotFound
		case hasCode(conflictCodes, code):
			class = ErrorClassConflict
		case hasCode(preconditionCodes, code):
			class = ErrorClassPrecondition
		}
		return &OpError{
			Class:   class,
			Message: apiErr.ErrorMessage(),
			Code:    code,
			Err:     err,
		}
	}

	return &OpError{Class: ErrorClassUnknown, Message: err.Error(), Err: err}
}

func hasCode(set map[string]struct{}, code string) bool {
	_, ok := set[code]
	return ok
}
