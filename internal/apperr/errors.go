package apperr

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/status"
)

// Domain is the error domain reported in gRPC error details.
const Domain = "github.com/abhisek/pathway"

// Error is the domain error type with structured metadata.
type Error struct {
	Code     Code              // Machine-readable error code
	Message  string            // Internal message (for logs)
	Metadata map[string]string // Identifiers of the entities involved
	Cause    error             // Wrapped underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// Sentinels for errors.Is comparisons.
var (
	ErrNotFound     = &Error{Code: CodeNotFound, Message: "not found"}
	ErrValidation   = &Error{Code: CodeValidation, Message: "validation failed"}
	ErrInvalidState = &Error{Code: CodeInvalidState, Message: "invalid state"}
	ErrEvaluation   = &Error{Code: CodeEvaluation, Message: "evaluation failed"}
	ErrTransient    = &Error{Code: CodeTransient, Message: "transient failure"}
)

// New creates a domain error with a code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates a domain error that wraps an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// NotFound reports a missing entity of the given kind.
func NotFound(kind, id string) *Error {
	return &Error{
		Code:     CodeNotFound,
		Message:  fmt.Sprintf("%s %q not found", kind, id),
		Metadata: map[string]string{"kind": kind, "id": id},
	}
}

// Validation reports a malformed request.
func Validation(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// InvalidState reports an operation that is illegal in the entity's status.
func InvalidState(kind, id, status, op string) *Error {
	return &Error{
		Code:    CodeInvalidState,
		Message: fmt.Sprintf("cannot %s %s %q in status %s", op, kind, id, status),
		Metadata: map[string]string{
			"kind":   kind,
			"id":     id,
			"status": status,
			"op":     op,
		},
	}
}

// Evaluation reports a scoring or aggregation failure.
func Evaluation(message string, cause error) *Error {
	return &Error{Code: CodeEvaluation, Message: message, Cause: cause}
}

// Transient reports a collaborator failure that may succeed on retry.
func Transient(message string, cause error) *Error {
	return &Error{Code: CodeTransient, Message: message, Cause: cause}
}

// CodeOf returns the code of the first *Error in err's chain. Context
// cancellation and deadline errors outside the chain map to CodeTransient.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CodeTransient
	}
	return CodeUnknown
}

// IsRetryable reports whether err is a transient failure worth retrying.
// A cancelled context is never retryable.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	return CodeOf(err).Retryable()
}

// ToGRPCStatus converts err to a gRPC status carrying an ErrorInfo detail.
func ToGRPCStatus(err error) *status.Status {
	var e *Error
	if !errors.As(err, &e) {
		return status.New(CodeOf(err).GRPCCode(), err.Error())
	}
	st := status.New(e.Code.GRPCCode(), e.Error())
	withDetails, derr := st.WithDetails(&errdetails.ErrorInfo{
		Reason:   string(e.Code),
		Domain:   Domain,
		Metadata: e.Metadata,
	})
	if derr != nil {
		return st
	}
	return withDetails
}
