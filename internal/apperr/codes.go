// Package apperr defines the engine's error taxonomy.
package apperr

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unclassified error.
	CodeUnknown Code = "UNKNOWN"

	// CodeNotFound means a Scenario, Program, Task or Evaluation is absent,
	// inactive, or owned by someone else.
	CodeNotFound Code = "NOT_FOUND"

	// CodeValidation means the request itself is malformed.
	CodeValidation Code = "VALIDATION"

	// CodeInvalidState means the operation is illegal for the entity's
	// current status.
	CodeInvalidState Code = "INVALID_STATE"

	// CodeEvaluation means scoring or aggregation failed.
	CodeEvaluation Code = "EVALUATION"

	// CodeTransient means a collaborator failed in a way that may succeed
	// on retry.
	CodeTransient Code = "TRANSIENT"
)

// GRPCCode maps the code to the closest gRPC status code.
func (c Code) GRPCCode() codes.Code {
	switch c {
	case CodeNotFound:
		return codes.NotFound
	case CodeValidation:
		return codes.InvalidArgument
	case CodeInvalidState:
		return codes.FailedPrecondition
	case CodeEvaluation:
		return codes.Internal
	case CodeTransient:
		return codes.Unavailable
	default:
		return codes.Unknown
	}
}

// Retryable reports whether errors with this code may be retried.
func (c Code) Retryable() bool {
	return c == CodeTransient
}
