package domain

import (
	"errors"
	"fmt"
)

// ErrorType categorizes a gateway error.
type ErrorType string

const (
	// ErrorTypeAuthentication indicates a failed connection handshake.
	ErrorTypeAuthentication ErrorType = "authentication"

	// ErrorTypeVersionResolution indicates no implementation exists for a
	// resource at any version.
	ErrorTypeVersionResolution ErrorType = "version_resolution"

	// ErrorTypeClassResolution indicates an otherwise-valid version module
	// is missing the expected record or converter definitions.
	ErrorTypeClassResolution ErrorType = "class_resolution"

	// ErrorTypeCircularDependency indicates a cyclic depends_on graph.
	ErrorTypeCircularDependency ErrorType = "circular_dependency"

	// ErrorTypeRemoteCall indicates a non-success response from the remote
	// API during orchestration.
	ErrorTypeRemoteCall ErrorType = "remote_call"

	// ErrorTypeTransform indicates a transform function failed or a target
	// record could not be constructed.
	ErrorTypeTransform ErrorType = "transform"

	// ErrorTypeInvalidRequest indicates a malformed caller request.
	ErrorTypeInvalidRequest ErrorType = "invalid_request"
)

// Phase identifies which stage of request handling produced an error. It is
// part of the structured error surfaced to remote callers.
type Phase string

const (
	PhaseAuthentication Phase = "authentication"
	PhaseResolution     Phase = "resolution"
	PhaseConversion     Phase = "conversion"
	PhaseOrchestration  Phase = "orchestration"
)

// ServiceError is the canonical error crossing component boundaries and, in
// structured form, the RPC channel.
type ServiceError struct {
	Type    ErrorType `json:"type"`
	Phase   Phase     `json:"phase,omitempty"`
	Message string    `json:"message"`

	// Step names the endpoint operation that failed during orchestration.
	Step string `json:"step,omitempty"`

	// Resource names the resource being operated on, when known.
	Resource string `json:"resource,omitempty"`

	cause error
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	if e.Step != "" {
		return fmt.Sprintf("%s (step %s): %s", e.Type, e.Step, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap exposes the underlying cause, if any.
func (e *ServiceError) Unwrap() error { return e.cause }

// WithPhase tags the error with the handling stage it occurred in.
func (e *ServiceError) WithPhase(p Phase) *ServiceError {
	e.Phase = p
	return e
}

// WithStep records the failing endpoint operation name.
func (e *ServiceError) WithStep(step string) *ServiceError {
	e.Step = step
	return e
}

// WithResource records the resource name.
func (e *ServiceError) WithResource(resource string) *ServiceError {
	e.Resource = resource
	return e
}

// WithCause attaches the underlying error for errors.Is/As chains.
func (e *ServiceError) WithCause(err error) *ServiceError {
	e.cause = err
	return e
}

// NewServiceError creates a service error of the given type.
func NewServiceError(t ErrorType, message string) *ServiceError {
	return &ServiceError{Type: t, Message: message}
}

// Convenience constructors for the error kinds the gateway produces.

func ErrAuthentication(message string) *ServiceError {
	return NewServiceError(ErrorTypeAuthentication, message).WithPhase(PhaseAuthentication)
}

func ErrVersionResolution(message string) *ServiceError {
	return NewServiceError(ErrorTypeVersionResolution, message).WithPhase(PhaseResolution)
}

func ErrClassResolution(message string) *ServiceError {
	return NewServiceError(ErrorTypeClassResolution, message).WithPhase(PhaseResolution)
}

func ErrCircularDependency(message string) *ServiceError {
	return NewServiceError(ErrorTypeCircularDependency, message).WithPhase(PhaseOrchestration)
}

func ErrRemoteCall(message string) *ServiceError {
	return NewServiceError(ErrorTypeRemoteCall, message).WithPhase(PhaseOrchestration)
}

func ErrTransform(message string) *ServiceError {
	return NewServiceError(ErrorTypeTransform, message).WithPhase(PhaseConversion)
}

func ErrInvalidRequest(message string) *ServiceError {
	return NewServiceError(ErrorTypeInvalidRequest, message)
}

// ToServiceError converts any error to a *ServiceError. Already-structured
// errors pass through; everything else is wrapped so callers always receive
// a typed failure.
func ToServiceError(err error) *ServiceError {
	var se *ServiceError
	if errors.As(err, &se) {
		return se
	}
	return NewServiceError(ErrorTypeInvalidRequest, err.Error()).WithCause(err)
}
