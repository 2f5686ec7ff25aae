// Copyright 2025 Joseph Cumines
//
// Error taxonomy for request coercion and dispatch

package dispatch

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Sentinel errors, matchable with errors.Is against the typed errors below.
var (
	ErrInvalidRequestShape = errors.New("invalid request shape")
	ErrUnknownField        = errors.New("unknown field")
	ErrTransport           = errors.New("transport error")
	ErrOperation           = errors.New("operation error")
)

// RequestShapeError reports input that is neither a structured request nor a
// field mapping, or a mapping value that cannot be assigned to its field.
type RequestShapeError struct {
	Method string
	Field  string
	Reason string
}

func (e *RequestShapeError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: field %q: %s", e.Method, ErrInvalidRequestShape, e.Field, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", e.Method, ErrInvalidRequestShape, e.Reason)
}

func (e *RequestShapeError) Is(target error) bool { return target == ErrInvalidRequestShape }

// UnknownFieldError reports a mapping key outside the method's schema.
type UnknownFieldError struct {
	Method string
	Field  string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("%s: %s %q", e.Method, ErrUnknownField, e.Field)
}

func (e *UnknownFieldError) Is(target error) bool { return target == ErrUnknownField }

// TransportError wraps a failed RPC, including deadline expiry and
// cancellation.
//
//lint:ignore BETTERALIGN struct is intentionally ordered for clarity
type TransportError struct {
	Err     error
	Method  string
	Message string
	Details []any
	Code    codes.Code
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %s: %s - %s", e.Method, ErrTransport, e.Code, e.Message)
}

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

func (e *TransportError) Unwrap() error { return e.Err }

// GRPCStatus lets status.FromError and status.Code see through the wrapper.
func (e *TransportError) GRPCStatus() *status.Status {
	if st, ok := status.FromError(e.Err); ok {
		return st
	}
	return status.New(e.Code, e.Message)
}

// OperationError reports a completed operation whose record carries an error
// instead of a response. It is only produced on explicit result extraction.
type OperationError struct {
	Method  string
	Name    string
	Message string
	Code    codes.Code
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s: %s: operation %q failed: %s - %s", e.Method, ErrOperation, e.Name, e.Code, e.Message)
}

func (e *OperationError) Is(target error) bool { return target == ErrOperation }

// newTransportError converts err returned by a transport into a
// TransportError for method. Context errors that never reached the wire are
// mapped to their status codes.
func newTransportError(method string, err error) *TransportError {
	st, ok := status.FromError(err)
	if !ok {
		st = status.FromContextError(err)
	}
	return &TransportError{
		Err:     err,
		Method:  method,
		Code:    st.Code(),
		Message: st.Message(),
		Details: st.Details(),
	}
}
