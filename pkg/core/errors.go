package core

import (
	"fmt"
)

// Error is the structured error crossing package boundaries in the engine.
// Consumers branch on Type; Code carries a machine-readable detail string
// that survives serialization back into the conversation.
type Error struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Code    string    `json:"code,omitempty"`
	CallID  string    `json:"call_id,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (code: %s)", e.Type, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// ErrorType categorizes errors.
type ErrorType string

const (
	// ErrTransport covers negotiation and channel failures. Fatal to the
	// session; surfaced to the caller without automatic retry.
	ErrTransport ErrorType = "transport_error"

	// ErrToolUnknown, ErrToolInvalidArgs, ErrToolTimeout and ErrToolFailed
	// are all recoverable: they round-trip to the model as a tool result so
	// it can explain or retry on the next turn.
	ErrToolUnknown     ErrorType = "tool_unknown"
	ErrToolInvalidArgs ErrorType = "tool_invalid_args"
	ErrToolTimeout     ErrorType = "tool_timeout"
	ErrToolFailed      ErrorType = "tool_failed"

	// ErrDelivery marks a tool result that could not be written back to the
	// channel. Logged as operational; the conversation continues degraded.
	ErrDelivery ErrorType = "delivery_failure"

	ErrInvalidRequest ErrorType = "invalid_request_error"
)

// NewTransportError wraps a channel or negotiation failure.
func NewTransportError(op string, err error) *Error {
	return &Error{
		Type:    ErrTransport,
		Message: fmt.Sprintf("%s: %v", op, err),
	}
}

// NewInvalidRequestError creates an invalid request error.
func NewInvalidRequestError(message string) *Error {
	return &Error{
		Type:    ErrInvalidRequest,
		Message: message,
	}
}

// NewToolError creates a tool-boundary error of the given type.
func NewToolError(typ ErrorType, callID, message string) *Error {
	return &Error{
		Type:    typ,
		Message: message,
		CallID:  callID,
	}
}

// NewDeliveryError marks a tool result that could not be written back.
func NewDeliveryError(callID string, err error) *Error {
	return &Error{
		Type:    ErrDelivery,
		Message: fmt.Sprintf("deliver tool result: %v", err),
		CallID:  callID,
	}
}

// Recoverable reports whether the error produces a tool result instead of
// terminating the session.
func (e *Error) Recoverable() bool {
	switch e.Type {
	case ErrToolUnknown, ErrToolInvalidArgs, ErrToolTimeout, ErrToolFailed:
		return true
	default:
		return false
	}
}
