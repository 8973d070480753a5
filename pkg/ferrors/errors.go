// Package ferrors defines the gateway's typed error taxonomy: a small set
// of named kinds that callers can branch on with errors.As/Is, each
// carrying a human-readable message and an optional wrapped cause.
package ferrors

import (
	"errors"
	"fmt"
)

// Type identifies a kind of failure the gateway can report. Kinds are
// coarse-grained (one per taxonomy entry), never one per call site.
type Type string

const (
	ErrBackendNotFound      Type = "backend_not_found"
	ErrBackendAlreadyExists Type = "backend_already_exists"
	ErrNoHealthyBackends    Type = "no_healthy_backends"
	ErrRouting              Type = "routing"
	ErrCircuitBreakerOpen   Type = "circuit_breaker_open"
	ErrInvalidConfiguration Type = "invalid_configuration"
	ErrProcessManagement    Type = "process_management"
	ErrConfigurationWatch   Type = "configuration_watch"
	ErrTransport            Type = "transport"
)

// Error is the gateway's single error type. Type is what callers branch
// on; Message and Cause are for humans and for Unwrap.
type Error struct {
	Type    Type
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError builds an Error of the given kind. Prefer the typed
// constructors below; this exists for call sites that select a kind
// dynamically.
func NewError(t Type, message string, cause error) *Error {
	return &Error{Type: t, Message: message, Cause: cause}
}

func NewBackendNotFoundError(message string, cause error) *Error {
	return NewError(ErrBackendNotFound, message, cause)
}

func NewBackendAlreadyExistsError(message string, cause error) *Error {
	return NewError(ErrBackendAlreadyExists, message, cause)
}

func NewNoHealthyBackendsError(message string, cause error) *Error {
	return NewError(ErrNoHealthyBackends, message, cause)
}

func NewRoutingError(message string, cause error) *Error {
	return NewError(ErrRouting, message, cause)
}

func NewCircuitBreakerOpenError(message string, cause error) *Error {
	return NewError(ErrCircuitBreakerOpen, message, cause)
}

func NewInvalidConfigurationError(message string, cause error) *Error {
	return NewError(ErrInvalidConfiguration, message, cause)
}

func NewProcessManagementError(message string, cause error) *Error {
	return NewError(ErrProcessManagement, message, cause)
}

func NewConfigurationWatchError(message string, cause error) *Error {
	return NewError(ErrConfigurationWatch, message, cause)
}

func NewTransportError(message string, cause error) *Error {
	return NewError(ErrTransport, message, cause)
}

// Is reports whether err is a *Error of kind t.
func Is(err error, t Type) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Type == t
	}
	return false
}

func IsBackendNotFound(err error) bool      { return Is(err, ErrBackendNotFound) }
func IsBackendAlreadyExists(err error) bool { return Is(err, ErrBackendAlreadyExists) }
func IsNoHealthyBackends(err error) bool    { return Is(err, ErrNoHealthyBackends) }
func IsRouting(err error) bool              { return Is(err, ErrRouting) }
func IsCircuitBreakerOpen(err error) bool   { return Is(err, ErrCircuitBreakerOpen) }
func IsInvalidConfiguration(err error) bool { return Is(err, ErrInvalidConfiguration) }
func IsProcessManagement(err error) bool    { return Is(err, ErrProcessManagement) }
func IsConfigurationWatch(err error) bool   { return Is(err, ErrConfigurationWatch) }
func IsTransport(err error) bool            { return Is(err, ErrTransport) }
