// Package schederr defines the error taxonomy: five distinct kinds
// callers can errors.As-match on, each carrying the offending task/host
// identities instead of burying them in a formatted string.
package schederr

import "fmt"

// Kind identifies which of the five taxonomy members an error belongs
// to.
type Kind int

const (
	KindConfiguration Kind = iota
	KindGraph
	KindScheduling
	KindInvalidState
	KindSimulation
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "ConfigurationError"
	case KindGraph:
		return "GraphError"
	case KindScheduling:
		return "SchedulingError"
	case KindInvalidState:
		return "InvalidState"
	case KindSimulation:
		return "SimulationError"
	default:
		return "UnknownError"
	}
}

// Fields carries the structured identities an error is about. Any
// subset may be left at its zero value when not applicable.
type Fields struct {
	Task  int    // task handle, or -1 if not applicable
	Host  int    // host handle, or -1 if not applicable
	Names []string
}

// Error is the concrete type for every taxonomy member. Wrap an
// underlying cause with Err when one exists (adapter I/O failures,
// parse errors) so errors.Unwrap still reaches it.
type Error struct {
	Kind    Kind
	Message string
	Fields  Fields
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether err is a *Error of the given kind, following wrap
// chains the same way errors.As would.
func Is(err error, kind Kind) bool {
	for err != nil {
		if se, ok := err.(*Error); ok {
			return se.Kind == kind
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func NewConfigurationError(msg string, f Fields) error {
	return &Error{Kind: KindConfiguration, Message: msg, Fields: f}
}

func NewGraphError(msg string, f Fields) error {
	return &Error{Kind: KindGraph, Message: msg, Fields: f}
}

func NewSchedulingError(msg string, f Fields) error {
	return &Error{Kind: KindScheduling, Message: msg, Fields: f}
}

func NewInvalidState(msg string, f Fields) error {
	return &Error{Kind: KindInvalidState, Message: msg, Fields: f}
}

func NewSimulationError(msg string, cause error, f Fields) error {
	return &Error{Kind: KindSimulation, Message: msg, Fields: f, Err: cause}
}
