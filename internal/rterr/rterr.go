// Package rterr defines the exhaustive set of error kinds the runtime
// can surface. Every subcomponent returns one of these; the
// orchestrator wraps them with call-site context as they propagate.
package rterr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind is one of the runtime's error kinds.
type Kind string

const (
	InvalidArgument           Kind = "InvalidArgument"
	PermissionDenied          Kind = "PermissionDenied"
	KernelFacilityUnavailable Kind = "KernelFacilityUnavailable"
	ResourceExhausted         Kind = "ResourceExhausted"
	AlreadyExists             Kind = "AlreadyExists"
	NotFound                  Kind = "NotFound"
	SpawnFailed               Kind = "SpawnFailed"
	RootfsSetupFailed         Kind = "RootfsSetupFailed"
	NamespaceSetupFailed      Kind = "NamespaceSetupFailed"
	CgroupSetupFailed         Kind = "CgroupSetupFailed"
	NetworkSetupFailed        Kind = "NetworkSetupFailed"
	NetworkUnreachable        Kind = "NetworkUnreachable"
	Timeout                   Kind = "Timeout"
)

// Error is a typed runtime error. Field and Step are optional context:
// Field names the offending input (InvalidArgument), Step names the
// orchestrator phase that failed (everything else).
type Error struct {
	Kind  Kind
	Field string
	Step  string
	Err   error
}

func (e *Error) Error() string {
	switch {
	case e.Field != "" && e.Err != nil:
		return fmt.Sprintf("%s(%s): %v", e.Kind, e.Field, e.Err)
	case e.Field != "":
		return fmt.Sprintf("%s(%s)", e.Kind, e.Field)
	case e.Step != "" && e.Err != nil:
		return fmt.Sprintf("%s[%s]: %v", e.Kind, e.Step, e.Err)
	case e.Step != "":
		return fmt.Sprintf("%s[%s]", e.Kind, e.Step)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a bare error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Err: errors.New(msg)}
}

// Field builds an InvalidArgument-style error naming the offending field.
func Invalid(field string, msg string) *Error {
	return &Error{Kind: InvalidArgument, Field: field, Err: errors.New(msg)}
}

// Wrap attaches a step name and wraps the cause with call-site context,
// preserving the original Kind if cause is already an *Error.
func Wrap(cause error, step string) *Error {
	if cause == nil {
		return nil
	}
	var rt *Error
	if errors.As(cause, &rt) {
		return &Error{Kind: rt.Kind, Field: rt.Field, Step: step, Err: errors.Wrap(cause, step)}
	}
	return &Error{Kind: SpawnFailed, Step: step, Err: errors.Wrap(cause, step)}
}

// Of builds a new error of the given kind, wrapping cause with step context.
func Of(kind Kind, step string, cause error) *Error {
	return &Error{Kind: kind, Step: step, Err: errors.Wrap(cause, step)}
}

// KindOf extracts the Kind from err, defaulting to SpawnFailed for
// untyped errors (treated as a generic failure by the CLI's exit-code
// mapping).
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var rt *Error
	if errors.As(err, &rt) {
		return rt.Kind
	}
	return SpawnFailed
}
