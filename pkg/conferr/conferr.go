// Package conferr classifies the failures of the configuration service so
// that every surface (HTTP, MCP, CLI) can map them consistently.
package conferr

import (
	"errors"
	"strings"
)

// Kind identifies a class of failure.
type Kind int

// Failure kinds. Internal is the zero value so that unclassified errors
// never leak as client errors.
const (
	Internal Kind = iota
	InvalidServiceName
	EmptyBody
	PayloadTooLarge
	ParseError
	SchemaValidation
	VersionConflict
	TemplateRender
	NotFound
	InvalidVersion
)

// String returns the stable name of the kind, used in logs, metrics and audit rows.
func (k Kind) String() string {
	switch k {
	case InvalidServiceName:
		return "invalid_service_name"
	case EmptyBody:
		return "empty_body"
	case PayloadTooLarge:
		return "payload_too_large"
	case ParseError:
		return "parse_error"
	case SchemaValidation:
		return "schema_validation"
	case VersionConflict:
		return "version_conflict"
	case TemplateRender:
		return "template_render"
	case NotFound:
		return "not_found"
	case InvalidVersion:
		return "invalid_version"
	default:
		return "internal"
	}
}

// Error is a classified failure. Message is safe to show to clients for
// every kind except Internal.
type Error struct {
	Kind    Kind
	Message string
	Details []string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.String()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error with a message.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap classifies err. The message defaults to err's text.
func Wrap(kind Kind, msg string, err error) *Error {
	if msg == "" && err != nil {
		msg = err.Error()
	}
	return &Error{Kind: kind, Message: msg, Err: err}
}

// Schema builds a SchemaValidation error carrying every violation.
func Schema(violations []string) *Error {
	return &Error{
		Kind:    SchemaValidation,
		Message: "Configuration validation failed: " + strings.Join(violations, "; "),
		Details: violations,
	}
}

// KindOf returns the kind of err, or Internal when err is not classified.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return Internal
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// DetailsOf returns the violation list attached to err, if any.
func DetailsOf(err error) []string {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Details
	}
	return nil
}
