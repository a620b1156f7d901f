package engine

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
)

// Kind classifies an engine error for programmatic handling. Callers branch
// on the kind, never on message text.
type Kind string

const (
	// KindUnknownType means an entity names a type missing from the catalog.
	KindUnknownType Kind = "unknown_type"

	// KindDuplicateName means a name collides within (namespace, entityType).
	KindDuplicateName Kind = "duplicate_name"

	// KindNotFound means the referenced entity or namespace does not exist.
	KindNotFound Kind = "not_found"

	// KindDanglingReference means an inherit entry points at a missing
	// entity or one of a different type.
	KindDanglingReference Kind = "dangling_reference"

	// KindCyclicInheritance means the inheritance graph contains a cycle.
	KindCyclicInheritance Kind = "cyclic_inheritance"

	// KindMissingRequiredField means a required field is unset after
	// resolution.
	KindMissingRequiredField Kind = "missing_required_field"

	// KindFieldTypeMismatch means a value falls outside the field's domain.
	KindFieldTypeMismatch Kind = "field_type_mismatch"

	// KindReferencedByOthers means a delete was rejected because other
	// entities still inherit the target.
	KindReferencedByOthers Kind = "referenced_by_others"

	// KindValidationFailed means generation was refused because the
	// namespace has validation errors.
	KindValidationFailed Kind = "validation_failed"

	// KindFilesystemWrite means an output artifact could not be written.
	KindFilesystemWrite Kind = "filesystem_write"

	// KindInvalidArgument means the request itself was malformed.
	KindInvalidArgument Kind = "invalid_argument"

	// KindInternal means an invariant was broken inside the engine.
	KindInternal Kind = "internal"
)

// FSFailure distinguishes filesystem write failures.
type FSFailure string

const (
	FSPermissionDenied FSFailure = "permission_denied"
	FSPathNotFound     FSFailure = "path_not_found"
	FSGeneric          FSFailure = "io_failure"
)

// Error is the classified error returned by every engine operation.
type Error struct {
	// Kind is the error classification.
	Kind Kind `json:"kind"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Entity is the id of the entity the error concerns, if any.
	Entity string `json:"entity,omitempty"`

	// Field is the field name the error concerns, if any.
	Field string `json:"field,omitempty"`

	// Cycle holds the full inheritance cycle for KindCyclicInheritance.
	Cycle []string `json:"cycle,omitempty"`

	// FS sub-classifies KindFilesystemWrite.
	FS FSFailure `json:"fs,omitempty"`

	// Err is the underlying cause.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s", e.Kind, e.Message)
	if e.Entity != "" {
		fmt.Fprintf(&sb, " (entity=%s", e.Entity)
		if e.Field != "" {
			fmt.Fprintf(&sb, ", field=%s", e.Field)
		}
		sb.WriteString(")")
	}
	if len(e.Cycle) > 0 {
		fmt.Fprintf(&sb, ": %s", strings.Join(e.Cycle, " -> "))
	}
	if e.Err != nil {
		fmt.Fprintf(&sb, ": %v", e.Err)
	}
	return sb.String()
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements equality for errors.Is based on the kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// NewError creates a classified error.
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// NewErrorf creates a classified error with a formatted message.
func NewErrorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithEntity adds entity context to the error.
func (e *Error) WithEntity(id string) *Error {
	e.Entity = id
	return e
}

// WithField adds field context to the error.
func (e *Error) WithField(name string) *Error {
	e.Field = name
	return e
}

// WithCycle records the inheritance cycle the error names.
func (e *Error) WithCycle(cycle []string) *Error {
	e.Cycle = cycle
	return e
}

// WithCause wraps an underlying error.
func (e *Error) WithCause(err error) *Error {
	e.Err = err
	return e
}

// WithFS sub-classifies a filesystem write failure.
func (e *Error) WithFS(fs FSFailure) *Error {
	e.FS = fs
	return e
}

// KindOf extracts the kind from an error chain. Unclassified errors report
// KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether the error chain carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// ClassifyFS maps an os-level error to a filesystem failure sub-kind.
func ClassifyFS(err error) FSFailure {
	switch {
	case errors.Is(err, fs.ErrPermission):
		return FSPermissionDenied
	case errors.Is(err, fs.ErrNotExist):
		return FSPathNotFound
	default:
		return FSGeneric
	}
}
