package directory

import (
	"errors"
	"fmt"
)

// Error kinds map one-to-one onto the SCIM error statuses the API surfaces.
const (
	ErrKindNotFound   = "not_found"
	ErrKindConflict   = "conflict"
	ErrKindBadRequest = "bad_request"
	ErrKindForbidden  = "forbidden"
	ErrKindInternal   = "internal"
)

// Error represents a failed repository operation. Every store method returns
// either a domain result or one of these; raw storage faults never cross the
// repository boundary.
type Error struct {
	Kind     string
	Resource string
	Message  string
	Cause    error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s error on %s: %s (caused by: %v)", e.Kind, e.Resource, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s error on %s: %s", e.Kind, e.Resource, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NewNotFoundError creates an error for a missing resource or an empty
// filter match.
func NewNotFoundError(resource, message string) *Error {
	return &Error{Kind: ErrKindNotFound, Resource: resource, Message: message}
}

// NewConflictError creates an error for a uniqueness violation on create.
func NewConflictError(resource, message string) *Error {
	return &Error{Kind: ErrKindConflict, Resource: resource, Message: message}
}

// NewBadRequestError creates an error for an invalid request: unsupported
// filter attribute, missing patch value, dangling membership reference.
func NewBadRequestError(resource, message string) *Error {
	return &Error{Kind: ErrKindBadRequest, Resource: resource, Message: message}
}

// NewForbiddenError creates an error for an explicitly unsupported
// operation, per the SCIM "Operation Not Supported" convention.
func NewForbiddenError(resource, message string) *Error {
	return &Error{Kind: ErrKindForbidden, Resource: resource, Message: message}
}

// NewInternalError wraps an unexpected storage failure.
func NewInternalError(resource string, cause error) *Error {
	return &Error{Kind: ErrKindInternal, Resource: resource, Message: "storage operation failed", Cause: cause}
}

func kindIs(err error, kind string) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind == kind
	}
	return false
}

func IsNotFound(err error) bool   { return kindIs(err, ErrKindNotFound) }
func IsConflict(err error) bool   { return kindIs(err, ErrKindConflict) }
func IsBadRequest(err error) bool { return kindIs(err, ErrKindBadRequest) }
func IsForbidden(err error) bool  { return kindIs(err, ErrKindForbidden) }
func IsInternal(err error) bool   { return kindIs(err, ErrKindInternal) }
