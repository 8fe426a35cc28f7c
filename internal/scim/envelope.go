package scim

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/scimgate/scimgate/internal/directory"
)

// ListResponse is the SCIM list envelope. Resources holds already-rendered
// resource objects.
type ListResponse struct {
	Schemas      []string `json:"schemas"`
	TotalResults int      `json:"totalResults"`
	StartIndex   int      `json:"startIndex"`
	ItemsPerPage int      `json:"itemsPerPage"`
	Resources    []any    `json:"Resources"`
}

// ErrorResponse is the SCIM error envelope. Status mirrors the HTTP status
// code as a string, as the protocol requires.
type ErrorResponse struct {
	Schemas []string `json:"schemas"`
	Detail  string   `json:"detail"`
	Status  string   `json:"status"`
}

// NewListResponse wraps rendered resources with pagination metadata.
// startIndex is normalized to its 1-based default.
func NewListResponse(resources []any, startIndex, totalResults int) ListResponse {
	if startIndex <= 0 {
		startIndex = 1
	}
	if resources == nil {
		resources = []any{}
	}
	return ListResponse{
		Schemas:      []string{SchemaListResponse},
		TotalResults: totalResults,
		StartIndex:   startIndex,
		ItemsPerPage: len(resources),
		Resources:    resources,
	}
}

// NewError builds the SCIM error envelope for an HTTP status code.
func NewError(detail string, status int) ErrorResponse {
	return ErrorResponse{
		Schemas: []string{SchemaError},
		Detail:  detail,
		Status:  strconv.Itoa(status),
	}
}

// MapError converts a repository error into the HTTP status and detail text
// of its SCIM error envelope. Anything that is not a typed repository error
// is reported as an internal failure.
func MapError(err error) (int, string) {
	var derr *directory.Error
	if !errors.As(err, &derr) {
		return http.StatusInternalServerError, "Internal server error"
	}

	switch derr.Kind {
	case directory.ErrKindNotFound:
		return http.StatusNotFound, derr.Message
	case directory.ErrKindConflict:
		return http.StatusConflict, derr.Message
	case directory.ErrKindBadRequest:
		return http.StatusBadRequest, derr.Message
	case directory.ErrKindForbidden:
		return http.StatusForbidden, "Operation Not Supported"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}
