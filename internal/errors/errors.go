package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Common error types for the authorization server stores
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

// Protocol error codes, rendered as the title of an error response.
const (
	CodeInvalidRequest        = "invalid_request"
	CodeInvalidClient         = "invalid_client"
	CodeInvalidGrant          = "invalid_grant"
	CodeInvalidScope          = "invalid_scope"
	CodeInvalidToken          = "invalid_token"
	CodeInvalidResourceSetID  = "invalid_resource_set_id"
	CodeInvalidClientMetadata = "invalid_client_metadata"
	CodeUnsupportedGrantType  = "unsupported_grant_type"
	CodeNeedInfo              = "need_info"
	CodeInternalError         = "internal_error"
)

// Error is an expected protocol failure. It is returned as a value and never
// represents a fault of the server itself.
type Error struct {
	Code   string
	Detail string
	Status int

	// Extensions are additional members rendered next to title, detail and status.
	Extensions map[string]any
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Detail
}

// New creates a protocol error with a formatted detail.
func New(code string, status int, format string, args ...any) *Error {
	return &Error{
		Code:   code,
		Detail: fmt.Sprintf(format, args...),
		Status: status,
	}
}

// WithExtension returns the error with an extra member attached.
func (e *Error) WithExtension(name string, value any) *Error {
	if e.Extensions == nil {
		e.Extensions = make(map[string]any)
	}
	e.Extensions[name] = value
	return e
}

func InvalidRequest(format string, args ...any) *Error {
	return New(CodeInvalidRequest, http.StatusBadRequest, format, args...)
}

// MissingParameter is the uniform error for an absent required parameter.
func MissingParameter(name string) *Error {
	return InvalidRequest("missing parameter: %s", name)
}

func InvalidClient(format string, args ...any) *Error {
	return New(CodeInvalidClient, http.StatusBadRequest, format, args...)
}

func InvalidGrant(format string, args ...any) *Error {
	return New(CodeInvalidGrant, http.StatusBadRequest, format, args...)
}

// InvalidScope lists the offending scope names in its detail.
func InvalidScope(format string, scopes []string) *Error {
	return New(CodeInvalidScope, http.StatusBadRequest, format, strings.Join(scopes, ","))
}

func InvalidToken(format string, args ...any) *Error {
	return New(CodeInvalidToken, http.StatusUnauthorized, format, args...)
}

func InvalidResourceSetID(format string, args ...any) *Error {
	return New(CodeInvalidResourceSetID, http.StatusBadRequest, format, args...)
}

func InvalidClientMetadata(format string, args ...any) *Error {
	return New(CodeInvalidClientMetadata, http.StatusBadRequest, format, args...)
}

func UnsupportedGrantType(grantType string) *Error {
	return New(CodeUnsupportedGrantType, http.StatusBadRequest, "the grant type %s is not supported", grantType)
}

// NotAuthorized is returned when an authorization policy denies a request.
func NotAuthorized(format string, args ...any) *Error {
	return New(CodeInvalidGrant, http.StatusForbidden, format, args...)
}

// NeedInfo asks the requesting party to come back with more claims.
func NeedInfo(ticketID string, requiredClaims any, redirectUser string) *Error {
	e := New(CodeNeedInfo, http.StatusForbidden, "the authorization server needs additional information in order to determine whether the client is authorized to have these permissions")
	e.WithExtension("ticket", ticketID)
	e.WithExtension("required_claims", requiredClaims)
	if redirectUser != "" {
		e.WithExtension("redirect_user", redirectUser)
	}
	return e
}

// AsProtocolError reports whether err carries a protocol error.
func AsProtocolError(err error) (*Error, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// HasCode reports whether err is a protocol error with the given code.
func HasCode(err error, code string) bool {
	pe, ok := AsProtocolError(err)
	return ok && pe.Code == code
}
