package errors

import "net/http"

const CodeInternal = "INTERNAL_ERROR"

type mapping struct {
	err    error
	code   string
	status int
}

// Order matters: the first sentinel found in the chain wins.
var mappings = []mapping{
	{ErrMissingToken, "MISSING_TOKEN", http.StatusUnauthorized},
	{ErrInvalidToken, "INVALID_TOKEN", http.StatusUnauthorized},
	{ErrUnknownUser, "UNKNOWN_USER", http.StatusUnauthorized},
	{ErrTokenExpired, "TOKEN_EXPIRED", http.StatusUnauthorized},
	{ErrDuplicateConnection, "DUPLICATE_CONNECTION", http.StatusConflict},
	{ErrIdentityMismatch, "IDENTITY_MISMATCH", http.StatusConflict},
	{ErrGroupIDMissing, "GROUP_ID_MISSING", http.StatusBadRequest},
	{ErrGroupNotFound, "GROUP_NOT_FOUND", http.StatusNotFound},
	{ErrNotAMember, "NOT_A_MEMBER", http.StatusForbidden},
	{ErrConnectionClosed, "CONNECTION_CLOSED", http.StatusGone},
	{ErrConnectionNotFound, "CONNECTION_NOT_FOUND", http.StatusNotFound},
	{ErrSlowConsumer, "SLOW_CONSUMER", http.StatusServiceUnavailable},
	{ErrUnknownEvent, "UNKNOWN_EVENT", http.StatusBadRequest},
	{ErrMalformedFrame, "MALFORMED_FRAME", http.StatusBadRequest},
	{ErrInvalidPassword, "INVALID_PASSWORD", http.StatusBadRequest},
	{ErrValidation, "VALIDATION_FAILED", http.StatusBadRequest},
	{ErrInvalidCredentials, "INVALID_CREDENTIALS", http.StatusUnauthorized},
	{ErrUnauthorized, "INVALID_AUTH_TOKEN", http.StatusUnauthorized},
	{ErrTokenGeneration, "TOKEN_GENERATION_FAILED", http.StatusInternalServerError},
	{ErrUsernameExists, "USERNAME_EXISTS", http.StatusConflict},
	{ErrEmailExists, "EMAIL_EXISTS", http.StatusConflict},
	{ErrUserNotFound, "USER_NOT_FOUND", http.StatusNotFound},
	{ErrGroupAlreadyExists, "GROUP_EXISTS", http.StatusBadRequest},
	{ErrDuplicateMembers, "DUPLICATE_MEMBERS", http.StatusBadRequest},
	{ErrWorkerPanic, CodeInternal, http.StatusInternalServerError},
}

// Code returns the wire code clients see for err, INTERNAL_ERROR when err is not a known sentinel.
func Code(err error) string {
	if m, ok := lookup(err); ok {
		return m.code
	}
	return CodeInternal
}

// HTTPStatus is the REST counterpart of Code.
func HTTPStatus(err error) int {
	if m, ok := lookup(err); ok {
		return m.status
	}
	return http.StatusInternalServerError
}

// Message hides internal error details from clients.
func Message(err error) string {
	if m, ok := lookup(err); ok {
		return m.err.Error()
	}
	return "something went wrong"
}

func lookup(err error) (mapping, bool) {
	if err == nil {
		return mapping{}, false
	}
	for _, m := range mappings {
		if Is(err, m.err) {
			return m, true
		}
	}
	return mapping{}, false
}
