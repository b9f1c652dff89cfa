package errors

import (
	goerrors "errors"
	"fmt"
)

var (
	ErrWorkerPanic = fmt.Errorf("worker panic")

	// Handshake and admission.
	ErrMissingToken        = fmt.Errorf("missing authentication token")
	ErrInvalidToken        = fmt.Errorf("invalid or expired token")
	ErrUnknownUser         = fmt.Errorf("token references an unknown user")
	ErrDuplicateConnection = fmt.Errorf("connection already admitted")
	ErrIdentityMismatch    = fmt.Errorf("connection is owned by another user")
	ErrTokenExpired        = fmt.Errorf("session token expired")

	// Room joins.
	ErrGroupIDMissing = fmt.Errorf("group id is missing")
	ErrGroupNotFound  = fmt.Errorf("group not found")
	ErrNotAMember     = fmt.Errorf("you are not a member of this group")

	// Per-connection delivery.
	ErrConnectionClosed   = fmt.Errorf("connection closed")
	ErrConnectionNotFound = fmt.Errorf("connection not found")
	ErrSlowConsumer       = fmt.Errorf("connection outbound buffer full")
	ErrUnknownEvent       = fmt.Errorf("unknown event")
	ErrMalformedFrame     = fmt.Errorf("malformed frame")

	// Accounts, groups and messages.
	ErrValidation         = fmt.Errorf("validation failed")
	ErrInvalidPassword    = fmt.Errorf("password does not meet complexity rules")
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")
	ErrTokenGeneration    = fmt.Errorf("token generation failed")
	ErrUnauthorized       = fmt.Errorf("missing or invalid token")
	ErrUsernameExists     = fmt.Errorf("username already exists")
	ErrEmailExists        = fmt.Errorf("email already exists")
	ErrUserNotFound       = fmt.Errorf("user not found")
	ErrGroupAlreadyExists = fmt.Errorf("group already exists")
	ErrDuplicateMembers   = fmt.Errorf("members must be unique")
)

// Is mirrors the standard library so callers importing this package under its
// default name keep errors.Is at hand.
func Is(err, target error) bool {
	return goerrors.Is(err, target)
}

func As(err error, target any) bool {
	return goerrors.As(err, target)
}
