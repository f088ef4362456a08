package errors

import (
	"errors"
	"fmt"
)

// Common error types for the admin portal
var (
	// Authentication errors
	ErrUnauthorized      = errors.New("authentication required")
	ErrUserLocked        = errors.New("user is locked")
	ErrUserPending       = errors.New("user has not completed registration")
	ErrUserNotFound      = errors.New("user not found")
	ErrNotGovernmentUser = errors.New("email address is not on a government domain")
	ErrSessionMismatch   = errors.New("session id no longer current")

	// Signed token errors
	ErrBadSignature     = errors.New("bad signature")
	ErrSignatureExpired = errors.New("signature expired")

	// Admin JWT verification errors
	ErrTokenMissingIssuer   = errors.New("token missing iss claim")
	ErrTokenMissingIssuedAt = errors.New("token missing iat claim")
	ErrTokenExpired         = errors.New("token expired")
	ErrTokenFromFuture      = errors.New("token issued in the future")
	ErrTokenAlgorithm       = errors.New("unexpected token algorithm")
	ErrTokenSignature       = errors.New("token signature invalid")

	// Invitation errors
	ErrInviteToken         = errors.New("invalid invitation token")
	ErrInviteWrongUser     = errors.New("invitation is for another email address")
	ErrInviteNotRedeemable = errors.New("invitation can no longer be redeemed")

	// Authorization errors
	ErrForbidden       = errors.New("forbidden")
	ErrServiceInactive = errors.New("service is inactive")

	// General errors
	ErrNotFound  = errors.New("not found")
	ErrGone      = errors.New("gone")
	ErrCacheMiss = errors.New("cache miss")
	ErrInternal  = errors.New("internal error")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
