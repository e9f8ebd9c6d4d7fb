// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey.
//
// go-passkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package passkey

import (
	"errors"
	"fmt"
)

// Sentinel errors for ceremony and registry operations.
var (
	// ErrInvalidRequest is returned when input is missing or malformed
	// (empty username, absent response payload).
	ErrInvalidRequest = errors.New("invalid request")

	// ErrUserNotFound is returned when a username cannot be resolved.
	ErrUserNotFound = errors.New("user not found")

	// ErrNoCredentials is returned when authentication is requested for a
	// user with no enrolled credentials.
	ErrNoCredentials = errors.New("user has no registered credentials")

	// ErrChallengeNotFound is returned when no pending challenge exists for
	// the (user, ceremony) pair: never issued, already consumed, superseded,
	// or expired.
	ErrChallengeNotFound = errors.New("challenge not found")

	// ErrCredentialNotFound is returned when a credential ID is unknown or
	// belongs to a different user than the one named in the request.
	ErrCredentialNotFound = errors.New("credential not found")

	// ErrCredentialConflict is returned when a credential ID is already
	// enrolled for a different user.
	ErrCredentialConflict = errors.New("credential already registered to another user")

	// ErrVerificationFailed is returned when the cryptographic or protocol
	// checks on an authenticator response fail (challenge, origin, RP ID,
	// signature, or user-verification flag).
	ErrVerificationFailed = errors.New("verification failed")

	// ErrStaleCounter is returned by the credential registry when a reported
	// signature counter does not strictly increase.
	ErrStaleCounter = errors.New("stale signature counter")

	// ErrReplayDetected is returned by the authentication ceremony when a
	// stale counter indicates a replayed response or cloned authenticator.
	ErrReplayDetected = errors.New("replay detected")

	// ErrNotConfigured is returned when the service is used before it has
	// been constructed with valid dependencies.
	ErrNotConfigured = errors.New("passkey service not configured")
)

// CeremonyError wraps an error with the operation that produced it.
type CeremonyError struct {
	Op  string // Operation that failed
	Err error  // Underlying error
}

// Error returns the error message.
func (e *CeremonyError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *CeremonyError) Unwrap() error {
	return e.Err
}

// Is reports whether the target error matches.
func (e *CeremonyError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewError creates a new CeremonyError with the given operation and error.
func NewError(op string, err error) error {
	return &CeremonyError{
		Op:  op,
		Err: err,
	}
}

// WrapError wraps an error with an operation name if it's not nil.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	return NewError(op, err)
}

// IsUserNotFound returns true if the error indicates a user was not found.
func IsUserNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound)
}

// IsNoCredentials returns true if the error indicates a user has no credentials.
func IsNoCredentials(err error) bool {
	return errors.Is(err, ErrNoCredentials)
}

// IsChallengeNotFound returns true if the error indicates a missing,
// consumed, superseded or expired challenge.
func IsChallengeNotFound(err error) bool {
	return errors.Is(err, ErrChallengeNotFound)
}

// IsCredentialNotFound returns true if the error indicates a credential was
// not found for the requesting user.
func IsCredentialNotFound(err error) bool {
	return errors.Is(err, ErrCredentialNotFound)
}

// IsCredentialConflict returns true if the error indicates a credential ID
// collision across users.
func IsCredentialConflict(err error) bool {
	return errors.Is(err, ErrCredentialConflict)
}

// IsVerificationFailed returns true if the error indicates verification failed.
func IsVerificationFailed(err error) bool {
	return errors.Is(err, ErrVerificationFailed)
}

// IsStaleCounter returns true if the error indicates a non-increasing
// signature counter.
func IsStaleCounter(err error) bool {
	return errors.Is(err, ErrStaleCounter)
}

// IsReplayDetected returns true if the error indicates a replayed
// authentication response.
func IsReplayDetected(err error) bool {
	return errors.Is(err, ErrReplayDetected)
}
