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
	"context"

	"github.com/go-webauthn/webauthn/protocol"
)

// UserStore resolves usernames to stable user identities.
type UserStore interface {
	// Resolve retrieves the user for a username.
	// Returns ErrUserNotFound if the user does not exist.
	Resolve(ctx context.Context, username string) (*User, error)

	// ResolveOrCreate retrieves the user for a username, creating the
	// identity with a fresh user handle on first sight.
	ResolveOrCreate(ctx context.Context, username string) (*User, error)
}

// ChallengeStore persists pending ceremony challenges. Implementations must
// guarantee the at-most-one-per-(owner, ceremony) invariant atomically:
// concurrent Put calls for the same pair must leave exactly one survivor.
type ChallengeStore interface {
	// Put stores a challenge for the (owner, ceremony) pair, superseding
	// any existing one.
	Put(ctx context.Context, challenge *Challenge) error

	// Take returns the pending challenge for the pair without deleting it,
	// so a failed verification can be retried against the same challenge.
	// Expired challenges are reaped lazily and reported as absent.
	// Returns ErrChallengeNotFound if no live challenge exists.
	Take(ctx context.Context, owner []byte, ceremony Ceremony) (*Challenge, error)

	// Delete removes the pending challenge for the pair, reporting whether
	// one existed. Callers consuming a challenge must treat deleted == false
	// as a lost race (the challenge was already consumed or superseded).
	// Idempotent: absent challenges are not an error.
	Delete(ctx context.Context, owner []byte, ceremony Ceremony) (deleted bool, err error)
}

// CredentialStore is the per-user registry of enrolled credentials, keyed
// by globally unique credential ID.
type CredentialStore interface {
	// Enroll stores a credential. If the credential ID already exists for a
	// different owner, returns ErrCredentialConflict and leaves the record
	// untouched. If it exists for the same owner, the public key and
	// transports are updated in place (idempotent re-registration of a
	// device that was already registered).
	Enroll(ctx context.Context, cred *Credential) (*Credential, error)

	// ListByOwner retrieves all credentials for a user handle. Order is not
	// significant. Returns an empty slice if the user has none.
	ListByOwner(ctx context.Context, owner []byte) ([]*Credential, error)

	// FindByID retrieves a credential by its ID.
	// Returns ErrCredentialNotFound if the credential does not exist.
	FindByID(ctx context.Context, credentialID []byte) (*Credential, error)

	// UpdateSignCount advances the credential's signature counter to
	// newCount and stamps the last-used time. The update is
	// compare-and-swap: returns ErrStaleCounter unless newCount strictly
	// exceeds the stored counter, except that zero-to-zero is tolerated for
	// authenticators that never report a counter.
	// Returns ErrCredentialNotFound if the credential does not exist.
	UpdateSignCount(ctx context.Context, credentialID []byte, newCount uint32) error
}

// Expected carries the relying-party expectations a ceremony response must
// be verified against.
type Expected struct {
	// Challenge is the pending challenge the response must echo.
	Challenge []byte

	// Origin is the web origin the response must have been produced for.
	Origin string

	// RPID is the relying-party identifier.
	RPID string

	// UserHandle is the handle of the user the ceremony was issued to.
	UserHandle []byte

	// Username is the human-readable name of that user.
	Username string

	// RequireUserVerification demands the UV flag on the response.
	RequireUserVerification bool
}

// RegistrationResult is the payload extracted from a successfully verified
// attestation response.
type RegistrationResult struct {
	// CredentialID is the identifier of the newly minted credential.
	CredentialID []byte

	// PublicKey is the credential public key in COSE format.
	PublicKey []byte

	// SignCount is the authenticator's initial signature counter.
	SignCount uint32

	// Transports are the transport hints reported with the response.
	Transports Transports

	// Flags are the authenticator flags observed on the response.
	Flags CredentialFlags

	// AAGUID identifies the authenticator model, when conveyed.
	AAGUID []byte
}

// AssertionResult is the payload extracted from a successfully verified
// assertion response.
type AssertionResult struct {
	// NewSignCount is the signature counter reported by the authenticator.
	NewSignCount uint32

	// UserVerified reports whether the UV flag was set.
	UserVerified bool
}

// Verifier performs the cryptographic validation of ceremony responses.
// The ceremony orchestration treats it as a trusted collaborator: COSE key
// parsing, CBOR decoding and signature checks all live behind this
// interface. Failures are reported as errors matching ErrVerificationFailed.
type Verifier interface {
	// VerifyRegistration validates an attestation response against the
	// expectations and extracts the new credential material.
	VerifyRegistration(ctx context.Context, response *protocol.ParsedCredentialCreationData, expected Expected) (*RegistrationResult, error)

	// VerifyAuthentication validates an assertion response against the
	// expectations using the stored credential's public key and current
	// signature counter.
	VerifyAuthentication(ctx context.Context, response *protocol.ParsedCredentialAssertionData, expected Expected, cred *Credential) (*AssertionResult, error)
}

// TokenIssuer is an optional hook for minting a token after a successful
// authentication ceremony. Session management is otherwise outside this
// package.
type TokenIssuer interface {
	// IssueToken creates a token for the authenticated user.
	IssueToken(ctx context.Context, user *User) (string, error)
}
