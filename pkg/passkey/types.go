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
	"crypto/rand"
	"time"
)

// Ceremony identifies which of the two WebAuthn ceremonies a pending
// challenge belongs to.
type Ceremony string

const (
	// CeremonyRegistration is the credential enrollment ceremony.
	CeremonyRegistration Ceremony = "registration"

	// CeremonyAuthentication is the assertion ceremony.
	CeremonyAuthentication Ceremony = "authentication"
)

const (
	// UserHandleSize is the size in bytes of a generated user handle.
	UserHandleSize = 16

	// ChallengeSize is the size in bytes of a ceremony challenge.
	ChallengeSize = 32
)

// User maps a human-readable username to the stable opaque user handle used
// inside ceremony payloads. The handle is generated exactly once, on first
// registration attempt, and never changes for the user's lifetime.
type User struct {
	// Handle is the opaque WebAuthn user handle (UserHandleSize random bytes).
	Handle []byte `json:"handle"`

	// Username is the human-readable identifier presented by the client.
	Username string `json:"username"`

	// CreatedAt is when the user was first seen.
	CreatedAt time.Time `json:"created_at"`
}

// Credential is a public-key credential enrolled for a user. Records are
// created by the registration ceremony and mutated (sign counter and
// last-used timestamp only) by the authentication ceremony. Deletion is a
// credential-management concern outside this package.
type Credential struct {
	// ID is the credential identifier assigned by the authenticator.
	// Globally unique across all records, not just per user.
	ID []byte `json:"id"`

	// Owner is the user handle this credential belongs to.
	Owner []byte `json:"owner"`

	// PublicKey is the credential public key in COSE format, opaque to this
	// package.
	PublicKey []byte `json:"public_key"`

	// SignCount is the signature counter for clone detection. Monotonically
	// non-decreasing for the record's lifetime.
	SignCount uint32 `json:"sign_count"`

	// Transports lists the transport hints reported at enrollment.
	Transports Transports `json:"transports,omitempty"`

	// Flags holds the authenticator flags observed at enrollment.
	Flags CredentialFlags `json:"flags"`

	// AAGUID is the authenticator model identifier, when conveyed.
	AAGUID []byte `json:"aaguid,omitempty"`

	// CreatedAt is when the credential was enrolled.
	CreatedAt time.Time `json:"created_at"`

	// LastUsedAt is when the credential last completed an authentication.
	LastUsedAt time.Time `json:"last_used_at,omitempty"`
}

// CredentialFlags contains authenticator capability flags.
type CredentialFlags struct {
	// UserPresent indicates the user was present during the operation.
	UserPresent bool `json:"user_present"`

	// UserVerified indicates the user was verified (e.g., biometric, PIN).
	UserVerified bool `json:"user_verified"`

	// BackupEligible indicates the credential can be backed up.
	BackupEligible bool `json:"backup_eligible"`

	// BackupState indicates the credential is currently backed up.
	BackupState bool `json:"backup_state"`
}

// Challenge is a pending ceremony challenge. At most one lives per
// (owner, ceremony) pair at any instant; issuing a new one supersedes any
// prior one. A challenge is destroyed on successful verification, on
// superseding issuance, or lazily once ExpiresAfter has elapsed.
type Challenge struct {
	// Owner is the user handle the challenge was issued to.
	Owner []byte `json:"owner"`

	// Ceremony is the ceremony type the challenge was issued for.
	Ceremony Ceremony `json:"ceremony"`

	// Value is the ChallengeSize-byte cryptographically random challenge.
	Value []byte `json:"value"`

	// CreatedAt is when the challenge was issued.
	CreatedAt time.Time `json:"created_at"`
}

// Expired reports whether the challenge is older than ttl at the given
// instant. A non-positive ttl disables expiry.
func (c *Challenge) Expired(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	return now.Sub(c.CreatedAt) > ttl
}

// CredentialDescriptor identifies an enrolled credential in ceremony
// options (exclude lists for registration, allow lists for authentication).
type CredentialDescriptor struct {
	// ID is the credential identifier.
	ID []byte

	// Transports hints which transports can reach the authenticator.
	Transports Transports
}

// RegistrationOptions are the parameters the caller hands to an
// authenticator to begin enrollment.
type RegistrationOptions struct {
	// User is the resolved (or newly created) identity.
	User *User

	// Challenge is the freshly issued challenge value.
	Challenge []byte

	// ExcludeCredentials lists already-enrolled credentials so the same
	// authenticator is not registered twice.
	ExcludeCredentials []CredentialDescriptor
}

// AuthenticationOptions are the parameters the caller hands to an
// authenticator to begin an assertion.
type AuthenticationOptions struct {
	// User is the resolved identity.
	User *User

	// Challenge is the freshly issued challenge value.
	Challenge []byte

	// AllowCredentials lists the user's enrolled credentials.
	AllowCredentials []CredentialDescriptor
}

// AuthenticationResult is returned by a successful authentication ceremony.
type AuthenticationResult struct {
	// User is the authenticated identity.
	User *User

	// Credential is the credential that signed the assertion, with its
	// advanced signature counter.
	Credential *Credential

	// Token is the post-authentication token, when a TokenIssuer is
	// configured. Empty otherwise.
	Token string
}

// NewUserHandle generates a fresh random user handle.
func NewUserHandle() ([]byte, error) {
	handle := make([]byte, UserHandleSize)
	if _, err := rand.Read(handle); err != nil {
		return nil, err
	}
	return handle, nil
}

// NewChallenge generates a fresh random challenge value.
func NewChallenge() ([]byte, error) {
	value := make([]byte, ChallengeSize)
	if _, err := rand.Read(value); err != nil {
		return nil, err
	}
	return value, nil
}

func descriptorsFor(creds []*Credential) []CredentialDescriptor {
	descriptors := make([]CredentialDescriptor, len(creds))
	for i, cred := range creds {
		descriptors[i] = CredentialDescriptor{
			ID:         cred.ID,
			Transports: cred.Transports,
		}
	}
	return descriptors
}
