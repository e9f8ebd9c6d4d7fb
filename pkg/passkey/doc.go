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

// Package passkey implements a WebAuthn/FIDO2 relying-party ceremony
// orchestrator: challenge issuance and consumption, credential enrollment
// and lookup, and signature-counter replay protection for passkey
// registration and authentication.
//
// The package serves a single relying party (one RP ID, one origin set) and
// requires discoverable (resident-key) credentials so a passkey created here
// can later be used from another device without the user first typing a
// username.
//
// Architecture:
//
//   - Service orchestrates the two ceremonies. Each ceremony is two steps:
//     a begin call that issues a fresh 32-byte challenge and returns options
//     for the browser, and a finish call that binds the authenticator's
//     response back to that challenge.
//   - ChallengeStore, CredentialStore and UserStore are persistence
//     interfaces. In-memory implementations live in this package; durable
//     implementations backed by the storage abstraction live in the store
//     subpackage.
//   - Verifier performs the cryptographic validation of attestation and
//     assertion responses. CeremonyVerifier is the production implementation
//     built on github.com/go-webauthn/webauthn; tests substitute their own.
//   - TokenIssuer is an optional hook for minting a post-authentication
//     token (see JWTIssuer).
//
// Protocol invariants enforced here rather than by the verifier:
//
//   - At most one live challenge per (user, ceremony) pair; issuing a new
//     one supersedes the old.
//   - A challenge is consumed at most once; a duplicate finish submission
//     fails with ErrChallengeNotFound.
//   - Challenges expire after Config.ChallengeTTL and are reaped lazily.
//   - Credential IDs are globally unique; enrollment never overwrites a
//     credential owned by another user.
//   - Signature counters must strictly increase (zero-to-zero tolerated for
//     authenticators that never report a counter); a non-increasing counter
//     surfaces as ErrReplayDetected.
package passkey
