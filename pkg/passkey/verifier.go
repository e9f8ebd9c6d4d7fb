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
	"encoding/base64"
	"fmt"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
)

// CeremonyVerifier is the production Verifier implementation, backed by
// github.com/go-webauthn/webauthn. It performs the full attestation and
// assertion validation (client data, origin, RP ID hash, signature, flags)
// against the expectations supplied per call.
type CeremonyVerifier struct {
	config *Config
}

// NewCeremonyVerifier creates a verifier for the given relying-party
// configuration.
func NewCeremonyVerifier(config *Config) (*CeremonyVerifier, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	config.SetDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &CeremonyVerifier{config: config}, nil
}

// VerifyRegistration validates an attestation response and extracts the
// new credential material.
func (v *CeremonyVerifier) VerifyRegistration(ctx context.Context, response *protocol.ParsedCredentialCreationData, expected Expected) (*RegistrationResult, error) {
	wa, err := v.instance(expected)
	if err != nil {
		return nil, err
	}

	user := &ceremonyUser{
		handle: expected.UserHandle,
		name:   expected.Username,
	}

	credential, err := wa.CreateCredential(user, v.session(expected, nil), response)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}

	return &RegistrationResult{
		CredentialID: credential.ID,
		PublicKey:    credential.PublicKey,
		SignCount:    credential.Authenticator.SignCount,
		Transports:   fromProtocolTransports(credential.Transport),
		Flags: CredentialFlags{
			UserPresent:    credential.Flags.UserPresent,
			UserVerified:   credential.Flags.UserVerified,
			BackupEligible: credential.Flags.BackupEligible,
			BackupState:    credential.Flags.BackupState,
		},
		AAGUID: credential.Authenticator.AAGUID,
	}, nil
}

// VerifyAuthentication validates an assertion response against the stored
// credential and reports the authenticator's new signature counter. The
// counter is not judged here; the credential registry enforces the
// strict-increase rule.
func (v *CeremonyVerifier) VerifyAuthentication(ctx context.Context, response *protocol.ParsedCredentialAssertionData, expected Expected, cred *Credential) (*AssertionResult, error) {
	if cred == nil {
		return nil, fmt.Errorf("credential is required")
	}

	wa, err := v.instance(expected)
	if err != nil {
		return nil, err
	}

	user := &ceremonyUser{
		handle: expected.UserHandle,
		name:   expected.Username,
		creds:  []webauthn.Credential{toWebAuthnCredential(cred)},
	}

	validated, err := wa.ValidateLogin(user, v.session(expected, cred.ID), response)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}

	return &AssertionResult{
		NewSignCount: validated.Authenticator.SignCount,
		UserVerified: response.Response.AuthenticatorData.Flags.HasUserVerified(),
	}, nil
}

// instance builds a go-webauthn handle for the expected origin and RP ID.
// Construction is cheap; doing it per call keeps the Verifier contract
// honest about which expectations each verification ran against.
func (v *CeremonyVerifier) instance(expected Expected) (*webauthn.WebAuthn, error) {
	origins := []string{expected.Origin}
	if expected.Origin == "" {
		origins = v.config.RPOrigins
	}
	rpID := expected.RPID
	if rpID == "" {
		rpID = v.config.RPID
	}

	wa, err := webauthn.New(&webauthn.Config{
		RPID:          rpID,
		RPDisplayName: v.config.RPDisplayName,
		RPOrigins:     origins,
		Debug:         v.config.Debug,
	})
	if err != nil {
		return nil, fmt.Errorf("create webauthn instance: %w", err)
	}
	return wa, nil
}

// session synthesizes the library session data from a pending challenge.
// Challenge lifetime is owned by the ChallengeStore, so the session expiry
// here is only a backstop.
func (v *CeremonyVerifier) session(expected Expected, allowedCredentialID []byte) webauthn.SessionData {
	session := webauthn.SessionData{
		Challenge: base64.RawURLEncoding.EncodeToString(expected.Challenge),
		UserID:    expected.UserHandle,
		Expires:   time.Now().Add(v.config.ChallengeTTL),
	}

	if expected.RequireUserVerification {
		session.UserVerification = protocol.VerificationRequired
	} else {
		session.UserVerification = protocol.VerificationPreferred
	}

	if allowedCredentialID != nil {
		session.AllowedCredentialIDs = [][]byte{allowedCredentialID}
	}

	return session
}

// ceremonyUser adapts a (handle, username, credentials) triple to the
// go-webauthn user contract for the duration of one verification.
type ceremonyUser struct {
	handle []byte
	name   string
	creds  []webauthn.Credential
}

func (u *ceremonyUser) WebAuthnID() []byte          { return u.handle }
func (u *ceremonyUser) WebAuthnName() string        { return u.name }
func (u *ceremonyUser) WebAuthnDisplayName() string { return u.name }
func (u *ceremonyUser) WebAuthnCredentials() []webauthn.Credential {
	return u.creds
}

func toWebAuthnCredential(cred *Credential) webauthn.Credential {
	transports := make([]protocol.AuthenticatorTransport, len(cred.Transports))
	for i, t := range cred.Transports {
		transports[i] = protocol.AuthenticatorTransport(t)
	}
	return webauthn.Credential{
		ID:        cred.ID,
		PublicKey: cred.PublicKey,
		Transport: transports,
		Flags: webauthn.CredentialFlags{
			UserPresent:    cred.Flags.UserPresent,
			UserVerified:   cred.Flags.UserVerified,
			BackupEligible: cred.Flags.BackupEligible,
			BackupState:    cred.Flags.BackupState,
		},
		Authenticator: webauthn.Authenticator{
			AAGUID:    cred.AAGUID,
			SignCount: cred.SignCount,
		},
	}
}

func fromProtocolTransports(transports []protocol.AuthenticatorTransport) Transports {
	raw := make([]string, len(transports))
	for i, t := range transports {
		raw[i] = string(t)
	}
	return ParseTransports(raw)
}
