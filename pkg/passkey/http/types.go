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

package http

import "encoding/json"

// OptionsRequest is the request body for the options endpoints.
type OptionsRequest struct {
	// Username is the human-readable user identifier (required).
	Username string `json:"username"`
}

// VerifyRequest is the request body for the verify endpoints.
type VerifyRequest struct {
	// Username is the human-readable user identifier (required).
	Username string `json:"username"`

	// Credential is the PublicKeyCredential JSON produced by the browser
	// (required). It is handed to the protocol parser untouched.
	Credential json.RawMessage `json:"credential"`
}

// OptionsResponse wraps ceremony options the way browser WebAuthn helpers
// expect them.
type OptionsResponse struct {
	PublicKey any `json:"publicKey"`
}

// VerifyResponse acknowledges a completed ceremony.
type VerifyResponse struct {
	// Status is "ok" on success.
	Status string `json:"status"`

	// Token is the post-authentication token, when the service is
	// configured with a token issuer.
	Token string `json:"token,omitempty"`
}

// ErrorResponse is the response format for errors.
type ErrorResponse struct {
	// Error is the error code.
	Error string `json:"error"`

	// Message is a human-readable error message.
	Message string `json:"message"`
}

// Error codes returned in ErrorResponse.
const (
	ErrorCodeInvalidRequest     = "invalid_request"
	ErrorCodeUserNotFound       = "user_not_found"
	ErrorCodeNoCredentials      = "no_credentials"
	ErrorCodeChallengeNotFound  = "challenge_not_found"
	ErrorCodeCredentialNotFound = "credential_not_found"
	ErrorCodeCredentialConflict = "credential_conflict"
	ErrorCodeVerificationFailed = "verification_failed"
	ErrorCodeReplayDetected     = "replay_detected"
	ErrorCodeInternalError      = "internal_error"
)

// Wire shapes for the WebAuthn options JSON. These mirror the W3C
// dictionaries; binary fields travel base64url-encoded without padding.

type rpEntity struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

type userEntity struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
}

type credentialParameter struct {
	Type      string `json:"type"`
	Algorithm int    `json:"alg"`
}

type credentialDescriptor struct {
	Type       string   `json:"type"`
	ID         string   `json:"id"`
	Transports []string `json:"transports,omitempty"`
}

type authenticatorSelection struct {
	ResidentKey      string `json:"residentKey,omitempty"`
	UserVerification string `json:"userVerification,omitempty"`
}

type creationOptions struct {
	RP                     rpEntity               `json:"rp"`
	User                   userEntity             `json:"user"`
	Challenge              string                 `json:"challenge"`
	PubKeyCredParams       []credentialParameter  `json:"pubKeyCredParams"`
	Timeout                int64                  `json:"timeout,omitempty"`
	ExcludeCredentials     []credentialDescriptor `json:"excludeCredentials,omitempty"`
	AuthenticatorSelection authenticatorSelection `json:"authenticatorSelection"`
	Attestation            string                 `json:"attestation,omitempty"`
}

type requestOptions struct {
	Challenge        string                 `json:"challenge"`
	Timeout          int64                  `json:"timeout,omitempty"`
	RPID             string                 `json:"rpId"`
	AllowCredentials []credentialDescriptor `json:"allowCredentials,omitempty"`
	UserVerification string                 `json:"userVerification,omitempty"`
}

// COSE algorithm identifiers offered to authenticators, most preferred
// first: ES256, EdDSA, RS256.
var defaultCredentialParameters = []credentialParameter{
	{Type: "public-key", Algorithm: -7},
	{Type: "public-key", Algorithm: -8},
	{Type: "public-key", Algorithm: -257},
}
