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

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/descope/virtualwebauthn"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-passkey/pkg/passkey"
)

// integrationFixture runs the full stack: chi router, HTTP handler, service,
// real verifier, and in-memory stores, driven by a virtual authenticator.
type integrationFixture struct {
	router        chi.Router
	service       *passkey.Service
	rp            virtualwebauthn.RelyingParty
	authenticator virtualwebauthn.Authenticator
}

func newIntegrationFixture(t *testing.T) *integrationFixture {
	t.Helper()

	cfg := &passkey.Config{
		RPID:          "example.com",
		RPDisplayName: "Example Corp",
		RPOrigins:     []string{"https://example.com"},
		// The virtual authenticator does not perform user verification
		UserVerification: "preferred",
	}

	verifier, err := passkey.NewCeremonyVerifier(cfg)
	require.NoError(t, err)

	svc, err := passkey.NewService(passkey.ServiceParams{
		Config:          cfg,
		UserStore:       passkey.NewMemoryUserStore(),
		ChallengeStore:  passkey.NewMemoryChallengeStore(),
		CredentialStore: passkey.NewMemoryCredentialStore(),
		Verifier:        verifier,
	})
	require.NoError(t, err)

	router := chi.NewRouter()
	MountChi(router, NewHandler(svc))

	return &integrationFixture{
		router:  router,
		service: svc,
		rp: virtualwebauthn.RelyingParty{
			Name:   cfg.RPDisplayName,
			ID:     cfg.RPID,
			Origin: cfg.RPOrigins[0],
		},
		authenticator: virtualwebauthn.NewAuthenticator(),
	}
}

func (f *integrationFixture) post(t *testing.T, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	data, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

// publicKeyJSON extracts the publicKey options object from an options
// response, in the form the virtual authenticator parsers expect.
func publicKeyJSON(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()

	var envelope struct {
		PublicKey json.RawMessage `json:"publicKey"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.NotEmpty(t, envelope.PublicKey)
	return string(envelope.PublicKey)
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

// register drives a full registration ceremony for the username and returns
// the enrolled virtual credential.
func (f *integrationFixture) register(t *testing.T, username string) virtualwebauthn.Credential {
	t.Helper()

	credential := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	rec := f.post(t, "/register/options", OptionsRequest{Username: username})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	options, err := virtualwebauthn.ParseAttestationOptions(publicKeyJSON(t, rec))
	require.NoError(t, err)

	attestation := virtualwebauthn.CreateAttestationResponse(f.rp, f.authenticator, credential, *options)

	rec = f.post(t, "/register/verify", VerifyRequest{
		Username:   username,
		Credential: json.RawMessage(attestation),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	f.authenticator.AddCredential(credential)
	return credential
}

// login drives a full authentication ceremony with the given credential.
func (f *integrationFixture) login(t *testing.T, username string, credential *virtualwebauthn.Credential) *httptest.ResponseRecorder {
	t.Helper()

	rec := f.post(t, "/login/options", OptionsRequest{Username: username})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	options, err := virtualwebauthn.ParseAssertionOptions(publicKeyJSON(t, rec))
	require.NoError(t, err)

	assertion := virtualwebauthn.CreateAssertionResponse(f.rp, f.authenticator, *credential, *options)

	return f.post(t, "/login/verify", VerifyRequest{
		Username:   username,
		Credential: json.RawMessage(assertion),
	})
}

func TestIntegration_RegisterThenLogin(t *testing.T) {
	f := newIntegrationFixture(t)

	credential := f.register(t, "alice@example.com")

	creds, err := f.service.Credentials(context.Background(), "alice@example.com")
	require.NoError(t, err)
	require.Len(t, creds, 1)

	rec := f.login(t, "alice@example.com", &credential)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp VerifyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestIntegration_RepeatedLogins(t *testing.T) {
	f := newIntegrationFixture(t)

	credential := f.register(t, "alice@example.com")

	for i := 0; i < 3; i++ {
		rec := f.login(t, "alice@example.com", &credential)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
}

func TestIntegration_DuplicateRegisterVerify(t *testing.T) {
	f := newIntegrationFixture(t)

	credential := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	rec := f.post(t, "/register/options", OptionsRequest{Username: "alice@example.com"})
	require.Equal(t, http.StatusOK, rec.Code)

	options, err := virtualwebauthn.ParseAttestationOptions(publicKeyJSON(t, rec))
	require.NoError(t, err)

	attestation := virtualwebauthn.CreateAttestationResponse(f.rp, f.authenticator, credential, *options)
	verifyReq := VerifyRequest{
		Username:   "alice@example.com",
		Credential: json.RawMessage(attestation),
	}

	rec = f.post(t, "/register/verify", verifyReq)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Replaying the same submission finds the challenge already consumed
	rec = f.post(t, "/register/verify", verifyReq)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, ErrorCodeChallengeNotFound, errorCode(t, rec))
}

func TestIntegration_SupersededChallenge(t *testing.T) {
	f := newIntegrationFixture(t)

	credential := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	first := f.post(t, "/register/options", OptionsRequest{Username: "alice@example.com"})
	require.Equal(t, http.StatusOK, first.Code)

	// A second options request supersedes the first challenge
	second := f.post(t, "/register/options", OptionsRequest{Username: "alice@example.com"})
	require.Equal(t, http.StatusOK, second.Code)

	staleOptions, err := virtualwebauthn.ParseAttestationOptions(publicKeyJSON(t, first))
	require.NoError(t, err)

	attestation := virtualwebauthn.CreateAttestationResponse(f.rp, f.authenticator, credential, *staleOptions)

	rec := f.post(t, "/register/verify", VerifyRequest{
		Username:   "alice@example.com",
		Credential: json.RawMessage(attestation),
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, ErrorCodeVerificationFailed, errorCode(t, rec))
}

func TestIntegration_SecondDevice(t *testing.T) {
	f := newIntegrationFixture(t)

	firstDevice := f.register(t, "alice@example.com")
	secondDevice := f.register(t, "alice@example.com")

	creds, err := f.service.Credentials(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.Len(t, creds, 2)

	rec := f.login(t, "alice@example.com", &firstDevice)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.login(t, "alice@example.com", &secondDevice)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestIntegration_LoginUnknownUser(t *testing.T) {
	f := newIntegrationFixture(t)

	rec := f.post(t, "/login/options", OptionsRequest{Username: "nobody@example.com"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, ErrorCodeUserNotFound, errorCode(t, rec))
}

func TestIntegration_LoginWithoutCredentials(t *testing.T) {
	f := newIntegrationFixture(t)

	// Requesting registration options creates the identity without any
	// credential being enrolled
	rec := f.post(t, "/register/options", OptionsRequest{Username: "alice@example.com"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.post(t, "/login/options", OptionsRequest{Username: "alice@example.com"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, ErrorCodeNoCredentials, errorCode(t, rec))
}

func TestIntegration_UserHandleIsStable(t *testing.T) {
	f := newIntegrationFixture(t)

	f.register(t, "alice@example.com")

	creds, err := f.service.Credentials(context.Background(), "alice@example.com")
	require.NoError(t, err)
	require.Len(t, creds, 1)
	handle := creds[0].Owner

	f.register(t, "alice@example.com")

	creds, err = f.service.Credentials(context.Background(), "alice@example.com")
	require.NoError(t, err)
	require.Len(t, creds, 2)
	for _, cred := range creds {
		assert.Equal(t, handle, cred.Owner)
	}
}
