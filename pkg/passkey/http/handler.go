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
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-webauthn/webauthn/protocol"

	"github.com/jeremyhahn/go-passkey/pkg/passkey"
	"github.com/jeremyhahn/go-passkey/pkg/passkey/metrics"
)

// Handler provides HTTP handlers for passkey ceremony operations.
// These handlers can be mounted on any HTTP router.
type Handler struct {
	service *passkey.Service
	logger  *slog.Logger
}

// NewHandler creates a new passkey HTTP handler.
func NewHandler(service *passkey.Service) *Handler {
	return &Handler{
		service: service,
		logger:  slog.Default(),
	}
}

// WithLogger sets a custom logger for the handler.
func (h *Handler) WithLogger(logger *slog.Logger) *Handler {
	h.logger = logger
	return h
}

// RegisterOptions handles POST /register/options
//
// Request body:
//
//	{"username": "alice"}
//
// Response: {"publicKey": <PublicKeyCredentialCreationOptions>}
func (h *Handler) RegisterOptions(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	username, ok := h.decodeOptionsRequest(w, r)
	if !ok {
		metrics.RecordCeremony(passkey.CeremonyRegistration, metrics.StepBegin, start, passkey.ErrInvalidRequest)
		return
	}

	options, err := h.service.BeginRegistration(r.Context(), username)
	metrics.RecordCeremony(passkey.CeremonyRegistration, metrics.StepBegin, start, err)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, OptionsResponse{
		PublicKey: h.creationOptions(options),
	})
}

// RegisterVerify handles POST /register/verify
//
// Request body:
//
//	{"username": "alice", "credential": <attestation PublicKeyCredential>}
//
// Response: {"status": "ok"}
func (h *Handler) RegisterVerify(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	req, ok := h.decodeVerifyRequest(w, r)
	if !ok {
		metrics.RecordCeremony(passkey.CeremonyRegistration, metrics.StepFinish, start, passkey.ErrInvalidRequest)
		return
	}

	response, err := protocol.ParseCredentialCreationResponseBody(bytes.NewReader(req.Credential))
	if err != nil {
		metrics.RecordCeremony(passkey.CeremonyRegistration, metrics.StepFinish, start, passkey.ErrInvalidRequest)
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid attestation response")
		return
	}

	cred, err := h.service.FinishRegistration(r.Context(), req.Username, response)
	metrics.RecordCeremony(passkey.CeremonyRegistration, metrics.StepFinish, start, err)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	metrics.CredentialsEnrolled.Inc()
	h.logger.Info("credential enrolled",
		"username", req.Username,
		"credential_id", base64.RawURLEncoding.EncodeToString(cred.ID))

	h.writeJSON(w, http.StatusOK, VerifyResponse{Status: "ok"})
}

// LoginOptions handles POST /login/options
//
// Request body:
//
//	{"username": "alice"}
//
// Response: {"publicKey": <PublicKeyCredentialRequestOptions>}
func (h *Handler) LoginOptions(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	username, ok := h.decodeOptionsRequest(w, r)
	if !ok {
		metrics.RecordCeremony(passkey.CeremonyAuthentication, metrics.StepBegin, start, passkey.ErrInvalidRequest)
		return
	}

	options, err := h.service.BeginAuthentication(r.Context(), username)
	metrics.RecordCeremony(passkey.CeremonyAuthentication, metrics.StepBegin, start, err)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, OptionsResponse{
		PublicKey: h.requestOptions(options),
	})
}

// LoginVerify handles POST /login/verify
//
// Request body:
//
//	{"username": "alice", "credential": <assertion PublicKeyCredential>}
//
// Response: {"status": "ok", "token": "..."} (token only when configured)
func (h *Handler) LoginVerify(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	req, ok := h.decodeVerifyRequest(w, r)
	if !ok {
		metrics.RecordCeremony(passkey.CeremonyAuthentication, metrics.StepFinish, start, passkey.ErrInvalidRequest)
		return
	}

	response, err := protocol.ParseCredentialRequestResponseBody(bytes.NewReader(req.Credential))
	if err != nil {
		metrics.RecordCeremony(passkey.CeremonyAuthentication, metrics.StepFinish, start, passkey.ErrInvalidRequest)
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid assertion response")
		return
	}

	result, err := h.service.FinishAuthentication(r.Context(), req.Username, response)
	metrics.RecordCeremony(passkey.CeremonyAuthentication, metrics.StepFinish, start, err)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.logger.Info("authentication succeeded",
		"username", req.Username,
		"sign_count", result.Credential.SignCount)

	h.writeJSON(w, http.StatusOK, VerifyResponse{
		Status: "ok",
		Token:  result.Token,
	})
}

func (h *Handler) decodeOptionsRequest(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req OptionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid request body")
		return "", false
	}
	if req.Username == "" {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "username is required")
		return "", false
	}
	return req.Username, true
}

func (h *Handler) decodeVerifyRequest(w http.ResponseWriter, r *http.Request) (*VerifyRequest, bool) {
	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid request body")
		return nil, false
	}
	if req.Username == "" || len(req.Credential) == 0 {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "username and credential are required")
		return nil, false
	}
	return &req, true
}

func (h *Handler) creationOptions(options *passkey.RegistrationOptions) creationOptions {
	cfg := h.service.Config()
	return creationOptions{
		RP: rpEntity{
			Name: cfg.RPDisplayName,
			ID:   cfg.RPID,
		},
		User: userEntity{
			ID:          base64.RawURLEncoding.EncodeToString(options.User.Handle),
			Name:        options.User.Username,
			DisplayName: options.User.Username,
		},
		Challenge:          base64.RawURLEncoding.EncodeToString(options.Challenge),
		PubKeyCredParams:   defaultCredentialParameters,
		Timeout:            cfg.Timeout.Milliseconds(),
		ExcludeCredentials: wireDescriptors(options.ExcludeCredentials),
		AuthenticatorSelection: authenticatorSelection{
			ResidentKey:      cfg.ResidentKey,
			UserVerification: cfg.UserVerification,
		},
		Attestation: cfg.AttestationPreference,
	}
}

func (h *Handler) requestOptions(options *passkey.AuthenticationOptions) requestOptions {
	cfg := h.service.Config()
	return requestOptions{
		Challenge:        base64.RawURLEncoding.EncodeToString(options.Challenge),
		Timeout:          cfg.Timeout.Milliseconds(),
		RPID:             cfg.RPID,
		AllowCredentials: wireDescriptors(options.AllowCredentials),
		UserVerification: cfg.UserVerification,
	}
}

func wireDescriptors(descriptors []passkey.CredentialDescriptor) []credentialDescriptor {
	if len(descriptors) == 0 {
		return nil
	}
	out := make([]credentialDescriptor, len(descriptors))
	for i, d := range descriptors {
		out[i] = credentialDescriptor{
			Type:       "public-key",
			ID:         base64.RawURLEncoding.EncodeToString(d.ID),
			Transports: d.Transports.Strings(),
		}
	}
	return out
}

// handleServiceError maps service errors to HTTP responses. User and
// credential lookups surface as 404 so a client can distinguish "enroll
// first" from a failed ceremony; deployments worried about username
// enumeration should front these endpoints with uniform responses.
func (h *Handler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, passkey.ErrInvalidRequest):
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid request")
	case passkey.IsUserNotFound(err):
		h.writeError(w, http.StatusNotFound, ErrorCodeUserNotFound, "user not found")
	case passkey.IsNoCredentials(err):
		h.writeError(w, http.StatusNotFound, ErrorCodeNoCredentials, "no registered credentials")
	case passkey.IsChallengeNotFound(err):
		h.writeError(w, http.StatusBadRequest, ErrorCodeChallengeNotFound, "challenge not found")
	case passkey.IsCredentialNotFound(err):
		h.writeError(w, http.StatusNotFound, ErrorCodeCredentialNotFound, "credential not found")
	case passkey.IsCredentialConflict(err):
		h.writeError(w, http.StatusConflict, ErrorCodeCredentialConflict, "credential already registered")
	case passkey.IsReplayDetected(err):
		h.writeError(w, http.StatusUnauthorized, ErrorCodeReplayDetected, "replay detected")
	case passkey.IsVerificationFailed(err):
		h.writeError(w, http.StatusUnauthorized, ErrorCodeVerificationFailed, "verification failed")
	default:
		h.logger.Error("ceremony failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, ErrorCodeInternalError, "internal server error")
	}
}

// writeJSON writes a JSON response.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Response headers already written, can only log the error
		h.logger.Error("failed to encode JSON response",
			"error", err,
			"status", status)
	}
}

// writeError writes an error response.
func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string) {
	h.writeJSON(w, status, ErrorResponse{
		Error:   code,
		Message: message,
	})
}
