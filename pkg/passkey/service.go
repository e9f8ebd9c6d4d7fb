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
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
)

// Service orchestrates passkey registration and authentication ceremonies.
type Service struct {
	config     *Config
	verifier   Verifier
	users      UserStore
	challenges ChallengeStore
	creds      CredentialStore
	tokens     TokenIssuer // optional
	configured bool
}

// ServiceParams contains dependencies for creating a passkey service.
type ServiceParams struct {
	// Config is the relying-party configuration (required).
	Config *Config

	// UserStore resolves usernames to user handles (required).
	UserStore UserStore

	// ChallengeStore is the pending-challenge persistence layer (required).
	ChallengeStore ChallengeStore

	// CredentialStore is the credential registry (required).
	CredentialStore CredentialStore

	// Verifier performs cryptographic response validation (required).
	Verifier Verifier

	// TokenIssuer is an optional post-authentication token hook.
	// If nil, AuthenticationResult.Token is left empty.
	TokenIssuer TokenIssuer
}

// NewService creates a new passkey service with the provided dependencies.
func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if params.UserStore == nil {
		return nil, fmt.Errorf("user store is required")
	}
	if params.ChallengeStore == nil {
		return nil, fmt.Errorf("challenge store is required")
	}
	if params.CredentialStore == nil {
		return nil, fmt.Errorf("credential store is required")
	}
	if params.Verifier == nil {
		return nil, fmt.Errorf("verifier is required")
	}

	params.Config.SetDefaults()
	if err := params.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		config:     params.Config,
		verifier:   params.Verifier,
		users:      params.UserStore,
		challenges: params.ChallengeStore,
		creds:      params.CredentialStore,
		tokens:     params.TokenIssuer,
		configured: true,
	}, nil
}

// BeginRegistration starts the registration ceremony for a username,
// creating the user identity on first sight. It issues a fresh challenge,
// superseding any pending registration challenge for the same user, and
// returns the parameters the caller hands to an authenticator.
func (s *Service) BeginRegistration(ctx context.Context, username string) (*RegistrationOptions, error) {
	if !s.configured {
		return nil, ErrNotConfigured
	}
	if username == "" {
		return nil, WrapError("begin registration", ErrInvalidRequest)
	}

	user, err := s.users.ResolveOrCreate(ctx, username)
	if err != nil {
		return nil, WrapError("resolve user", err)
	}

	// Existing credentials populate the exclude list so the same
	// authenticator is not enrolled twice.
	existing, err := s.creds.ListByOwner(ctx, user.Handle)
	if err != nil {
		return nil, WrapError("list credentials", err)
	}

	value, err := NewChallenge()
	if err != nil {
		return nil, WrapError("generate challenge", err)
	}

	challenge := &Challenge{
		Owner:     user.Handle,
		Ceremony:  CeremonyRegistration,
		Value:     value,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.challenges.Put(ctx, challenge); err != nil {
		return nil, WrapError("store challenge", err)
	}

	return &RegistrationOptions{
		User:               user,
		Challenge:          value,
		ExcludeCredentials: descriptorsFor(existing),
	}, nil
}

// FinishRegistration completes the registration ceremony: it loads the
// pending challenge, verifies the attestation response against it, consumes
// the challenge, and enrolls the new credential. A duplicate submission
// finds the challenge already consumed and fails with ErrChallengeNotFound.
func (s *Service) FinishRegistration(ctx context.Context, username string, response *protocol.ParsedCredentialCreationData) (*Credential, error) {
	if !s.configured {
		return nil, ErrNotConfigured
	}
	if username == "" || response == nil {
		return nil, WrapError("finish registration", ErrInvalidRequest)
	}

	user, err := s.users.Resolve(ctx, username)
	if err != nil {
		return nil, WrapError("resolve user", err)
	}

	challenge, err := s.challenges.Take(ctx, user.Handle, CeremonyRegistration)
	if err != nil {
		return nil, WrapError("load challenge", err)
	}

	result, err := s.verifier.VerifyRegistration(ctx, response, s.expected(challenge, user))
	if err != nil {
		return nil, WrapError("verify registration", err)
	}

	// Consume the challenge before mutating the registry. The delete is
	// checked so concurrent duplicate submissions complete at most once;
	// the loser observes the challenge as already consumed.
	deleted, err := s.challenges.Delete(ctx, user.Handle, CeremonyRegistration)
	if err != nil {
		return nil, WrapError("consume challenge", err)
	}
	if !deleted {
		return nil, WrapError("consume challenge", ErrChallengeNotFound)
	}

	cred := &Credential{
		ID:         result.CredentialID,
		Owner:      user.Handle,
		PublicKey:  result.PublicKey,
		SignCount:  result.SignCount,
		Transports: result.Transports,
		Flags:      result.Flags,
		AAGUID:     result.AAGUID,
		CreatedAt:  time.Now().UTC(),
	}

	enrolled, err := s.creds.Enroll(ctx, cred)
	if err != nil {
		return nil, WrapError("enroll credential", err)
	}

	return enrolled, nil
}

// BeginAuthentication starts the authentication ceremony for a username.
// It fails with ErrUserNotFound for unknown users and ErrNoCredentials for
// users without enrolled credentials; no challenge is issued in either case.
func (s *Service) BeginAuthentication(ctx context.Context, username string) (*AuthenticationOptions, error) {
	if !s.configured {
		return nil, ErrNotConfigured
	}
	if username == "" {
		return nil, WrapError("begin authentication", ErrInvalidRequest)
	}

	user, err := s.users.Resolve(ctx, username)
	if err != nil {
		return nil, WrapError("resolve user", err)
	}

	creds, err := s.creds.ListByOwner(ctx, user.Handle)
	if err != nil {
		return nil, WrapError("list credentials", err)
	}
	if len(creds) == 0 {
		return nil, WrapError("begin authentication", ErrNoCredentials)
	}

	value, err := NewChallenge()
	if err != nil {
		return nil, WrapError("generate challenge", err)
	}

	challenge := &Challenge{
		Owner:     user.Handle,
		Ceremony:  CeremonyAuthentication,
		Value:     value,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.challenges.Put(ctx, challenge); err != nil {
		return nil, WrapError("store challenge", err)
	}

	return &AuthenticationOptions{
		User:             user,
		Challenge:        value,
		AllowCredentials: descriptorsFor(creds),
	}, nil
}

// FinishAuthentication completes the authentication ceremony. The
// responding credential is looked up scoped to the named user, the
// assertion is verified, and the signature counter is advanced with a
// compare-and-swap; a non-increasing counter surfaces as ErrReplayDetected
// and leaves both the stored counter and the pending challenge untouched.
// The challenge is consumed only after the counter update succeeds.
func (s *Service) FinishAuthentication(ctx context.Context, username string, response *protocol.ParsedCredentialAssertionData) (*AuthenticationResult, error) {
	if !s.configured {
		return nil, ErrNotConfigured
	}
	if username == "" || response == nil {
		return nil, WrapError("finish authentication", ErrInvalidRequest)
	}

	user, err := s.users.Resolve(ctx, username)
	if err != nil {
		return nil, WrapError("resolve user", err)
	}

	challenge, err := s.challenges.Take(ctx, user.Handle, CeremonyAuthentication)
	if err != nil {
		return nil, WrapError("load challenge", err)
	}

	if len(response.RawID) == 0 {
		return nil, WrapError("finish authentication", ErrInvalidRequest)
	}

	cred, err := s.creds.FindByID(ctx, response.RawID)
	if err != nil {
		return nil, WrapError("find credential", err)
	}
	// A credential enrolled to a different user is reported exactly like an
	// unknown one so the response never confirms the ID exists elsewhere.
	if !bytes.Equal(cred.Owner, user.Handle) {
		return nil, WrapError("find credential", ErrCredentialNotFound)
	}

	result, err := s.verifier.VerifyAuthentication(ctx, response, s.expected(challenge, user), cred)
	if err != nil {
		return nil, WrapError("verify authentication", err)
	}

	if err := s.creds.UpdateSignCount(ctx, cred.ID, result.NewSignCount); err != nil {
		if IsStaleCounter(err) {
			return nil, WrapError("update sign count", ErrReplayDetected)
		}
		return nil, WrapError("update sign count", err)
	}

	deleted, err := s.challenges.Delete(ctx, user.Handle, CeremonyAuthentication)
	if err != nil {
		return nil, WrapError("consume challenge", err)
	}
	if !deleted {
		return nil, WrapError("consume challenge", ErrChallengeNotFound)
	}

	cred.SignCount = result.NewSignCount
	cred.LastUsedAt = time.Now().UTC()

	var token string
	if s.tokens != nil {
		token, err = s.tokens.IssueToken(ctx, user)
		if err != nil {
			return nil, WrapError("issue token", err)
		}
	}

	return &AuthenticationResult{
		User:       user,
		Credential: cred,
		Token:      token,
	}, nil
}

// Credentials retrieves the enrolled credentials for a username.
func (s *Service) Credentials(ctx context.Context, username string) ([]*Credential, error) {
	if !s.configured {
		return nil, ErrNotConfigured
	}

	user, err := s.users.Resolve(ctx, username)
	if err != nil {
		return nil, WrapError("resolve user", err)
	}
	return s.creds.ListByOwner(ctx, user.Handle)
}

// Config returns the service configuration.
func (s *Service) Config() *Config {
	return s.config
}

func (s *Service) expected(challenge *Challenge, user *User) Expected {
	return Expected{
		Challenge:               challenge.Value,
		Origin:                  s.config.Origin(),
		RPID:                    s.config.RPID,
		UserHandle:              user.Handle,
		Username:                user.Username,
		RequireUserVerification: s.config.RequiresUserVerification(),
	}
}
