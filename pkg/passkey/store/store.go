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

// Package store provides passkey store implementations backed by a
// storage.Backend, so users, credentials, and pending challenges survive
// process restarts when paired with a durable backend such as file storage.
//
// Records are stored as JSON under a flat key namespace:
//
//	users/<username>                    user identity record
//	credentials/<hex credential id>     credential record
//	owners/<hex owner>/<hex id>         owner index entry
//	challenges/<hex owner>/<ceremony>   pending challenge record
//
// Backends serialize individual operations but not compound ones, so each
// store holds its own mutex to keep read-modify-write sequences atomic.
package store

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jeremyhahn/go-passkey/pkg/passkey"
	"github.com/jeremyhahn/go-passkey/pkg/storage"
)

const (
	userPrefix       = "users/"
	credentialPrefix = "credentials/"
	ownerPrefix      = "owners/"
	challengePrefix  = "challenges/"
)

func userKey(username string) string {
	return userPrefix + username
}

func credentialKey(id []byte) string {
	return credentialPrefix + hex.EncodeToString(id)
}

func ownerIndexKey(owner, id []byte) string {
	return ownerPrefix + hex.EncodeToString(owner) + "/" + hex.EncodeToString(id)
}

func challengeKey(owner []byte, ceremony passkey.Ceremony) string {
	return challengePrefix + hex.EncodeToString(owner) + "/" + string(ceremony)
}

// UserStore is a storage-backed implementation of passkey.UserStore.
type UserStore struct {
	mu      sync.Mutex
	backend storage.Backend
}

// NewUserStore creates a user store over the given backend.
func NewUserStore(backend storage.Backend) *UserStore {
	return &UserStore{backend: backend}
}

// Resolve retrieves the user for a username.
func (s *UserStore) Resolve(ctx context.Context, username string) (*passkey.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(username)
}

// ResolveOrCreate retrieves the user for a username, generating a fresh user
// handle on first sight. The handle never changes afterwards.
func (s *UserStore) ResolveOrCreate(ctx context.Context, username string) (*passkey.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, err := s.load(username)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, passkey.ErrUserNotFound) {
		return nil, err
	}

	handle, err := passkey.NewUserHandle()
	if err != nil {
		return nil, err
	}

	user = &passkey.User{
		Handle:    handle,
		Username:  username,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.save(user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *UserStore) load(username string) (*passkey.User, error) {
	data, err := s.backend.Get(userKey(username))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, passkey.ErrUserNotFound
		}
		return nil, fmt.Errorf("user store: %w", err)
	}

	var user passkey.User
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, fmt.Errorf("user store: corrupt record for %q: %w", username, err)
	}
	return &user, nil
}

func (s *UserStore) save(user *passkey.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("user store: %w", err)
	}
	if err := s.backend.Put(userKey(user.Username), data); err != nil {
		return fmt.Errorf("user store: %w", err)
	}
	return nil
}

// ChallengeStore is a storage-backed implementation of
// passkey.ChallengeStore with lazy TTL expiry.
type ChallengeStore struct {
	mu      sync.Mutex
	backend storage.Backend
	ttl     time.Duration
}

// NewChallengeStore creates a challenge store over the given backend. A
// non-positive ttl disables expiry.
func NewChallengeStore(backend storage.Backend, ttl time.Duration) *ChallengeStore {
	return &ChallengeStore{backend: backend, ttl: ttl}
}

// Put stores a challenge, superseding any existing one for the same
// (owner, ceremony) pair. The overwrite happens under the store lock so
// concurrent issuers leave exactly one survivor.
func (s *ChallengeStore) Put(ctx context.Context, challenge *passkey.Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(challenge)
	if err != nil {
		return fmt.Errorf("challenge store: %w", err)
	}
	if err := s.backend.Put(challengeKey(challenge.Owner, challenge.Ceremony), data); err != nil {
		return fmt.Errorf("challenge store: %w", err)
	}
	return nil
}

// Take returns the pending challenge for the pair without deleting it.
// Expired challenges are reaped and reported as ErrChallengeNotFound.
func (s *ChallengeStore) Take(ctx context.Context, owner []byte, ceremony passkey.Ceremony) (*passkey.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := challengeKey(owner, ceremony)
	data, err := s.backend.Get(key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, passkey.ErrChallengeNotFound
		}
		return nil, fmt.Errorf("challenge store: %w", err)
	}

	var challenge passkey.Challenge
	if err := json.Unmarshal(data, &challenge); err != nil {
		return nil, fmt.Errorf("challenge store: corrupt record: %w", err)
	}

	if challenge.Expired(time.Now().UTC(), s.ttl) {
		if err := s.backend.Delete(key); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("challenge store: %w", err)
		}
		return nil, passkey.ErrChallengeNotFound
	}

	return &challenge, nil
}

// Delete removes the pending challenge for the pair, reporting whether one
// existed.
func (s *ChallengeStore) Delete(ctx context.Context, owner []byte, ceremony passkey.Ceremony) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.backend.Delete(challengeKey(owner, ceremony))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("challenge store: %w", err)
	}
	return true, nil
}

// Cleanup removes expired challenges and returns how many were removed.
func (s *ChallengeStore) Cleanup() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys, err := s.backend.List(challengePrefix)
	if err != nil {
		return 0, fmt.Errorf("challenge store: %w", err)
	}

	now := time.Now().UTC()
	removed := 0
	for _, key := range keys {
		data, err := s.backend.Get(key)
		if err != nil {
			continue
		}
		var challenge passkey.Challenge
		if err := json.Unmarshal(data, &challenge); err != nil || challenge.Expired(now, s.ttl) {
			if err := s.backend.Delete(key); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}

// CredentialStore is a storage-backed implementation of
// passkey.CredentialStore. An owner index alongside the credential records
// makes ListByOwner a prefix scan instead of a full walk.
type CredentialStore struct {
	mu      sync.Mutex
	backend storage.Backend
}

// NewCredentialStore creates a credential store over the given backend.
func NewCredentialStore(backend storage.Backend) *CredentialStore {
	return &CredentialStore{backend: backend}
}

// Enroll stores a credential. A credential ID already held by a different
// owner is a conflict; the same owner re-enrolling updates the public key
// and transports in place.
func (s *CredentialStore) Enroll(ctx context.Context, cred *passkey.Credential) (*passkey.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.load(cred.ID)
	if err != nil && !errors.Is(err, passkey.ErrCredentialNotFound) {
		return nil, err
	}

	if existing != nil {
		if !bytes.Equal(existing.Owner, cred.Owner) {
			return nil, passkey.ErrCredentialConflict
		}
		existing.PublicKey = cred.PublicKey
		existing.Transports = cred.Transports
		existing.AAGUID = cred.AAGUID
		existing.SignCount = cred.SignCount
		if err := s.save(existing); err != nil {
			return nil, err
		}
		return existing, nil
	}

	stored := *cred
	if err := s.save(&stored); err != nil {
		return nil, err
	}
	if err := s.backend.Put(ownerIndexKey(cred.Owner, cred.ID), []byte{}); err != nil {
		return nil, fmt.Errorf("credential store: %w", err)
	}
	return &stored, nil
}

// ListByOwner retrieves all credentials for a user handle.
func (s *CredentialStore) ListByOwner(ctx context.Context, owner []byte) ([]*passkey.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefix := ownerPrefix + hex.EncodeToString(owner) + "/"
	keys, err := s.backend.List(prefix)
	if err != nil {
		return nil, fmt.Errorf("credential store: %w", err)
	}

	creds := make([]*passkey.Credential, 0, len(keys))
	for _, key := range keys {
		id, err := hex.DecodeString(key[len(prefix):])
		if err != nil {
			continue
		}
		cred, err := s.load(id)
		if err != nil {
			if errors.Is(err, passkey.ErrCredentialNotFound) {
				continue
			}
			return nil, err
		}
		creds = append(creds, cred)
	}
	return creds, nil
}

// FindByID retrieves a credential by its ID.
func (s *CredentialStore) FindByID(ctx context.Context, credentialID []byte) (*passkey.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(credentialID)
}

// UpdateSignCount advances the signature counter with a compare-and-swap
// under the store lock. The stored counter only moves forward; zero to zero
// is tolerated for authenticators that never report a counter.
func (s *CredentialStore) UpdateSignCount(ctx context.Context, credentialID []byte, newCount uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cred, err := s.load(credentialID)
	if err != nil {
		return err
	}

	if newCount <= cred.SignCount && !(newCount == 0 && cred.SignCount == 0) {
		return passkey.ErrStaleCounter
	}

	cred.SignCount = newCount
	cred.LastUsedAt = time.Now().UTC()
	return s.save(cred)
}

func (s *CredentialStore) load(id []byte) (*passkey.Credential, error) {
	data, err := s.backend.Get(credentialKey(id))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, passkey.ErrCredentialNotFound
		}
		return nil, fmt.Errorf("credential store: %w", err)
	}

	var cred passkey.Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return nil, fmt.Errorf("credential store: corrupt record: %w", err)
	}
	return &cred, nil
}

func (s *CredentialStore) save(cred *passkey.Credential) error {
	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("credential store: %w", err)
	}
	if err := s.backend.Put(credentialKey(cred.ID), data); err != nil {
		return fmt.Errorf("credential store: %w", err)
	}
	return nil
}
