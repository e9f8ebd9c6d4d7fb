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
	"encoding/hex"
	"sync"
	"time"
)

// MemoryUserStore is an in-memory implementation of UserStore.
// This is intended for development and testing only.
type MemoryUserStore struct {
	mu         sync.RWMutex
	byUsername map[string]*User
}

// NewMemoryUserStore creates a new in-memory user store.
func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{
		byUsername: make(map[string]*User),
	}
}

// Resolve retrieves the user for a username.
func (s *MemoryUserStore) Resolve(ctx context.Context, username string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.byUsername[username]
	if !ok {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// ResolveOrCreate retrieves the user for a username, generating a fresh
// user handle on first sight. The handle never changes afterwards.
func (s *MemoryUserStore) ResolveOrCreate(ctx context.Context, username string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user, ok := s.byUsername[username]; ok {
		return user, nil
	}

	handle, err := NewUserHandle()
	if err != nil {
		return nil, err
	}

	user := &User{
		Handle:    handle,
		Username:  username,
		CreatedAt: time.Now().UTC(),
	}
	s.byUsername[username] = user

	return user, nil
}

// Count returns the number of users in the store.
func (s *MemoryUserStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byUsername)
}

// Clear removes all users from the store.
func (s *MemoryUserStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byUsername = make(map[string]*User)
}

// MemoryChallengeStore is an in-memory implementation of ChallengeStore.
// This is intended for development and testing only.
type MemoryChallengeStore struct {
	mu         sync.Mutex
	challenges map[string]*Challenge
	ttl        time.Duration
}

// NewMemoryChallengeStore creates a new in-memory challenge store with the
// default 3 minute TTL.
func NewMemoryChallengeStore() *MemoryChallengeStore {
	return NewMemoryChallengeStoreWithTTL(3 * time.Minute)
}

// NewMemoryChallengeStoreWithTTL creates a new in-memory challenge store
// with a custom TTL. A non-positive TTL disables expiry.
func NewMemoryChallengeStoreWithTTL(ttl time.Duration) *MemoryChallengeStore {
	return &MemoryChallengeStore{
		challenges: make(map[string]*Challenge),
		ttl:        ttl,
	}
}

func challengeKey(owner []byte, ceremony Ceremony) string {
	return hex.EncodeToString(owner) + "/" + string(ceremony)
}

// Put stores a challenge, superseding any existing one for the same
// (owner, ceremony) pair. The map write is performed under the store lock
// so concurrent issuers leave exactly one survivor.
func (s *MemoryChallengeStore) Put(ctx context.Context, challenge *Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.challenges[challengeKey(challenge.Owner, challenge.Ceremony)] = challenge
	return nil
}

// Take returns the pending challenge for the pair without deleting it.
// Expired challenges are reaped and reported as ErrChallengeNotFound.
func (s *MemoryChallengeStore) Take(ctx context.Context, owner []byte, ceremony Ceremony) (*Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := challengeKey(owner, ceremony)
	challenge, ok := s.challenges[key]
	if !ok {
		return nil, ErrChallengeNotFound
	}

	if challenge.Expired(time.Now().UTC(), s.ttl) {
		delete(s.challenges, key)
		return nil, ErrChallengeNotFound
	}

	return challenge, nil
}

// Delete removes the pending challenge for the pair, reporting whether one
// existed.
func (s *MemoryChallengeStore) Delete(ctx context.Context, owner []byte, ceremony Ceremony) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := challengeKey(owner, ceremony)
	if _, ok := s.challenges[key]; !ok {
		return false, nil
	}
	delete(s.challenges, key)
	return true, nil
}

// Count returns the number of pending challenges in the store.
func (s *MemoryChallengeStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.challenges)
}

// Cleanup removes expired challenges and returns how many were removed.
func (s *MemoryChallengeStore) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	removed := 0
	for key, challenge := range s.challenges {
		if challenge.Expired(now, s.ttl) {
			delete(s.challenges, key)
			removed++
		}
	}
	return removed
}

// MemoryCredentialStore is an in-memory implementation of CredentialStore.
// This is intended for development and testing only.
type MemoryCredentialStore struct {
	mu       sync.RWMutex
	byID     map[string]*Credential
	byOwner  map[string][]string
	idToOwnr map[string]string
}

// NewMemoryCredentialStore creates a new in-memory credential store.
func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{
		byID:     make(map[string]*Credential),
		byOwner:  make(map[string][]string),
		idToOwnr: make(map[string]string),
	}
}

// Enroll stores a credential. A credential ID already held by a different
// owner is a conflict; the same owner re-enrolling updates the public key
// and transports in place.
func (s *MemoryCredentialStore) Enroll(ctx context.Context, cred *Credential) (*Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	credKey := hex.EncodeToString(cred.ID)
	ownerKey := hex.EncodeToString(cred.Owner)

	if existing, ok := s.byID[credKey]; ok {
		if s.idToOwnr[credKey] != ownerKey {
			return nil, ErrCredentialConflict
		}
		// Idempotent re-registration of a device already registered.
		existing.PublicKey = cred.PublicKey
		existing.Transports = cred.Transports
		existing.AAGUID = cred.AAGUID
		existing.SignCount = cred.SignCount
		return copyCredential(existing), nil
	}

	stored := copyCredential(cred)
	s.byID[credKey] = stored
	s.byOwner[ownerKey] = append(s.byOwner[ownerKey], credKey)
	s.idToOwnr[credKey] = ownerKey

	return copyCredential(stored), nil
}

// ListByOwner retrieves all credentials for a user handle.
func (s *MemoryCredentialStore) ListByOwner(ctx context.Context, owner []byte) ([]*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := s.byOwner[hex.EncodeToString(owner)]
	creds := make([]*Credential, 0, len(keys))
	for _, key := range keys {
		if cred, ok := s.byID[key]; ok {
			creds = append(creds, copyCredential(cred))
		}
	}
	return creds, nil
}

// FindByID retrieves a credential by its ID.
func (s *MemoryCredentialStore) FindByID(ctx context.Context, credentialID []byte) (*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cred, ok := s.byID[hex.EncodeToString(credentialID)]
	if !ok {
		return nil, ErrCredentialNotFound
	}
	return copyCredential(cred), nil
}

// UpdateSignCount advances the signature counter with a compare-and-swap
// under the store lock. The stored counter only moves forward; zero to zero
// is tolerated for authenticators that never report a counter.
func (s *MemoryCredentialStore) UpdateSignCount(ctx context.Context, credentialID []byte, newCount uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cred, ok := s.byID[hex.EncodeToString(credentialID)]
	if !ok {
		return ErrCredentialNotFound
	}

	if newCount <= cred.SignCount && !(newCount == 0 && cred.SignCount == 0) {
		return ErrStaleCounter
	}

	cred.SignCount = newCount
	cred.LastUsedAt = time.Now().UTC()
	return nil
}

// Count returns the total number of credentials in the store.
func (s *MemoryCredentialStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// Clear removes all credentials from the store.
func (s *MemoryCredentialStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID = make(map[string]*Credential)
	s.byOwner = make(map[string][]string)
	s.idToOwnr = make(map[string]string)
}

func copyCredential(cred *Credential) *Credential {
	dup := *cred
	return &dup
}
