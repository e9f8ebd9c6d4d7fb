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

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-passkey/pkg/passkey"
	"github.com/jeremyhahn/go-passkey/pkg/storage"
	"github.com/jeremyhahn/go-passkey/pkg/storage/file"
)

func TestUserStore_ResolveOrCreate(t *testing.T) {
	ctx := context.Background()
	users := NewUserStore(storage.NewMemory())

	user, err := users.ResolveOrCreate(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.Len(t, user.Handle, passkey.UserHandleSize)

	// The handle is generated once and never changes
	again, err := users.ResolveOrCreate(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, user.Handle, again.Handle)

	resolved, err := users.Resolve(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, user.Handle, resolved.Handle)
}

func TestUserStore_ResolveUnknown(t *testing.T) {
	users := NewUserStore(storage.NewMemory())

	_, err := users.Resolve(context.Background(), "nobody")
	assert.ErrorIs(t, err, passkey.ErrUserNotFound)
}

func TestChallengeStore_PutTakeDelete(t *testing.T) {
	ctx := context.Background()
	challenges := NewChallengeStore(storage.NewMemory(), time.Minute)

	owner := []byte("owner-handle-0000")
	value, err := passkey.NewChallenge()
	require.NoError(t, err)

	require.NoError(t, challenges.Put(ctx, &passkey.Challenge{
		Owner:     owner,
		Ceremony:  passkey.CeremonyRegistration,
		Value:     value,
		CreatedAt: time.Now().UTC(),
	}))

	challenge, err := challenges.Take(ctx, owner, passkey.CeremonyRegistration)
	require.NoError(t, err)
	assert.Equal(t, value, challenge.Value)

	deleted, err := challenges.Delete(ctx, owner, passkey.CeremonyRegistration)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = challenges.Delete(ctx, owner, passkey.CeremonyRegistration)
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = challenges.Take(ctx, owner, passkey.CeremonyRegistration)
	assert.ErrorIs(t, err, passkey.ErrChallengeNotFound)
}

func TestChallengeStore_Supersession(t *testing.T) {
	ctx := context.Background()
	challenges := NewChallengeStore(storage.NewMemory(), time.Minute)

	owner := []byte("owner-handle-0000")

	require.NoError(t, challenges.Put(ctx, &passkey.Challenge{
		Owner: owner, Ceremony: passkey.CeremonyAuthentication,
		Value: []byte("first"), CreatedAt: time.Now().UTC(),
	}))
	require.NoError(t, challenges.Put(ctx, &passkey.Challenge{
		Owner: owner, Ceremony: passkey.CeremonyAuthentication,
		Value: []byte("second"), CreatedAt: time.Now().UTC(),
	}))

	challenge, err := challenges.Take(ctx, owner, passkey.CeremonyAuthentication)
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), challenge.Value)
}

func TestChallengeStore_Expiry(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemory()
	challenges := NewChallengeStore(backend, 50*time.Millisecond)

	owner := []byte("owner-handle-0000")
	require.NoError(t, challenges.Put(ctx, &passkey.Challenge{
		Owner: owner, Ceremony: passkey.CeremonyRegistration,
		Value: []byte("stale"), CreatedAt: time.Now().UTC().Add(-time.Second),
	}))

	_, err := challenges.Take(ctx, owner, passkey.CeremonyRegistration)
	assert.ErrorIs(t, err, passkey.ErrChallengeNotFound)

	// The expired record was reaped from the backend
	keys, err := backend.List("challenges/")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestChallengeStore_Cleanup(t *testing.T) {
	ctx := context.Background()
	challenges := NewChallengeStore(storage.NewMemory(), 50*time.Millisecond)

	require.NoError(t, challenges.Put(ctx, &passkey.Challenge{
		Owner: []byte("a"), Ceremony: passkey.CeremonyRegistration,
		Value: []byte("stale"), CreatedAt: time.Now().UTC().Add(-time.Second),
	}))
	require.NoError(t, challenges.Put(ctx, &passkey.Challenge{
		Owner: []byte("b"), Ceremony: passkey.CeremonyRegistration,
		Value: []byte("fresh"), CreatedAt: time.Now().UTC(),
	}))

	removed, err := challenges.Cleanup()
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = challenges.Take(ctx, []byte("b"), passkey.CeremonyRegistration)
	assert.NoError(t, err)
}

func TestCredentialStore_EnrollAndList(t *testing.T) {
	ctx := context.Background()
	creds := NewCredentialStore(storage.NewMemory())

	alice := []byte("alice-handle-0000")
	bob := []byte("bob-handle-000000")

	for _, cred := range []*passkey.Credential{
		{ID: []byte("a1"), Owner: alice, PublicKey: []byte("k1")},
		{ID: []byte("a2"), Owner: alice, PublicKey: []byte("k2")},
		{ID: []byte("b1"), Owner: bob, PublicKey: []byte("k3")},
	} {
		_, err := creds.Enroll(ctx, cred)
		require.NoError(t, err)
	}

	list, err := creds.ListByOwner(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	found, err := creds.FindByID(ctx, []byte("b1"))
	require.NoError(t, err)
	assert.Equal(t, bob, found.Owner)

	list, err = creds.ListByOwner(ctx, []byte("nobody"))
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCredentialStore_CrossOwnerConflict(t *testing.T) {
	ctx := context.Background()
	creds := NewCredentialStore(storage.NewMemory())

	_, err := creds.Enroll(ctx, &passkey.Credential{
		ID: []byte("cred-1"), Owner: []byte("alice"), PublicKey: []byte("k1"),
	})
	require.NoError(t, err)

	_, err = creds.Enroll(ctx, &passkey.Credential{
		ID: []byte("cred-1"), Owner: []byte("bob"), PublicKey: []byte("k2"),
	})
	assert.ErrorIs(t, err, passkey.ErrCredentialConflict)

	found, err := creds.FindByID(ctx, []byte("cred-1"))
	require.NoError(t, err)
	assert.Equal(t, []byte("alice"), found.Owner)
	assert.Equal(t, []byte("k1"), found.PublicKey)
}

func TestCredentialStore_UpdateSignCount(t *testing.T) {
	ctx := context.Background()
	creds := NewCredentialStore(storage.NewMemory())

	_, err := creds.Enroll(ctx, &passkey.Credential{
		ID: []byte("cred-1"), Owner: []byte("alice"), SignCount: 5,
	})
	require.NoError(t, err)

	require.NoError(t, creds.UpdateSignCount(ctx, []byte("cred-1"), 6))

	assert.ErrorIs(t, creds.UpdateSignCount(ctx, []byte("cred-1"), 6), passkey.ErrStaleCounter)
	assert.ErrorIs(t, creds.UpdateSignCount(ctx, []byte("cred-1"), 2), passkey.ErrStaleCounter)

	found, err := creds.FindByID(ctx, []byte("cred-1"))
	require.NoError(t, err)
	assert.Equal(t, uint32(6), found.SignCount)
	assert.False(t, found.LastUsedAt.IsZero())

	assert.ErrorIs(t, creds.UpdateSignCount(ctx, []byte("missing"), 1), passkey.ErrCredentialNotFound)
}

func TestStores_PersistAcrossReopen(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	backend, err := file.New(root)
	require.NoError(t, err)

	users := NewUserStore(backend)
	creds := NewCredentialStore(backend)

	user, err := users.ResolveOrCreate(ctx, "alice")
	require.NoError(t, err)
	_, err = creds.Enroll(ctx, &passkey.Credential{
		ID: []byte("cred-1"), Owner: user.Handle, PublicKey: []byte("k1"),
		Transports: passkey.Transports{passkey.TransportUSB},
	})
	require.NoError(t, err)
	require.NoError(t, backend.Close())

	// A fresh backend over the same directory sees the same records
	reopened, err := file.New(root)
	require.NoError(t, err)

	resolved, err := NewUserStore(reopened).Resolve(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, user.Handle, resolved.Handle)

	list, err := NewCredentialStore(reopened).ListByOwner(ctx, user.Handle)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, []byte("cred-1"), list[0].ID)
	assert.True(t, list[0].Transports.Contains(passkey.TransportUSB))
}
