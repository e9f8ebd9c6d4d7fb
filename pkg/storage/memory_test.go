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

package storage

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_PutGet(t *testing.T) {
	m := NewMemory()

	require.NoError(t, m.Put("users/alice", []byte("record")))

	value, err := m.Get("users/alice")
	require.NoError(t, err)
	assert.Equal(t, []byte("record"), value)
}

func TestMemory_GetNotFound(t *testing.T) {
	m := NewMemory()

	_, err := m.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_EmptyKey(t *testing.T) {
	m := NewMemory()

	assert.ErrorIs(t, m.Put("", []byte("x")), ErrInvalidKey)
	_, err := m.Get("")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestMemory_Overwrite(t *testing.T) {
	m := NewMemory()

	require.NoError(t, m.Put("key", []byte("v1")))
	require.NoError(t, m.Put("key", []byte("v2")))

	value, err := m.Get("key")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), value)
}

func TestMemory_Delete(t *testing.T) {
	m := NewMemory()

	require.NoError(t, m.Put("key", []byte("v")))
	require.NoError(t, m.Delete("key"))

	_, err := m.Get("key")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, m.Delete("key"), ErrNotFound)
}

func TestMemory_List(t *testing.T) {
	m := NewMemory()

	require.NoError(t, m.Put("users/alice", []byte("a")))
	require.NoError(t, m.Put("users/bob", []byte("b")))
	require.NoError(t, m.Put("credentials/x", []byte("c")))

	keys, err := m.List("users/")
	require.NoError(t, err)
	assert.Equal(t, []string{"users/alice", "users/bob"}, keys)

	all, err := m.List("")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestMemory_ValuesAreCopied(t *testing.T) {
	m := NewMemory()

	original := []byte("value")
	require.NoError(t, m.Put("key", original))
	original[0] = 'X'

	stored, err := m.Get("key")
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), stored)

	// Mutating the returned slice does not affect the stored copy
	stored[0] = 'Y'
	again, err := m.Get("key")
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), again)
}

func TestMemory_Close(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Put("key", []byte("v")))
	require.NoError(t, m.Close())

	_, err := m.Get("key")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, m.Put("key", nil), ErrClosed)
	assert.ErrorIs(t, m.Delete("key"), ErrClosed)
	_, err = m.List("")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMemory_ConcurrentAccess(t *testing.T) {
	m := NewMemory()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := "key" + string(rune('a'+n))
			_ = m.Put(key, []byte("v"))
			_, _ = m.Get(key)
			_, _ = m.List("")
		}(i)
	}
	wg.Wait()

	keys, err := m.List("")
	require.NoError(t, err)
	assert.Len(t, keys, 20)
}
