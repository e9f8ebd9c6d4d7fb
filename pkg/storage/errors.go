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

import "errors"

var (
	// ErrNotFound is returned when a key does not exist in the backend.
	ErrNotFound = errors.New("storage: key not found")

	// ErrInvalidKey is returned when a key is empty or escapes the
	// backend's namespace.
	ErrInvalidKey = errors.New("storage: invalid key")

	// ErrClosed is returned when the backend has been closed.
	ErrClosed = errors.New("storage: backend closed")
)
