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

// Package http provides HTTP handlers for the passkey ceremonies.
//
// Four POST endpoints drive the two ceremonies, each keyed by username:
//
//	/register/options  issue registration options
//	/register/verify   submit the attestation response
//	/login/options     issue authentication options
//	/login/verify      submit the assertion response
//
// Options are returned in the browser-consumable WebAuthn JSON shape,
// wrapped in a {"publicKey": ...} envelope so the payload can be passed to
// navigator.credentials.create/get after base64url field decoding. Verify
// endpoints accept {"username": ..., "credential": <PublicKeyCredential>}.
//
// The handlers can be mounted on a chi router via MountChi or on a stdlib
// mux via MountStdlib.
package http
