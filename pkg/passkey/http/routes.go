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
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountChi mounts passkey ceremony routes on a chi router.
//
// Example:
//
//	handler := passkeyhttp.NewHandler(svc)
//	r.Route("/api/webauthn", func(r chi.Router) {
//	    passkeyhttp.MountChi(r, handler)
//	})
func MountChi(r chi.Router, h *Handler) {
	r.Post("/register/options", h.RegisterOptions)
	r.Post("/register/verify", h.RegisterVerify)
	r.Post("/login/options", h.LoginOptions)
	r.Post("/login/verify", h.LoginVerify)
}

// MountStdlib mounts passkey ceremony routes on a stdlib http.ServeMux.
// The prefix should not include a trailing slash.
//
// Example:
//
//	handler := passkeyhttp.NewHandler(svc)
//	passkeyhttp.MountStdlib(mux, "/api/webauthn", handler)
func MountStdlib(mux *http.ServeMux, prefix string, h *Handler) {
	mux.HandleFunc("POST "+prefix+"/register/options", h.RegisterOptions)
	mux.HandleFunc("POST "+prefix+"/register/verify", h.RegisterVerify)
	mux.HandleFunc("POST "+prefix+"/login/options", h.LoginOptions)
	mux.HandleFunc("POST "+prefix+"/login/verify", h.LoginVerify)
}
