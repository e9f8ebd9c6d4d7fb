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

// Package server wires the passkey service, its stores, and the HTTP
// surface into a runnable relying-party server.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jeremyhahn/go-passkey/internal/config"
	"github.com/jeremyhahn/go-passkey/pkg/passkey"
	passkeyhttp "github.com/jeremyhahn/go-passkey/pkg/passkey/http"
	"github.com/jeremyhahn/go-passkey/pkg/passkey/store"
	"github.com/jeremyhahn/go-passkey/pkg/ratelimit"
	"github.com/jeremyhahn/go-passkey/pkg/storage"
	"github.com/jeremyhahn/go-passkey/pkg/storage/file"
)

// Server is the passkey relying-party HTTP server.
type Server struct {
	cfg     *config.Config
	logger  *slog.Logger
	backend storage.Backend
	limiter *ratelimit.Limiter
	service *passkey.Service
	httpSrv *http.Server
}

// New creates a server from the loaded configuration.
func New(cfg *config.Config) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	logger := newLogger(&cfg.Logging)

	backend, err := newBackend(&cfg.Storage)
	if err != nil {
		return nil, err
	}

	rpConfig := &passkey.Config{
		RPID:                  cfg.RelyingParty.ID,
		RPDisplayName:         cfg.RelyingParty.DisplayName,
		RPOrigins:             cfg.RelyingParty.Origins,
		ChallengeTTL:          cfg.RelyingParty.ChallengeTTL,
		Timeout:               cfg.RelyingParty.CeremonyTimeout,
		UserVerification:      cfg.RelyingParty.UserVerification,
		ResidentKey:           cfg.RelyingParty.ResidentKey,
		AttestationPreference: cfg.RelyingParty.Attestation,
		Debug:                 cfg.RelyingParty.Debug,
	}
	rpConfig.SetDefaults()

	var issuer passkey.TokenIssuer
	if cfg.Auth.Enabled {
		jwtIssuer, err := passkey.NewJWTIssuer(&passkey.JWTIssuerConfig{
			Secret:    []byte(cfg.Auth.Secret),
			Issuer:    cfg.Auth.Issuer,
			Audience:  audienceList(cfg.Auth.Audience),
			ExpiresIn: cfg.Auth.TokenTTL,
		})
		if err != nil {
			return nil, fmt.Errorf("token issuer: %w", err)
		}
		issuer = jwtIssuer
	}

	verifier, err := passkey.NewCeremonyVerifier(rpConfig)
	if err != nil {
		return nil, fmt.Errorf("verifier: %w", err)
	}

	service, err := passkey.NewService(passkey.ServiceParams{
		Config:          rpConfig,
		UserStore:       store.NewUserStore(backend),
		ChallengeStore:  store.NewChallengeStore(backend, rpConfig.ChallengeTTL),
		CredentialStore: store.NewCredentialStore(backend),
		Verifier:        verifier,
		TokenIssuer:     issuer,
	})
	if err != nil {
		return nil, fmt.Errorf("passkey service: %w", err)
	}

	limiter := ratelimit.New(&ratelimit.Config{
		Enabled:           cfg.RateLimit.Enabled,
		RequestsPerMinute: cfg.RateLimit.RequestsPerMin,
		Burst:             cfg.RateLimit.Burst,
	})

	s := &Server{
		cfg:     cfg,
		logger:  logger,
		backend: backend,
		limiter: limiter,
		service: service,
	}

	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      s.router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return s, nil
}

// Service returns the underlying passkey service.
func (s *Server) Service() *passkey.Service {
	return s.service
}

// Addr returns the address the server listens on.
func (s *Server) Addr() string {
	return s.httpSrv.Addr
}

// Start begins serving HTTP requests. It blocks until the server stops.
func (s *Server) Start() error {
	s.logger.Info("server listening",
		"addr", s.httpSrv.Addr,
		"rp_id", s.cfg.RelyingParty.ID,
		"storage", s.cfg.Storage.Backend)

	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	s.limiter.Stop()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	if err := s.backend.Close(); err != nil {
		return fmt.Errorf("storage close: %w", err)
	}
	return nil
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if s.cfg.RateLimit.Enabled {
		r.Use(ratelimit.Middleware(s.limiter))
	}

	handler := passkeyhttp.NewHandler(s.service).WithLogger(s.logger)
	r.Route("/api/webauthn", func(r chi.Router) {
		passkeyhttp.MountChi(r, handler)
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `{"status":"ok"}`)
	})

	if s.cfg.Metrics.Enabled {
		r.Handle(s.cfg.Metrics.Path, promhttp.Handler())
	}

	return r
}

func newLogger(cfg *config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

func newBackend(cfg *config.StorageConfig) (storage.Backend, error) {
	switch cfg.Backend {
	case "file":
		backend, err := file.New(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("storage: %w", err)
		}
		return backend, nil
	default:
		return storage.NewMemory(), nil
	}
}

func audienceList(audience string) []string {
	if audience == "" {
		return nil
	}
	return []string{audience}
}
