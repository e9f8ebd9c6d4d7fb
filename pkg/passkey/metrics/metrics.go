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

// Package metrics provides Prometheus instrumentation for passkey ceremony
// operations: per-step counters, latency histograms and failure counters
// labeled by error category.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/jeremyhahn/go-passkey/pkg/passkey"
)

const (
	// Namespace is the Prometheus namespace for all passkey metrics
	Namespace = "passkey"

	// Label names
	LabelCeremony = "ceremony"
	LabelStep     = "step"
	LabelStatus   = "status"
	LabelReason   = "reason"

	// Status values
	StatusSuccess = "success"
	StatusError   = "error"

	// Step values
	StepBegin  = "begin"
	StepFinish = "finish"
)

var (
	// CeremoniesTotal tracks ceremony steps by ceremony type, step and status.
	CeremoniesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "ceremonies_total",
			Help:      "Total number of ceremony steps by ceremony, step, and status",
		},
		[]string{LabelCeremony, LabelStep, LabelStatus},
	)

	// CeremonyDuration tracks ceremony step latency in seconds.
	CeremonyDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "ceremony_duration_seconds",
			Help:      "Duration of ceremony steps in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{LabelCeremony, LabelStep},
	)

	// CeremonyFailures tracks ceremony failures by reason so replay attempts
	// and verification failures are visible separately from plumbing errors.
	CeremonyFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "ceremony_failures_total",
			Help:      "Total number of ceremony failures by ceremony, step, and reason",
		},
		[]string{LabelCeremony, LabelStep, LabelReason},
	)

	// CredentialsEnrolled counts successfully enrolled credentials.
	CredentialsEnrolled = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "credentials_enrolled_total",
			Help:      "Total number of credentials enrolled",
		},
	)
)

// RecordCeremony observes one ceremony step: counter, latency, and on
// failure a categorized reason.
func RecordCeremony(ceremony passkey.Ceremony, step string, start time.Time, err error) {
	status := StatusSuccess
	if err != nil {
		status = StatusError
		CeremonyFailures.WithLabelValues(string(ceremony), step, FailureReason(err)).Inc()
	}
	CeremoniesTotal.WithLabelValues(string(ceremony), step, status).Inc()
	CeremonyDuration.WithLabelValues(string(ceremony), step).Observe(time.Since(start).Seconds())
}

// FailureReason maps a ceremony error to a low-cardinality label value.
func FailureReason(err error) string {
	switch {
	case passkey.IsReplayDetected(err):
		return "replay_detected"
	case passkey.IsStaleCounter(err):
		return "stale_counter"
	case passkey.IsVerificationFailed(err):
		return "verification_failed"
	case passkey.IsChallengeNotFound(err):
		return "challenge_not_found"
	case passkey.IsCredentialNotFound(err):
		return "credential_not_found"
	case passkey.IsCredentialConflict(err):
		return "credential_conflict"
	case passkey.IsUserNotFound(err):
		return "user_not_found"
	case passkey.IsNoCredentials(err):
		return "no_credentials"
	case errors.Is(err, passkey.ErrInvalidRequest):
		return "invalid_request"
	default:
		return "internal"
	}
}
