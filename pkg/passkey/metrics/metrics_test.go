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

package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/jeremyhahn/go-passkey/pkg/passkey"
)

func TestFailureReason(t *testing.T) {
	tests := []struct {
		err    error
		reason string
	}{
		{passkey.ErrReplayDetected, "replay_detected"},
		{passkey.ErrStaleCounter, "stale_counter"},
		{passkey.ErrVerificationFailed, "verification_failed"},
		{passkey.ErrChallengeNotFound, "challenge_not_found"},
		{passkey.ErrCredentialNotFound, "credential_not_found"},
		{passkey.ErrCredentialConflict, "credential_conflict"},
		{passkey.ErrUserNotFound, "user_not_found"},
		{passkey.ErrNoCredentials, "no_credentials"},
		{passkey.ErrInvalidRequest, "invalid_request"},
		{errors.New("disk on fire"), "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.reason, func(t *testing.T) {
			assert.Equal(t, tt.reason, FailureReason(tt.err))
			// Wrapped errors map to the same reason
			assert.Equal(t, tt.reason, FailureReason(passkey.WrapError("op", tt.err)))
		})
	}
}

func TestRecordCeremony(t *testing.T) {
	before := testutil.ToFloat64(CeremoniesTotal.WithLabelValues(
		string(passkey.CeremonyRegistration), StepBegin, StatusSuccess))

	RecordCeremony(passkey.CeremonyRegistration, StepBegin, time.Now(), nil)

	after := testutil.ToFloat64(CeremoniesTotal.WithLabelValues(
		string(passkey.CeremonyRegistration), StepBegin, StatusSuccess))
	assert.Equal(t, before+1, after)
}

func TestRecordCeremony_Failure(t *testing.T) {
	beforeTotal := testutil.ToFloat64(CeremoniesTotal.WithLabelValues(
		string(passkey.CeremonyAuthentication), StepFinish, StatusError))
	beforeFailures := testutil.ToFloat64(CeremonyFailures.WithLabelValues(
		string(passkey.CeremonyAuthentication), StepFinish, "replay_detected"))

	RecordCeremony(passkey.CeremonyAuthentication, StepFinish, time.Now(),
		passkey.WrapError("update sign count", passkey.ErrReplayDetected))

	afterTotal := testutil.ToFloat64(CeremoniesTotal.WithLabelValues(
		string(passkey.CeremonyAuthentication), StepFinish, StatusError))
	afterFailures := testutil.ToFloat64(CeremonyFailures.WithLabelValues(
		string(passkey.CeremonyAuthentication), StepFinish, "replay_detected"))

	assert.Equal(t, beforeTotal+1, afterTotal)
	assert.Equal(t, beforeFailures+1, afterFailures)
}
