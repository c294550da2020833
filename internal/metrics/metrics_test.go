// Gametime - Twitch EventSub ingestion and game time tracking
// Copyright 2026 FelpsBot contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/felpsbot/gametime

package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordOutcome(t *testing.T) {
	before := testutil.ToFloat64(PipelineOutcomes.WithLabelValues("channel.update", "applied"))

	RecordOutcome("channel.update", "applied", 12*time.Millisecond)
	RecordOutcome("channel.update", "applied", 8*time.Millisecond)

	after := testutil.ToFloat64(PipelineOutcomes.WithLabelValues("channel.update", "applied"))
	if after-before != 2 {
		t.Errorf("applied counter delta = %v, want 2", after-before)
	}
}

func TestRecordOutcomeDistinctLabels(t *testing.T) {
	dupBefore := testutil.ToFloat64(PipelineOutcomes.WithLabelValues("channel.update", "duplicate"))
	staleBefore := testutil.ToFloat64(PipelineOutcomes.WithLabelValues("channel.update", "stale"))

	RecordOutcome("channel.update", "duplicate", time.Millisecond)
	RecordOutcome("channel.update", "stale", time.Millisecond)
	RecordOutcome("channel.update", "stale", time.Millisecond)

	if delta := testutil.ToFloat64(PipelineOutcomes.WithLabelValues("channel.update", "duplicate")) - dupBefore; delta != 1 {
		t.Errorf("duplicate counter delta = %v, want 1", delta)
	}
	if delta := testutil.ToFloat64(PipelineOutcomes.WithLabelValues("channel.update", "stale")) - staleBefore; delta != 2 {
		t.Errorf("stale counter delta = %v, want 2", delta)
	}
}

func TestRecordSignatureFailure(t *testing.T) {
	before := testutil.ToFloat64(SignatureFailures.WithLabelValues("bad_signature"))
	RecordSignatureFailure("bad_signature")
	after := testutil.ToFloat64(SignatureFailures.WithLabelValues("bad_signature"))
	if after-before != 1 {
		t.Errorf("signature failure delta = %v, want 1", after-before)
	}
}

func TestTrackActiveRequest(t *testing.T) {
	base := testutil.ToFloat64(APIActiveRequests)

	TrackActiveRequest(true)
	TrackActiveRequest(true)
	if got := testutil.ToFloat64(APIActiveRequests); got != base+2 {
		t.Errorf("active requests = %v, want %v", got, base+2)
	}

	TrackActiveRequest(false)
	TrackActiveRequest(false)
	if got := testutil.ToFloat64(APIActiveRequests); got != base {
		t.Errorf("active requests = %v, want %v", got, base)
	}
}

func TestRecordDBQueryError(t *testing.T) {
	before := testutil.ToFloat64(DBQueryErrors.WithLabelValues("apply_game_change"))

	RecordDBQuery("apply_game_change", 5*time.Millisecond, nil)
	RecordDBQuery("apply_game_change", 5*time.Millisecond, errors.New("connection refused"))

	after := testutil.ToFloat64(DBQueryErrors.WithLabelValues("apply_game_change"))
	if after-before != 1 {
		t.Errorf("db error delta = %v, want 1", after-before)
	}
}

func TestRecordPublish(t *testing.T) {
	before := testutil.ToFloat64(PublishResults.WithLabelValues("circuit_open"))
	RecordPublish("circuit_open")
	if delta := testutil.ToFloat64(PublishResults.WithLabelValues("circuit_open")) - before; delta != 1 {
		t.Errorf("publish counter delta = %v, want 1", delta)
	}
}
