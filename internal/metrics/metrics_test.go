// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.WebhookEvent("call.session_started", "success")
	m.WebhookEvent("call.session_started", "success")
	m.Transition("call.session_ended", "skipped")
	m.Job("exhausted")
	m.CheckpointHit("parse-transcript")
	m.ExternalCall("summarizer", "error")
	m.ObserveStep("fetch-transcript", "success", 120*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.webhookEventsTotal.WithLabelValues("call.session_started", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitionsTotal.WithLabelValues("call.session_ended", "skipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobsTotal.WithLabelValues("exhausted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.checkpointHitsTotal.WithLabelValues("parse-transcript")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.externalCallsTotal.WithLabelValues("summarizer", "error")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.stepDuration))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.WebhookEvent("x", "y")
		m.Transition("x", "y")
		m.ObserveStep("x", "y", time.Second)
		m.CheckpointHit("x")
		m.Job("x")
		m.ExternalCall("x", "y")
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.Job("completed")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `meeting_agent_pipeline_jobs_total{outcome="completed"} 1`)
}
