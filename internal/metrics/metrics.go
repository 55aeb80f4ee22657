// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package metrics defines the Prometheus metrics exported by the service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "meeting_agent"

// Metrics holds the service's collectors, registered on one registry.
type Metrics struct {
	registry *prometheus.Registry

	webhookEventsTotal  *prometheus.CounterVec
	transitionsTotal    *prometheus.CounterVec
	stepDuration        *prometheus.HistogramVec
	checkpointHitsTotal *prometheus.CounterVec
	jobsTotal           *prometheus.CounterVec
	externalCallsTotal  *prometheus.CounterVec
}

// New creates the collectors and registers them, together with the Go
// runtime and process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		webhookEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "webhook_events_total",
				Help:      "Video provider webhook deliveries by event type and outcome",
			},
			[]string{"event_type", "outcome"},
		),
		transitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "meeting_transitions_total",
				Help:      "Conditional meeting updates by event and whether the guard allowed them",
			},
			[]string{"event_type", "result"}, // "applied", "skipped", "not_found"
		),
		stepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "pipeline_step_duration_seconds",
				Help:      "Duration of transcript pipeline steps in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~80s
			},
			[]string{"step", "outcome"},
		),
		checkpointHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pipeline_checkpoint_hits_total",
				Help:      "Pipeline steps whose output was replayed from a checkpoint",
			},
			[]string{"step"},
		),
		jobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pipeline_jobs_total",
				Help:      "Processing job deliveries by outcome",
			},
			[]string{"outcome"},
		),
		externalCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "external_calls_total",
				Help:      "Calls to external services by target and status",
			},
			[]string{"target", "status"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.webhookEventsTotal,
		m.transitionsTotal,
		m.stepDuration,
		m.checkpointHitsTotal,
		m.jobsTotal,
		m.externalCallsTotal,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// WebhookEvent counts one webhook delivery.
func (m *Metrics) WebhookEvent(eventType, outcome string) {
	if m == nil {
		return
	}
	m.webhookEventsTotal.WithLabelValues(eventType, outcome).Inc()
}

// Transition counts one conditional meeting update.
func (m *Metrics) Transition(eventType, result string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(eventType, result).Inc()
}

// ObserveStep records the duration of one pipeline step execution.
func (m *Metrics) ObserveStep(step, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.stepDuration.WithLabelValues(step, outcome).Observe(d.Seconds())
}

// CheckpointHit counts one step replayed from its checkpoint.
func (m *Metrics) CheckpointHit(step string) {
	if m == nil {
		return
	}
	m.checkpointHitsTotal.WithLabelValues(step).Inc()
}

// Job counts one processing job delivery outcome.
func (m *Metrics) Job(outcome string) {
	if m == nil {
		return
	}
	m.jobsTotal.WithLabelValues(outcome).Inc()
}

// ExternalCall counts one call to the transcript host, summarizer or video provider.
func (m *Metrics) ExternalCall(target, status string) {
	if m == nil {
		return
	}
	m.externalCallsTotal.WithLabelValues(target, status).Inc()
}
