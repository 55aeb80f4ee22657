// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package constants

// Constants for the HTTP request headers
const (
	// RequestIDHeader is the header name for the request ID
	RequestIDHeader string = "X-REQUEST-ID"

	// SignatureHeader carries the hex HMAC-SHA256 of the raw webhook body
	SignatureHeader string = "x-signature"

	// APIKeyHeader carries the video provider application key on webhooks
	APIKeyHeader string = "x-api-key"
)

// HTTP routes served by the service
const (
	// VideoWebhookPath receives video provider webhooks
	VideoWebhookPath = "/webhooks/video"
	// LivezPath is the liveness probe
	LivezPath = "/livez"
	// ReadyzPath is the readiness probe
	ReadyzPath = "/readyz"
	// MetricsPath exposes Prometheus metrics
	MetricsPath = "/metrics"
)

// contextRequestID is the type for the request ID context key
type contextRequestID string

// RequestIDContextID is the context ID for the request ID
const RequestIDContextID contextRequestID = "X-REQUEST-ID"
