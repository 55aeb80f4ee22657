// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package transcript

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/logging"
	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/metrics"
	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/pkg/resilience"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	// DefaultTimeout bounds a single download attempt
	DefaultTimeout    = 30 * time.Second
	DefaultMaxRetries = 2

	metricsTarget = "transcript_host"
)

// Config tunes the transcript download
type Config struct {
	Timeout    time.Duration
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// HTTPFetcher downloads transcripts from the URLs the video provider hands out.
// The URLs are pre-signed, so no credentials are sent.
type HTTPFetcher struct {
	client   *http.Client
	executor failsafe.Executor[*http.Response]
	metrics  *metrics.Metrics
}

// Ensure that HTTPFetcher implements domain.TranscriptFetcher
var _ domain.TranscriptFetcher = (*HTTPFetcher)(nil)

// NewHTTPFetcher creates a transcript fetcher. m may be nil.
func NewHTTPFetcher(cfg Config, m *metrics.Metrics) *HTTPFetcher {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	return &HTTPFetcher{
		client: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		executor: resilience.NewHTTPExecutor(resilience.Config{
			MaxRetries: cfg.MaxRetries,
			BaseDelay:  cfg.BaseDelay,
			MaxDelay:   cfg.MaxDelay,
			Timeout:    cfg.Timeout,
			OnRetry: func(attempts int, err error) {
				slog.Warn("retrying transcript download", "attempts", attempts, logging.ErrKey, err)
			},
		}),
		metrics: m,
	}
}

// Fetch returns the transcript body. Any failure, including a non-2xx status,
// is an external service error.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (string, error) {
	if url == "" {
		return "", domain.NewValidationError("transcript url is required")
	}

	resp, err := resilience.DoHTTP(ctx, f.executor, f.client, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	})
	if err != nil {
		f.metrics.ExternalCall(metricsTarget, "error")
		var statusErr *resilience.StatusError
		if errors.As(err, &statusErr) {
			return "", domain.NewExternalServiceError(fmt.Sprintf("transcript download returned status %d", statusErr.StatusCode), err)
		}
		return "", domain.NewExternalServiceError("transcript download failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		f.metrics.ExternalCall(metricsTarget, "error")
		return "", domain.NewExternalServiceError("failed to read transcript", err)
	}
	f.metrics.ExternalCall(metricsTarget, "success")

	slog.DebugContext(ctx, "downloaded transcript", "bytes", len(body))
	return string(body), nil
}
