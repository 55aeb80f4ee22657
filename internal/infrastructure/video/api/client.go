// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/logging"
	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/metrics"
	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/pkg/resilience"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	// DefaultClientTimeout is the default HTTP client timeout for video provider requests
	DefaultClientTimeout = 30 * time.Second
	// DefaultCallType is the call type meetings are created with
	DefaultCallType = "default"
	// Default retry configuration
	DefaultMaxRetries = 3
	DefaultBaseDelay  = 1 * time.Second
	DefaultMaxDelay   = 30 * time.Second

	metricsTarget = "video_provider"
)

// Client represents a video provider REST API client
type Client struct {
	httpClient   *http.Client
	config       Config
	executor     failsafe.Executor[*http.Response]
	// onceExecutor never retries. Used for calls whose side effect is not
	// idempotent on the provider.
	onceExecutor failsafe.Executor[*http.Response]
	metrics      *metrics.Metrics
}

// Config holds the configuration for the video provider client
type Config struct {
	// BaseURL is the provider's REST API root
	BaseURL string
	// AuthURL is the OAuth2 token endpoint. When empty, requests are not authenticated
	// with OAuth2 and the API key is sent instead.
	AuthURL      string
	ClientID     string
	ClientSecret string
	// APIKey identifies the application on every request
	APIKey string
	// CallType is the type half of the call cid when events do not carry one
	CallType string
	// Optional: override timeout for HTTP requests
	Timeout time.Duration
	// Optional: retry configuration
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// NewClient creates a new video provider API client. m may be nil.
func NewClient(config Config, m *metrics.Metrics) *Client {
	if config.Timeout == 0 {
		config.Timeout = DefaultClientTimeout
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = DefaultMaxRetries
	}
	if config.BaseDelay == 0 {
		config.BaseDelay = DefaultBaseDelay
	}
	if config.MaxDelay == 0 {
		config.MaxDelay = DefaultMaxDelay
	}
	if config.CallType == "" {
		config.CallType = DefaultCallType
	}

	base := otelhttp.NewTransport(http.DefaultTransport)
	var transport http.RoundTripper = base
	if config.AuthURL != "" {
		oauthConfig := &clientcredentials.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			TokenURL:     config.AuthURL,
			AuthStyle:    oauth2.AuthStyleInParams,
		}
		// The token source is shared by every request so tokens are cached until expiry.
		tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{Transport: base, Timeout: config.Timeout})
		transport = &oauth2.Transport{
			Base:   base,
			Source: oauthConfig.TokenSource(tokenCtx),
		}
	}

	c := &Client{
		httpClient: &http.Client{
			Timeout:   config.Timeout,
			Transport: transport,
		},
		config:  config,
		metrics: m,
	}
	c.executor = resilience.NewHTTPExecutor(resilience.Config{
		MaxRetries:     config.MaxRetries,
		BaseDelay:      config.BaseDelay,
		MaxDelay:       config.MaxDelay,
		CircuitBreaker: true,
	})
	c.onceExecutor = resilience.NewHTTPExecutor(resilience.Config{
		MaxRetries:     0,
		CircuitBreaker: true,
	})
	return c
}

// doRequest performs a JSON request against the provider with retry, and
// decodes the response into out when out is non-nil.
func (c *Client) doRequest(ctx context.Context, method, path string, body, out any) error {
	return c.doRequestWith(ctx, c.executor, method, path, body, out)
}

// doRequestOnce is doRequest without retry.
func (c *Client) doRequestOnce(ctx context.Context, method, path string, body, out any) error {
	return c.doRequestWith(ctx, c.onceExecutor, method, path, body, out)
}

func (c *Client) doRequestWith(ctx context.Context, executor failsafe.Executor[*http.Response], method, path string, body, out any) error {
	jsonBody, err := c.marshalRequestBody(body)
	if err != nil {
		return err
	}

	url := c.config.BaseURL + path
	attempt := 0
	startTime := time.Now()

	resp, err := resilience.DoHTTP(ctx, executor, c.httpClient, func(ctx context.Context) (*http.Request, error) {
		c.logRequestAttempt(ctx, method, path, body, attempt)
		attempt++
		return c.createRequest(ctx, method, url, jsonBody)
	})
	duration := time.Since(startTime)
	if err != nil {
		c.logFinalFailure(ctx, method, path, duration, attempt, err)
		c.metrics.ExternalCall(metricsTarget, "error")
		return parseErrorResponse(err)
	}
	defer func() { _ = resp.Body.Close() }()

	c.logSuccessfulResponse(ctx, method, path, resp, duration, attempt)
	c.metrics.ExternalCall(metricsTarget, "success")

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to decode video provider response: %w", err)
	}
	return nil
}

// marshalRequestBody marshals the request body to JSON
func (c *Client) marshalRequestBody(body any) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}
	return jsonBody, nil
}

// createRequest creates a new HTTP request with the given parameters
func (c *Client) createRequest(ctx context.Context, method, url string, jsonBody []byte) (*http.Request, error) {
	var bodyReader io.Reader
	if jsonBody != nil {
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		q := req.URL.Query()
		q.Set("api_key", c.config.APIKey)
		req.URL.RawQuery = q.Encode()
	}
	return req, nil
}

// logRequestAttempt logs the request attempt
func (c *Client) logRequestAttempt(ctx context.Context, method, path string, body any, attempt int) {
	if attempt == 0 {
		slog.DebugContext(ctx, "making video provider request",
			"method", method,
			"path", path,
			"body", body,
			"max_retries", c.config.MaxRetries,
		)
	} else {
		slog.WarnContext(ctx, "retrying video provider request",
			"method", method,
			"path", path,
			"attempt", attempt,
			"max_retries", c.config.MaxRetries,
		)
	}
}

// logSuccessfulResponse logs successful responses
func (c *Client) logSuccessfulResponse(ctx context.Context, method, path string, resp *http.Response, duration time.Duration, attempts int) {
	slog.InfoContext(ctx, "video provider request completed",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration", duration.String(),
		"attempts", attempts,
	)
}

// logFinalFailure logs a request that failed for good, either because it was
// not retryable or because retries ran out
func (c *Client) logFinalFailure(ctx context.Context, method, path string, duration time.Duration, attempts int, err error) {
	attrs := []any{
		"method", method,
		"path", path,
		"duration", duration.String(),
		"attempts", attempts,
		"max_retries", c.config.MaxRetries,
		logging.ErrKey, err,
	}
	var statusErr *resilience.StatusError
	if errors.As(err, &statusErr) {
		attrs = append(attrs, "status", statusErr.StatusCode, "body", statusErr.Body)
		if !resilience.IsRetryableStatus(statusErr.StatusCode) {
			slog.ErrorContext(ctx, "video provider request failed (not retryable)", attrs...)
			return
		}
	}
	attrs = append(attrs, logging.PriorityCritical())
	slog.ErrorContext(ctx, "video provider request failed after all retries", attrs...)
}

// parseErrorResponse turns a failed request into a typed error, extracting the
// provider's error message when the body carries one
func parseErrorResponse(err error) error {
	var statusErr *resilience.StatusError
	if !errors.As(err, &statusErr) {
		return fmt.Errorf("video provider request failed: %w", err)
	}
	var errResp struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	if jsonErr := json.Unmarshal([]byte(statusErr.Body), &errResp); jsonErr == nil && errResp.Message != "" {
		return fmt.Errorf("video provider error (status %d, code %d): %s: %w", statusErr.StatusCode, errResp.Code, errResp.Message, err)
	}
	return fmt.Errorf("video provider error (status %d): %w", statusErr.StatusCode, err)
}
