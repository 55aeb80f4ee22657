// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package resilience builds the failsafe-go policies wrapped around every
// call the service makes to an external system.
package resilience

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/failsafe-go/failsafe-go/timeout"
)

// Default policy settings.
const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = 500 * time.Millisecond
	DefaultMaxDelay   = 10 * time.Second
)

// Config configures the retry, timeout and circuit breaker policies of an executor.
type Config struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	// Timeout bounds each attempt. Zero disables the per-attempt timeout.
	Timeout time.Duration
	// CircuitBreaker opens after half of the last ten attempts failed.
	CircuitBreaker bool
	// OnRetry is called before each retry with the number of attempts made so far.
	OnRetry func(attempts int, err error)
}

func (c Config) normalize() Config {
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = DefaultBaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultMaxDelay
	}
	if c.MaxDelay < c.BaseDelay {
		c.MaxDelay = c.BaseDelay
	}
	return c
}

// NewExecutor composes retry (outermost), circuit breaker and per-attempt timeout
// policies. shouldRetry decides which results and errors are retried and counted
// as circuit breaker failures.
func NewExecutor[T any](cfg Config, shouldRetry func(T, error) bool) failsafe.Executor[T] {
	cfg = cfg.normalize()

	builder := retrypolicy.NewBuilder[T]().
		WithBackoff(cfg.BaseDelay, cfg.MaxDelay).
		WithMaxRetries(cfg.MaxRetries).
		WithJitterFactor(0.1).
		HandleIf(shouldRetry).
		ReturnLastFailure()
	if cfg.OnRetry != nil {
		builder = builder.OnRetry(func(e failsafe.ExecutionEvent[T]) {
			cfg.OnRetry(e.Attempts(), e.LastError())
		})
	}

	policies := []failsafe.Policy[T]{builder.Build()}

	if cfg.CircuitBreaker {
		policies = append(policies, circuitbreaker.NewBuilder[T]().
			WithFailureThresholdRatio(5, 10).
			WithDelay(15*time.Second).
			WithSuccessThreshold(1).
			HandleIf(shouldRetry).
			Build())
	}

	if cfg.Timeout > 0 {
		policies = append(policies, timeout.New[T](cfg.Timeout))
	}

	return failsafe.With(policies...)
}

// StatusError is returned for a response whose status code signals failure.
// The body has been read and closed.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// IsRetryableStatus reports whether a status code is worth retrying:
// server errors and rate limiting.
func IsRetryableStatus(code int) bool {
	return code >= http.StatusInternalServerError || code == http.StatusTooManyRequests
}

// ShouldRetryHTTP retries network failures, timeouts and retryable statuses.
// Context cancellation and client errors are final.
func ShouldRetryHTTP(_ *http.Response, err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || IsPermanent(err) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return IsRetryableStatus(statusErr.StatusCode)
	}
	return true
}

// NewHTTPExecutor creates an executor for HTTP calls using ShouldRetryHTTP.
func NewHTTPExecutor(cfg Config) failsafe.Executor[*http.Response] {
	return NewExecutor[*http.Response](cfg, ShouldRetryHTTP)
}

// maxErrorBody bounds how much of a failed response body is kept in a StatusError.
const maxErrorBody = 4096

// DoHTTP sends the request built by newRequest through the executor. Every
// attempt gets a fresh request bound to the attempt's context, and the body is
// read within the attempt so the attempt timeout covers it. Any status of 400
// or above is converted into a *StatusError, so a returned response always
// carries a successful status and a fully buffered body.
func DoHTTP(ctx context.Context, executor failsafe.Executor[*http.Response], client *http.Client, newRequest func(ctx context.Context) (*http.Request, error)) (*http.Response, error) {
	return executor.WithContext(ctx).GetWithExecution(func(exec failsafe.Execution[*http.Response]) (*http.Response, error) {
		req, err := newRequest(exec.Context())
		if err != nil {
			return nil, Permanent(err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusBadRequest {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			_ = resp.Body.Close()
			return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
		}
		body, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read response body: %w", err)
		}
		resp.Body = io.NopCloser(bytes.NewReader(body))
		return resp, nil
	})
}
