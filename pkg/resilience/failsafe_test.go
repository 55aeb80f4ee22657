// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package resilience

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(retries int) Config {
	return Config{MaxRetries: retries, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
}

func TestShouldRetryHTTP(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{name: "success", err: nil, expected: false},
		{name: "network error", err: errors.New("connection refused"), expected: true},
		{name: "server error", err: &StatusError{StatusCode: http.StatusBadGateway}, expected: true},
		{name: "rate limited", err: &StatusError{StatusCode: http.StatusTooManyRequests}, expected: true},
		{name: "client error", err: &StatusError{StatusCode: http.StatusNotFound}, expected: false},
		{name: "canceled", err: context.Canceled, expected: false},
		{name: "permanent", err: Permanent(errors.New("bad url")), expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ShouldRetryHTTP(nil, tt.err))
		})
	}
}

func TestNewExecutor_RetriesUpToConfiguredLimit(t *testing.T) {
	var attempts int32
	executor := NewExecutor[string](fastConfig(2), func(_ string, err error) bool { return err != nil })

	result, err := executor.Get(func() (string, error) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			return "", errors.New("flaky")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}

func TestNewExecutor_ReturnsLastFailure(t *testing.T) {
	var attempts int32
	cause := errors.New("still down")
	executor := NewExecutor[string](fastConfig(1), func(_ string, err error) bool { return err != nil })

	_, err := executor.Get(func() (string, error) {
		atomic.AddInt32(&attempts, 1)
		return "", cause
	})

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, int32(2), atomic.LoadInt32(&attempts))
}

func TestNewExecutor_NegativeRetriesMeansSingleAttempt(t *testing.T) {
	var attempts int32
	executor := NewExecutor[string](Config{MaxRetries: -1}, func(_ string, err error) bool { return err != nil })

	_, err := executor.Get(func() (string, error) {
		atomic.AddInt32(&attempts, 1)
		return "", errors.New("boom")
	})

	assert.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
}

func TestNewExecutor_OnRetry(t *testing.T) {
	var retries int32
	cfg := fastConfig(2)
	cfg.OnRetry = func(_ int, err error) {
		atomic.AddInt32(&retries, 1)
	}
	executor := NewExecutor[string](cfg, func(_ string, err error) bool { return err != nil })

	_, _ = executor.Get(func() (string, error) { return "", errors.New("boom") })

	assert.Equal(t, int32(2), atomic.LoadInt32(&retries))
}

func TestDoHTTP(t *testing.T) {
	t.Run("retries server errors then returns buffered body", func(t *testing.T) {
		var calls int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&calls, 1) == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			_, _ = w.Write([]byte("hello"))
		}))
		defer server.Close()

		resp, err := DoHTTP(context.Background(), NewHTTPExecutor(fastConfig(2)), server.Client(), func(ctx context.Context) (*http.Request, error) {
			return http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
		})

		require.NoError(t, err)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, "hello", string(body))
		assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	})

	t.Run("client errors are not retried", func(t *testing.T) {
		var calls int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			http.Error(w, "nope", http.StatusForbidden)
		}))
		defer server.Close()

		_, err := DoHTTP(context.Background(), NewHTTPExecutor(fastConfig(3)), server.Client(), func(ctx context.Context) (*http.Request, error) {
			return http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
		})

		var statusErr *StatusError
		require.ErrorAs(t, err, &statusErr)
		assert.Equal(t, http.StatusForbidden, statusErr.StatusCode)
		assert.Contains(t, statusErr.Body, "nope")
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	})
}
