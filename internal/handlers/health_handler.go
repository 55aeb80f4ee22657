// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/logging"
)

// ReadinessCheck reports why a dependency cannot serve traffic, or nil.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// HealthHandler serves the Kubernetes probes.
type HealthHandler struct {
	checks []ReadinessCheck
}

// NewHealthHandler creates a HealthHandler that is ready when every check passes.
func NewHealthHandler(checks ...ReadinessCheck) *HealthHandler {
	return &HealthHandler{checks: checks}
}

// Livez checks if the service is alive.
func (h *HealthHandler) Livez(w http.ResponseWriter, _ *http.Request) {
	// This always returns as long as the service is still running. As this
	// endpoint is expected to be used as a Kubernetes liveness check, this
	// service must likewise self-detect non-recoverable errors and
	// self-terminate.
	writePlain(w, http.StatusOK, "OK\n")
}

// Readyz checks if the service is able to take inbound requests.
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	for _, check := range h.checks {
		if err := check.Check(ctx); err != nil {
			slog.WarnContext(ctx, "service not ready", "check", check.Name, logging.ErrKey, err)
			writePlain(w, http.StatusServiceUnavailable, check.Name+" not ready\n")
			return
		}
	}
	writePlain(w, http.StatusOK, "OK\n")
}

func writePlain(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
