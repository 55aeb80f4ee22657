// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package main

import (
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	goahttp "goa.design/goa/v3/http"

	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/handlers"
	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/logging"
	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/metrics"
	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/middleware"
	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/pkg/constants"
)

// routes are the handlers served over HTTP.
type routes struct {
	Webhook *handlers.VideoWebhookHandler
	Health  *handlers.HealthHandler
	Metrics *metrics.Metrics
}

// newMux mounts every route on a goa muxer.
func newMux(r routes) goahttp.Muxer {
	mux := goahttp.NewMuxer()
	mux.Handle(http.MethodPost, constants.VideoWebhookPath, r.Webhook.ServeHTTP)
	mux.Handle(http.MethodGet, constants.LivezPath, r.Health.Livez)
	mux.Handle(http.MethodGet, constants.ReadyzPath, r.Health.Readyz)
	mux.Handle(http.MethodGet, constants.MetricsPath, r.Metrics.Handler().ServeHTTP)
	return mux
}

// newHandler wraps the muxer in the HTTP middleware chain.
func newHandler(r routes) http.Handler {
	var handler http.Handler = newMux(r)

	// Note: Order matters - RequestIDMiddleware should come first in the chain,
	// so it should be the last middleware added to the handler since it is executed in reverse order.
	handler = middleware.WebhookBodyCaptureMiddleware()(handler)
	handler = middleware.RequestLoggerMiddleware()(handler)
	handler = middleware.RequestIDMiddleware()(handler)

	return otelhttp.NewHandler(handler, "meeting-agent-api",
		otelhttp.WithFilter(func(req *http.Request) bool {
			switch req.URL.Path {
			case constants.LivezPath, constants.ReadyzPath, constants.MetricsPath:
				return false
			}
			return true
		}),
	)
}

// setupHTTPServer configures and starts the HTTP server
func setupHTTPServer(flags flags, r routes, gracefulCloseWG *sync.WaitGroup) *http.Server {
	// Set up http listener in a goroutine using provided command line parameters.
	var addr string
	if flags.Bind == "*" {
		addr = ":" + flags.Port
	} else {
		addr = flags.Bind + ":" + flags.Port
	}
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           newHandler(r),
		ReadHeaderTimeout: 3 * time.Second,
	}
	gracefulCloseWG.Add(1)
	go func() {
		slog.With("addr", addr).Debug("starting http server, listening on port " + flags.Port)
		err := httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			slog.With(logging.ErrKey, err).Error("http listener error")
			os.Exit(1)
		}
		// Because ErrServerClosed is *immediately* returned when Shutdown is
		// called, not when when Shutdown completes, this must not yet decrement
		// the wait group.
	}()

	return httpServer
}
