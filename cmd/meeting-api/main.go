// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package main is the meeting agent service. It receives video provider
// webhooks, drives the meeting lifecycle and runs the transcript pipeline
// from the NATS processing stream.
package main

import (
	"context"
	_ "expvar"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/handlers"
	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/infrastructure/llm"
	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/infrastructure/messaging"
	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/infrastructure/transcript"
	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/infrastructure/video/api"
	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/infrastructure/video/webhook"
	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/logging"
	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/metrics"
	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/service"
	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/service/pipeline"
	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/pkg/utils"
)

const gracefulShutdownSeconds = 25

func main() {
	env := parseEnv()
	flags := parseFlags(env.Port)

	logging.InitStructureLogConfig()

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	gracefulCloseWG := sync.WaitGroup{}

	otelShutdown, err := utils.SetupOTelSDK(ctx)
	if err != nil {
		slog.With(logging.ErrKey, err).Error("error setting up OpenTelemetry SDK")
		return
	}

	m := metrics.New()

	// Initialize the webhook validator
	var validator domain.WebhookValidator
	if env.WebhookSignatureDisabled {
		slog.Warn("webhook signature validation is disabled, all webhooks are accepted")
		validator = webhook.NewMockWebhookValidator()
	} else {
		validator = webhook.NewVideoWebhookValidator(env.WebhookAPIKey, env.WebhookAPISecret)
	}

	model, err := llm.NewModel(env.LLM)
	if err != nil {
		slog.With(logging.ErrKey, err, "provider", env.LLM.Provider).Error("error setting up summarization model")
		return
	}

	// Setup NATS connection
	natsConn, err := setupNATS(ctx, env, &gracefulCloseWG, done)
	if err != nil {
		slog.With(logging.ErrKey, err).Error("error setting up NATS")
		return
	}
	js, err := jetstream.New(natsConn)
	if err != nil {
		slog.With(logging.ErrKey, err).Error("error creating JetStream context")
		return
	}

	// Get the key-value stores for the service.
	repos, err := getKeyValueStores(ctx, js, env)
	if err != nil {
		slog.With(logging.ErrKey, err).Error("error getting key-value stores")
		return
	}
	processingConsumer, err := setupProcessingConsumer(ctx, js, env)
	if err != nil {
		slog.With(logging.ErrKey, err).Error("error setting up processing stream")
		return
	}

	// Initialize services
	jobPublisher := messaging.NewJobPublisher(natsConn, js)
	lifecycleService := service.NewMeetingLifecycleService(
		repos.Meeting,
		repos.Agent,
		api.NewClient(env.Video, m),
		jobPublisher,
		m,
	)
	transcriptPipeline := pipeline.NewTranscriptPipeline(
		repos.Checkpoints,
		repos.Meeting,
		repos.Agent,
		repos.Person,
		transcript.NewHTTPFetcher(env.Transcript, m),
		llm.NewSummarizer(model, env.LLM, m),
		m,
	)

	// Initialize handlers
	webhookHandler := handlers.NewVideoWebhookHandler(lifecycleService, validator, m)
	jobHandler := handlers.NewProcessingJobHandler(transcriptPipeline, env.PipelineMaxDeliver, m)
	jobConsumer := messaging.NewJobConsumer(processingConsumer, jobHandler, env.PipelineWorkers)

	healthHandler := handlers.NewHealthHandler(
		handlers.ReadinessCheck{Name: "store", Check: func(context.Context) error {
			if !repos.Meeting.IsReady() || !repos.Checkpoints.IsReady() {
				return domain.NewUnavailableError("store is not configured", domain.ErrServiceUnavailable)
			}
			return nil
		}},
		handlers.ReadinessCheck{Name: "webhooks", Check: func(context.Context) error {
			if !webhookHandler.HandlerReady() {
				return domain.NewUnavailableError("webhook handler is not ready", domain.ErrServiceUnavailable)
			}
			return nil
		}},
		handlers.ReadinessCheck{Name: "job queue", Check: jobPublisher.IsReady},
		handlers.ReadinessCheck{Name: "job consumer", Check: jobConsumer.IsReady},
	)

	httpServer := setupHTTPServer(flags, routes{
		Webhook: webhookHandler,
		Health:  healthHandler,
		Metrics: m,
	}, &gracefulCloseWG)

	// Start pulling processing jobs.
	err = jobConsumer.Start(ctx)
	if err != nil {
		slog.With(logging.ErrKey, err).Error("error starting processing job consumer")
		return
	}

	// This next line blocks until SIGINT or SIGTERM is received.
	<-done

	gracefulShutdown(httpServer, jobConsumer, natsConn, otelShutdown, &gracefulCloseWG, cancel)
}

// gracefulShutdown stops the HTTP server first so no new jobs are enqueued,
// then lets running jobs finish before draining NATS.
func gracefulShutdown(
	httpServer *http.Server,
	jobConsumer *messaging.JobConsumer,
	natsConn *nats.Conn,
	otelShutdown func(context.Context) error,
	gracefulCloseWG *sync.WaitGroup,
	cancel context.CancelFunc,
) {
	slog.Info("graceful shutdown started")

	// Cancel the background context.
	cancel()

	ctx, shutdownCancel := context.WithTimeout(context.Background(), gracefulShutdownSeconds*time.Second)
	defer shutdownCancel()

	go func() {
		// Run the HTTP shutdown in a goroutine so the NATS drain can proceed
		// once no more webhooks are accepted.
		if err := httpServer.Shutdown(ctx); err != nil {
			slog.With(logging.ErrKey, err).Error("http shutdown error")
		}
		// Decrement the wait group after the HTTP server has shut down.
		gracefulCloseWG.Done()

		jobConsumer.Stop()

		if !natsConn.IsClosed() && !natsConn.IsDraining() {
			slog.Info("draining NATS connections")
			if err := natsConn.Drain(); err != nil {
				slog.With(logging.ErrKey, err).Error("error draining NATS connection")
			}
		}
	}()

	waited := make(chan struct{})
	go func() {
		gracefulCloseWG.Wait()
		close(waited)
	}()

	select {
	case <-waited:
	case <-ctx.Done():
		slog.Warn("graceful shutdown timed out")
	}

	if err := otelShutdown(context.Background()); err != nil {
		slog.With(logging.ErrKey, err).Error("error shutting down OpenTelemetry SDK")
	}

	slog.Info("graceful shutdown complete")
}
