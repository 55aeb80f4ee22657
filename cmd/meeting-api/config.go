// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package main

import (
	"flag"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/handlers"
	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/infrastructure/llm"
	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/infrastructure/transcript"
	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/infrastructure/video/api"
	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/logging"
	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/pkg/utils"
)

// flags are the command line flags for the meeting agent service.
type flags struct {
	Debug bool
	Port  string
	Bind  string
}

// environment are the environment variables for the meeting agent service.
type environment struct {
	Port string
	NATS natsConfig

	WebhookAPIKey            string
	WebhookAPISecret         string
	WebhookSignatureDisabled bool

	Video      api.Config
	LLM        llm.Config
	Transcript transcript.Config

	PipelineWorkers    int
	PipelineMaxDeliver int
	CheckpointTTL      time.Duration
}

// natsConfig holds the NATS connection settings
type natsConfig struct {
	URL           string
	Timeout       time.Duration
	MaxReconnect  int
	ReconnectWait time.Duration
}

// parseFlags parses command line flags for the meeting agent service
func parseFlags(defaultPort string) flags {
	var debug = flag.Bool("d", false, "enable debug logging")
	var port = flag.String("p", defaultPort, "listen port")
	var bind = flag.String("bind", "*", "interface to bind on")

	flag.Usage = func() {
		flag.PrintDefaults()
		os.Exit(2)
	}
	flag.Parse()

	// Based on the debug flag, set the log level environment variable used by [log.InitStructureLogConfig]
	if *debug {
		err := os.Setenv("LOG_LEVEL", "debug")
		if err != nil {
			slog.With(logging.ErrKey, err).Error("error setting log level")
			os.Exit(1)
		}
	}

	return flags{
		Debug: *debug,
		Port:  *port,
		Bind:  *bind,
	}
}

// parseEnv parses environment variables for the meeting agent service
func parseEnv() environment {
	signatureDisabled := os.Getenv("WEBHOOK_SIGNATURE_DISABLED") == "true"
	apiKey := os.Getenv("VIDEO_API_KEY")
	apiSecret := os.Getenv("VIDEO_API_SECRET")
	if !signatureDisabled && (apiKey == "" || apiSecret == "") {
		slog.Error("VIDEO_API_KEY and VIDEO_API_SECRET environment variables are required unless WEBHOOK_SIGNATURE_DISABLED is true")
		os.Exit(1)
	}

	return environment{
		Port: utils.CoalesceString(os.Getenv("PORT"), "8080"),
		NATS: natsConfig{
			URL:           utils.CoalesceString(os.Getenv("NATS_URL"), "nats://localhost:4222"),
			Timeout:       envDuration("NATS_TIMEOUT", 10*time.Second),
			MaxReconnect:  envInt("NATS_MAX_RECONNECT", 3),
			ReconnectWait: envDuration("NATS_RECONNECT_WAIT", 2*time.Second),
		},
		WebhookAPIKey:            apiKey,
		WebhookAPISecret:         apiSecret,
		WebhookSignatureDisabled: signatureDisabled,
		Video: api.Config{
			BaseURL:      os.Getenv("VIDEO_API_BASE_URL"),
			AuthURL:      os.Getenv("VIDEO_AUTH_URL"),
			ClientID:     os.Getenv("VIDEO_CLIENT_ID"),
			ClientSecret: os.Getenv("VIDEO_CLIENT_SECRET"),
			APIKey:       apiKey,
			CallType:     utils.CoalesceString(os.Getenv("VIDEO_CALL_TYPE"), "default"),
		},
		LLM: llm.Config{
			Provider: utils.CoalesceString(os.Getenv("LLM_PROVIDER"), llm.ProviderOpenAI),
			Model:    os.Getenv("LLM_MODEL"),
			APIKey:   os.Getenv("LLM_API_KEY"),
			BaseURL:  os.Getenv("LLM_API_URL"),
			Timeout:  envDuration("SUMMARIZE_TIMEOUT", 2*time.Minute),
		},
		Transcript: transcript.Config{
			Timeout: envDuration("TRANSCRIPT_FETCH_TIMEOUT", 30*time.Second),
		},
		PipelineWorkers:    envInt("PIPELINE_WORKERS", 4),
		PipelineMaxDeliver: envInt("PIPELINE_MAX_DELIVER", handlers.DefaultMaxDeliver),
		CheckpointTTL:      envDuration("CHECKPOINT_TTL", 7*24*time.Hour),
	}
}

// envInt reads a positive integer, falling back to def when unset or invalid.
func envInt(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		slog.With(logging.ErrKey, err, "key", key, "value", raw).Warn("invalid integer environment variable, using default")
		return def
	}
	return v
}

// envDuration reads a positive Go duration such as "30s", falling back to def
// when unset or invalid.
func envDuration(key string, def time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil || v <= 0 {
		slog.With(logging.ErrKey, err, "key", key, "value", raw).Warn("invalid duration environment variable, using default")
		return def
	}
	return v
}
