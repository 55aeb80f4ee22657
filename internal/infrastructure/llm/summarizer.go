// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package llm adapts a generative-text model to the summarizer used by the
// transcript pipeline.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/logging"
	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/metrics"
	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/pkg/resilience"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Supported providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
)

const (
	DefaultModel   = "gpt-4o"
	DefaultTimeout = 2 * time.Minute

	metricsTarget = "summarizer"
)

// SystemPrompt instructs the model how to lay out a meeting summary.
const SystemPrompt = `You are an expert summarizer. You write readable, concise, simple content. You are given a transcript of a meeting and you need to summarize it.

Use the following markdown structure for every output:

### Overview
Provide a detailed, engaging summary of the session's content. Focus on major features, user workflows, and any key takeaways. Write in a narrative style, using full sentences. Highlight unique or powerful aspects of the product, platform, or discussion.

### Notes
Break down key content into thematic sections with timestamp ranges. Each section should summarize key points, actions, or demos in bullet format.

Example:
#### Section Name
- Main point or demo shown here
- Another key insight or interaction
- Follow-up tool or explanation provided

#### Next Section
- Feature X automatically does Y
- Mention of integration with Z`

// Config selects and tunes the model behind the summarizer.
type Config struct {
	Provider string
	Model    string
	APIKey   string
	// BaseURL overrides the provider endpoint (server URL for ollama).
	BaseURL string
	// Timeout bounds a single generation attempt.
	Timeout    time.Duration
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// NewModel creates the langchaingo model for the configured provider.
func NewModel(cfg Config) (llms.Model, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	httpClient := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}

	switch cfg.Provider {
	case ProviderOpenAI, "":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		opts := []openai.Option{
			openai.WithToken(cfg.APIKey),
			openai.WithModel(cfg.Model),
			openai.WithHTTPClient(httpClient),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		model, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}
		return model, nil

	case ProviderAnthropic:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("Anthropic API key required")
		}
		opts := []anthropic.Option{
			anthropic.WithToken(cfg.APIKey),
			anthropic.WithModel(cfg.Model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
		}
		model, err := anthropic.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}
		return model, nil

	case ProviderOllama:
		opts := []ollama.Option{
			ollama.WithModel(cfg.Model),
			ollama.WithHTTPClient(httpClient),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
		}
		model, err := ollama.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}
		return model, nil

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}

// Summarizer runs prompts against a model under the summarizer system prompt.
type Summarizer struct {
	model    llms.Model
	executor failsafe.Executor[*llms.ContentResponse]
	metrics  *metrics.Metrics
}

// Ensure that Summarizer implements domain.Summarizer
var _ domain.Summarizer = (*Summarizer)(nil)

// NewSummarizer wraps model with retry and a per-attempt timeout. m may be nil.
func NewSummarizer(model llms.Model, cfg Config, m *metrics.Metrics) *Summarizer {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 2
	}
	return &Summarizer{
		model: model,
		executor: resilience.NewExecutor[*llms.ContentResponse](resilience.Config{
			MaxRetries: cfg.MaxRetries,
			BaseDelay:  cfg.BaseDelay,
			MaxDelay:   cfg.MaxDelay,
			Timeout:    cfg.Timeout,
			OnRetry: func(attempts int, err error) {
				slog.Warn("retrying summarizer request", "attempts", attempts, logging.ErrKey, err)
			},
		}, shouldRetry),
		metrics: m,
	}
}

// Run sends prompt to the model and returns one message per returned choice.
func (s *Summarizer) Run(ctx context.Context, prompt string) ([]domain.GeneratedMessage, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, SystemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}

	startTime := time.Now()
	response, err := s.executor.WithContext(ctx).GetWithExecution(func(exec failsafe.Execution[*llms.ContentResponse]) (*llms.ContentResponse, error) {
		resp, err := s.model.GenerateContent(exec.Context(), messages)
		if err != nil {
			if isFatalAPIError(err) {
				return nil, resilience.Permanent(err)
			}
			return nil, err
		}
		return resp, nil
	})
	if err != nil {
		s.metrics.ExternalCall(metricsTarget, "error")
		slog.ErrorContext(ctx, "summarizer request failed",
			"duration", time.Since(startTime).String(),
			logging.ErrKey, err)
		return nil, domain.NewExternalServiceError("summarizer request failed", err)
	}
	s.metrics.ExternalCall(metricsTarget, "success")

	out := make([]domain.GeneratedMessage, 0, len(response.Choices))
	for _, choice := range response.Choices {
		if choice == nil {
			continue
		}
		out = append(out, domain.GeneratedMessage{Content: choice.Content})
	}

	slog.DebugContext(ctx, "summarizer request completed",
		"duration", time.Since(startTime).String(),
		"messages", len(out))

	return out, nil
}

func shouldRetry(_ *llms.ContentResponse, err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, context.Canceled) && !resilience.IsPermanent(err)
}

// isFatalAPIError reports errors that repeating the request cannot fix,
// such as bad credentials or an exhausted account.
func isFatalAPIError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"invalid api key",
		"incorrect api key",
		"authentication",
		"unauthorized",
		"401",
		"403",
		"insufficient credit",
		"credit balance",
		"billing",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
