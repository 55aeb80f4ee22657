// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

// fakeModel is a scripted llms.Model.
type fakeModel struct {
	mu        sync.Mutex
	calls     int
	responses []*llms.ContentResponse
	errs      []error
	messages  []llms.MessageContent
}

func (f *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	f.messages = messages
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return f.responses[len(f.responses)-1], nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func response(contents ...string) *llms.ContentResponse {
	resp := &llms.ContentResponse{}
	for _, c := range contents {
		resp.Choices = append(resp.Choices, &llms.ContentChoice{Content: c})
	}
	return resp
}

func fastConfig() Config {
	return Config{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Timeout: time.Second}
}

func TestSummarizer_Run(t *testing.T) {
	ctx := context.Background()

	t.Run("sends system and user prompt and returns choices", func(t *testing.T) {
		model := &fakeModel{responses: []*llms.ContentResponse{response("S")}}

		msgs, err := NewSummarizer(model, fastConfig(), nil).Run(ctx, "Summarize the following transcript: []")

		require.NoError(t, err)
		require.Len(t, msgs, 1)
		assert.Equal(t, "S", msgs[0].Content)
		require.Len(t, model.messages, 2)
		assert.Equal(t, llms.ChatMessageTypeSystem, model.messages[0].Role)
		assert.Equal(t, llms.TextContent{Text: SystemPrompt}, model.messages[0].Parts[0])
		assert.Equal(t, llms.ChatMessageTypeHuman, model.messages[1].Role)
		assert.Equal(t, llms.TextContent{Text: "Summarize the following transcript: []"}, model.messages[1].Parts[0])
	})

	t.Run("no choices yields no messages", func(t *testing.T) {
		model := &fakeModel{responses: []*llms.ContentResponse{response()}}

		msgs, err := NewSummarizer(model, fastConfig(), nil).Run(ctx, "p")

		require.NoError(t, err)
		assert.Empty(t, msgs)
	})

	t.Run("transient failures are retried", func(t *testing.T) {
		model := &fakeModel{
			errs:      []error{errors.New("connection reset"), nil},
			responses: []*llms.ContentResponse{nil, response("S")},
		}

		msgs, err := NewSummarizer(model, fastConfig(), nil).Run(ctx, "p")

		require.NoError(t, err)
		assert.Equal(t, "S", msgs[0].Content)
		assert.Equal(t, 2, model.calls)
	})

	t.Run("fatal failures are not retried", func(t *testing.T) {
		model := &fakeModel{
			errs:      []error{errors.New("HTTP 401: invalid api key")},
			responses: []*llms.ContentResponse{response("never")},
		}

		_, err := NewSummarizer(model, fastConfig(), nil).Run(ctx, "p")

		require.Error(t, err)
		assert.Equal(t, domain.ErrorTypeExternal, domain.GetErrorType(err))
		assert.Equal(t, 1, model.calls)
	})

	t.Run("exhausted retries surface as external service error", func(t *testing.T) {
		boom := errors.New("upstream overloaded")
		model := &fakeModel{
			errs:      []error{boom, boom, boom},
			responses: []*llms.ContentResponse{response("never")},
		}

		_, err := NewSummarizer(model, fastConfig(), nil).Run(ctx, "p")

		assert.ErrorIs(t, err, boom)
		assert.Equal(t, domain.ErrorTypeExternal, domain.GetErrorType(err))
		assert.Equal(t, 3, model.calls)
	})
}

func TestIsFatalAPIError(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		fatal bool
	}{
		{"nil error", nil, false},
		{"generic error", errors.New("connection reset"), false},
		{"credit balance", errors.New("insufficient credit balance"), true},
		{"invalid api key", errors.New("invalid api key"), true},
		{"403 status", errors.New("HTTP 403: forbidden"), true},
		{"rate limit is transient", errors.New("rate limit exceeded"), false},
		{"timeout is transient", errors.New("context deadline exceeded"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.fatal, isFatalAPIError(tt.err))
		})
	}
}

func TestNewModel(t *testing.T) {
	tests := []struct {
		name      string
		cfg       Config
		expectErr bool
	}{
		{name: "openai without key", cfg: Config{Provider: ProviderOpenAI}, expectErr: true},
		{name: "anthropic without key", cfg: Config{Provider: ProviderAnthropic}, expectErr: true},
		{name: "unknown provider", cfg: Config{Provider: "mystery", APIKey: "k"}, expectErr: true},
		{name: "openai with key", cfg: Config{Provider: ProviderOpenAI, APIKey: "k"}},
		{name: "ollama needs no key", cfg: Config{Provider: ProviderOllama, Model: "llama3", BaseURL: "http://localhost:11434"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model, err := NewModel(tt.cfg)
			if tt.expectErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, model)
		})
	}
}
