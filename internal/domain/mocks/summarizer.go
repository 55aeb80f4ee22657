// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/domain/models"
)

// MockSummarizer implements Summarizer for testing
type MockSummarizer struct {
	mock.Mock
}

func (m *MockSummarizer) Run(ctx context.Context, prompt string) ([]domain.GeneratedMessage, error) {
	args := m.Called(ctx, prompt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.GeneratedMessage), args.Error(1)
}

// MockTranscriptFetcher implements TranscriptFetcher for testing
type MockTranscriptFetcher struct {
	mock.Mock
}

func (m *MockTranscriptFetcher) Fetch(ctx context.Context, url string) (string, error) {
	args := m.Called(ctx, url)
	return args.String(0), args.Error(1)
}

// MockJobEnqueuer implements JobEnqueuer for testing
type MockJobEnqueuer struct {
	mock.Mock
}

func (m *MockJobEnqueuer) Enqueue(ctx context.Context, job models.ProcessingJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *MockJobEnqueuer) IsReady(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
