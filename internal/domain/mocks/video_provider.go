// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/domain/models"
)

// MockVideoProvider implements VideoProvider for testing
type MockVideoProvider struct {
	mock.Mock
}

func (m *MockVideoProvider) EndCall(ctx context.Context, call models.CallRef) error {
	args := m.Called(ctx, call)
	return args.Error(0)
}

func (m *MockVideoProvider) ConnectAgent(ctx context.Context, call models.CallRef, agentID string) (domain.AgentSession, error) {
	args := m.Called(ctx, call, agentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(domain.AgentSession), args.Error(1)
}

// MockAgentSession implements AgentSession for testing
type MockAgentSession struct {
	mock.Mock
}

func (m *MockAgentSession) UpdateInstructions(ctx context.Context, instructions string) error {
	args := m.Called(ctx, instructions)
	return args.Error(0)
}

// MockWebhookValidator implements WebhookValidator for testing
type MockWebhookValidator struct {
	mock.Mock
}

func (m *MockWebhookValidator) ValidateSignature(body []byte, signature string) error {
	args := m.Called(body, signature)
	return args.Error(0)
}

func (m *MockWebhookValidator) ValidateAPIKey(apiKey string) error {
	args := m.Called(apiKey)
	return args.Error(0)
}
