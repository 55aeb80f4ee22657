// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/domain/models"
)

// MockAgentRepository implements AgentRepository for testing
type MockAgentRepository struct {
	mock.Mock
}

func (m *MockAgentRepository) GetAgent(ctx context.Context, agentID string) (*models.Agent, error) {
	args := m.Called(ctx, agentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Agent), args.Error(1)
}

func (m *MockAgentRepository) GetAgents(ctx context.Context, ids []string) ([]*models.Agent, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Agent), args.Error(1)
}

// MockPersonRepository implements PersonRepository for testing
type MockPersonRepository struct {
	mock.Mock
}

func (m *MockPersonRepository) GetPersons(ctx context.Context, ids []string) ([]*models.Person, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Person), args.Error(1)
}
