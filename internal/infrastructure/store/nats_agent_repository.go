// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package store

import (
	"context"

	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/domain/models"
)

// NatsAgentRepository reads agents from the NATS KV store.
type NatsAgentRepository struct {
	*NatsBaseRepository[models.Agent]
}

var _ domain.AgentRepository = (*NatsAgentRepository)(nil)

// NewNatsAgentRepository creates a new NATS KV store repository for agents.
func NewNatsAgentRepository(agents INatsKeyValue) *NatsAgentRepository {
	return &NatsAgentRepository{
		NatsBaseRepository: NewNatsBaseRepository[models.Agent](agents, "agent"),
	}
}

func (s *NatsAgentRepository) GetAgent(ctx context.Context, agentID string) (*models.Agent, error) {
	return s.Get(ctx, agentID)
}

func (s *NatsAgentRepository) GetAgents(ctx context.Context, ids []string) ([]*models.Agent, error) {
	return s.GetMany(ctx, ids)
}

// NatsPersonRepository reads people from the NATS KV store.
type NatsPersonRepository struct {
	*NatsBaseRepository[models.Person]
}

var _ domain.PersonRepository = (*NatsPersonRepository)(nil)

// NewNatsPersonRepository creates a new NATS KV store repository for people.
func NewNatsPersonRepository(persons INatsKeyValue) *NatsPersonRepository {
	return &NatsPersonRepository{
		NatsBaseRepository: NewNatsBaseRepository[models.Person](persons, "person"),
	}
}

func (s *NatsPersonRepository) GetPersons(ctx context.Context, ids []string) ([]*models.Person, error) {
	return s.GetMany(ctx, ids)
}
