// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package domain

import (
	"context"

	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/domain/models"
)

// MeetingRepository defines the interface for meeting storage operations.
// This interface can be implemented by different storage backends (NATS, PostgreSQL, etc.)
type MeetingRepository interface {
	GetMeeting(ctx context.Context, meetingID string) (*models.Meeting, error)
	GetMeetingWithRevision(ctx context.Context, meetingID string) (*models.Meeting, uint64, error)

	// ConditionalUpdate applies mutate to the meeting only if guard holds for
	// its status. The guard is evaluated against the same revision that is
	// written, so concurrent writers cannot interleave between check and write.
	// It returns the stored meeting and whether the mutation was applied.
	// A missing meeting yields a NotFound error.
	ConditionalUpdate(
		ctx context.Context,
		meetingID string,
		guard func(models.MeetingStatus) bool,
		mutate models.MeetingMutation,
	) (*models.Meeting, bool, error)
}

// AgentRepository reads agents written by the agent management service.
type AgentRepository interface {
	GetAgent(ctx context.Context, agentID string) (*models.Agent, error)
	// GetAgents returns the agents found among ids. Missing ids are skipped.
	GetAgents(ctx context.Context, ids []string) ([]*models.Agent, error)
}

// PersonRepository reads people written by the user management service.
type PersonRepository interface {
	// GetPersons returns the people found among ids. Missing ids are skipped.
	GetPersons(ctx context.Context, ids []string) ([]*models.Person, error)
}

// CheckpointStore records the output of completed pipeline steps so that a
// redelivered job resumes instead of recomputing.
type CheckpointStore interface {
	// Load decodes the recorded output of step for job into out.
	// It reports false when nothing has been recorded.
	Load(ctx context.Context, jobID, step string, out any) (bool, error)
	Save(ctx context.Context, jobID, step string, output any) error
}
