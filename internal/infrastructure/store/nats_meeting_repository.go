// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"time"

	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/domain/models"
)

// NatsMeetingRepository is the NATS KV store repository for meetings.
type NatsMeetingRepository struct {
	*NatsBaseRepository[models.Meeting]
	now func() time.Time
}

var _ domain.MeetingRepository = (*NatsMeetingRepository)(nil)

// NewNatsMeetingRepository creates a new NATS KV store repository for meetings.
func NewNatsMeetingRepository(meetings INatsKeyValue) *NatsMeetingRepository {
	return &NatsMeetingRepository{
		NatsBaseRepository: NewNatsBaseRepository[models.Meeting](meetings, "meeting"),
		now:                time.Now,
	}
}

// GetMeeting retrieves a meeting by id.
func (s *NatsMeetingRepository) GetMeeting(ctx context.Context, meetingID string) (*models.Meeting, error) {
	return s.Get(ctx, meetingID)
}

// GetMeetingWithRevision retrieves a meeting with its revision.
func (s *NatsMeetingRepository) GetMeetingWithRevision(ctx context.Context, meetingID string) (*models.Meeting, uint64, error) {
	return s.GetWithRevision(ctx, meetingID)
}

// ConditionalUpdate implements [domain.MeetingRepository].
func (s *NatsMeetingRepository) ConditionalUpdate(
	ctx context.Context,
	meetingID string,
	guard func(models.MeetingStatus) bool,
	mutate models.MeetingMutation,
) (*models.Meeting, bool, error) {
	return s.UpdateIf(ctx, meetingID, func(m *models.Meeting) bool {
		if !guard(m.Status) {
			return false
		}
		now := s.now().UTC()
		mutate(m, now)
		m.UpdatedAt = &now
		return true
	})
}
