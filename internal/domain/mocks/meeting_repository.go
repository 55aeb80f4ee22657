// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/domain/models"
)

// MockMeetingRepository implements MeetingRepository for testing
type MockMeetingRepository struct {
	mock.Mock
}

func (m *MockMeetingRepository) GetMeeting(ctx context.Context, meetingID string) (*models.Meeting, error) {
	args := m.Called(ctx, meetingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Meeting), args.Error(1)
}

func (m *MockMeetingRepository) GetMeetingWithRevision(ctx context.Context, meetingID string) (*models.Meeting, uint64, error) {
	args := m.Called(ctx, meetingID)
	if args.Get(0) == nil {
		return nil, args.Get(1).(uint64), args.Error(2)
	}
	return args.Get(0).(*models.Meeting), args.Get(1).(uint64), args.Error(2)
}

func (m *MockMeetingRepository) ConditionalUpdate(
	ctx context.Context,
	meetingID string,
	guard func(models.MeetingStatus) bool,
	mutate models.MeetingMutation,
) (*models.Meeting, bool, error) {
	args := m.Called(ctx, meetingID, guard, mutate)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*models.Meeting), args.Bool(1), args.Error(2)
}
