// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/domain/models"
	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/logging"
	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/metrics"
)

// Transition results, used as metric labels.
const (
	transitionApplied  = "applied"
	transitionSkipped  = "skipped"
	transitionNotFound = "not_found"
	transitionFailed   = "failed"
)

// MeetingLifecycleService moves meetings through their lifecycle in response
// to video provider events. Every status change is a conditional write, so
// duplicate and out-of-order events cannot move a meeting backwards or repeat
// a transition.
type MeetingLifecycleService struct {
	meetings domain.MeetingRepository
	agents   domain.AgentRepository
	video    domain.VideoProvider
	jobs     domain.JobEnqueuer
	metrics  *metrics.Metrics
	newJobID func() string
}

// Ensure that MeetingLifecycleService handles every video event
var _ models.VideoEventVisitor = (*MeetingLifecycleService)(nil)

// NewMeetingLifecycleService creates a new MeetingLifecycleService. m may be nil.
func NewMeetingLifecycleService(
	meetings domain.MeetingRepository,
	agents domain.AgentRepository,
	video domain.VideoProvider,
	jobs domain.JobEnqueuer,
	m *metrics.Metrics,
) *MeetingLifecycleService {
	return &MeetingLifecycleService{
		meetings: meetings,
		agents:   agents,
		video:    video,
		jobs:     jobs,
		metrics:  m,
		newJobID: uuid.NewString,
	}
}

// ServiceReady checks if the service is ready to process events
func (s *MeetingLifecycleService) ServiceReady() bool {
	return s.meetings != nil && s.agents != nil && s.video != nil && s.jobs != nil
}

// HandleEvent dispatches event to its transition.
func (s *MeetingLifecycleService) HandleEvent(ctx context.Context, event models.VideoWebhookEvent) error {
	ctx = logging.AppendCtx(ctx, slog.String(logging.EventTypeKey, event.EventType()))
	return event.Accept(ctx, s)
}

// transition runs a conditional update and records its outcome. A missing
// meeting is reported as not applied without error.
func (s *MeetingLifecycleService) transition(
	ctx context.Context,
	eventType string,
	meetingID string,
	guard func(models.MeetingStatus) bool,
	mutate models.MeetingMutation,
) (*models.Meeting, bool, error) {
	meeting, applied, err := s.meetings.ConditionalUpdate(ctx, meetingID, guard, mutate)
	if err != nil {
		if domain.GetErrorType(err) == domain.ErrorTypeNotFound {
			slog.WarnContext(ctx, "meeting not found, ignoring event", logging.ErrKey, err)
			s.metrics.Transition(eventType, transitionNotFound)
			return nil, false, nil
		}
		slog.ErrorContext(ctx, "error updating meeting", logging.ErrKey, err)
		s.metrics.Transition(eventType, transitionFailed)
		return nil, false, err
	}

	if !applied {
		slog.DebugContext(ctx, "meeting status does not allow transition, ignoring event",
			"status", meeting.Status)
		s.metrics.Transition(eventType, transitionSkipped)
		return meeting, false, nil
	}

	slog.InfoContext(ctx, "meeting updated", "status", meeting.Status)
	s.metrics.Transition(eventType, transitionApplied)
	return meeting, true, nil
}

// OnSessionStarted activates an upcoming meeting and brings its agent into the call.
func (s *MeetingLifecycleService) OnSessionStarted(ctx context.Context, e models.SessionStartedEvent) error {
	if e.MeetingID == "" {
		return domain.NewValidationError("missing meeting id")
	}
	ctx = logging.AppendCtx(ctx, slog.String(logging.MeetingIDKey, e.MeetingID))

	meeting, applied, err := s.transition(ctx, e.EventType(), e.MeetingID,
		models.StatusNotIn(
			models.MeetingStatusCompleted,
			models.MeetingStatusActive,
			models.MeetingStatusCanceled,
			models.MeetingStatusProcessing,
		),
		func(m *models.Meeting, now time.Time) {
			m.Status = models.MeetingStatusActive
			m.StartedAt = &now
		},
	)
	if err != nil || !applied {
		return err
	}

	agent, err := s.agents.GetAgent(ctx, meeting.AgentID)
	if err != nil {
		if domain.GetErrorType(err) == domain.ErrorTypeNotFound {
			slog.ErrorContext(ctx, "meeting references an agent that does not exist",
				"agent_id", meeting.AgentID,
				logging.ErrKey, err,
				logging.PriorityCritical())
			return domain.NewNotFoundError("agent not found", domain.ErrAgentNotFound)
		}
		slog.ErrorContext(ctx, "error getting agent", "agent_id", meeting.AgentID, logging.ErrKey, err)
		return err
	}

	call := e.Call
	if call.ID == "" {
		call.ID = e.MeetingID
	}

	session, err := s.video.ConnectAgent(ctx, call, agent.ID)
	if err != nil {
		slog.ErrorContext(ctx, "error connecting agent to call",
			"agent_id", agent.ID,
			"call_cid", call.CID(),
			logging.ErrKey, err,
			logging.PriorityCritical())
		return err
	}

	if err := session.UpdateInstructions(ctx, agent.Instructions); err != nil {
		slog.ErrorContext(ctx, "error sending instructions to agent",
			"agent_id", agent.ID,
			"call_cid", call.CID(),
			logging.ErrKey, err,
			logging.PriorityCritical())
		return err
	}

	slog.InfoContext(ctx, "agent joined call", "agent_id", agent.ID, "call_cid", call.CID())
	return nil
}

// OnSessionParticipantLeft ends the call. The meeting itself is left alone;
// the session ended event moves it on.
func (s *MeetingLifecycleService) OnSessionParticipantLeft(ctx context.Context, e models.SessionParticipantLeftEvent) error {
	if e.Call.ID == "" {
		return domain.NewValidationError("missing call id")
	}

	if err := s.video.EndCall(ctx, e.Call); err != nil {
		slog.ErrorContext(ctx, "error ending call", "call_cid", e.Call.CID(), logging.ErrKey, err)
		return err
	}

	slog.InfoContext(ctx, "call ended after participant left",
		"call_cid", e.Call.CID(),
		"participant_id", e.ParticipantID)
	return nil
}

// OnSessionEnded moves an active meeting to processing.
func (s *MeetingLifecycleService) OnSessionEnded(ctx context.Context, e models.SessionEndedEvent) error {
	if e.MeetingID == "" {
		return domain.NewValidationError("missing meeting id")
	}
	ctx = logging.AppendCtx(ctx, slog.String(logging.MeetingIDKey, e.MeetingID))

	_, _, err := s.transition(ctx, e.EventType(), e.MeetingID,
		models.StatusIn(models.MeetingStatusActive),
		func(m *models.Meeting, now time.Time) {
			m.Status = models.MeetingStatusProcessing
			m.EndedAt = &now
		},
	)
	return err
}

// OnTranscriptionReady records the transcript location and enqueues its processing.
// Every delivery enqueues a job; the pipeline tolerates duplicates.
func (s *MeetingLifecycleService) OnTranscriptionReady(ctx context.Context, e models.TranscriptionReadyEvent) error {
	if e.MeetingID == "" {
		return domain.NewValidationError("missing meeting id")
	}
	if e.URL == "" {
		return domain.NewValidationError("missing transcript url")
	}
	ctx = logging.AppendCtx(ctx, slog.String(logging.MeetingIDKey, e.MeetingID))

	meeting, applied, err := s.transition(ctx, e.EventType(), e.MeetingID, models.AnyStatus,
		func(m *models.Meeting, _ time.Time) {
			m.TranscriptURL = e.URL
		},
	)
	if err != nil || !applied {
		return err
	}

	job := models.ProcessingJob{
		Name: models.ProcessingJobName,
		ID:   s.newJobID(),
		Data: models.ProcessingJobData{
			MeetingID:     meeting.ID,
			TranscriptURL: e.URL,
		},
	}
	if job.Data.MeetingID == "" {
		job.Data.MeetingID = e.MeetingID
	}

	if err := s.jobs.Enqueue(ctx, job); err != nil {
		slog.ErrorContext(ctx, "error enqueuing processing job", logging.JobIDKey, job.ID, logging.ErrKey, err)
		var domainErr *domain.DomainError
		if errors.As(err, &domainErr) {
			return err
		}
		return domain.NewInternalError("failed to enqueue processing job", err)
	}

	slog.InfoContext(ctx, "enqueued transcript processing", logging.JobIDKey, job.ID)
	return nil
}

// OnRecordingReady records the recording location.
func (s *MeetingLifecycleService) OnRecordingReady(ctx context.Context, e models.RecordingReadyEvent) error {
	if e.MeetingID == "" {
		return domain.NewValidationError("missing meeting id")
	}
	if e.URL == "" {
		return domain.NewValidationError("missing recording url")
	}
	ctx = logging.AppendCtx(ctx, slog.String(logging.MeetingIDKey, e.MeetingID))

	_, _, err := s.transition(ctx, e.EventType(), e.MeetingID, models.AnyStatus,
		func(m *models.Meeting, _ time.Time) {
			m.RecordingURL = e.URL
		},
	)
	return err
}

// OnUnknown ignores events the service does not act on.
func (s *MeetingLifecycleService) OnUnknown(ctx context.Context, e models.UnknownEvent) error {
	slog.DebugContext(ctx, "ignoring unhandled video event")
	return nil
}
