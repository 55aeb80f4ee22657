// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/domain/mocks"
	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/domain/models"
	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/infrastructure/store"
	videowebhook "github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/infrastructure/video/webhook"
	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/middleware"
	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/service"
	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/pkg/constants"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	testAPIKey    = "app-key"
	testAPISecret = "app-secret"
)

type webhookFixture struct {
	kv      *store.MockNatsKeyValue
	agents  *mocks.MockAgentRepository
	video   *mocks.MockVideoProvider
	jobs    *mocks.MockJobEnqueuer
	handler http.Handler
}

func newWebhookFixture(t *testing.T) *webhookFixture {
	t.Helper()
	f := &webhookFixture{
		kv:     store.NewMockNatsKeyValue(),
		agents: new(mocks.MockAgentRepository),
		video:  new(mocks.MockVideoProvider),
		jobs:   new(mocks.MockJobEnqueuer),
	}
	lifecycle := service.NewMeetingLifecycleService(
		store.NewNatsMeetingRepository(f.kv),
		f.agents,
		f.video,
		f.jobs,
		nil,
	)
	h := NewVideoWebhookHandler(lifecycle, videowebhook.NewVideoWebhookValidator(testAPIKey, testAPISecret), nil)
	f.handler = middleware.WebhookBodyCaptureMiddleware()(h)
	return f
}

func (f *webhookFixture) seed(status models.MeetingStatus) {
	f.kv.Seed("m-1", models.Meeting{ID: "m-1", Name: "Tutoring", AgentID: "a-1", UserID: "u-1", Status: status})
}

func (f *webhookFixture) meeting(t *testing.T) models.Meeting {
	t.Helper()
	var m models.Meeting
	require.True(t, f.kv.Load("m-1", &m))
	return m
}

// post sends body signed with the test secret unless headers overrides them.
func (f *webhookFixture) post(body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, constants.VideoWebhookPath, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(constants.SignatureHeader, videowebhook.Sign(testAPISecret, []byte(body)))
	req.Header.Set(constants.APIKeyHeader, testAPIKey)
	for k, v := range headers {
		if v == "" {
			req.Header.Del(k)
			continue
		}
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestVideoWebhookHandler_Authentication(t *testing.T) {
	body := `{"type":"call.session_ended","call_cid":"default:m-1"}`

	tests := []struct {
		name       string
		headers    map[string]string
		wantStatus int
		wantError  string
	}{
		{
			name:       "missing signature",
			headers:    map[string]string{constants.SignatureHeader: ""},
			wantStatus: http.StatusBadRequest,
			wantError:  "Missing signature or API key",
		},
		{
			name:       "missing api key",
			headers:    map[string]string{constants.APIKeyHeader: ""},
			wantStatus: http.StatusBadRequest,
			wantError:  "Missing signature or API key",
		},
		{
			name:       "invalid signature",
			headers:    map[string]string{constants.SignatureHeader: videowebhook.Sign("other-secret", []byte(body))},
			wantStatus: http.StatusUnauthorized,
			wantError:  "Invalid signature",
		},
		{
			name:       "wrong api key",
			headers:    map[string]string{constants.APIKeyHeader: "someone-else"},
			wantStatus: http.StatusUnauthorized,
			wantError:  "Invalid API key",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newWebhookFixture(t)
			f.seed(models.MeetingStatusActive)

			w := f.post(body, tt.headers)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantError, decodeBody(t, w)["error"])
			assert.Zero(t, f.kv.Writes())
			assert.Equal(t, models.MeetingStatusActive, f.meeting(t).Status)
		})
	}
}

func TestVideoWebhookHandler_InvalidJSON(t *testing.T) {
	f := newWebhookFixture(t)

	w := f.post(`{"type":`, nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid JSON", decodeBody(t, w)["error"])
}

func TestVideoWebhookHandler_UnknownEvent(t *testing.T) {
	f := newWebhookFixture(t)
	f.seed(models.MeetingStatusActive)

	w := f.post(`{"type":"call.member_added","call_cid":"default:m-1"}`, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "success", decodeBody(t, w)["status"])
	assert.Zero(t, f.kv.Writes())
}

func TestVideoWebhookHandler_NonStringTypeIsIgnored(t *testing.T) {
	f := newWebhookFixture(t)
	f.seed(models.MeetingStatusActive)

	w := f.post(`{"type":5,"call_cid":"default:m-1"}`, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "success", decodeBody(t, w)["status"])
	assert.Zero(t, f.kv.Writes())
}

func TestVideoWebhookHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		setup      func(f *webhookFixture)
		wantStatus int
	}{
		{
			name:       "missing meeting id is a bad request",
			body:       `{"type":"call.session_started"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "non-object call is a missing meeting id",
			body:       `{"type":"call.session_started","call":"x"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "non-string transcript url is a missing url",
			body:       `{"type":"call.transcription_ready","call_cid":"default:m-1","call_transcription":{"url":5}}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing transcript url is a bad request",
			body:       `{"type":"call.transcription_ready","call_cid":"default:m-1"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "dangling agent is not found",
			body: `{"type":"call.session_started","call_cid":"default:m-1","call":{"custom":{"meetingId":"m-1"}}}`,
			setup: func(f *webhookFixture) {
				f.seed(models.MeetingStatusUpcoming)
				f.agents.On("GetAgent", mock.Anything, "a-1").
					Return(nil, domain.NewNotFoundError("agent not found", domain.ErrAgentNotFound))
			},
			wantStatus: http.StatusNotFound,
		},
		{
			name: "video provider failure is a bad gateway",
			body: `{"type":"call.session_started","call_cid":"default:m-1"}`,
			setup: func(f *webhookFixture) {
				f.seed(models.MeetingStatusUpcoming)
				f.agents.On("GetAgent", mock.Anything, "a-1").Return(&models.Agent{ID: "a-1", Instructions: "Be helpful"}, nil)
				f.video.On("ConnectAgent", mock.Anything, mock.Anything, "a-1").
					Return(nil, domain.NewExternalServiceError("connect failed"))
			},
			wantStatus: http.StatusBadGateway,
		},
		{
			name: "unavailable job queue is service unavailable",
			body: `{"type":"call.transcription_ready","call_cid":"default:m-1","call_transcription":{"url":"https://t/1.jsonl"}}`,
			setup: func(f *webhookFixture) {
				f.seed(models.MeetingStatusProcessing)
				f.jobs.On("Enqueue", mock.Anything, mock.Anything).
					Return(domain.NewUnavailableError("nats is not connected"))
			},
			wantStatus: http.StatusServiceUnavailable,
		},
		{
			name:       "missing meeting is ignored",
			body:       `{"type":"call.session_ended","call_cid":"default:m-404"}`,
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newWebhookFixture(t)
			if tt.setup != nil {
				tt.setup(f)
			}

			w := f.post(tt.body, nil)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus != http.StatusOK {
				assert.NotEmpty(t, decodeBody(t, w)["error"])
			}
		})
	}
}

func TestVideoWebhookHandler_MeetingLifecycle(t *testing.T) {
	f := newWebhookFixture(t)
	f.seed(models.MeetingStatusUpcoming)
	session := new(mocks.MockAgentSession)
	f.agents.On("GetAgent", mock.Anything, "a-1").Return(&models.Agent{ID: "a-1", Name: "Tutor", Instructions: "Be helpful"}, nil)
	f.video.On("ConnectAgent", mock.Anything, models.CallRef{Type: "default", ID: "m-1"}, "a-1").Return(session, nil).Once()
	session.On("UpdateInstructions", mock.Anything, "Be helpful").Return(nil).Once()
	f.video.On("EndCall", mock.Anything, models.CallRef{Type: "default", ID: "m-1"}).Return(nil).Once()
	var enqueued models.ProcessingJob
	f.jobs.On("Enqueue", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { enqueued = args.Get(1).(models.ProcessingJob) }).
		Return(nil).Once()

	started := `{"type":"call.session_started","call_cid":"default:m-1","call":{"custom":{"meetingId":"m-1"}}}`
	require.Equal(t, http.StatusOK, f.post(started, nil).Code)
	assert.Equal(t, models.MeetingStatusActive, f.meeting(t).Status)
	assert.NotNil(t, f.meeting(t).StartedAt)

	// A replayed start is acknowledged without reconnecting the agent.
	require.Equal(t, http.StatusOK, f.post(started, nil).Code)

	left := `{"type":"call.session_participant_left","call_cid":"default:m-1","participant":{"user":{"id":"u-1"}}}`
	require.Equal(t, http.StatusOK, f.post(left, nil).Code)

	ended := `{"type":"call.session_ended","call_cid":"default:m-1"}`
	require.Equal(t, http.StatusOK, f.post(ended, nil).Code)
	assert.Equal(t, models.MeetingStatusProcessing, f.meeting(t).Status)

	transcribed := `{"type":"call.transcription_ready","call_cid":"default:m-1","call_transcription":{"url":"https://storage.example.com/m-1.jsonl"}}`
	require.Equal(t, http.StatusOK, f.post(transcribed, nil).Code)
	assert.Equal(t, "https://storage.example.com/m-1.jsonl", f.meeting(t).TranscriptURL)
	assert.Equal(t, "m-1", enqueued.Data.MeetingID)
	assert.Equal(t, "https://storage.example.com/m-1.jsonl", enqueued.Data.TranscriptURL)
	assert.Equal(t, models.ProcessingJobName, enqueued.Name)

	recorded := `{"type":"call.recording_ready","call_cid":"default:m-1","call_recording":{"url":"https://storage.example.com/m-1.mp4"}}`
	require.Equal(t, http.StatusOK, f.post(recorded, nil).Code)
	assert.Equal(t, "https://storage.example.com/m-1.mp4", f.meeting(t).RecordingURL)

	f.video.AssertExpectations(t)
	session.AssertExpectations(t)
	f.jobs.AssertExpectations(t)
}

func TestVideoWebhookHandler_WithoutBodyCapture(t *testing.T) {
	f := newWebhookFixture(t)
	f.seed(models.MeetingStatusActive)
	lifecycle := service.NewMeetingLifecycleService(store.NewNatsMeetingRepository(f.kv), f.agents, f.video, f.jobs, nil)
	h := NewVideoWebhookHandler(lifecycle, videowebhook.NewVideoWebhookValidator(testAPIKey, testAPISecret), nil)

	body := `{"type":"call.session_ended","call_cid":"default:m-1"}`
	req := httptest.NewRequest(http.MethodPost, constants.VideoWebhookPath, strings.NewReader(body))
	req.Header.Set(constants.SignatureHeader, videowebhook.Sign(testAPISecret, []byte(body)))
	req.Header.Set(constants.APIKeyHeader, testAPIKey)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.MeetingStatusProcessing, f.meeting(t).Status)
	assert.True(t, h.HandlerReady())
}
