// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package models

import (
	"context"
	"encoding/json"
	"strings"
)

// Video provider webhook event types.
const (
	VideoEventSessionStarted         = "call.session_started"
	VideoEventSessionParticipantLeft = "call.session_participant_left"
	VideoEventSessionEnded           = "call.session_ended"
	VideoEventTranscriptionReady     = "call.transcription_ready"
	VideoEventRecordingReady         = "call.recording_ready"
)

// CallRef identifies a call on the video provider. The provider encodes it
// as a call cid of the form "<type>:<id>".
type CallRef struct {
	Type string
	ID   string
}

// CID returns the "<type>:<id>" form of the reference.
func (c CallRef) CID() string {
	if c.Type == "" {
		return c.ID
	}
	return c.Type + ":" + c.ID
}

// ParseCallCID splits a call cid into its type and id. A cid without a
// type prefix yields an empty type.
func ParseCallCID(cid string) CallRef {
	callType, callID, found := strings.Cut(cid, ":")
	if !found {
		return CallRef{ID: cid}
	}
	return CallRef{Type: callType, ID: callID}
}

// VideoWebhookEvent is the closed set of webhook events the service reacts to.
// Implementations live only in this package.
type VideoWebhookEvent interface {
	EventType() string
	Accept(ctx context.Context, v VideoEventVisitor) error
	sealed()
}

// VideoEventVisitor handles every variant of VideoWebhookEvent. Adding a
// variant adds a method here, so every dispatcher must handle it.
type VideoEventVisitor interface {
	OnSessionStarted(ctx context.Context, e SessionStartedEvent) error
	OnSessionParticipantLeft(ctx context.Context, e SessionParticipantLeftEvent) error
	OnSessionEnded(ctx context.Context, e SessionEndedEvent) error
	OnTranscriptionReady(ctx context.Context, e TranscriptionReadyEvent) error
	OnRecordingReady(ctx context.Context, e RecordingReadyEvent) error
	OnUnknown(ctx context.Context, e UnknownEvent) error
}

// SessionStartedEvent is sent when the first participant joins the call.
type SessionStartedEvent struct {
	MeetingID string
	Call      CallRef
}

// SessionParticipantLeftEvent is sent when a participant leaves the call.
type SessionParticipantLeftEvent struct {
	Call          CallRef
	ParticipantID string
}

// SessionEndedEvent is sent when the call session is over.
type SessionEndedEvent struct {
	MeetingID string
	Call      CallRef
}

// TranscriptionReadyEvent carries the location of the finished transcript.
type TranscriptionReadyEvent struct {
	MeetingID string
	URL       string
}

// RecordingReadyEvent carries the location of the finished recording.
type RecordingReadyEvent struct {
	MeetingID string
	URL       string
}

// UnknownEvent is any event type the service does not act on.
type UnknownEvent struct {
	Type string
}

func (SessionStartedEvent) EventType() string         { return VideoEventSessionStarted }
func (SessionParticipantLeftEvent) EventType() string { return VideoEventSessionParticipantLeft }
func (SessionEndedEvent) EventType() string           { return VideoEventSessionEnded }
func (TranscriptionReadyEvent) EventType() string     { return VideoEventTranscriptionReady }
func (RecordingReadyEvent) EventType() string         { return VideoEventRecordingReady }
func (e UnknownEvent) EventType() string              { return e.Type }

func (e SessionStartedEvent) Accept(ctx context.Context, v VideoEventVisitor) error {
	return v.OnSessionStarted(ctx, e)
}

func (e SessionParticipantLeftEvent) Accept(ctx context.Context, v VideoEventVisitor) error {
	return v.OnSessionParticipantLeft(ctx, e)
}

func (e SessionEndedEvent) Accept(ctx context.Context, v VideoEventVisitor) error {
	return v.OnSessionEnded(ctx, e)
}

func (e TranscriptionReadyEvent) Accept(ctx context.Context, v VideoEventVisitor) error {
	return v.OnTranscriptionReady(ctx, e)
}

func (e RecordingReadyEvent) Accept(ctx context.Context, v VideoEventVisitor) error {
	return v.OnRecordingReady(ctx, e)
}

func (e UnknownEvent) Accept(ctx context.Context, v VideoEventVisitor) error {
	return v.OnUnknown(ctx, e)
}

func (SessionStartedEvent) sealed()         {}
func (SessionParticipantLeftEvent) sealed() {}
func (SessionEndedEvent) sealed()           {}
func (TranscriptionReadyEvent) sealed()     {}
func (RecordingReadyEvent) sealed()         {}
func (UnknownEvent) sealed()                {}

// VideoWebhookPayload is the subset of the provider's webhook body the service reads.
// Fields of an unexpected JSON type decode as empty rather than failing the
// whole body, so a wrong-typed type is an unknown event and a wrong-typed
// identifier is a missing one.
type VideoWebhookPayload struct {
	Type              looseString         `json:"type"`
	CallCID           looseString         `json:"call_cid"`
	Call              *webhookCall        `json:"call,omitempty"`
	Participant       *webhookParticipant `json:"participant,omitempty"`
	CallTranscription *webhookFile        `json:"call_transcription,omitempty"`
	CallRecording     *webhookFile        `json:"call_recording,omitempty"`
}

type webhookCall struct {
	CID    looseString `json:"cid"`
	ID     looseString `json:"id"`
	Type   looseString `json:"type"`
	Custom looseObject `json:"custom"`
}

type webhookParticipant struct {
	User webhookUser `json:"user"`
}

type webhookUser struct {
	ID looseString `json:"id"`
}

type webhookFile struct {
	URL looseString `json:"url"`
}

// looseString keeps a JSON string and ignores any other value.
type looseString string

// looseObject keeps a JSON object and ignores any other value.
type looseObject map[string]any

func (s *looseString) UnmarshalJSON(b []byte) error {
	var v string
	decodeLoose(b, &v)
	*s = looseString(v)
	return nil
}

func (o *looseObject) UnmarshalJSON(b []byte) error {
	var v map[string]any
	decodeLoose(b, &v)
	*o = v
	return nil
}

func (c *webhookCall) UnmarshalJSON(b []byte) error {
	type plain webhookCall
	var v plain
	decodeLoose(b, &v)
	*c = webhookCall(v)
	return nil
}

func (p *webhookParticipant) UnmarshalJSON(b []byte) error {
	type plain webhookParticipant
	var v plain
	decodeLoose(b, &v)
	*p = webhookParticipant(v)
	return nil
}

func (u *webhookUser) UnmarshalJSON(b []byte) error {
	type plain webhookUser
	var v plain
	decodeLoose(b, &v)
	*u = webhookUser(v)
	return nil
}

func (f *webhookFile) UnmarshalJSON(b []byte) error {
	type plain webhookFile
	var v plain
	decodeLoose(b, &v)
	*f = webhookFile(v)
	return nil
}

// decodeLoose decodes b into dst, leaving dst untouched when b has another shape.
func decodeLoose[T any](b []byte, dst *T) {
	var v T
	if err := json.Unmarshal(b, &v); err == nil {
		*dst = v
	}
}

// ParseVideoWebhookPayload decodes a raw webhook body. Only a body that is
// not a JSON object is an error.
func ParseVideoWebhookPayload(body []byte) (*VideoWebhookPayload, error) {
	var payload VideoWebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// CallRef returns the call the event refers to, preferring call_cid over the
// embedded call object.
func (p *VideoWebhookPayload) CallRef() CallRef {
	if p.CallCID != "" {
		return ParseCallCID(string(p.CallCID))
	}
	if p.Call == nil {
		return CallRef{}
	}
	if p.Call.CID != "" {
		return ParseCallCID(string(p.Call.CID))
	}
	return CallRef{Type: string(p.Call.Type), ID: string(p.Call.ID)}
}

// MeetingID returns the meeting the event refers to. The meeting id stored
// in the call's custom data wins; otherwise the call id doubles as the
// meeting id, which is how calls are created for meetings.
func (p *VideoWebhookPayload) MeetingID() string {
	if p.Call != nil {
		if id, ok := p.Call.Custom["meetingId"].(string); ok && id != "" {
			return id
		}
	}
	return p.CallRef().ID
}

// ToEvent classifies the payload into its closed event variant. Any type not
// listed above becomes an UnknownEvent.
func (p *VideoWebhookPayload) ToEvent() VideoWebhookEvent {
	switch string(p.Type) {
	case VideoEventSessionStarted:
		return SessionStartedEvent{MeetingID: p.MeetingID(), Call: p.CallRef()}
	case VideoEventSessionParticipantLeft:
		e := SessionParticipantLeftEvent{Call: p.CallRef()}
		if p.Participant != nil {
			e.ParticipantID = string(p.Participant.User.ID)
		}
		return e
	case VideoEventSessionEnded:
		return SessionEndedEvent{MeetingID: p.MeetingID(), Call: p.CallRef()}
	case VideoEventTranscriptionReady:
		e := TranscriptionReadyEvent{MeetingID: p.MeetingID()}
		if p.CallTranscription != nil {
			e.URL = string(p.CallTranscription.URL)
		}
		return e
	case VideoEventRecordingReady:
		e := RecordingReadyEvent{MeetingID: p.MeetingID()}
		if p.CallRecording != nil {
			e.URL = string(p.CallRecording.URL)
		}
		return e
	default:
		return UnknownEvent{Type: string(p.Type)}
	}
}
