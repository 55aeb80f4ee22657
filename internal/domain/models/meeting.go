// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package models

import (
	"slices"
	"time"
)

// MeetingStatus is the lifecycle state of a meeting.
type MeetingStatus string

// Meeting lifecycle states. Transitions only move forward:
// upcoming -> active -> processing -> completed, with canceled reachable
// from upcoming or active through the external cancel action.
const (
	MeetingStatusUpcoming   MeetingStatus = "upcoming"
	MeetingStatusActive     MeetingStatus = "active"
	MeetingStatusProcessing MeetingStatus = "processing"
	MeetingStatusCompleted  MeetingStatus = "completed"
	MeetingStatusCanceled   MeetingStatus = "canceled"
)

// IsTerminal reports whether no further lifecycle transition is allowed.
func (s MeetingStatus) IsTerminal() bool {
	return s == MeetingStatusCompleted || s == MeetingStatusCanceled
}

// IsValid reports whether s is one of the known lifecycle states.
func (s MeetingStatus) IsValid() bool {
	return slices.Contains([]MeetingStatus{
		MeetingStatusUpcoming,
		MeetingStatusActive,
		MeetingStatusProcessing,
		MeetingStatusCompleted,
		MeetingStatusCanceled,
	}, s)
}

// StatusIn returns a predicate matching any of the given statuses.
func StatusIn(statuses ...MeetingStatus) func(MeetingStatus) bool {
	return func(s MeetingStatus) bool {
		return slices.Contains(statuses, s)
	}
}

// StatusNotIn returns a predicate matching every status except the given ones.
func StatusNotIn(statuses ...MeetingStatus) func(MeetingStatus) bool {
	return func(s MeetingStatus) bool {
		return !slices.Contains(statuses, s)
	}
}

// AnyStatus is the predicate for unguarded writes.
func AnyStatus(MeetingStatus) bool { return true }

// Meeting is the key-value store representation of a meeting.
type Meeting struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	AgentID       string        `json:"agent_id"`
	UserID        string        `json:"user_id"`
	Status        MeetingStatus `json:"status"`
	StartedAt     *time.Time    `json:"started_at,omitempty"`
	EndedAt       *time.Time    `json:"ended_at,omitempty"`
	TranscriptURL string        `json:"transcript_url,omitempty"`
	RecordingURL  string        `json:"recording_url,omitempty"`
	Summary       string        `json:"summary,omitempty"`
	CreatedAt     *time.Time    `json:"created_at,omitempty"`
	UpdatedAt     *time.Time    `json:"updated_at,omitempty"`
}

// MeetingMutation is applied to a meeting inside a conditional update.
type MeetingMutation func(m *Meeting, now time.Time)
