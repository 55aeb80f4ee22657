// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package models

// UnknownSpeakerName is attached to transcript items whose speaker id
// resolves to neither a Person nor an Agent.
const UnknownSpeakerName = "Unknown"

// TranscriptItem is one line of the provider's JSONL transcript.
type TranscriptItem struct {
	SpeakerID string `json:"speaker_id,omitempty" msgpack:"speaker_id,omitempty"`
	Type      string `json:"type" msgpack:"type"`
	Text      string `json:"text" msgpack:"text"`
	StartTS   int64  `json:"start_ts" msgpack:"start_ts"`
	StopTS    int64  `json:"stop_ts" msgpack:"stop_ts"`
}

// TranscriptSpeaker is the display identity attached to an enriched item.
type TranscriptSpeaker struct {
	Name string `json:"name" msgpack:"name"`
}

// EnrichedTranscriptItem is a TranscriptItem with its resolved speaker.
type EnrichedTranscriptItem struct {
	TranscriptItem `msgpack:",inline"`
	User           TranscriptSpeaker `json:"user" msgpack:"user"`
}
