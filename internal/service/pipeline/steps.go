// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package pipeline

import (
	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/domain/models"
)

// Step names. They key checkpoints, so renaming one discards recorded outputs.
const (
	StepFetchTranscript     = "fetch-transcript"
	StepParseTranscript     = "parse-transcript"
	StepAddSpeakers         = "add-speakers"
	StepSummarizeTranscript = "summarize-transcript"
	StepSaveSummary         = "save-summary"
)

// Steps lists the step names in execution order.
var Steps = []string{
	StepFetchTranscript,
	StepParseTranscript,
	StepAddSpeakers,
	StepSummarizeTranscript,
	StepSaveSummary,
}

// FetchTranscriptInput is the input of the fetch-transcript step.
type FetchTranscriptInput struct {
	URL string `msgpack:"url"`
}

// FetchTranscriptOutput holds the raw JSONL transcript.
type FetchTranscriptOutput struct {
	Body string `msgpack:"body"`
}

// ParseTranscriptInput is the input of the parse-transcript step.
type ParseTranscriptInput struct {
	Body string `msgpack:"body"`
}

// ParseTranscriptOutput holds the transcript items in file order.
type ParseTranscriptOutput struct {
	Items []models.TranscriptItem `msgpack:"items"`
}

// AddSpeakersInput is the input of the add-speakers step.
type AddSpeakersInput struct {
	Items []models.TranscriptItem `msgpack:"items"`
}

// AddSpeakersOutput holds the items with their speaker names, order preserved.
type AddSpeakersOutput struct {
	Items []models.EnrichedTranscriptItem `msgpack:"items"`
}

// SummarizeTranscriptInput is the input of the summarize-transcript step.
type SummarizeTranscriptInput struct {
	Items []models.EnrichedTranscriptItem `msgpack:"items"`
}

// SummarizeTranscriptOutput holds the generated markdown summary.
type SummarizeTranscriptOutput struct {
	Summary string `msgpack:"summary"`
}

// SaveSummaryInput is the input of the save-summary step.
type SaveSummaryInput struct {
	MeetingID string `msgpack:"meeting_id"`
	Summary   string `msgpack:"summary"`
}

// SaveSummaryOutput reports what the conditional write did.
type SaveSummaryOutput struct {
	Applied bool                 `msgpack:"applied"`
	Status  models.MeetingStatus `msgpack:"status"`
}
