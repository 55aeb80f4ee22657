// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package models

// ProcessingJobName is the event name carried by every transcript processing job.
const ProcessingJobName = "meeting/processing"

// ProcessingJobData is the payload of a transcript processing job.
type ProcessingJobData struct {
	MeetingID     string `json:"meetingId"`
	TranscriptURL string `json:"transcriptUrl"`
}

// ProcessingJob is the envelope published to the job stream.
// ID identifies one job instance and keys its step checkpoints.
type ProcessingJob struct {
	Name string            `json:"name"`
	ID   string            `json:"id"`
	Data ProcessingJobData `json:"data"`
}
