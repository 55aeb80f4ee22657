// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package models

// JetStream resources carrying transcript processing jobs.
const (
	// ProcessingStreamName is the JetStream stream holding processing jobs.
	ProcessingStreamName = "MEETING_PROCESSING"

	// ProcessingJobSubject is the subject processing jobs are published on.
	// The subject is of the form: lfx.meetings-agent.processing
	ProcessingJobSubject = "lfx.meetings-agent.processing"

	// ProcessingConsumerName is the durable pull consumer executing jobs.
	ProcessingConsumerName = "meetings-agent-processing"
)

// JobOutcome is the terminal result of one delivery of a processing job.
type JobOutcome string

// JobOutcome values, used as metric labels and log attributes.
const (
	JobOutcomeCompleted JobOutcome = "completed"
	JobOutcomeRetried   JobOutcome = "retried"
	JobOutcomeRejected  JobOutcome = "rejected"
	JobOutcomeExhausted JobOutcome = "exhausted"
)
