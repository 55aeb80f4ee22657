// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package domain

import (
	"context"
	"time"

	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/domain/models"
)

// JobEnqueuer durably hands a processing job to the pipeline executor.
// Enqueue returns once the job is persisted, not once it is processed.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, job models.ProcessingJob) error
	IsReady(ctx context.Context) error
}

// JobMessage is one delivery of a processing job.
type JobMessage interface {
	Data() []byte
	// NumDelivered is the 1-based delivery attempt of this message.
	NumDelivered() uint64
	Ack() error
	// NakWithDelay asks for redelivery after delay.
	NakWithDelay(delay time.Duration) error
	// Term stops redelivery of the message.
	Term() error
}

// JobHandler executes processing jobs.
type JobHandler interface {
	HandleJob(ctx context.Context, msg JobMessage)
	HandlerReady() bool
}
