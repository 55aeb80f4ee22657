// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/domain/models"
	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/logging"
	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/metrics"
	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/service/pipeline"
)

const (
	// DefaultMaxDeliver is the number of deliveries a job gets before it is reported failed
	DefaultMaxDeliver = 5
	// DefaultRedeliveryDelay is the delay before the second delivery of a failed job
	DefaultRedeliveryDelay = 5 * time.Second
	// DefaultMaxRedeliveryDelay caps the redelivery backoff
	DefaultMaxRedeliveryDelay = 5 * time.Minute
)

// ProcessingJobHandler runs transcript processing jobs and settles their deliveries.
type ProcessingJobHandler struct {
	pipeline   *pipeline.TranscriptPipeline
	metrics    *metrics.Metrics
	maxDeliver uint64
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// Ensure that ProcessingJobHandler can be driven by the job consumer
var _ domain.JobHandler = (*ProcessingJobHandler)(nil)

// NewProcessingJobHandler creates a new ProcessingJobHandler. maxDeliver must
// match the consumer's MaxDeliver; values below one use DefaultMaxDeliver.
func NewProcessingJobHandler(p *pipeline.TranscriptPipeline, maxDeliver int, m *metrics.Metrics) *ProcessingJobHandler {
	if maxDeliver < 1 {
		maxDeliver = DefaultMaxDeliver
	}
	return &ProcessingJobHandler{
		pipeline:   p,
		metrics:    m,
		maxDeliver: uint64(maxDeliver),
		baseDelay:  DefaultRedeliveryDelay,
		maxDelay:   DefaultMaxRedeliveryDelay,
	}
}

func (h *ProcessingJobHandler) HandlerReady() bool {
	return h.pipeline.ServiceReady()
}

// HandleJob implements [domain.JobHandler]. Every delivery is settled exactly
// once: acked on success, terminated on permanent failures or an exhausted
// budget, and nacked with backoff otherwise.
func (h *ProcessingJobHandler) HandleJob(ctx context.Context, msg domain.JobMessage) {
	attempt := msg.NumDelivered()
	ctx = logging.AppendCtx(ctx, slog.Uint64("delivery", attempt))

	var job models.ProcessingJob
	if err := json.Unmarshal(msg.Data(), &job); err != nil {
		slog.ErrorContext(ctx, "failed to decode processing job, dropping it", logging.ErrKey, err)
		h.settle(ctx, msg, models.JobOutcomeRejected, 0)
		return
	}
	ctx = logging.AppendCtx(ctx, slog.String(logging.JobIDKey, job.ID))
	ctx = logging.AppendCtx(ctx, slog.String(logging.MeetingIDKey, job.Data.MeetingID))
	slog.DebugContext(ctx, "handling processing job")

	err := h.pipeline.Run(ctx, job)
	switch {
	case err == nil:
		slog.InfoContext(ctx, "processing job completed")
		h.settle(ctx, msg, models.JobOutcomeCompleted, 0)

	case !domain.IsRetryable(err):
		slog.ErrorContext(ctx, "processing job failed permanently",
			logging.ErrKey, err,
			"error_type", domain.GetErrorType(err).String())
		h.settle(ctx, msg, models.JobOutcomeRejected, 0)

	case attempt >= h.maxDeliver:
		slog.ErrorContext(ctx, "processing job failed after all deliveries, meeting stays in processing",
			logging.ErrKey, err,
			"max_deliver", h.maxDeliver,
			logging.PriorityCritical())
		h.settle(ctx, msg, models.JobOutcomeExhausted, 0)

	default:
		delay := h.redeliveryDelay(attempt)
		slog.WarnContext(ctx, "processing job failed, scheduling redelivery",
			logging.ErrKey, err,
			"delay", delay.String(),
			"max_deliver", h.maxDeliver)
		h.settle(ctx, msg, models.JobOutcomeRetried, delay)
	}
}

// settle acknowledges the delivery according to outcome and records it.
func (h *ProcessingJobHandler) settle(ctx context.Context, msg domain.JobMessage, outcome models.JobOutcome, delay time.Duration) {
	var err error
	switch outcome {
	case models.JobOutcomeCompleted:
		err = msg.Ack()
	case models.JobOutcomeRetried:
		err = msg.NakWithDelay(delay)
	default:
		err = msg.Term()
	}
	if err != nil {
		slog.ErrorContext(ctx, "error settling processing job message",
			logging.ErrKey, err,
			"outcome", string(outcome))
	}
	h.metrics.Job(string(outcome))
}

// redeliveryDelay doubles the base delay for every delivery already made.
func (h *ProcessingJobHandler) redeliveryDelay(attempt uint64) time.Duration {
	delay := h.baseDelay
	for i := uint64(1); i < attempt; i++ {
		delay *= 2
		if delay >= h.maxDelay {
			return h.maxDelay
		}
	}
	return delay
}
