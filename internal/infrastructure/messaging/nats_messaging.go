// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/domain/models"
	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/logging"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// INatsConn is the part of a NATS connection the messaging layer needs.
type INatsConn interface {
	IsConnected() bool
}

// INatsJetStream is the part of a JetStream context the job publisher needs.
type INatsJetStream interface {
	PublishMsg(ctx context.Context, msg *nats.Msg, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// JobPublisher enqueues processing jobs on the JetStream processing stream.
type JobPublisher struct {
	NatsConn  INatsConn
	JetStream INatsJetStream
	subject   string
}

// Ensure that JobPublisher implements domain.JobEnqueuer
var _ domain.JobEnqueuer = (*JobPublisher)(nil)

// NewJobPublisher creates a new JobPublisher.
func NewJobPublisher(natsConn INatsConn, js INatsJetStream) *JobPublisher {
	return &JobPublisher{
		NatsConn:  natsConn,
		JetStream: js,
		subject:   models.ProcessingJobSubject,
	}
}

// IsReady reports whether jobs can be published.
func (p *JobPublisher) IsReady(ctx context.Context) error {
	if p.NatsConn == nil || p.JetStream == nil {
		return domain.NewUnavailableError("job queue is not configured", domain.ErrServiceUnavailable)
	}
	if !p.NatsConn.IsConnected() {
		return domain.NewUnavailableError("NATS connection is not established", domain.ErrServiceUnavailable)
	}
	return nil
}

// Enqueue publishes the job and returns once JetStream has stored it. The job
// id is used as the message id, so a republished job is deduplicated by the
// stream within its duplicate window.
func (p *JobPublisher) Enqueue(ctx context.Context, job models.ProcessingJob) error {
	if err := p.IsReady(ctx); err != nil {
		return err
	}
	if job.ID == "" {
		return domain.NewValidationError("job id is required")
	}

	data, err := json.Marshal(job)
	if err != nil {
		slog.ErrorContext(ctx, "error marshalling processing job into JSON", logging.ErrKey, err)
		return domain.NewInternalError("failed to marshal processing job", err)
	}

	msg := nats.NewMsg(p.subject)
	msg.Data = data
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(msg.Header))

	ack, err := p.JetStream.PublishMsg(ctx, msg, jetstream.WithMsgID(job.ID))
	if err != nil {
		slog.ErrorContext(ctx, "error publishing processing job to JetStream",
			logging.ErrKey, err,
			"subject", p.subject,
			logging.JobIDKey, job.ID,
		)
		if errors.Is(err, nats.ErrConnectionClosed) || errors.Is(err, jetstream.ErrNoStreamResponse) {
			return domain.NewUnavailableError("job queue is unavailable", err)
		}
		return domain.NewInternalError("failed to enqueue processing job", err)
	}

	slog.DebugContext(ctx, "enqueued processing job",
		"subject", p.subject,
		"stream", ack.Stream,
		"sequence", ack.Sequence,
		"duplicate", ack.Duplicate,
		logging.JobIDKey, job.ID,
	)
	return nil
}
