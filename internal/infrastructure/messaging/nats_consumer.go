// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package messaging

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/logging"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// IConsumer is the part of a JetStream consumer the job consumer needs.
type IConsumer interface {
	Consume(handler jetstream.MessageHandler, opts ...jetstream.PullConsumeOpt) (jetstream.ConsumeContext, error)
}

// jsMsg is the part of jetstream.Msg a job needs.
type jsMsg interface {
	Data() []byte
	Headers() nats.Header
	Metadata() (*jetstream.MsgMetadata, error)
	Ack() error
	NakWithDelay(delay time.Duration) error
	Term() error
}

// jobMessage adapts a JetStream message to domain.JobMessage.
type jobMessage struct {
	msg jsMsg
}

func (m *jobMessage) Data() []byte { return m.msg.Data() }

func (m *jobMessage) NumDelivered() uint64 {
	meta, err := m.msg.Metadata()
	if err != nil || meta == nil || meta.NumDelivered == 0 {
		return 1
	}
	return meta.NumDelivered
}

func (m *jobMessage) Ack() error                             { return m.msg.Ack() }
func (m *jobMessage) NakWithDelay(delay time.Duration) error { return m.msg.NakWithDelay(delay) }
func (m *jobMessage) Term() error                            { return m.msg.Term() }

// JobConsumer pulls processing jobs from the durable consumer and hands them
// to a fixed number of workers.
type JobConsumer struct {
	consumer IConsumer
	handler  domain.JobHandler
	workers  int

	mu      sync.Mutex
	cc      jetstream.ConsumeContext
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewJobConsumer creates a consumer running handler on workers goroutines.
func NewJobConsumer(consumer IConsumer, handler domain.JobHandler, workers int) *JobConsumer {
	if workers < 1 {
		workers = 1
	}
	return &JobConsumer{
		consumer: consumer,
		handler:  handler,
		workers:  workers,
	}
}

// Start begins consuming. Jobs already in flight keep running after ctx is
// canceled; Stop waits for them.
func (c *JobConsumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	jobs := make(chan jsMsg)

	for i := 0; i < c.workers; i++ {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			for {
				select {
				case <-runCtx.Done():
					return
				case msg := <-jobs:
					c.handle(context.WithoutCancel(runCtx), msg)
				}
			}
		}()
	}

	cc, err := c.consumer.Consume(func(msg jetstream.Msg) {
		select {
		case jobs <- msg:
		case <-runCtx.Done():
			// Not acknowledged: redelivered after the ack wait.
		}
	}, jetstream.PullMaxMessages(c.workers))
	if err != nil {
		cancel()
		c.wg.Wait()
		slog.ErrorContext(ctx, "error starting processing job consumer", logging.ErrKey, err)
		return domain.NewUnavailableError("failed to start job consumer", err)
	}

	c.cc = cc
	c.cancel = cancel
	c.running = true
	slog.InfoContext(ctx, "processing job consumer started", "workers", c.workers)
	return nil
}

func (c *JobConsumer) handle(ctx context.Context, msg jsMsg) {
	if headers := msg.Headers(); headers != nil {
		ctx = otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(headers))
	}
	c.handler.HandleJob(ctx, &jobMessage{msg: msg})
}

// Stop stops pulling new jobs and waits for running jobs to finish.
func (c *JobConsumer) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.cc.Stop()
	c.cancel()
	c.running = false
	c.mu.Unlock()

	c.wg.Wait()
	slog.Info("processing job consumer stopped")
}

// IsReady reports whether the consumer is pulling jobs and its handler can process them.
func (c *JobConsumer) IsReady(ctx context.Context) error {
	c.mu.Lock()
	running := c.running
	c.mu.Unlock()
	if !running {
		return domain.NewUnavailableError("job consumer is not running", domain.ErrServiceUnavailable)
	}
	if !c.handler.HandlerReady() {
		return domain.NewUnavailableError("job handler is not ready", domain.ErrServiceUnavailable)
	}
	return nil
}
