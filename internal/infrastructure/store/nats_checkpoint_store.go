// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/logging"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/vmihailenco/msgpack/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// INatsObjectStore is a NATS Object Store interface for checkpoint storage.
// This interface matches jetstream.ObjectStore and allows for mocking in tests.
type INatsObjectStore interface {
	Put(ctx context.Context, obj jetstream.ObjectMeta, reader io.Reader) (*jetstream.ObjectInfo, error)
	GetBytes(ctx context.Context, name string, opts ...jetstream.GetObjectOpt) ([]byte, error)
}

// NatsCheckpointStore persists pipeline step outputs in a NATS Object Store
// bucket, msgpack encoded, one object per job step.
type NatsCheckpointStore struct {
	objects INatsObjectStore
	keys    *KeyBuilder
}

var _ domain.CheckpointStore = (*NatsCheckpointStore)(nil)

// NewNatsCheckpointStore creates a checkpoint store on top of an object store bucket.
func NewNatsCheckpointStore(objects INatsObjectStore) *NatsCheckpointStore {
	return &NatsCheckpointStore{
		objects: objects,
		keys:    NewKeyBuilder(""),
	}
}

// IsReady checks if the checkpoint store is ready for use
func (s *NatsCheckpointStore) IsReady() bool {
	return s.objects != nil
}

// Load implements [domain.CheckpointStore].
func (s *NatsCheckpointStore) Load(ctx context.Context, jobID, step string, out any) (bool, error) {
	name := s.keys.CheckpointKey(jobID, step)
	ctx, span := otel.Tracer(tracerName).Start(ctx, "nats.object.get",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "nats"),
			attribute.String("db.operation", "get"),
			attribute.String("db.nats.object", name),
		),
	)
	defer span.End()

	if !s.IsReady() {
		err := domain.NewUnavailableError("checkpoint store is not available", domain.ErrServiceUnavailable)
		return false, failSpan(span, err, err.Error())
	}

	data, err := s.objects.GetBytes(ctx, name)
	if err != nil {
		if errors.Is(err, jetstream.ErrObjectNotFound) {
			span.SetAttributes(attribute.Bool("pipeline.checkpoint.hit", false))
			span.SetStatus(codes.Ok, "")
			return false, nil
		}
		slog.ErrorContext(ctx, "error reading checkpoint", logging.ErrKey, err, "object", name)
		err = domain.NewInternalError("failed to read checkpoint", err)
		return false, failSpan(span, err, err.Error())
	}

	if err := msgpack.Unmarshal(data, out); err != nil {
		slog.ErrorContext(ctx, "error decoding checkpoint", logging.ErrKey, err, "object", name)
		err = domain.NewInternalError(fmt.Sprintf("failed to decode checkpoint %s", name), domain.ErrUnmarshal, err)
		return false, failSpan(span, err, err.Error())
	}

	span.SetAttributes(attribute.Bool("pipeline.checkpoint.hit", true))
	span.SetStatus(codes.Ok, "")
	return true, nil
}

// Save implements [domain.CheckpointStore].
func (s *NatsCheckpointStore) Save(ctx context.Context, jobID, step string, output any) error {
	name := s.keys.CheckpointKey(jobID, step)
	ctx, span := otel.Tracer(tracerName).Start(ctx, "nats.object.put",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "nats"),
			attribute.String("db.operation", "put"),
			attribute.String("db.nats.object", name),
		),
	)
	defer span.End()

	if !s.IsReady() {
		err := domain.NewUnavailableError("checkpoint store is not available", domain.ErrServiceUnavailable)
		return failSpan(span, err, err.Error())
	}

	data, err := msgpack.Marshal(output)
	if err != nil {
		err = domain.NewInternalError(fmt.Sprintf("failed to encode checkpoint %s", name), err)
		return failSpan(span, err, err.Error())
	}

	_, err = s.objects.Put(ctx, jetstream.ObjectMeta{
		Name:        name,
		Description: "pipeline step output",
		Metadata: map[string]string{
			"job_id": jobID,
			"step":   step,
		},
	}, bytes.NewReader(data))
	if err != nil {
		slog.ErrorContext(ctx, "error writing checkpoint", logging.ErrKey, err, "object", name)
		err = domain.NewInternalError("failed to write checkpoint", err)
		return failSpan(span, err, err.Error())
	}

	span.SetAttributes(attribute.Int("db.nats.object_size", len(data)))
	span.SetStatus(codes.Ok, "")
	return nil
}
