// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/logging"
	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/pkg/concurrent"
	"github.com/nats-io/nats.go/jetstream"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// NATS Key-Value store bucket names
const (
	KVStoreNameMeetings = "meetings"
	KVStoreNameAgents   = "agents"
	KVStoreNamePersons  = "persons"
)

// NATS Object Store names
const (
	ObjectStoreNamePipelineCheckpoints = "pipeline-checkpoints"
)

// tracerName is the instrumentation name for the store package.
const tracerName = "github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/infrastructure/store"

const (
	// defaultUpdateAttempts bounds the read-check-write cycles of UpdateIf.
	defaultUpdateAttempts = 5
	// batchReadConcurrency bounds concurrent key reads in GetMany.
	batchReadConcurrency = 8
)

// INatsKeyValue is a NATS KV interface needed by the repositories.
type INatsKeyValue interface {
	Get(ctx context.Context, key string) (jetstream.KeyValueEntry, error)
	Put(context.Context, string, []byte) (uint64, error)
	Update(context.Context, string, []byte, uint64) (uint64, error)
}

// NatsBaseRepository provides common NATS KV operations that can be reused across all repositories
type NatsBaseRepository[T any] struct {
	kvStore        INatsKeyValue
	entityName     string // Used in error messages (e.g., "meeting", "agent")
	updateAttempts int
}

// NewNatsBaseRepository creates a new base repository for NATS KV operations
func NewNatsBaseRepository[T any](kvStore INatsKeyValue, entityName string) *NatsBaseRepository[T] {
	return &NatsBaseRepository[T]{
		kvStore:        kvStore,
		entityName:     entityName,
		updateAttempts: defaultUpdateAttempts,
	}
}

// IsReady checks if the repository is ready for use
func (r *NatsBaseRepository[T]) IsReady() bool {
	return r.kvStore != nil
}

func (r *NatsBaseRepository[T]) startSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "nats.kv."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(append([]attribute.KeyValue{
			attribute.String("db.system", "nats"),
			attribute.String("db.operation", operation),
			attribute.String("db.nats.entity", r.entityName),
		}, attrs...)...),
	)
}

func failSpan(span trace.Span, err error, description string) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, description)
	return err
}

func (r *NatsBaseRepository[T]) unavailable() error {
	return domain.NewUnavailableError(fmt.Sprintf("%s repository is not available", r.entityName), domain.ErrServiceUnavailable)
}

// GetRaw retrieves a raw entry from NATS KV store
func (r *NatsBaseRepository[T]) GetRaw(ctx context.Context, key string) (jetstream.KeyValueEntry, error) {
	ctx, span := r.startSpan(ctx, "get", attribute.String("db.nats.key", key))
	defer span.End()

	if !r.IsReady() {
		err := r.unavailable()
		return nil, failSpan(span, err, err.Error())
	}

	entry, err := r.kvStore.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			err = domain.NewNotFoundError(
				fmt.Sprintf("%s with key '%s' not found", r.entityName, key), err)
			return nil, failSpan(span, err, "not found")
		}
		slog.ErrorContext(ctx, fmt.Sprintf("error getting %s from NATS KV", r.entityName),
			logging.ErrKey, err, "key", key)
		err = domain.NewInternalError(
			fmt.Sprintf("failed to retrieve %s from store", r.entityName), err)
		return nil, failSpan(span, err, err.Error())
	}

	span.SetStatus(codes.Ok, "")
	return entry, nil
}

// Get retrieves and unmarshals an entity from NATS KV store
func (r *NatsBaseRepository[T]) Get(ctx context.Context, key string) (*T, error) {
	entity, _, err := r.GetWithRevision(ctx, key)
	return entity, err
}

// GetWithRevision retrieves an entity with its revision from NATS KV store
func (r *NatsBaseRepository[T]) GetWithRevision(ctx context.Context, key string) (*T, uint64, error) {
	entry, err := r.GetRaw(ctx, key)
	if err != nil {
		return nil, 0, err
	}

	entity, err := r.Unmarshal(ctx, entry)
	if err != nil {
		return nil, 0, domain.NewInternalError(
			fmt.Sprintf("failed to unmarshal %s data", r.entityName), domain.ErrUnmarshal, err)
	}

	return entity, entry.Revision(), nil
}

// GetMany retrieves the entities stored under keys, in key order.
// Keys that do not exist are skipped; any other failure aborts the read.
func (r *NatsBaseRepository[T]) GetMany(ctx context.Context, keys []string) ([]*T, error) {
	ctx, span := r.startSpan(ctx, "get_many", attribute.Int("db.nats.keys_count", len(keys)))
	defer span.End()

	if !r.IsReady() {
		err := r.unavailable()
		return nil, failSpan(span, err, err.Error())
	}

	found := make([]*T, len(keys))
	var mu sync.Mutex
	lookups := make([]func() error, 0, len(keys))
	for i, key := range keys {
		lookups = append(lookups, func() error {
			entity, err := r.Get(ctx, key)
			if err != nil {
				if domain.GetErrorType(err) == domain.ErrorTypeNotFound {
					return nil
				}
				return err
			}
			mu.Lock()
			found[i] = entity
			mu.Unlock()
			return nil
		})
	}

	pool := concurrent.NewWorkerPool(batchReadConcurrency)
	if err := pool.Run(ctx, lookups...); err != nil {
		return nil, failSpan(span, err, err.Error())
	}

	entities := make([]*T, 0, len(keys))
	for _, entity := range found {
		if entity != nil {
			entities = append(entities, entity)
		}
	}

	span.SetAttributes(attribute.Int("db.nats.found_count", len(entities)))
	span.SetStatus(codes.Ok, "")
	return entities, nil
}

// Unmarshal unmarshals a NATS KV entry into the entity type
func (r *NatsBaseRepository[T]) Unmarshal(ctx context.Context, entry jetstream.KeyValueEntry) (*T, error) {
	var entity T
	err := json.Unmarshal(entry.Value(), &entity)
	if err != nil {
		slog.ErrorContext(ctx, fmt.Sprintf("error unmarshaling %s", r.entityName),
			logging.ErrKey, err)
		return nil, err
	}

	return &entity, nil
}

// Marshal marshals an entity to JSON bytes
func (r *NatsBaseRepository[T]) Marshal(ctx context.Context, entity *T) ([]byte, error) {
	data, err := json.Marshal(entity)
	if err != nil {
		slog.ErrorContext(ctx, fmt.Sprintf("error marshaling %s", r.entityName),
			logging.ErrKey, err)
		return nil, err
	}

	return data, nil
}

// Exists checks if an entity exists in the store
func (r *NatsBaseRepository[T]) Exists(ctx context.Context, key string) (bool, error) {
	_, err := r.Get(ctx, key)
	if err != nil {
		if domain.GetErrorType(err) == domain.ErrorTypeNotFound {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Create creates a new entity in the store using Put
func (r *NatsBaseRepository[T]) Create(ctx context.Context, key string, entity *T) error {
	ctx, span := r.startSpan(ctx, "put", attribute.String("db.nats.key", key))
	defer span.End()

	if !r.IsReady() {
		err := r.unavailable()
		return failSpan(span, err, err.Error())
	}

	data, err := r.Marshal(ctx, entity)
	if err != nil {
		err = domain.NewInternalError(fmt.Sprintf("failed to marshal %s", r.entityName), err)
		return failSpan(span, err, err.Error())
	}

	_, err = r.kvStore.Put(ctx, key, data)
	if err != nil {
		slog.ErrorContext(ctx, fmt.Sprintf("error creating %s in NATS KV", r.entityName),
			logging.ErrKey, err, "key", key)
		err = domain.NewInternalError(fmt.Sprintf("failed to create %s in store", r.entityName), err)
		return failSpan(span, err, err.Error())
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// Update updates an existing entity in the store with optimistic concurrency control
func (r *NatsBaseRepository[T]) Update(ctx context.Context, key string, entity *T, revision uint64) error {
	ctx, span := r.startSpan(ctx, "update",
		attribute.String("db.nats.key", key),
		attribute.Int64("db.nats.revision", int64(revision)),
	)
	defer span.End()

	if !r.IsReady() {
		err := r.unavailable()
		return failSpan(span, err, err.Error())
	}

	data, err := r.Marshal(ctx, entity)
	if err != nil {
		err = domain.NewInternalError(fmt.Sprintf("failed to marshal %s", r.entityName), err)
		return failSpan(span, err, err.Error())
	}

	_, err = r.kvStore.Update(ctx, key, data, revision)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			err = domain.NewNotFoundError(fmt.Sprintf("%s not found", r.entityName), err)
			return failSpan(span, err, "not found")
		}
		if isRevisionMismatch(err) {
			err = domain.NewConflictError(fmt.Sprintf("%s has been modified", r.entityName), domain.ErrRevisionMismatch, err)
			return failSpan(span, err, "conflict")
		}
		slog.ErrorContext(ctx, fmt.Sprintf("error updating %s in NATS KV", r.entityName),
			logging.ErrKey, err, "key", key, "revision", revision)
		err = domain.NewInternalError(fmt.Sprintf("failed to update %s in store", r.entityName), err)
		return failSpan(span, err, err.Error())
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// UpdateIf reads the entity, lets mutate decide on that exact revision
// whether to change it, and writes the change at the same revision.
// A revision conflict restarts the cycle on fresh data, up to a bounded
// number of attempts. It returns the latest entity and whether it was written.
func (r *NatsBaseRepository[T]) UpdateIf(ctx context.Context, key string, mutate func(*T) bool) (*T, bool, error) {
	ctx, span := r.startSpan(ctx, "update_if", attribute.String("db.nats.key", key))
	defer span.End()

	for attempt := 1; attempt <= r.updateAttempts; attempt++ {
		entity, revision, err := r.GetWithRevision(ctx, key)
		if err != nil {
			return nil, false, failSpan(span, err, err.Error())
		}

		if !mutate(entity) {
			span.SetAttributes(attribute.Bool("db.nats.applied", false))
			span.SetStatus(codes.Ok, "")
			return entity, false, nil
		}

		err = r.Update(ctx, key, entity, revision)
		if err == nil {
			span.SetAttributes(
				attribute.Bool("db.nats.applied", true),
				attribute.Int("db.nats.attempts", attempt),
			)
			span.SetStatus(codes.Ok, "")
			return entity, true, nil
		}
		if domain.GetErrorType(err) != domain.ErrorTypeConflict {
			return nil, false, failSpan(span, err, err.Error())
		}

		slog.DebugContext(ctx, fmt.Sprintf("%s changed concurrently, re-evaluating update", r.entityName),
			"key", key, "attempt", attempt, "revision", revision)
	}

	err := domain.NewConflictError(
		fmt.Sprintf("%s kept changing during conditional update", r.entityName), domain.ErrRevisionMismatch)
	return nil, false, failSpan(span, err, "conflict")
}

// isRevisionMismatch reports whether err is the server's optimistic-concurrency rejection.
func isRevisionMismatch(err error) bool {
	var apiErr *jetstream.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence {
		return true
	}
	return strings.Contains(err.Error(), "wrong last sequence")
}
