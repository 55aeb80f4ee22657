// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/domain/models"
	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/infrastructure/store"
	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/logging"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	// processingConsumerName is the durable consumer shared by every replica.
	processingConsumerName = "meeting-agent-processing"
	// processingAckWait bounds one delivery of a job before it is redelivered.
	processingAckWait = 10 * time.Minute
	// processingDuplicateWindow is how long the stream remembers job ids.
	processingDuplicateWindow = 10 * time.Minute
)

// repositories are the NATS backed stores the service uses.
type repositories struct {
	Meeting     *store.NatsMeetingRepository
	Agent       *store.NatsAgentRepository
	Person      *store.NatsPersonRepository
	Checkpoints *store.NatsCheckpointStore
}

// setupNATS connects to NATS. A closed connection ends the process through
// the done channel, so shutdown goes through the same path as a signal.
func setupNATS(ctx context.Context, env environment, gracefulCloseWG *sync.WaitGroup, done chan os.Signal) (*nats.Conn, error) {
	slog.InfoContext(ctx, "connecting to NATS", "url", env.NATS.URL)

	gracefulCloseWG.Add(1)
	natsConn, err := nats.Connect(
		env.NATS.URL,
		nats.Name("lfx-v2-meeting-agent-service"),
		nats.Timeout(env.NATS.Timeout),
		nats.MaxReconnects(env.NATS.MaxReconnect),
		nats.ReconnectWait(env.NATS.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.With(logging.ErrKey, err).Warn("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			slog.Warn("NATS connection closed")
			gracefulCloseWG.Done()
			select {
			case done <- os.Interrupt:
			default:
			}
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			if sub != nil {
				slog.With(logging.ErrKey, err, "subject", sub.Subject).Error("async NATS error")
				return
			}
			slog.With(logging.ErrKey, err).Error("async NATS error")
		}),
	)
	if err != nil {
		gracefulCloseWG.Done()
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return natsConn, nil
}

// getKeyValueStores creates or updates the buckets the service owns and wraps
// them in repositories.
func getKeyValueStores(ctx context.Context, js jetstream.JetStream, env environment) (*repositories, error) {
	buckets := make(map[string]jetstream.KeyValue, 3)
	for _, name := range []string{store.KVStoreNameMeetings, store.KVStoreNameAgents, store.KVStoreNamePersons} {
		kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:  name,
			History: 1,
			Storage: jetstream.FileStorage,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to get key-value store %s: %w", name, err)
		}
		buckets[name] = kv
	}

	objects, err := js.CreateOrUpdateObjectStore(ctx, jetstream.ObjectStoreConfig{
		Bucket:      store.ObjectStoreNamePipelineCheckpoints,
		Description: "transcript pipeline step outputs, keyed <job id>/<step>",
		TTL:         env.CheckpointTTL,
		Storage:     jetstream.FileStorage,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get object store %s: %w", store.ObjectStoreNamePipelineCheckpoints, err)
	}

	return &repositories{
		Meeting:     store.NewNatsMeetingRepository(buckets[store.KVStoreNameMeetings]),
		Agent:       store.NewNatsAgentRepository(buckets[store.KVStoreNameAgents]),
		Person:      store.NewNatsPersonRepository(buckets[store.KVStoreNamePersons]),
		Checkpoints: store.NewNatsCheckpointStore(objects),
	}, nil
}

// setupProcessingConsumer creates the processing job stream and its durable
// pull consumer. Jobs are removed from the stream once acknowledged or
// terminated.
func setupProcessingConsumer(ctx context.Context, js jetstream.JetStream, env environment) (jetstream.Consumer, error) {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       models.ProcessingStreamName,
		Subjects:   []string{models.ProcessingJobSubject},
		Retention:  jetstream.WorkQueuePolicy,
		Storage:    jetstream.FileStorage,
		Duplicates: processingDuplicateWindow,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create stream %s: %w", models.ProcessingStreamName, err)
	}

	consumer, err := js.CreateOrUpdateConsumer(ctx, models.ProcessingStreamName, jetstream.ConsumerConfig{
		Durable:       processingConsumerName,
		FilterSubject: models.ProcessingJobSubject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       processingAckWait,
		MaxDeliver:    env.PipelineMaxDeliver,
		MaxAckPending: env.PipelineWorkers * 2,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer %s: %w", processingConsumerName, err)
	}
	return consumer, nil
}
