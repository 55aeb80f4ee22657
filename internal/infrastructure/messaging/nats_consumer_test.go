// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package messaging

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/domain"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMsg overrides the jetstream.Msg methods a job uses.
type fakeMsg struct {
	jetstream.Msg
	data         []byte
	numDelivered uint64
	metaErr      error

	mu     sync.Mutex
	acked  bool
	termed bool
	nakDel time.Duration
}

func (m *fakeMsg) Data() []byte         { return m.data }
func (m *fakeMsg) Headers() nats.Header { return nats.Header{} }
func (m *fakeMsg) Metadata() (*jetstream.MsgMetadata, error) {
	if m.metaErr != nil {
		return nil, m.metaErr
	}
	return &jetstream.MsgMetadata{NumDelivered: m.numDelivered}, nil
}
func (m *fakeMsg) Ack() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acked = true
	return nil
}
func (m *fakeMsg) NakWithDelay(d time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nakDel = d
	return nil
}
func (m *fakeMsg) Term() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.termed = true
	return nil
}

// fakeConsumeContext overrides Stop.
type fakeConsumeContext struct {
	jetstream.ConsumeContext
	stopped chan struct{}
}

func (c *fakeConsumeContext) Stop() { close(c.stopped) }

type fakeConsumer struct {
	handler jetstream.MessageHandler
	cc      *fakeConsumeContext
	err     error
}

func (f *fakeConsumer) Consume(handler jetstream.MessageHandler, opts ...jetstream.PullConsumeOpt) (jetstream.ConsumeContext, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.handler = handler
	f.cc = &fakeConsumeContext{stopped: make(chan struct{})}
	return f.cc, nil
}

// recordingHandler acks every job it receives.
type recordingHandler struct {
	mu    sync.Mutex
	seen  []string
	ready bool
	done  chan struct{}
	want  int
}

func (h *recordingHandler) HandleJob(ctx context.Context, msg domain.JobMessage) {
	h.mu.Lock()
	h.seen = append(h.seen, string(msg.Data()))
	n := len(h.seen)
	h.mu.Unlock()
	_ = msg.Ack()
	if n == h.want {
		close(h.done)
	}
}

func (h *recordingHandler) HandlerReady() bool { return h.ready }

func TestJobConsumer_DispatchesToWorkers(t *testing.T) {
	consumer := &fakeConsumer{}
	handler := &recordingHandler{ready: true, done: make(chan struct{}), want: 3}
	jc := NewJobConsumer(consumer, handler, 2)

	require.NoError(t, jc.Start(context.Background()))
	require.NoError(t, jc.IsReady(context.Background()))

	msgs := []*fakeMsg{{data: []byte("a")}, {data: []byte("b")}, {data: []byte("c")}}
	for _, m := range msgs {
		consumer.handler(m)
	}

	select {
	case <-handler.done:
	case <-time.After(5 * time.Second):
		t.Fatal("jobs were not handled")
	}

	jc.Stop()
	<-consumer.cc.stopped

	assert.ElementsMatch(t, []string{"a", "b", "c"}, handler.seen)
	for _, m := range msgs {
		assert.True(t, m.acked)
	}
	assert.Error(t, jc.IsReady(context.Background()))
}

func TestJobConsumer_StartFailure(t *testing.T) {
	jc := NewJobConsumer(&fakeConsumer{err: errors.New("no such consumer")}, &recordingHandler{}, 1)

	err := jc.Start(context.Background())

	assert.Equal(t, domain.ErrorTypeUnavailable, domain.GetErrorType(err))
	assert.Error(t, jc.IsReady(context.Background()))
}

func TestJobConsumer_NotReadyWhenHandlerIsNot(t *testing.T) {
	jc := NewJobConsumer(&fakeConsumer{}, &recordingHandler{ready: false}, 1)
	require.NoError(t, jc.Start(context.Background()))
	defer jc.Stop()

	assert.Error(t, jc.IsReady(context.Background()))
}

func TestJobMessage_NumDelivered(t *testing.T) {
	tests := []struct {
		name     string
		msg      *fakeMsg
		expected uint64
	}{
		{name: "from metadata", msg: &fakeMsg{numDelivered: 3}, expected: 3},
		{name: "metadata error defaults to first delivery", msg: &fakeMsg{metaErr: errors.New("not a jetstream message")}, expected: 1},
		{name: "zero defaults to first delivery", msg: &fakeMsg{}, expected: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, (&jobMessage{msg: tt.msg}).NumDelivered())
		})
	}
}

func TestJobMessage_Settlement(t *testing.T) {
	msg := &fakeMsg{}
	jm := &jobMessage{msg: msg}

	require.NoError(t, jm.NakWithDelay(2*time.Second))
	require.NoError(t, jm.Term())

	assert.Equal(t, 2*time.Second, msg.nakDel)
	assert.True(t, msg.termed)
}
