// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// mockKeyValueEntry implements jetstream.KeyValueEntry for testing
type mockKeyValueEntry struct {
	key      string
	value    []byte
	revision uint64
}

func (m *mockKeyValueEntry) Key() string                     { return m.key }
func (m *mockKeyValueEntry) Value() []byte                   { return m.value }
func (m *mockKeyValueEntry) Revision() uint64                { return m.revision }
func (m *mockKeyValueEntry) Created() time.Time              { return time.Now() }
func (m *mockKeyValueEntry) Delta() uint64                   { return 0 }
func (m *mockKeyValueEntry) Operation() jetstream.KeyValueOp { return jetstream.KeyValuePut }
func (m *mockKeyValueEntry) Bucket() string                  { return "test-bucket" }

// MockNatsKeyValue is an in-memory INatsKeyValue with NATS revision semantics.
// It is safe for concurrent use.
type MockNatsKeyValue struct {
	mu        sync.Mutex
	data      map[string][]byte
	revisions map[string]uint64
	writes    int

	putError    error
	getError    error
	updateError error
	// beforeUpdate runs inside Update before the revision check, letting
	// tests interleave a competing write.
	beforeUpdate func(key string)
}

// NewMockNatsKeyValue creates an empty in-memory key-value bucket.
func NewMockNatsKeyValue() *MockNatsKeyValue {
	return &MockNatsKeyValue{
		data:      make(map[string][]byte),
		revisions: make(map[string]uint64),
	}
}

// Seed stores value as JSON under key, as an external writer would.
func (m *MockNatsKeyValue) Seed(key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		panic(err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = data
	m.revisions[key]++
}

// Load decodes the JSON stored under key into out and reports whether it exists.
func (m *MockNatsKeyValue) Load(key string, out any) bool {
	m.mu.Lock()
	data, ok := m.data[key]
	m.mu.Unlock()
	if !ok {
		return false
	}
	return json.Unmarshal(data, out) == nil
}

// Writes returns the number of successful Put and Update calls.
func (m *MockNatsKeyValue) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

func (m *MockNatsKeyValue) Get(ctx context.Context, key string) (jetstream.KeyValueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getError != nil {
		return nil, m.getError
	}
	value, exists := m.data[key]
	if !exists {
		return nil, jetstream.ErrKeyNotFound
	}
	return &mockKeyValueEntry{key: key, value: value, revision: m.revisions[key]}, nil
}

func (m *MockNatsKeyValue) Put(ctx context.Context, key string, data []byte) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putError != nil {
		return 0, m.putError
	}
	m.data[key] = data
	m.revisions[key]++
	m.writes++
	return m.revisions[key], nil
}

func (m *MockNatsKeyValue) Update(ctx context.Context, key string, data []byte, expectedRevision uint64) (uint64, error) {
	if m.beforeUpdate != nil {
		m.beforeUpdate(key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateError != nil {
		return 0, m.updateError
	}
	currentRevision, exists := m.revisions[key]
	if !exists {
		return 0, jetstream.ErrKeyNotFound
	}
	if currentRevision != expectedRevision {
		return 0, errors.New("nats: wrong last sequence: " + key)
	}
	m.data[key] = data
	m.revisions[key] = currentRevision + 1
	m.writes++
	return m.revisions[key], nil
}

// MockNatsObjectStore is an in-memory INatsObjectStore.
// It is safe for concurrent use.
type MockNatsObjectStore struct {
	mu       sync.Mutex
	objects  map[string][]byte
	meta     map[string]jetstream.ObjectMeta
	putError error
	getError error
}

// NewMockNatsObjectStore creates an empty in-memory object store bucket.
func NewMockNatsObjectStore() *MockNatsObjectStore {
	return &MockNatsObjectStore{
		objects: make(map[string][]byte),
		meta:    make(map[string]jetstream.ObjectMeta),
	}
}

// Names returns the names of all stored objects.
func (m *MockNatsObjectStore) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.objects))
	for name := range m.objects {
		names = append(names, name)
	}
	return names
}

func (m *MockNatsObjectStore) Put(ctx context.Context, obj jetstream.ObjectMeta, reader io.Reader) (*jetstream.ObjectInfo, error) {
	if m.putError != nil {
		return nil, m.putError
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[obj.Name] = data
	m.meta[obj.Name] = obj
	return &jetstream.ObjectInfo{ObjectMeta: obj, Bucket: "test-bucket", Size: uint64(len(data))}, nil
}

func (m *MockNatsObjectStore) GetBytes(ctx context.Context, name string, opts ...jetstream.GetObjectOpt) ([]byte, error) {
	if m.getError != nil {
		return nil, m.getError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[name]
	if !ok {
		return nil, jetstream.ErrObjectNotFound
	}
	return data, nil
}
