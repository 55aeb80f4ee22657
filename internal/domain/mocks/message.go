// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package mocks

import (
	"time"

	"github.com/stretchr/testify/mock"
)

// MockJobMessage implements JobMessage for testing
type MockJobMessage struct {
	mock.Mock
	data         []byte
	numDelivered uint64
}

func (m *MockJobMessage) Data() []byte {
	return m.data
}

func (m *MockJobMessage) NumDelivered() uint64 {
	return m.numDelivered
}

func (m *MockJobMessage) Ack() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockJobMessage) NakWithDelay(delay time.Duration) error {
	args := m.Called(delay)
	return args.Error(0)
}

func (m *MockJobMessage) Term() error {
	args := m.Called()
	return args.Error(0)
}

// NewMockJobMessage creates a mock job delivery for testing
func NewMockJobMessage(data []byte, numDelivered uint64) *MockJobMessage {
	return &MockJobMessage{
		data:         data,
		numDelivered: numDelivered,
	}
}
