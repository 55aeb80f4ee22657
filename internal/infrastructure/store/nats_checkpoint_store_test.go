// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"errors"
	"testing"

	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testStepOutput struct {
	Items []string `msgpack:"items"`
	Count int      `msgpack:"count"`
}

func TestNatsCheckpointStore_SaveAndLoad(t *testing.T) {
	ctx := context.Background()
	objects := NewMockNatsObjectStore()
	checkpoints := NewNatsCheckpointStore(objects)

	var missing testStepOutput
	found, err := checkpoints.Load(ctx, "job-1", "parse-transcript", &missing)
	require.NoError(t, err)
	assert.False(t, found)

	saved := testStepOutput{Items: []string{"a", "b"}, Count: 2}
	require.NoError(t, checkpoints.Save(ctx, "job-1", "parse-transcript", saved))
	assert.Equal(t, []string{"job-1/parse-transcript"}, objects.Names())
	assert.Equal(t, "parse-transcript", objects.meta["job-1/parse-transcript"].Metadata["step"])

	var loaded testStepOutput
	found, err = checkpoints.Load(ctx, "job-1", "parse-transcript", &loaded)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, saved, loaded)

	// Other jobs do not see this job's checkpoints.
	found, err = checkpoints.Load(ctx, "job-2", "parse-transcript", &loaded)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestNatsCheckpointStore_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("not ready", func(t *testing.T) {
		checkpoints := NewNatsCheckpointStore(nil)

		_, err := checkpoints.Load(ctx, "job", "step", &testStepOutput{})
		assert.Equal(t, domain.ErrorTypeUnavailable, domain.GetErrorType(err))
		err = checkpoints.Save(ctx, "job", "step", testStepOutput{})
		assert.Equal(t, domain.ErrorTypeUnavailable, domain.GetErrorType(err))
	})

	t.Run("read failure", func(t *testing.T) {
		objects := NewMockNatsObjectStore()
		objects.getError = errors.New("stream offline")
		checkpoints := NewNatsCheckpointStore(objects)

		_, err := checkpoints.Load(ctx, "job", "step", &testStepOutput{})
		assert.Equal(t, domain.ErrorTypeInternal, domain.GetErrorType(err))
	})

	t.Run("write failure", func(t *testing.T) {
		objects := NewMockNatsObjectStore()
		objects.putError = errors.New("stream offline")
		checkpoints := NewNatsCheckpointStore(objects)

		err := checkpoints.Save(ctx, "job", "step", testStepOutput{})
		assert.Equal(t, domain.ErrorTypeInternal, domain.GetErrorType(err))
	})
}
