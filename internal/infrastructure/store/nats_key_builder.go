// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package store

import (
	"strings"
)

// KeyBuilder provides utilities for building consistent NATS keys and object names
type KeyBuilder struct {
	prefix string
}

// NewKeyBuilder creates a new key builder with an optional prefix
func NewKeyBuilder(prefix string) *KeyBuilder {
	return &KeyBuilder{
		prefix: prefix,
	}
}

// CompoundKey builds a key from multiple parts (e.g., "job-1/parse-transcript")
func (kb *KeyBuilder) CompoundKey(parts ...string) string {
	key := strings.Join(parts, "/")
	if kb.prefix == "" {
		return key
	}
	return kb.prefix + "/" + key
}

// CheckpointKey builds the object name holding the output of one step of one job.
func (kb *KeyBuilder) CheckpointKey(jobID, step string) string {
	return kb.CompoundKey(jobID, step)
}
