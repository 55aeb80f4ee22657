// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package domain

import (
	"context"

	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/domain/models"
)

// WebhookValidator verifies that a webhook body was signed by the video provider.
type WebhookValidator interface {
	ValidateSignature(body []byte, signature string) error
	// ValidateAPIKey checks the x-api-key header against the configured key.
	ValidateAPIKey(apiKey string) error
}

// VideoProvider is the subset of the video provider's call API the service drives.
type VideoProvider interface {
	EndCall(ctx context.Context, call models.CallRef) error
	ConnectAgent(ctx context.Context, call models.CallRef, agentID string) (AgentSession, error)
}

// AgentSession is a live connection of an AI participant to a call.
type AgentSession interface {
	UpdateInstructions(ctx context.Context, instructions string) error
}
