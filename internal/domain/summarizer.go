// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package domain

import "context"

// GeneratedMessage is one message produced by the generative-text service.
type GeneratedMessage struct {
	Content string
}

// Summarizer runs a single prompt against the generative-text service.
type Summarizer interface {
	Run(ctx context.Context, prompt string) ([]GeneratedMessage, error)
}

// TranscriptFetcher downloads a transcript from the provider's storage.
type TranscriptFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}
