// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"log/slog"

	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/domain"
)

// VideoWebhookValidator verifies that webhook requests were sent by the video provider
type VideoWebhookValidator struct {
	APIKey    string
	APISecret string
}

// Ensure that VideoWebhookValidator implements domain.WebhookValidator
var _ domain.WebhookValidator = (*VideoWebhookValidator)(nil)

// NewVideoWebhookValidator creates a new video webhook validator
func NewVideoWebhookValidator(apiKey, apiSecret string) *VideoWebhookValidator {
	return &VideoWebhookValidator{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
}

// ValidateSignature checks that signature is the hex HMAC-SHA256 of body keyed with the API secret
func (v *VideoWebhookValidator) ValidateSignature(body []byte, signature string) error {
	if v.APISecret == "" {
		return domain.NewInternalError("webhook secret not configured")
	}

	if signature == "" {
		return domain.NewValidationError("missing webhook signature")
	}

	expected := Sign(v.APISecret, body)
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		slog.Warn("video webhook signature does not match expected signature")
		return domain.NewUnauthorizedError("invalid webhook signature", domain.ErrInvalidSignature)
	}

	return nil
}

// ValidateAPIKey checks the key the provider sends alongside the signature.
// An unconfigured key accepts any value.
func (v *VideoWebhookValidator) ValidateAPIKey(apiKey string) error {
	if v.APIKey == "" {
		return nil
	}
	if subtle.ConstantTimeCompare([]byte(apiKey), []byte(v.APIKey)) != 1 {
		slog.Warn("video webhook api key does not match configured key")
		return domain.NewUnauthorizedError("invalid webhook api key")
	}
	return nil
}

// Sign returns the signature the provider computes for body
func Sign(secret string, body []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}
