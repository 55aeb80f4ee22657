// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/domain/models"
	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/logging"
	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/metrics"
	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/middleware"
	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/service"
	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/pkg/constants"
	goahttp "goa.design/goa/v3/http"
)

// Webhook outcomes, used as metric labels.
const (
	webhookOutcomeSuccess  = "success"
	webhookOutcomeIgnored  = "ignored"
	webhookOutcomeRejected = "rejected"
	webhookOutcomeInvalid  = "invalid"
	webhookOutcomeFailed   = "failed"
)

// webhookResponse is the body of a handled webhook
type webhookResponse struct {
	Status string `json:"status"`
}

// errorResponse is the body of a rejected or failed webhook
type errorResponse struct {
	Error string `json:"error"`
}

// VideoWebhookHandler authenticates video provider webhooks and hands the
// decoded event to the meeting lifecycle.
type VideoWebhookHandler struct {
	lifecycle        *service.MeetingLifecycleService
	WebhookValidator domain.WebhookValidator
	metrics          *metrics.Metrics
}

// NewVideoWebhookHandler creates a new VideoWebhookHandler. m may be nil.
func NewVideoWebhookHandler(
	lifecycle *service.MeetingLifecycleService,
	webhookValidator domain.WebhookValidator,
	m *metrics.Metrics,
) *VideoWebhookHandler {
	return &VideoWebhookHandler{
		lifecycle:        lifecycle,
		WebhookValidator: webhookValidator,
		metrics:          m,
	}
}

func (h *VideoWebhookHandler) HandlerReady() bool {
	return h.WebhookValidator != nil && h.lifecycle.ServiceReady()
}

// ServeHTTP implements [http.Handler].
func (h *VideoWebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	signature := r.Header.Get(constants.SignatureHeader)
	apiKey := r.Header.Get(constants.APIKeyHeader)
	if signature == "" || apiKey == "" {
		slog.WarnContext(ctx, "webhook without signature or api key")
		h.metrics.WebhookEvent("", webhookOutcomeInvalid)
		h.writeError(ctx, w, http.StatusBadRequest, "Missing signature or API key")
		return
	}

	body, ok := middleware.GetRawBodyFromContext(ctx)
	if !ok {
		var err error
		body, err = io.ReadAll(io.LimitReader(r.Body, middleware.MaxWebhookBodyBytes))
		if err != nil {
			slog.ErrorContext(ctx, "error reading webhook body", logging.ErrKey, err)
			h.metrics.WebhookEvent("", webhookOutcomeInvalid)
			h.writeError(ctx, w, http.StatusBadRequest, "Failed to read request body")
			return
		}
	}

	if err := h.WebhookValidator.ValidateSignature(body, signature); err != nil {
		slog.WarnContext(ctx, "webhook signature rejected", logging.ErrKey, err)
		h.metrics.WebhookEvent("", webhookOutcomeRejected)
		h.writeError(ctx, w, http.StatusUnauthorized, "Invalid signature")
		return
	}
	if err := h.WebhookValidator.ValidateAPIKey(apiKey); err != nil {
		slog.WarnContext(ctx, "webhook api key rejected", logging.ErrKey, err)
		h.metrics.WebhookEvent("", webhookOutcomeRejected)
		h.writeError(ctx, w, http.StatusUnauthorized, "Invalid API key")
		return
	}

	payload, err := models.ParseVideoWebhookPayload(body)
	if err != nil {
		slog.WarnContext(ctx, "webhook body is not valid JSON", logging.ErrKey, err)
		h.metrics.WebhookEvent("", webhookOutcomeInvalid)
		h.writeError(ctx, w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	event := payload.ToEvent()
	eventType := event.EventType()
	ctx = logging.AppendCtx(ctx, slog.String(logging.EventTypeKey, eventType))
	slog.DebugContext(ctx, "received video webhook")

	if err := h.lifecycle.HandleEvent(ctx, event); err != nil {
		status := httpStatus(err)
		outcome := webhookOutcomeFailed
		if status < http.StatusInternalServerError {
			outcome = webhookOutcomeInvalid
		}
		slog.ErrorContext(ctx, "failed to handle video webhook", logging.ErrKey, err, "status", status)
		h.metrics.WebhookEvent(eventType, outcome)
		h.writeError(ctx, w, status, err.Error())
		return
	}

	outcome := webhookOutcomeSuccess
	if _, unknown := event.(models.UnknownEvent); unknown {
		outcome = webhookOutcomeIgnored
	}
	h.metrics.WebhookEvent(eventType, outcome)
	h.writeJSON(ctx, w, http.StatusOK, webhookResponse{Status: "success"})
}

func (h *VideoWebhookHandler) writeError(ctx context.Context, w http.ResponseWriter, status int, message string) {
	h.writeJSON(ctx, w, status, errorResponse{Error: message})
}

func (h *VideoWebhookHandler) writeJSON(ctx context.Context, w http.ResponseWriter, status int, body any) {
	enc := goahttp.ResponseEncoder(ctx, w)
	w.WriteHeader(status)
	if err := enc.Encode(body); err != nil {
		slog.ErrorContext(ctx, "error writing webhook response", logging.ErrKey, err)
	}
}

// httpStatus maps a domain error to the response status of a webhook.
func httpStatus(err error) int {
	switch domain.GetErrorType(err) {
	case domain.ErrorTypeValidation:
		return http.StatusBadRequest
	case domain.ErrorTypeUnauthorized:
		return http.StatusUnauthorized
	case domain.ErrorTypeNotFound:
		return http.StatusNotFound
	case domain.ErrorTypeExternal:
		return http.StatusBadGateway
	case domain.ErrorTypeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
