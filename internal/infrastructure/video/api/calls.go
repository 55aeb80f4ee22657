// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-agent-service/internal/domain/models"
)

// ConnectAgentRequest asks the provider to join an AI participant to a call
type ConnectAgentRequest struct {
	AgentUserID string `json:"agent_user_id"`
}

// ConnectAgentResponse identifies the realtime session of a connected AI participant
type ConnectAgentResponse struct {
	SessionID string `json:"session_id"`
}

// UpdateSessionRequest changes the behaviour of a connected AI participant
type UpdateSessionRequest struct {
	Instructions string `json:"instructions"`
}

// Ensure that Client implements the domain video provider
var _ domain.VideoProvider = (*Client)(nil)

// callPath returns the escaped REST path of a call, filling in the configured
// call type when the reference has none
func (c *Client) callPath(call models.CallRef) string {
	callType := call.Type
	if callType == "" {
		callType = c.config.CallType
	}
	return fmt.Sprintf("/video/call/%s/%s", url.PathEscape(callType), url.PathEscape(call.ID))
}

// EndCall ends the call for every participant
func (c *Client) EndCall(ctx context.Context, call models.CallRef) error {
	if call.ID == "" {
		return domain.NewValidationError("call id is required")
	}
	if err := c.doRequest(ctx, http.MethodPost, c.callPath(call)+"/mark_ended", nil, nil); err != nil {
		return domain.NewExternalServiceError("failed to end call "+call.CID(), err)
	}
	return nil
}

// ConnectAgent joins the agent's AI participant to the call and returns its session
func (c *Client) ConnectAgent(ctx context.Context, call models.CallRef, agentID string) (domain.AgentSession, error) {
	if call.ID == "" || agentID == "" {
		return nil, domain.NewValidationError("call id and agent id are required")
	}

	// Each accepted POST joins another participant, so a retry after a lost
	// response could connect the agent twice.
	var resp ConnectAgentResponse
	err := c.doRequestOnce(ctx, http.MethodPost, c.callPath(call)+"/agents", &ConnectAgentRequest{AgentUserID: agentID}, &resp)
	if err != nil {
		return nil, domain.NewExternalServiceError("failed to connect agent to call "+call.CID(), err)
	}
	if resp.SessionID == "" {
		return nil, domain.NewExternalServiceError("video provider returned no agent session for call " + call.CID())
	}

	return &agentSession{client: c, call: call, sessionID: resp.SessionID}, nil
}

// agentSession is a connected AI participant
type agentSession struct {
	client    *Client
	call      models.CallRef
	sessionID string
}

// UpdateInstructions replaces the instructions the AI participant follows
func (s *agentSession) UpdateInstructions(ctx context.Context, instructions string) error {
	path := s.client.callPath(s.call) + "/agents/" + url.PathEscape(s.sessionID)
	if err := s.client.doRequest(ctx, http.MethodPatch, path, &UpdateSessionRequest{Instructions: instructions}, nil); err != nil {
		return domain.NewExternalServiceError("failed to update agent session "+s.sessionID, err)
	}
	return nil
}
