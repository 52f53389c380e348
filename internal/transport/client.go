package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/theo-nash/claude-slack/internal/domain/identity"
	"github.com/theo-nash/claude-slack/internal/domain/membership"
	"github.com/theo-nash/claude-slack/internal/domain/messaging"
)

// Bridge is the HTTP client the tool layer and hooks use to reach the
// writer service, keeping the store single-writer across processes.
// Transport errors and StoreBusy responses are retried with exponential
// backoff.
type Bridge struct {
	baseURL string
	client  *http.Client
}

// NewBridge creates a client for the writer service at baseURL.
func NewBridge(baseURL string) *Bridge {
	return &Bridge{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// BridgeError carries the API error of a failed request.
type BridgeError struct {
	StatusCode int
	APIError   APIError
}

func (e *BridgeError) Error() string {
	return fmt.Sprintf("api error %d: %s: %s", e.StatusCode, e.APIError.Kind, e.APIError.Message)
}

// retryable reports whether the request should be retried: transport
// failures and writer-lock contention, never precondition failures.
func retryable(err error) bool {
	if apiErr, ok := err.(*BridgeError); ok {
		return apiErr.StatusCode == http.StatusServiceUnavailable
	}
	return err != nil
}

func (b *Bridge) request(ctx context.Context, method, endpoint string, query url.Values, body any, out any) error {
	operation := func() error {
		u := b.baseURL + endpoint
		if len(query) > 0 {
			u += "?" + query.Encode()
		}

		var reader io.Reader
		if body != nil {
			data, err := json.Marshal(body)
			if err != nil {
				return backoff.Permanent(fmt.Errorf("encoding request: %w", err))
			}
			reader = bytes.NewReader(data)
		}

		req, err := http.NewRequestWithContext(ctx, method, u, reader)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("building request: %w", err))
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := b.client.Do(req)
		if err != nil {
			return fmt.Errorf("calling writer service: %w", err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("reading response: %w", err)
		}

		if resp.StatusCode >= 400 {
			var envelope struct {
				Error APIError `json:"error"`
			}
			_ = json.Unmarshal(data, &envelope)
			bridgeErr := &BridgeError{StatusCode: resp.StatusCode, APIError: envelope.Error}
			if !retryable(bridgeErr) {
				return backoff.Permanent(bridgeErr)
			}
			return bridgeErr
		}

		if out != nil {
			if err := json.Unmarshal(data, out); err != nil {
				return backoff.Permanent(fmt.Errorf("decoding response: %w", err))
			}
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 4), ctx)
	return backoff.Retry(operation, policy)
}

// SendMessage posts a message and returns its id.
func (b *Bridge) SendMessage(ctx context.Context, channelID, content string, sender identity.AgentRef, metadata map[string]any, threadID *int64) (int64, error) {
	var out struct {
		ID int64 `json:"id"`
	}
	err := b.request(ctx, http.MethodPost, "/api/messages", nil, postMessageRequest{
		ChannelID:       channelID,
		Content:         content,
		SenderID:        sender.Name,
		SenderProjectID: sender.ProjectID,
		Metadata:        metadata,
		ThreadID:        threadID,
	}, &out)
	if err != nil {
		return 0, err
	}
	return out.ID, nil
}

// GetMessages fetches messages from a channel.
func (b *Bridge) GetMessages(ctx context.Context, caller identity.AgentRef, channelID string, limit, offset int) ([]messaging.Message, error) {
	q := url.Values{}
	q.Set("agent_name", caller.Name)
	if caller.ProjectID != "" {
		q.Set("agent_project_id", caller.ProjectID)
	}
	q.Set("channel_id", channelID)
	q.Set("limit", strconv.Itoa(limit))
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	var out struct {
		Messages []messaging.Message `json:"messages"`
	}
	if err := b.request(ctx, http.MethodGet, "/api/messages", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// SearchMessages runs a content search as the caller.
func (b *Bridge) SearchMessages(ctx context.Context, caller identity.AgentRef, req messaging.SearchRequest) ([]messaging.ScoredMessage, error) {
	var out struct {
		Results []messaging.ScoredMessage `json:"results"`
	}
	err := b.request(ctx, http.MethodPost, "/api/search", nil, searchRequest{
		Query:           req.Query,
		ChannelIDs:      req.ChannelIDs,
		ProjectIDs:      req.ProjectIDs,
		MetadataFilters: req.MetadataFilters,
		RankingProfile:  req.RankingProfile,
		Limit:           req.Limit,
		AgentName:       caller.Name,
		AgentProjectID:  caller.ProjectID,
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.Results, nil
}

// ListChannels lists channels with optional filters.
func (b *Bridge) ListChannels(ctx context.Context, agent *identity.AgentRef, projectID string, includeArchived bool) ([]membership.Channel, error) {
	q := url.Values{}
	if agent != nil {
		q.Set("agent_name", agent.Name)
		if agent.ProjectID != "" {
			q.Set("agent_project_id", agent.ProjectID)
		}
	}
	if projectID != "" {
		q.Set("project_id", projectID)
	}
	if includeArchived {
		q.Set("include_archived", "true")
	}
	var out struct {
		Channels []membership.Channel `json:"channels"`
	}
	if err := b.request(ctx, http.MethodGet, "/api/channels", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Channels, nil
}

// CreateChannel creates a channel and returns its id.
func (b *Bridge) CreateChannel(ctx context.Context, scope, name, description, projectID string, createdBy identity.AgentRef, isDefault bool) (string, error) {
	var out struct {
		ChannelID string `json:"channel_id"`
	}
	err := b.request(ctx, http.MethodPost, "/api/channels", nil, createChannelRequest{
		Name:               name,
		Description:        description,
		Scope:              scope,
		ProjectID:          projectID,
		CreatedBy:          createdBy.Name,
		CreatedByProjectID: createdBy.ProjectID,
		IsDefault:          isDefault,
	}, &out)
	if err != nil {
		return "", err
	}
	return out.ChannelID, nil
}

// JoinChannel joins the agent to a channel.
func (b *Bridge) JoinChannel(ctx context.Context, channelID string, agent identity.AgentRef) error {
	return b.request(ctx, http.MethodPost, "/api/channels/"+channelID+"/join", nil, memberRequest{
		AgentName:      agent.Name,
		AgentProjectID: agent.ProjectID,
	}, nil)
}

// LeaveChannel removes the agent from a channel.
func (b *Bridge) LeaveChannel(ctx context.Context, channelID string, agent identity.AgentRef) error {
	return b.request(ctx, http.MethodPost, "/api/channels/"+channelID+"/leave", nil, memberRequest{
		AgentName:      agent.Name,
		AgentProjectID: agent.ProjectID,
	}, nil)
}

// InviteToChannel invites an agent on behalf of a member.
func (b *Bridge) InviteToChannel(ctx context.Context, channelID string, invitee, inviter identity.AgentRef) error {
	return b.request(ctx, http.MethodPost, "/api/channels/"+channelID+"/invite", nil, inviteRequest{
		InviteeName:      invitee.Name,
		InviteeProjectID: invitee.ProjectID,
		InviterName:      inviter.Name,
		InviterProjectID: inviter.ProjectID,
	}, nil)
}

// RegisterAgent registers an agent identity.
func (b *Bridge) RegisterAgent(ctx context.Context, agent identity.AgentRef, description, dmPolicy, discoverable string) error {
	return b.request(ctx, http.MethodPost, "/api/agents", nil, registerAgentRequest{
		Name:         agent.Name,
		ProjectID:    agent.ProjectID,
		Description:  description,
		DMPolicy:     dmPolicy,
		Discoverable: discoverable,
	}, nil)
}

// ListAgents lists agents visible to the caller.
func (b *Bridge) ListAgents(ctx context.Context, caller *identity.AgentRef, projectID string) ([]identity.Agent, error) {
	q := url.Values{}
	if caller != nil {
		q.Set("caller_name", caller.Name)
		if caller.ProjectID != "" {
			q.Set("caller_project_id", caller.ProjectID)
		}
	}
	if projectID != "" {
		q.Set("project_id", projectID)
	}
	var out struct {
		Agents []identity.Agent `json:"agents"`
	}
	if err := b.request(ctx, http.MethodGet, "/api/agents", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Agents, nil
}

// CreateOrGetDM provisions the DM channel for the pair.
func (b *Bridge) CreateOrGetDM(ctx context.Context, a, bRef identity.AgentRef) (string, error) {
	var out struct {
		ChannelID string `json:"channel_id"`
	}
	err := b.request(ctx, http.MethodPost, "/api/dms", nil, createDMRequest{
		AgentAName:      a.Name,
		AgentAProjectID: a.ProjectID,
		AgentBName:      bRef.Name,
		AgentBProjectID: bRef.ProjectID,
	}, &out)
	if err != nil {
		return "", err
	}
	return out.ChannelID, nil
}

// WriteNote appends to the agent's notes channel.
func (b *Bridge) WriteNote(ctx context.Context, agent identity.AgentRef, content, sessionContext string, tags []string) (int64, error) {
	var out struct {
		NoteID int64 `json:"note_id"`
	}
	err := b.request(ctx, http.MethodPost, "/api/notes", nil, writeNoteRequest{
		Content:        content,
		AgentName:      agent.Name,
		AgentProjectID: agent.ProjectID,
		SessionContext: sessionContext,
		Tags:           tags,
	}, &out)
	if err != nil {
		return 0, err
	}
	return out.NoteID, nil
}

// SearchNotes searches the agent's notes.
func (b *Bridge) SearchNotes(ctx context.Context, agent identity.AgentRef, query string, tags []string, limit int) ([]messaging.ScoredMessage, error) {
	q := url.Values{}
	q.Set("agent_name", agent.Name)
	if agent.ProjectID != "" {
		q.Set("agent_project_id", agent.ProjectID)
	}
	if query != "" {
		q.Set("query", query)
	}
	for _, tag := range tags {
		q.Add("tags", tag)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out struct {
		Results []messaging.ScoredMessage `json:"results"`
	}
	if err := b.request(ctx, http.MethodGet, "/api/notes", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}
