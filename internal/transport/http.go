package transport

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/theo-nash/claude-slack/internal/domain/identity"
	"github.com/theo-nash/claude-slack/internal/domain/membership"
	"github.com/theo-nash/claude-slack/internal/domain/messaging"
)

// Services groups the domain services the writer service fronts.
type Services struct {
	Identity   *identity.Service
	Membership *membership.Service
	Messaging  *messaging.Service
}

// Server is the single-writer HTTP front door. Every process on the host
// routes writes through it; reads may also be served here or from
// read-only connections elsewhere.
type Server struct {
	services Services
	logger   *slog.Logger
}

// NewServer wires the API routes.
func NewServer(services Services, logger *slog.Logger) *chi.Mux {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	srv := &Server{services: services, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", srv.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/messages", srv.handlePostMessage)
		r.Get("/messages", srv.handleGetMessages)
		r.Post("/search", srv.handleSearch)

		r.Get("/channels", srv.handleListChannels)
		r.Post("/channels", srv.handleCreateChannel)
		r.Post("/channels/{id}/join", srv.handleJoinChannel)
		r.Post("/channels/{id}/leave", srv.handleLeaveChannel)
		r.Post("/channels/{id}/invite", srv.handleInviteToChannel)

		r.Get("/agents", srv.handleListAgents)
		r.Post("/agents", srv.handleRegisterAgent)

		r.Post("/dms", srv.handleCreateDM)

		r.Post("/notes", srv.handleWriteNote)
		r.Get("/notes", srv.handleGetNotes)

		r.Post("/projects", srv.handleRegisterProject)
		r.Post("/projects/links", srv.handleCreateProjectLink)
		r.Post("/sessions", srv.handleRegisterSession)
		r.Post("/sessions/{id}/tool-calls", srv.handleRecordToolCall)
	})

	return r
}

// WithTiming logs per-request wall time. Enabled by CLAUDE_SLACK_PERF.
func WithTiming(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Info("request timing",
			"method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type postMessageRequest struct {
	ChannelID       string         `json:"channel_id"`
	Content         string         `json:"content"`
	SenderID        string         `json:"sender_id"`
	SenderProjectID string         `json:"sender_project_id,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	Confidence      *float64       `json:"confidence,omitempty"`
	ThreadID        *int64         `json:"thread_id,omitempty"`
}

func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	var req postMessageRequest
	if !s.decode(w, r, &req) {
		return
	}
	msg, err := s.services.Messaging.Post(r.Context(), messaging.PostRequest{
		ChannelID:  req.ChannelID,
		Sender:     identity.AgentRef{Name: req.SenderID, ProjectID: req.SenderProjectID},
		Content:    req.Content,
		Metadata:   req.Metadata,
		Confidence: req.Confidence,
		ThreadID:   req.ThreadID,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeResult(w, map[string]any{"id": msg.ID})
}

func (s *Server) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	caller := identity.AgentRef{Name: q.Get("agent_name"), ProjectID: q.Get("agent_project_id")}
	opts := messaging.ListMessagesOptions{
		ChannelID: q.Get("channel_id"),
		Limit:     intParam(q.Get("limit"), 50),
		Offset:    intParam(q.Get("offset"), 0),
		Since:     timeParam(q.Get("since")),
		Before:    timeParam(q.Get("before")),
	}
	messages, err := s.services.Messaging.Fetch(r.Context(), caller, opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if messages == nil {
		messages = []messaging.Message{}
	}
	s.writeResult(w, map[string]any{"messages": messages})
}

type searchRequest struct {
	Query           string         `json:"query,omitempty"`
	ChannelIDs      []string       `json:"channel_ids,omitempty"`
	ProjectIDs      []string       `json:"project_ids,omitempty"`
	MetadataFilters map[string]any `json:"metadata_filters,omitempty"`
	RankingProfile  string         `json:"ranking_profile,omitempty"`
	Limit           int            `json:"limit,omitempty"`
	AgentName       string         `json:"agent_name"`
	AgentProjectID  string         `json:"agent_project_id,omitempty"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if !s.decode(w, r, &req) {
		return
	}
	caller := identity.AgentRef{Name: req.AgentName, ProjectID: req.AgentProjectID}
	results, err := s.services.Messaging.Search(r.Context(), caller, messaging.SearchRequest{
		Query:           req.Query,
		ChannelIDs:      req.ChannelIDs,
		ProjectIDs:      req.ProjectIDs,
		MetadataFilters: req.MetadataFilters,
		RankingProfile:  req.RankingProfile,
		Limit:           req.Limit,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeResult(w, map[string]any{"results": results})
}

func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := membership.ListChannelsOptions{
		ProjectID:       q.Get("project_id"),
		IncludeArchived: q.Get("include_archived") == "true",
	}
	if name := q.Get("agent_name"); name != "" {
		opts.Agent = &identity.AgentRef{Name: name, ProjectID: q.Get("agent_project_id")}
	}
	if v := q.Get("is_default"); v != "" {
		isDefault := v == "true"
		opts.IsDefault = &isDefault
	}
	channels, err := s.services.Membership.ListChannels(r.Context(), opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if channels == nil {
		channels = []membership.Channel{}
	}
	s.writeResult(w, map[string]any{"channels": channels})
}

type createChannelRequest struct {
	Name               string `json:"name"`
	Description        string `json:"description,omitempty"`
	Scope              string `json:"scope"`
	AccessType         string `json:"access_type,omitempty"`
	ProjectID          string `json:"project_id,omitempty"`
	CreatedBy          string `json:"created_by"`
	CreatedByProjectID string `json:"created_by_project_id,omitempty"`
	IsDefault          bool   `json:"is_default,omitempty"`
}

func (s *Server) handleCreateChannel(w http.ResponseWriter, r *http.Request) {
	var req createChannelRequest
	if !s.decode(w, r, &req) {
		return
	}
	ch, err := s.services.Membership.CreateChannel(r.Context(), membership.CreateChannelRequest{
		Scope:       membership.Scope(req.Scope),
		Name:        req.Name,
		Description: req.Description,
		AccessType:  membership.AccessType(req.AccessType),
		ProjectID:   req.ProjectID,
		CreatedBy:   identity.AgentRef{Name: req.CreatedBy, ProjectID: req.CreatedByProjectID},
		IsDefault:   req.IsDefault,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeResult(w, map[string]any{"channel_id": ch.ID})
}

type memberRequest struct {
	AgentName      string `json:"agent_name"`
	AgentProjectID string `json:"agent_project_id,omitempty"`
}

func (s *Server) handleJoinChannel(w http.ResponseWriter, r *http.Request) {
	var req memberRequest
	if !s.decode(w, r, &req) {
		return
	}
	agent := identity.AgentRef{Name: req.AgentName, ProjectID: req.AgentProjectID}
	if err := s.services.Membership.JoinChannel(r.Context(), agent, chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeResult(w, map[string]any{"success": true})
}

func (s *Server) handleLeaveChannel(w http.ResponseWriter, r *http.Request) {
	var req memberRequest
	if !s.decode(w, r, &req) {
		return
	}
	agent := identity.AgentRef{Name: req.AgentName, ProjectID: req.AgentProjectID}
	if err := s.services.Membership.LeaveChannel(r.Context(), agent, chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeResult(w, map[string]any{"success": true})
}

type inviteRequest struct {
	InviteeName      string `json:"invitee_name"`
	InviteeProjectID string `json:"invitee_project_id,omitempty"`
	InviterName      string `json:"inviter_name"`
	InviterProjectID string `json:"inviter_project_id,omitempty"`
}

func (s *Server) handleInviteToChannel(w http.ResponseWriter, r *http.Request) {
	var req inviteRequest
	if !s.decode(w, r, &req) {
		return
	}
	invitee := identity.AgentRef{Name: req.InviteeName, ProjectID: req.InviteeProjectID}
	inviter := identity.AgentRef{Name: req.InviterName, ProjectID: req.InviterProjectID}
	if err := s.services.Membership.InviteToChannel(r.Context(), chi.URLParam(r, "id"), invitee, inviter); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeResult(w, map[string]any{"success": true})
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := identity.ListAgentsOptions{
		ProjectID: q.Get("project_id"),
		Limit:     intParam(q.Get("limit"), 0),
	}
	if name := q.Get("caller_name"); name != "" {
		opts.Caller = &identity.AgentRef{Name: name, ProjectID: q.Get("caller_project_id")}
	}
	agents, err := s.services.Identity.ListAgents(r.Context(), opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if q.Get("include_descriptions") == "false" {
		for i := range agents {
			agents[i].Description = ""
		}
	}
	if agents == nil {
		agents = []identity.Agent{}
	}
	s.writeResult(w, map[string]any{"agents": agents})
}

type registerAgentRequest struct {
	Name         string `json:"name"`
	ProjectID    string `json:"project_id,omitempty"`
	Description  string `json:"description,omitempty"`
	DMPolicy     string `json:"dm_policy,omitempty"`
	Discoverable string `json:"discoverable,omitempty"`
}

func (s *Server) handleRegisterAgent(w http.ResponseWriter, r *http.Request) {
	var req registerAgentRequest
	if !s.decode(w, r, &req) {
		return
	}
	_, err := s.services.Identity.RegisterAgent(r.Context(), identity.RegisterAgentRequest{
		Name:         req.Name,
		ProjectID:    req.ProjectID,
		Description:  req.Description,
		DMPolicy:     identity.DMPolicy(req.DMPolicy),
		Discoverable: identity.Discoverability(req.Discoverable),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeResult(w, map[string]any{"success": true})
}

type createDMRequest struct {
	AgentAName      string `json:"agent_a_name"`
	AgentAProjectID string `json:"agent_a_project_id,omitempty"`
	AgentBName      string `json:"agent_b_name"`
	AgentBProjectID string `json:"agent_b_project_id,omitempty"`
}

func (s *Server) handleCreateDM(w http.ResponseWriter, r *http.Request) {
	var req createDMRequest
	if !s.decode(w, r, &req) {
		return
	}
	a := identity.AgentRef{Name: req.AgentAName, ProjectID: req.AgentAProjectID}
	b := identity.AgentRef{Name: req.AgentBName, ProjectID: req.AgentBProjectID}
	ch, err := s.services.Membership.CreateOrGetDM(r.Context(), a, b)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeResult(w, map[string]any{"channel_id": ch.ID})
}

type writeNoteRequest struct {
	Content        string   `json:"content"`
	AgentName      string   `json:"agent_name"`
	AgentProjectID string   `json:"agent_project_id,omitempty"`
	SessionContext string   `json:"session_context,omitempty"`
	Tags           []string `json:"tags,omitempty"`
}

func (s *Server) handleWriteNote(w http.ResponseWriter, r *http.Request) {
	var req writeNoteRequest
	if !s.decode(w, r, &req) {
		return
	}
	agent := identity.AgentRef{Name: req.AgentName, ProjectID: req.AgentProjectID}
	note, err := s.services.Messaging.WriteNote(r.Context(), agent, req.Content, req.SessionContext, req.Tags)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeResult(w, map[string]any{"note_id": note.ID})
}

func (s *Server) handleGetNotes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	agent := identity.AgentRef{Name: q.Get("agent_name"), ProjectID: q.Get("agent_project_id")}
	limit := intParam(q.Get("limit"), 20)

	if query := q.Get("query"); query != "" || len(q["tags"]) > 0 {
		results, err := s.services.Messaging.SearchNotes(r.Context(), agent, query, q["tags"], limit)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeResult(w, map[string]any{"results": results})
		return
	}

	notes, err := s.services.Messaging.RecentNotes(r.Context(), agent, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if notes == nil {
		notes = []messaging.Message{}
	}
	s.writeResult(w, map[string]any{"notes": notes})
}

type registerProjectRequest struct {
	Path string `json:"path"`
	Name string `json:"name,omitempty"`
}

func (s *Server) handleRegisterProject(w http.ResponseWriter, r *http.Request) {
	var req registerProjectRequest
	if !s.decode(w, r, &req) {
		return
	}
	proj, err := s.services.Identity.RegisterProject(r.Context(), req.Path, req.Name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeResult(w, map[string]any{"project_id": proj.ID})
}

type createProjectLinkRequest struct {
	ProjectA  string `json:"project_a"`
	ProjectB  string `json:"project_b"`
	Direction string `json:"direction,omitempty"`
}

func (s *Server) handleCreateProjectLink(w http.ResponseWriter, r *http.Request) {
	var req createProjectLinkRequest
	if !s.decode(w, r, &req) {
		return
	}
	err := s.services.Identity.CreateProjectLink(r.Context(), req.ProjectA, req.ProjectB, identity.LinkDirection(req.Direction))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeResult(w, map[string]any{"success": true})
}

type registerSessionRequest struct {
	SessionID      string `json:"session_id"`
	ProjectID      string `json:"project_id,omitempty"`
	TranscriptPath string `json:"transcript_path,omitempty"`
}

func (s *Server) handleRegisterSession(w http.ResponseWriter, r *http.Request) {
	var req registerSessionRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.services.Identity.RegisterSession(r.Context(), req.SessionID, req.ProjectID, req.TranscriptPath); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeResult(w, map[string]any{"success": true})
}

type recordToolCallRequest struct {
	ToolName  string         `json:"tool_name"`
	ToolInput map[string]any `json:"tool_input,omitempty"`
}

func (s *Server) handleRecordToolCall(w http.ResponseWriter, r *http.Request) {
	var req recordToolCallRequest
	if !s.decode(w, r, &req) {
		return
	}
	id, err := s.services.Identity.RecordToolCall(r.Context(), chi.URLParam(r, "id"), req.ToolName, req.ToolInput)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeResult(w, map[string]any{"id": id})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]any{
			"ok":    false,
			"error": APIError{Kind: KindInvalid, Message: "malformed request body"},
		})
		return false
	}
	return true
}

func (s *Server) writeResult(w http.ResponseWriter, result map[string]any) {
	body := map[string]any{"ok": true}
	for k, v := range result {
		body[k] = v
	}
	s.writeJSON(w, http.StatusOK, body)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, apiErr := mapError(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			"method", r.Method, "path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()), "error", err)
	}
	s.writeJSON(w, status, map[string]any{"ok": false, "error": apiErr})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func intParam(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return v
}

// timeParam accepts epoch seconds or RFC 3339.
func timeParam(s string) *time.Time {
	if s == "" {
		return nil
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		t := time.Unix(secs, 0)
		return &t
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t
	}
	return nil
}
