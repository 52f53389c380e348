package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/theo-nash/claude-slack/internal/repository"
)

// Service handles project, agent and session lifecycle.
type Service struct {
	projects ProjectRepository
	agents   AgentRepository
	sessions SessionRepository
	logger   *slog.Logger
}

// NewService creates a new identity service.
func NewService(projects ProjectRepository, agents AgentRepository, sessions SessionRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{projects: projects, agents: agents, sessions: sessions, logger: logger}
}

// RegisterProject registers a workspace directory, deriving the stable
// project id from its absolute path. Idempotent.
func (s *Service) RegisterProject(ctx context.Context, path, name string) (*Project, error) {
	if strings.TrimSpace(path) == "" {
		return nil, ErrInvalidInput
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving project path: %w", err)
	}
	id := ProjectIDForPath(abs)

	existing, err := s.projects.Get(ctx, id)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("looking up project: %w", err)
	}

	if name == "" {
		name = filepath.Base(abs)
	}
	proj := &Project{
		ID:        id,
		Path:      abs,
		Name:      name,
		CreatedAt: time.Now(),
	}
	if err := s.projects.Create(ctx, proj); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return s.projects.Get(ctx, id)
		}
		return nil, fmt.Errorf("creating project: %w", err)
	}
	s.logger.Info("registered project", "project_id", id, "path", abs)
	return proj, nil
}

// GetProject returns a project by id.
func (s *Service) GetProject(ctx context.Context, id string) (*Project, error) {
	proj, err := s.projects.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("getting project: %w", err)
	}
	return proj, nil
}

// ListProjects returns all registered projects.
func (s *Service) ListProjects(ctx context.Context) ([]Project, error) {
	return s.projects.List(ctx)
}

// RegisterAgentRequest describes an agent registration.
type RegisterAgentRequest struct {
	Name         string
	ProjectID    string
	Description  string
	DMPolicy     DMPolicy
	Discoverable Discoverability
}

// RegisterAgent registers or refreshes an agent. Re-registration updates
// the description and policies but never downgrades status.
func (s *Service) RegisterAgent(ctx context.Context, req RegisterAgentRequest) (*Agent, error) {
	if !ValidAgentName(req.Name) {
		return nil, ErrInvalidInput
	}
	if req.ProjectID != "" {
		if _, err := s.GetProject(ctx, req.ProjectID); err != nil {
			return nil, err
		}
	}
	if req.DMPolicy == "" {
		req.DMPolicy = DMOpen
	}
	if req.Discoverable == "" {
		req.Discoverable = DiscoverPublic
	}

	agent := &Agent{
		Name:         req.Name,
		ProjectID:    req.ProjectID,
		Description:  req.Description,
		Status:       StatusActive,
		DMPolicy:     req.DMPolicy,
		Discoverable: req.Discoverable,
		CreatedAt:    time.Now(),
	}
	if err := s.agents.Upsert(ctx, agent); err != nil {
		return nil, fmt.Errorf("registering agent: %w", err)
	}
	return s.GetAgent(ctx, agent.Ref())
}

// GetAgent returns an agent by its composite key.
func (s *Service) GetAgent(ctx context.Context, ref AgentRef) (*Agent, error) {
	agent, err := s.agents.Get(ctx, ref)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAgentNotFound
		}
		return nil, fmt.Errorf("getting agent: %w", err)
	}
	return agent, nil
}

// ListAgents lists agents visible to the caller. An agent is visible when
// it is public, when it shares or links to the caller's project, or when it
// is the caller itself.
func (s *Service) ListAgents(ctx context.Context, opts ListAgentsOptions) ([]Agent, error) {
	return s.agents.List(ctx, opts)
}

// SetDMPermission records an allow or block entry for the restricted DM policy.
func (s *Service) SetDMPermission(ctx context.Context, agent, other AgentRef, kind DMPermissionKind) error {
	if _, err := s.GetAgent(ctx, agent); err != nil {
		return err
	}
	if err := s.agents.SetDMPermission(ctx, agent, other, kind); err != nil {
		return fmt.Errorf("setting dm permission: %w", err)
	}
	return nil
}

// DMAllowed reports whether other passes agent's DM policy.
func (s *Service) DMAllowed(ctx context.Context, agent *Agent, other AgentRef) (bool, error) {
	switch agent.DMPolicy {
	case DMClosed:
		return false, nil
	case DMOpen:
		kind, ok, err := s.agents.GetDMPermission(ctx, agent.Ref(), other)
		if err != nil {
			return false, fmt.Errorf("checking dm permission: %w", err)
		}
		return !(ok && kind == DMBlock), nil
	case DMRestricted:
		kind, ok, err := s.agents.GetDMPermission(ctx, agent.Ref(), other)
		if err != nil {
			return false, fmt.Errorf("checking dm permission: %w", err)
		}
		return ok && kind == DMAllow, nil
	default:
		return false, nil
	}
}

// CreateProjectLink links two projects for cross-project discoverability.
func (s *Service) CreateProjectLink(ctx context.Context, projectA, projectB string, direction LinkDirection) error {
	if projectA == "" || projectB == "" || projectA == projectB {
		return ErrInvalidInput
	}
	if direction == "" {
		direction = LinkBidirectional
	}
	link := &ProjectLink{
		ProjectA:  projectA,
		ProjectB:  projectB,
		Direction: direction,
		CreatedAt: time.Now(),
	}
	if err := s.projects.CreateLink(ctx, link); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil
		}
		if errors.Is(err, repository.ErrForeignKeyViolation) {
			return ErrProjectNotFound
		}
		return fmt.Errorf("creating project link: %w", err)
	}
	return nil
}

// ListProjectLinks returns all project links.
func (s *Service) ListProjectLinks(ctx context.Context) ([]ProjectLink, error) {
	return s.projects.ListLinks(ctx)
}

// RegisterSession upserts a session row for the given id.
func (s *Service) RegisterSession(ctx context.Context, sessionID, projectID, transcriptPath string) error {
	if sessionID == "" {
		return ErrInvalidInput
	}
	now := time.Now()
	sess := &Session{
		ID:             sessionID,
		ProjectID:      projectID,
		TranscriptPath: transcriptPath,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.sessions.Upsert(ctx, sess); err != nil {
		return fmt.Errorf("registering session: %w", err)
	}
	return nil
}

// TouchSession bumps the session's updated_at.
func (s *Service) TouchSession(ctx context.Context, sessionID string) error {
	if err := s.sessions.Touch(ctx, sessionID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("touching session: %w", err)
	}
	return nil
}

// GetSession returns a session by id.
func (s *Service) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("getting session: %w", err)
	}
	return sess, nil
}

// RecordToolCall appends a tool_calls row and touches the session in the
// same transaction.
func (s *Service) RecordToolCall(ctx context.Context, sessionID, toolName string, toolInput map[string]any) (int64, error) {
	if sessionID == "" || toolName == "" {
		return 0, ErrInvalidInput
	}
	inputs, hash, err := HashToolInputs(toolInput)
	if err != nil {
		return 0, err
	}
	call := &ToolCall{
		SessionID:  sessionID,
		ToolName:   toolName,
		InputsHash: hash,
		Inputs:     inputs,
		CreatedAt:  time.Now(),
	}
	id, err := s.sessions.RecordToolCall(ctx, call)
	if err != nil {
		return 0, fmt.Errorf("recording tool call: %w", err)
	}
	return id, nil
}

// HashToolInputs canonicalizes tool inputs as sorted-key JSON and returns
// the JSON plus the first 16 hex characters of its SHA-256 digest.
func HashToolInputs(toolInput map[string]any) (string, string, error) {
	// encoding/json sorts map keys, which is exactly the canonical form.
	data, err := json.Marshal(toolInput)
	if err != nil {
		return "", "", fmt.Errorf("encoding tool inputs: %w", err)
	}
	sum := sha256.Sum256(data)
	return string(data), hex.EncodeToString(sum[:])[:16], nil
}
