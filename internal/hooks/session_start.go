package hooks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/theo-nash/claude-slack/internal/config"
	"github.com/theo-nash/claude-slack/internal/domain/identity"
	"github.com/theo-nash/claude-slack/internal/domain/reconcile"
	"github.com/theo-nash/claude-slack/internal/frontmatter"
	"github.com/theo-nash/claude-slack/internal/repository"
	"github.com/theo-nash/claude-slack/internal/sqlite"
)

// Runner executes hook logic against a freshly opened store. Hooks are
// short-lived processes; each run opens its own connection.
type Runner struct {
	Env    config.Env
	Logger *slog.Logger
}

// SessionStartResult reports what a session-start run did.
type SessionStartResult struct {
	SessionRegistered bool
	ProjectID         string
	FallbacksIngested int
	Reconciliation    *reconcile.Result
}

// SessionStart registers the session, replays any pending fallback files
// and reconciles the global scope plus the enclosing project's scope.
// Idempotent; every error is logged and swallowed by the caller.
func (r *Runner) SessionStart(ctx context.Context, payload *Payload) (*SessionStartResult, error) {
	if payload == nil || payload.HookEventName != "SessionStart" {
		r.Logger.Debug("ignoring non-SessionStart event")
		return &SessionStartResult{}, nil
	}

	cfg, err := config.Load(r.Env.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(r.Env.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("preparing database dir: %w", err)
	}
	db, err := sqlite.New(r.Env.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	projectRepo := sqlite.NewProjectRepository(db)
	identitySvc := identity.NewService(projectRepo, sqlite.NewAgentRepository(db), sqlite.NewSessionRepository(db), r.Logger)
	store := sqlite.NewReconcileStore(db)
	reconciler := reconcile.NewService(store, store, r.Logger)

	result := &SessionStartResult{}

	cwd := payload.CWD
	if cwd == "" {
		cwd, _ = os.Getwd()
	}
	projectRoot := r.Env.ProjectDir
	if projectRoot == "" {
		projectRoot = FindProjectRoot(cwd)
	}

	var projectID string
	if projectRoot != "" {
		proj, err := identitySvc.RegisterProject(ctx, projectRoot, "")
		if err != nil {
			return nil, fmt.Errorf("registering project: %w", err)
		}
		projectID = proj.ID
		result.ProjectID = projectID
	}

	if payload.SessionID != "" {
		if err := identitySvc.RegisterSession(ctx, payload.SessionID, projectID, payload.TranscriptPath); err != nil {
			return nil, fmt.Errorf("registering session: %w", err)
		}
		result.SessionRegistered = true
	}

	result.FallbacksIngested = ReingestFallbacks(ctx, r.Env.SessionsDir, identitySvc, r.Logger)

	desired, err := r.buildDesiredState(ctx, cfg, identitySvc, projectID, projectRoot)
	if err != nil {
		return nil, fmt.Errorf("building desired state: %w", err)
	}
	recon, err := reconciler.Run(ctx, *desired)
	if err != nil {
		return nil, fmt.Errorf("reconciling: %w", err)
	}
	result.Reconciliation = recon
	return result, nil
}

// buildDesiredState derives the reconciler input from configuration and
// discovered agent frontmatter.
func (r *Runner) buildDesiredState(ctx context.Context, cfg config.Config, identitySvc *identity.Service, projectID, projectRoot string) (*reconcile.DesiredState, error) {
	desired := &reconcile.DesiredState{ProjectID: projectID}

	if cfg.Settings.AutoCreateChannels {
		for _, def := range cfg.DefaultChannels.Global {
			desired.GlobalChannels = append(desired.GlobalChannels, reconcile.ChannelDef{Name: def.Name, Description: def.Description})
		}
		if projectID != "" {
			for _, def := range cfg.DefaultChannels.Project {
				desired.ProjectChannels = append(desired.ProjectChannels, reconcile.ChannelDef{Name: def.Name, Description: def.Description})
			}
		}
	}

	if cfg.Settings.AutoLinkProjects {
		for _, link := range cfg.ProjectLinks {
			def, err := r.resolveLink(ctx, identitySvc, link)
			if err != nil {
				r.Logger.Debug("skipping unresolved project link", "source", link.Source, "target", link.Target, "error", err)
				continue
			}
			desired.Links = append(desired.Links, *def)
		}
	}

	globalAgents, err := frontmatter.DiscoverDir(filepath.Join(r.Env.ConfigDir, "agents"))
	if err != nil {
		return nil, err
	}
	for _, a := range globalAgents {
		desired.Agents = append(desired.Agents, discoveredAgent(a, ""))
	}

	if projectRoot != "" {
		projectAgents, err := frontmatter.DiscoverDir(filepath.Join(projectRoot, projectMarker, "agents"))
		if err != nil {
			return nil, err
		}
		for _, a := range projectAgents {
			desired.Agents = append(desired.Agents, discoveredAgent(a, projectID))
		}
	}
	return desired, nil
}

// resolveLink maps configured project paths to registered project ids.
// Links referencing unregistered projects are skipped until both sides
// have seen a session.
func (r *Runner) resolveLink(ctx context.Context, svc *identity.Service, link config.ProjectLink) (*reconcile.LinkDef, error) {
	source, err := r.lookupProject(ctx, svc, link.Source)
	if err != nil {
		return nil, err
	}
	target, err := r.lookupProject(ctx, svc, link.Target)
	if err != nil {
		return nil, err
	}
	direction := identity.LinkDirection(link.Type)
	if direction == "" {
		direction = identity.LinkBidirectional
	}
	return &reconcile.LinkDef{ProjectA: source, ProjectB: target, Direction: direction}, nil
}

func (r *Runner) lookupProject(ctx context.Context, svc *identity.Service, pathOrID string) (string, error) {
	abs, err := filepath.Abs(pathOrID)
	if err == nil {
		id := identity.ProjectIDForPath(abs)
		if _, err := svc.GetProject(ctx, id); err == nil {
			return id, nil
		}
	}
	// The config may name the project by id directly.
	if _, err := svc.GetProject(ctx, pathOrID); err == nil {
		return pathOrID, nil
	}
	return "", errors.Join(repository.ErrNotFound, fmt.Errorf("project %q not registered", pathOrID))
}

func discoveredAgent(a frontmatter.Agent, projectID string) reconcile.DiscoveredAgent {
	return reconcile.DiscoveredAgent{
		Name:            a.Name,
		ProjectID:       projectID,
		Description:     a.Description,
		DMPolicy:        identity.DMPolicy(a.DMPolicy),
		Discoverable:    identity.Discoverability(a.Discoverable),
		GlobalChannels:  a.Channels.Global,
		ProjectChannels: a.Channels.Project,
		Exclude:         a.Channels.Exclude,
		NeverDefault:    a.NeverDefault,
	}
}
