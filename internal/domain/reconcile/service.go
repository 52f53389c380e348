package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/theo-nash/claude-slack/internal/domain/identity"
	"github.com/theo-nash/claude-slack/internal/domain/membership"
	"github.com/theo-nash/claude-slack/internal/repository"
)

// Service builds and executes reconciliation plans. The plan is the
// minimal diff from current to desired state, so a run against a
// converged store executes nothing.
type Service struct {
	reader  StateReader
	applier Applier
	logger  *slog.Logger
}

// NewService creates a new reconciliation service.
func NewService(reader StateReader, applier Applier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{reader: reader, applier: applier, logger: logger}
}

// Plan diffs the desired state against the store and returns the ordered
// action plan.
func (s *Service) Plan(ctx context.Context, desired DesiredState) (*Plan, error) {
	plan := &Plan{}

	undefaulted, err := s.planInfrastructure(ctx, desired, plan)
	if err != nil {
		return nil, err
	}
	if err := s.planAgents(ctx, desired, plan); err != nil {
		return nil, err
	}
	if err := s.planAccess(ctx, desired, undefaulted, plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// Run plans and executes. Per-action failures are collected; phases never
// abort early.
func (s *Service) Run(ctx context.Context, desired DesiredState) (*Result, error) {
	plan, err := s.Plan(ctx, desired)
	if err != nil {
		return nil, fmt.Errorf("planning reconciliation: %w", err)
	}

	result := &Result{Total: len(plan.Actions), Success: true}
	for _, actions := range plan.ByPhase() {
		if len(actions) == 0 {
			continue
		}
		errs := s.applier.ApplyPhase(ctx, actions)
		result.Executed += len(actions) - len(errs)
		result.Failed += len(errs)
		result.Errors = append(result.Errors, errs...)
		if len(errs) > 0 {
			result.Success = false
		}
	}

	s.logger.Info("reconciliation complete",
		"total", result.Total, "executed", result.Executed, "failed", result.Failed)
	for _, e := range result.Errors {
		s.logger.Warn("reconciliation action failed", "action", e.Action.Describe(), "error", e.Err)
	}
	return result, nil
}

// planInfrastructure converges channels and links. It returns the ids of
// channels that lost their default flag, which drive membership removal
// in the access phase.
func (s *Service) planInfrastructure(ctx context.Context, desired DesiredState, plan *Plan) ([]string, error) {
	type scopeSet struct {
		scope     membership.Scope
		projectID string
		defs      []ChannelDef
	}
	scopes := []scopeSet{{membership.ScopeGlobal, "", desired.GlobalChannels}}
	if desired.ProjectID != "" {
		scopes = append(scopes, scopeSet{membership.ScopeProject, desired.ProjectID, desired.ProjectChannels})
	}

	var undefaulted []string
	for _, sc := range scopes {
		want := make(map[string]bool, len(sc.defs))
		for _, def := range sc.defs {
			want[def.Name] = true
			id := membership.ChannelIDFor(sc.scope, sc.projectID, def.Name)
			ch, err := s.reader.GetChannel(ctx, id)
			if err != nil {
				if !errors.Is(err, repository.ErrNotFound) {
					return nil, fmt.Errorf("reading channel %s: %w", id, err)
				}
				ch = nil
			}
			if ch == nil || !ch.IsDefault {
				plan.Actions = append(plan.Actions, CreateChannelAction{
					Scope:       sc.scope,
					ProjectID:   sc.projectID,
					Name:        def.Name,
					Description: def.Description,
					IsDefault:   true,
				})
			}
		}

		current, err := s.reader.ListDefaultChannels(ctx, sc.scope, sc.projectID)
		if err != nil {
			return nil, fmt.Errorf("listing default channels: %w", err)
		}
		for _, ch := range current {
			if want[ch.Name] {
				continue
			}
			plan.Actions = append(plan.Actions, CreateChannelAction{
				Scope:       sc.scope,
				ProjectID:   sc.projectID,
				Name:        ch.Name,
				Description: ch.Description,
				IsDefault:   false,
			})
			undefaulted = append(undefaulted, ch.ID)
		}
	}

	for _, link := range desired.Links {
		exists, err := s.reader.HasProjectLink(ctx, link.ProjectA, link.ProjectB)
		if err != nil {
			return nil, fmt.Errorf("reading project link: %w", err)
		}
		if !exists {
			plan.Actions = append(plan.Actions, CreateProjectLinkAction{
				ProjectA:  link.ProjectA,
				ProjectB:  link.ProjectB,
				Direction: link.Direction,
			})
		}
	}
	return undefaulted, nil
}

func (s *Service) planAgents(ctx context.Context, desired DesiredState, plan *Plan) error {
	for _, d := range desired.Agents {
		d = normalize(d)
		ref := d.Ref()

		current, err := s.reader.GetAgent(ctx, ref)
		if err != nil {
			if !errors.Is(err, repository.ErrNotFound) && !errors.Is(err, identity.ErrAgentNotFound) {
				return fmt.Errorf("reading agent %s: %w", ref, err)
			}
			current = nil
		}

		needNotes := false
		if _, err := s.reader.GetChannel(ctx, membership.NotesChannelID(ref)); err != nil {
			if !errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("reading notes channel: %w", err)
			}
			needNotes = true
		}

		changed := current == nil ||
			current.Description != d.Description ||
			current.DMPolicy != d.DMPolicy ||
			current.Discoverable != d.Discoverable
		if changed || needNotes {
			plan.Actions = append(plan.Actions, RegisterAgentAction{
				Agent:              ref,
				Description:        d.Description,
				DMPolicy:           d.DMPolicy,
				Discoverable:       d.Discoverable,
				CreateNotesChannel: needNotes,
			})
		}
	}
	return nil
}

func (s *Service) planAccess(ctx context.Context, desired DesiredState, undefaulted []string, plan *Plan) error {
	for _, d := range desired.Agents {
		d = normalize(d)
		ref := d.Ref()
		excluded := make(map[string]bool, len(d.Exclude))
		for _, name := range d.Exclude {
			excluded[name] = true
		}

		if !d.NeverDefault {
			for _, def := range desired.GlobalChannels {
				if excluded[def.Name] {
					continue
				}
				if err := s.planMembership(ctx, plan, membership.GlobalChannelID(def.Name), ref, membership.SourceDefault); err != nil {
					return err
				}
			}
			if d.ProjectID != "" && d.ProjectID == desired.ProjectID {
				for _, def := range desired.ProjectChannels {
					if excluded[def.Name] {
						continue
					}
					if err := s.planMembership(ctx, plan, membership.ProjectChannelID(d.ProjectID, def.Name), ref, membership.SourceDefault); err != nil {
						return err
					}
				}
			}
		}

		for _, name := range d.GlobalChannels {
			if err := s.planMembership(ctx, plan, membership.GlobalChannelID(name), ref, membership.SourceExplicit); err != nil {
				return err
			}
		}
		if d.ProjectID != "" {
			for _, name := range d.ProjectChannels {
				if err := s.planMembership(ctx, plan, membership.ProjectChannelID(d.ProjectID, name), ref, membership.SourceExplicit); err != nil {
					return err
				}
			}
		}
	}

	// Channels that lost their default flag shed only the rows default
	// provisioning created and nobody has since claimed.
	for _, channelID := range undefaulted {
		members, err := s.reader.ListDefaultMembers(ctx, channelID)
		if err != nil {
			return fmt.Errorf("listing default members of %s: %w", channelID, err)
		}
		for _, m := range members {
			plan.Actions = append(plan.Actions, RemoveMembershipAction{
				ChannelID: channelID,
				Agent:     m.Agent,
			})
		}
	}
	return nil
}

func (s *Service) planMembership(ctx context.Context, plan *Plan, channelID string, ref identity.AgentRef, source membership.MemberSource) error {
	_, err := s.reader.GetMember(ctx, channelID, ref)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("reading membership %s/%s: %w", channelID, ref, err)
	}
	plan.Actions = append(plan.Actions, AddMembershipAction{
		ChannelID:     channelID,
		Agent:         ref,
		Source:        source,
		IsFromDefault: source == membership.SourceDefault,
	})
	return nil
}

func normalize(d DiscoveredAgent) DiscoveredAgent {
	if d.DMPolicy == "" {
		d.DMPolicy = identity.DMOpen
	}
	if d.Discoverable == "" {
		d.Discoverable = identity.DiscoverPublic
	}
	return d
}
