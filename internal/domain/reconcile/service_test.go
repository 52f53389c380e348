package reconcile_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/theo-nash/claude-slack/internal/domain/identity"
	"github.com/theo-nash/claude-slack/internal/domain/membership"
	"github.com/theo-nash/claude-slack/internal/domain/reconcile"
	"github.com/theo-nash/claude-slack/internal/sqlite"
)

type fixture struct {
	db         *sqlite.DB
	reconciler *reconcile.Service
	membership *membership.Service
	identity   *identity.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := sqlite.NewTestDB(t)
	store := sqlite.NewReconcileStore(db)
	identitySvc := identity.NewService(
		sqlite.NewProjectRepository(db),
		sqlite.NewAgentRepository(db),
		sqlite.NewSessionRepository(db),
		nil,
	)
	membershipSvc := membership.NewService(
		sqlite.NewChannelRepository(db),
		sqlite.NewMemberRepository(db),
		identitySvc,
		nil,
	)
	return &fixture{
		db:         db,
		reconciler: reconcile.NewService(store, store, nil),
		membership: membershipSvc,
		identity:   identitySvc,
	}
}

func baseState() reconcile.DesiredState {
	return reconcile.DesiredState{
		GlobalChannels: []reconcile.ChannelDef{{Name: "general", Description: "General discussion"}},
		Agents:         []reconcile.DiscoveredAgent{{Name: "a1", Description: "agent one"}},
	}
}

func TestReconcileConvergesAndIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	desired := baseState()

	first, err := f.reconciler.Run(ctx, desired)
	require.NoError(t, err)
	require.True(t, first.Success)
	require.Greater(t, first.Executed, 0)
	require.Zero(t, first.Failed)

	// The channel exists and is default.
	ch, err := f.membership.GetChannel(ctx, "global:general")
	require.NoError(t, err)
	require.True(t, ch.IsDefault)

	// The agent exists with its notes channel and default membership.
	_, err = f.identity.GetAgent(ctx, identity.AgentRef{Name: "a1"})
	require.NoError(t, err)
	_, err = f.membership.GetChannel(ctx, "notes:a1:global")
	require.NoError(t, err)

	m, err := f.membership.GetMember(ctx, "global:general", identity.AgentRef{Name: "a1"})
	require.NoError(t, err)
	require.True(t, m.IsFromDefault)
	require.Equal(t, membership.SourceDefault, m.Source)

	// The second run is a no-op.
	second, err := f.reconciler.Run(ctx, desired)
	require.NoError(t, err)
	require.True(t, second.Success)
	require.Zero(t, second.Total)
	require.Zero(t, second.Executed)

	members, err := f.membership.ListMembers(ctx, "global:general")
	require.NoError(t, err)
	require.Len(t, members, 1, "exactly one member row after two runs")
}

func TestReconcileDefaultDriftRemoval(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	desired := baseState()
	desired.Agents = append(desired.Agents, reconcile.DiscoveredAgent{Name: "a2", Description: "agent two"})

	_, err := f.reconciler.Run(ctx, desired)
	require.NoError(t, err)

	// a2 joins explicitly, pinning the row.
	require.NoError(t, f.membership.JoinChannel(ctx, identity.AgentRef{Name: "a2"}, "global:general"))

	// general loses its default status.
	drifted := desired
	drifted.GlobalChannels = nil
	result, err := f.reconciler.Run(ctx, drifted)
	require.NoError(t, err)
	require.True(t, result.Success)

	// a1's default row is gone; a2's promoted row survives.
	_, err = f.membership.GetMember(ctx, "global:general", identity.AgentRef{Name: "a1"})
	require.ErrorIs(t, err, membership.ErrNotAMember)

	m, err := f.membership.GetMember(ctx, "global:general", identity.AgentRef{Name: "a2"})
	require.NoError(t, err)
	require.Equal(t, membership.SourceExplicit, m.Source)

	// The channel itself remains, no longer default.
	ch, err := f.membership.GetChannel(ctx, "global:general")
	require.NoError(t, err)
	require.False(t, ch.IsDefault)
}

func TestReconcileHonorsExclusions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	desired := reconcile.DesiredState{
		GlobalChannels: []reconcile.ChannelDef{
			{Name: "general"},
			{Name: "announcements"},
		},
		Agents: []reconcile.DiscoveredAgent{
			{Name: "a1", Exclude: []string{"announcements"}},
			{Name: "a2", NeverDefault: true},
		},
	}
	_, err := f.reconciler.Run(ctx, desired)
	require.NoError(t, err)

	_, err = f.membership.GetMember(ctx, "global:general", identity.AgentRef{Name: "a1"})
	require.NoError(t, err)
	_, err = f.membership.GetMember(ctx, "global:announcements", identity.AgentRef{Name: "a1"})
	require.ErrorIs(t, err, membership.ErrNotAMember)

	// never_default agents still get their notes channel but no defaults.
	for _, channel := range []string{"global:general", "global:announcements"} {
		_, err = f.membership.GetMember(ctx, channel, identity.AgentRef{Name: "a2"})
		require.ErrorIs(t, err, membership.ErrNotAMember)
	}
	_, err = f.membership.GetChannel(ctx, "notes:a2:global")
	require.NoError(t, err)
}

func TestReconcileExplicitFrontmatterChannels(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	desired := reconcile.DesiredState{
		GlobalChannels: []reconcile.ChannelDef{{Name: "general"}, {Name: "ops"}},
		Agents: []reconcile.DiscoveredAgent{
			{Name: "a1", NeverDefault: true, GlobalChannels: []string{"ops"}},
		},
	}
	_, err := f.reconciler.Run(ctx, desired)
	require.NoError(t, err)

	m, err := f.membership.GetMember(ctx, "global:ops", identity.AgentRef{Name: "a1"})
	require.NoError(t, err)
	require.Equal(t, membership.SourceExplicit, m.Source)
	require.False(t, m.IsFromDefault)
}

func TestReconcileProjectScope(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	proj, err := f.identity.RegisterProject(ctx, "/projects/alpha", "alpha")
	require.NoError(t, err)

	desired := reconcile.DesiredState{
		ProjectID:       proj.ID,
		GlobalChannels:  []reconcile.ChannelDef{{Name: "general"}},
		ProjectChannels: []reconcile.ChannelDef{{Name: "dev"}},
		Agents: []reconcile.DiscoveredAgent{
			{Name: "p1", ProjectID: proj.ID},
		},
	}
	result, err := f.reconciler.Run(ctx, desired)
	require.NoError(t, err)
	require.True(t, result.Success)

	devID := membership.ProjectChannelID(proj.ID, "dev")
	ch, err := f.membership.GetChannel(ctx, devID)
	require.NoError(t, err)
	require.True(t, ch.IsDefault)
	require.Equal(t, membership.ScopeProject, ch.Scope)

	// The project agent joins both scopes' defaults.
	_, err = f.membership.GetMember(ctx, devID, identity.AgentRef{Name: "p1", ProjectID: proj.ID})
	require.NoError(t, err)
	_, err = f.membership.GetMember(ctx, "global:general", identity.AgentRef{Name: "p1", ProjectID: proj.ID})
	require.NoError(t, err)
}

func TestReconcileLinks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alpha, err := f.identity.RegisterProject(ctx, "/projects/alpha", "alpha")
	require.NoError(t, err)
	beta, err := f.identity.RegisterProject(ctx, "/projects/beta", "beta")
	require.NoError(t, err)

	desired := reconcile.DesiredState{
		Links: []reconcile.LinkDef{{ProjectA: alpha.ID, ProjectB: beta.ID, Direction: identity.LinkBidirectional}},
	}
	result, err := f.reconciler.Run(ctx, desired)
	require.NoError(t, err)
	require.Equal(t, 1, result.Executed)

	// Converged on the second run.
	result, err = f.reconciler.Run(ctx, desired)
	require.NoError(t, err)
	require.Zero(t, result.Total)

	links, err := f.identity.ListProjectLinks(ctx)
	require.NoError(t, err)
	require.Len(t, links, 1)
}

func TestReconcileRecordsPerActionErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Membership for a channel that is never created fails, but the rest
	// of the phase still lands.
	desired := reconcile.DesiredState{
		GlobalChannels: []reconcile.ChannelDef{{Name: "general"}},
		Agents: []reconcile.DiscoveredAgent{
			{Name: "a1", NeverDefault: true, GlobalChannels: []string{"missing"}},
			{Name: "a2"},
		},
	}
	result, err := f.reconciler.Run(ctx, desired)
	require.NoError(t, err)
	require.False(t, result.Success)
	require.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)

	// a2 still got its default membership.
	_, err = f.membership.GetMember(ctx, "global:general", identity.AgentRef{Name: "a2"})
	require.NoError(t, err)
}
