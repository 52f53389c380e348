package identity_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/theo-nash/claude-slack/internal/domain/identity"
	"github.com/theo-nash/claude-slack/internal/sqlite"
)

func newService(t *testing.T) (*identity.Service, *sqlite.DB) {
	t.Helper()
	db := sqlite.NewTestDB(t)
	svc := identity.NewService(
		sqlite.NewProjectRepository(db),
		sqlite.NewAgentRepository(db),
		sqlite.NewSessionRepository(db),
		nil,
	)
	return svc, db
}

func TestProjectIDForPath(t *testing.T) {
	sum := sha256.Sum256([]byte("/projects/alpha"))
	want := hex.EncodeToString(sum[:])[:32]
	require.Equal(t, want, identity.ProjectIDForPath("/projects/alpha"))
	require.Len(t, identity.ProjectIDForPath("/anything"), 32)
}

func TestRegisterProjectIsIdempotent(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	p1, err := svc.RegisterProject(ctx, "/projects/alpha", "alpha")
	require.NoError(t, err)
	require.Equal(t, identity.ProjectIDForPath("/projects/alpha"), p1.ID)

	p2, err := svc.RegisterProject(ctx, "/projects/alpha", "renamed")
	require.NoError(t, err)
	require.Equal(t, p1.ID, p2.ID)
	require.Equal(t, "alpha", p2.Name, "projects are immutable after creation")

	projects, err := svc.ListProjects(ctx)
	require.NoError(t, err)
	require.Len(t, projects, 1)
}

func TestRegisterAgentUpdatesWithoutStatusDowngrade(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()

	agent, err := svc.RegisterAgent(ctx, identity.RegisterAgentRequest{Name: "alice", Description: "v1"})
	require.NoError(t, err)
	require.Equal(t, identity.StatusActive, agent.Status)
	require.Equal(t, identity.DMOpen, agent.DMPolicy)

	// Deactivate out of band, then re-register.
	_, err = db.Exec(`UPDATE agents SET status = 'inactive' WHERE name = 'alice'`)
	require.NoError(t, err)

	agent, err = svc.RegisterAgent(ctx, identity.RegisterAgentRequest{Name: "alice", Description: "v2"})
	require.NoError(t, err)
	require.Equal(t, "v2", agent.Description, "description refreshes")
	require.Equal(t, identity.StatusInactive, agent.Status, "status is not downgraded or reset")
}

func TestRegisterAgentRequiresKnownProject(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.RegisterAgent(ctx, identity.RegisterAgentRequest{Name: "bob", ProjectID: "deadbeefdeadbeefdeadbeefdeadbeef"})
	require.ErrorIs(t, err, identity.ErrProjectNotFound)
}

func TestListAgentsDiscoverability(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	alpha, err := svc.RegisterProject(ctx, "/projects/alpha", "alpha")
	require.NoError(t, err)
	beta, err := svc.RegisterProject(ctx, "/projects/beta", "beta")
	require.NoError(t, err)

	_, err = svc.RegisterAgent(ctx, identity.RegisterAgentRequest{Name: "pub", Discoverable: identity.DiscoverPublic})
	require.NoError(t, err)
	_, err = svc.RegisterAgent(ctx, identity.RegisterAgentRequest{Name: "alpha-only", ProjectID: alpha.ID, Discoverable: identity.DiscoverProject})
	require.NoError(t, err)
	_, err = svc.RegisterAgent(ctx, identity.RegisterAgentRequest{Name: "hidden", Discoverable: identity.DiscoverPrivate})
	require.NoError(t, err)
	caller, err := svc.RegisterAgent(ctx, identity.RegisterAgentRequest{Name: "caller", ProjectID: beta.ID, Discoverable: identity.DiscoverPrivate})
	require.NoError(t, err)

	names := func(agents []identity.Agent) []string {
		var out []string
		for _, a := range agents {
			out = append(out, a.Name)
		}
		return out
	}

	// Without a link the caller sees public agents and itself.
	ref := caller.Ref()
	agents, err := svc.ListAgents(ctx, identity.ListAgentsOptions{Caller: &ref})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"pub", "caller"}, names(agents))

	// A link in the agent-to-caller direction reveals the project agent.
	require.NoError(t, svc.CreateProjectLink(ctx, alpha.ID, beta.ID, identity.LinkAToB))
	agents, err = svc.ListAgents(ctx, identity.ListAgentsOptions{Caller: &ref})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"pub", "caller", "alpha-only"}, names(agents))
}

func TestProjectLinkDirectionality(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	alpha, err := svc.RegisterProject(ctx, "/projects/alpha", "alpha")
	require.NoError(t, err)
	beta, err := svc.RegisterProject(ctx, "/projects/beta", "beta")
	require.NoError(t, err)

	_, err = svc.RegisterAgent(ctx, identity.RegisterAgentRequest{Name: "scoped", ProjectID: alpha.ID, Discoverable: identity.DiscoverProject})
	require.NoError(t, err)
	watcher, err := svc.RegisterAgent(ctx, identity.RegisterAgentRequest{Name: "watcher", ProjectID: beta.ID, Discoverable: identity.DiscoverPrivate})
	require.NoError(t, err)

	// b_to_a covers beta-to-alpha discovery only; scoped stays hidden.
	require.NoError(t, svc.CreateProjectLink(ctx, alpha.ID, beta.ID, identity.LinkBToA))

	ref := watcher.Ref()
	agents, err := svc.ListAgents(ctx, identity.ListAgentsOptions{Caller: &ref})
	require.NoError(t, err)
	for _, a := range agents {
		require.NotEqual(t, "scoped", a.Name)
	}
}

func TestSessionLifecycle(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	require.NoError(t, svc.RegisterSession(ctx, "sess-1", "", "/tmp/transcript.jsonl"))

	// Upsert semantics.
	require.NoError(t, svc.RegisterSession(ctx, "sess-1", "", "/tmp/transcript2.jsonl"))
	sess, err := svc.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	require.Equal(t, "/tmp/transcript2.jsonl", sess.TranscriptPath)

	require.NoError(t, svc.TouchSession(ctx, "sess-1"))
	require.ErrorIs(t, svc.TouchSession(ctx, "missing"), identity.ErrSessionNotFound)
}

func TestRecordToolCall(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()

	require.NoError(t, svc.RegisterSession(ctx, "sess-1", "", ""))

	id, err := svc.RecordToolCall(ctx, "sess-1", "mcp__claude-slack__send_channel_message", map[string]any{
		"channel_id": "global:general",
		"content":    "hi",
	})
	require.NoError(t, err)
	require.Greater(t, id, int64(0))

	var hash string
	require.NoError(t, db.QueryRow(`SELECT tool_inputs_hash FROM tool_calls WHERE id = ?`, id).Scan(&hash))
	require.Len(t, hash, 16)
}

func TestHashToolInputsIsCanonical(t *testing.T) {
	_, h1, err := identity.HashToolInputs(map[string]any{"b": 2, "a": 1})
	require.NoError(t, err)
	_, h2, err := identity.HashToolInputs(map[string]any{"a": 1, "b": 2})
	require.NoError(t, err)
	require.Equal(t, h1, h2, "key order must not affect the hash")
	require.Len(t, h1, 16)
}

func TestDMAllowed(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	open, err := svc.RegisterAgent(ctx, identity.RegisterAgentRequest{Name: "open-agent"})
	require.NoError(t, err)
	closed, err := svc.RegisterAgent(ctx, identity.RegisterAgentRequest{Name: "closed-agent", DMPolicy: identity.DMClosed})
	require.NoError(t, err)

	ok, err := svc.DMAllowed(ctx, open, closed.Ref())
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = svc.DMAllowed(ctx, closed, open.Ref())
	require.NoError(t, err)
	require.False(t, ok)

	// An open agent can still block a specific peer.
	require.NoError(t, svc.SetDMPermission(ctx, open.Ref(), closed.Ref(), identity.DMBlock))
	ok, err = svc.DMAllowed(ctx, open, closed.Ref())
	require.NoError(t, err)
	require.False(t, ok)
}
