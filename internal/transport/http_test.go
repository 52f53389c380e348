package transport_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/theo-nash/claude-slack/internal/domain/identity"
	"github.com/theo-nash/claude-slack/internal/domain/messaging"
	"github.com/theo-nash/claude-slack/internal/testserver"
	"github.com/theo-nash/claude-slack/internal/transport"
)

func setup(t *testing.T) (*testserver.TestServer, *transport.Bridge) {
	t.Helper()
	ts := testserver.New(t)
	return ts, transport.NewBridge(ts.Server.URL)
}

func TestMessageFlow(t *testing.T) {
	_, bridge := setup(t)
	ctx := context.Background()
	alice := identity.AgentRef{Name: "alice"}

	require.NoError(t, bridge.RegisterAgent(ctx, alice, "test agent", "", ""))

	channelID, err := bridge.CreateChannel(ctx, "global", "general", "General discussion", "", alice, false)
	require.NoError(t, err)
	require.Equal(t, "global:general", channelID)

	require.NoError(t, bridge.JoinChannel(ctx, channelID, alice))

	id, err := bridge.SendMessage(ctx, channelID, "hello @alice", alice, map[string]any{"kind": "greeting"}, nil)
	require.NoError(t, err)
	require.Greater(t, id, int64(0))

	messages, err := bridge.GetMessages(ctx, alice, channelID, 10, 0)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	require.Equal(t, "hello @alice", messages[0].Content)
	require.Equal(t, "greeting", messages[0].Metadata["kind"])
	require.Contains(t, messages[0].Metadata, "mentions")

	results, err := bridge.SearchMessages(ctx, alice, messaging.SearchRequest{Query: "hello", Limit: 10})
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestErrorMapping(t *testing.T) {
	_, bridge := setup(t)
	ctx := context.Background()
	alice := identity.AgentRef{Name: "alice"}
	ghost := identity.AgentRef{Name: "ghost"}

	require.NoError(t, bridge.RegisterAgent(ctx, alice, "", "", ""))
	channelID, err := bridge.CreateChannel(ctx, "global", "general", "", "", alice, false)
	require.NoError(t, err)

	// Posting without membership: PreconditionFailed -> 409.
	_, err = bridge.SendMessage(ctx, channelID, "hi", alice, nil, nil)
	requireBridgeError(t, err, http.StatusConflict, transport.KindPreconditionFailed)

	// Unknown channel: NotFound -> 404.
	_, err = bridge.GetMessages(ctx, alice, "global:nowhere", 10, 0)
	requireBridgeError(t, err, http.StatusNotFound, transport.KindNotFound)

	// Duplicate create: Conflict -> 409.
	_, err = bridge.CreateChannel(ctx, "global", "general", "", "", alice, false)
	requireBridgeError(t, err, http.StatusConflict, transport.KindConflict)

	// Malformed name: Invalid -> 400.
	_, err = bridge.CreateChannel(ctx, "global", "Bad Name", "", "", alice, false)
	requireBridgeError(t, err, http.StatusBadRequest, transport.KindInvalid)

	// Unknown agent joining: NotFound -> 404.
	err = bridge.JoinChannel(ctx, channelID, ghost)
	requireBridgeError(t, err, http.StatusNotFound, transport.KindNotFound)
}

func TestDMEndpoint(t *testing.T) {
	_, bridge := setup(t)
	ctx := context.Background()
	alice := identity.AgentRef{Name: "alice"}
	bob := identity.AgentRef{Name: "bob"}

	require.NoError(t, bridge.RegisterAgent(ctx, alice, "", "", ""))
	require.NoError(t, bridge.RegisterAgent(ctx, bob, "", "closed", ""))

	_, err := bridge.CreateOrGetDM(ctx, alice, bob)
	requireBridgeError(t, err, http.StatusConflict, transport.KindPreconditionFailed)

	carol := identity.AgentRef{Name: "carol"}
	require.NoError(t, bridge.RegisterAgent(ctx, carol, "", "open", ""))

	id1, err := bridge.CreateOrGetDM(ctx, alice, carol)
	require.NoError(t, err)
	id2, err := bridge.CreateOrGetDM(ctx, carol, alice)
	require.NoError(t, err)
	require.Equal(t, id1, id2)
}

func TestNotesEndpoints(t *testing.T) {
	_, bridge := setup(t)
	ctx := context.Background()
	alice := identity.AgentRef{Name: "alice"}

	require.NoError(t, bridge.RegisterAgent(ctx, alice, "", "", ""))

	noteID, err := bridge.WriteNote(ctx, alice, "watch the flaky test", "sess-1", []string{"testing"})
	require.NoError(t, err)
	require.Greater(t, noteID, int64(0))

	results, err := bridge.SearchNotes(ctx, alice, "flaky", nil, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestListEndpoints(t *testing.T) {
	_, bridge := setup(t)
	ctx := context.Background()
	alice := identity.AgentRef{Name: "alice"}

	require.NoError(t, bridge.RegisterAgent(ctx, alice, "does things", "", ""))
	_, err := bridge.CreateChannel(ctx, "global", "general", "", "", alice, true)
	require.NoError(t, err)
	require.NoError(t, bridge.JoinChannel(ctx, "global:general", alice))

	channels, err := bridge.ListChannels(ctx, &alice, "", false)
	require.NoError(t, err)
	require.Len(t, channels, 1)
	require.True(t, channels[0].IsDefault)

	agents, err := bridge.ListAgents(ctx, nil, "")
	require.NoError(t, err)
	require.Len(t, agents, 1)
	require.Equal(t, "does things", agents[0].Description)
}

func requireBridgeError(t *testing.T, err error, status int, kind string) {
	t.Helper()
	require.Error(t, err)
	bridgeErr, ok := err.(*transport.BridgeError)
	require.True(t, ok, "expected BridgeError, got %T: %v", err, err)
	require.Equal(t, status, bridgeErr.StatusCode)
	require.Equal(t, kind, bridgeErr.APIError.Kind)
}
