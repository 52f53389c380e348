package messaging_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/theo-nash/claude-slack/internal/domain/identity"
	"github.com/theo-nash/claude-slack/internal/domain/membership"
	"github.com/theo-nash/claude-slack/internal/domain/messaging"
	"github.com/theo-nash/claude-slack/internal/sqlite"
)

type fixture struct {
	identity   *identity.Service
	membership *membership.Service
	messaging  *messaging.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := sqlite.NewTestDB(t)
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
	messagingSvc := messaging.NewService(
		sqlite.NewMessageRepository(db),
		membershipSvc,
		nil,
		messaging.Settings{MaxMessageLength: 100, MessageRetentionDays: 30},
		nil,
	)
	return &fixture{identity: identitySvc, membership: membershipSvc, messaging: messagingSvc}
}

func (f *fixture) setupChannel(t *testing.T, name string, agents ...string) []identity.AgentRef {
	t.Helper()
	ctx := context.Background()
	_, err := f.membership.CreateChannel(ctx, membership.CreateChannelRequest{
		Scope: membership.ScopeGlobal,
		Name:  name,
	})
	require.NoError(t, err)

	var refs []identity.AgentRef
	for _, name2 := range agents {
		agent, err := f.identity.RegisterAgent(ctx, identity.RegisterAgentRequest{Name: name2})
		require.NoError(t, err)
		require.NoError(t, f.membership.JoinChannel(ctx, agent.Ref(), membership.GlobalChannelID(name)))
		refs = append(refs, agent.Ref())
	}
	return refs
}

func TestPostMonotonicity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	refs := f.setupChannel(t, "general", "alice")

	var last int64
	for i := 0; i < 3; i++ {
		msg, err := f.messaging.Post(ctx, messaging.PostRequest{
			ChannelID: "global:general",
			Sender:    refs[0],
			Content:   "hello",
		})
		require.NoError(t, err)
		if last != 0 {
			require.Equal(t, last+1, msg.ID)
		}
		last = msg.ID
	}
}

func TestPostRequiresMembership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.setupChannel(t, "general", "alice")

	bob, err := f.identity.RegisterAgent(ctx, identity.RegisterAgentRequest{Name: "bob"})
	require.NoError(t, err)

	_, err = f.messaging.Post(ctx, messaging.PostRequest{
		ChannelID: "global:general",
		Sender:    bob.Ref(),
		Content:   "hi",
	})
	require.ErrorIs(t, err, membership.ErrNotAMember)
}

func TestPostRejectsOversizedContent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	refs := f.setupChannel(t, "general", "alice")

	_, err := f.messaging.Post(ctx, messaging.PostRequest{
		ChannelID: "global:general",
		Sender:    refs[0],
		Content:   strings.Repeat("x", 101),
	})
	require.ErrorIs(t, err, messaging.ErrMessageTooLong)
}

func TestPostRecordsMentionPartition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	refs := f.setupChannel(t, "general", "alice", "carol")

	msg, err := f.messaging.Post(ctx, messaging.PostRequest{
		ChannelID: "global:general",
		Sender:    refs[0],
		Content:   "ping @carol and @eve",
	})
	require.NoError(t, err)

	mentions, ok := msg.Metadata["mentions"].(map[string]any)
	require.True(t, ok, "mentions summary missing from metadata")
	require.Equal(t, []string{"carol"}, mentions["valid"])
	require.Equal(t, []string{"eve"}, mentions["unknown"])
	require.Empty(t, mentions["invalid"])

	// Invalid and unknown mentions never fail the post; the stored copy
	// carries the same summary.
	fetched, err := f.messaging.Fetch(ctx, refs[0], messaging.ListMessagesOptions{ChannelID: "global:general"})
	require.NoError(t, err)
	require.Len(t, fetched, 1)
	stored, ok := fetched[0].Metadata["mentions"].(map[string]any)
	require.True(t, ok)
	require.Contains(t, stored, "unknown")
}

func TestFetchRequiresMembership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.setupChannel(t, "general", "alice")

	bob, err := f.identity.RegisterAgent(ctx, identity.RegisterAgentRequest{Name: "bob"})
	require.NoError(t, err)

	_, err = f.messaging.Fetch(ctx, bob.Ref(), messaging.ListMessagesOptions{ChannelID: "global:general"})
	require.ErrorIs(t, err, membership.ErrNotAMember)
}

func TestSearchNeverLeaksInaccessibleChannels(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.setupChannel(t, "general", "alice")[0]
	bob := f.setupChannel(t, "private-ish", "bob")[0]

	_, err := f.messaging.Post(ctx, messaging.PostRequest{
		ChannelID: "global:general",
		Sender:    alice,
		Content:   "deploy finished",
	})
	require.NoError(t, err)
	_, err = f.messaging.Post(ctx, messaging.PostRequest{
		ChannelID: "global:private-ish",
		Sender:    bob,
		Content:   "deploy secrets",
	})
	require.NoError(t, err)

	results, err := f.messaging.Search(ctx, alice, messaging.SearchRequest{Query: "deploy"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "global:general", results[0].Message.ChannelID)

	// Asking for the inaccessible channel explicitly yields nothing.
	results, err = f.messaging.Search(ctx, alice, messaging.SearchRequest{
		Query:      "deploy",
		ChannelIDs: []string{"global:private-ish"},
	})
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestSearchOrdersByScoreThenID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.setupChannel(t, "general", "alice")[0]

	for i := 0; i < 3; i++ {
		_, err := f.messaging.Post(ctx, messaging.PostRequest{
			ChannelID: "global:general",
			Sender:    alice,
			Content:   "same content",
		})
		require.NoError(t, err)
	}

	results, err := f.messaging.Search(ctx, alice, messaging.SearchRequest{Query: "content"})
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i := 1; i < len(results); i++ {
		if results[i-1].FinalScore == results[i].FinalScore {
			require.Greater(t, results[i-1].Message.ID, results[i].Message.ID)
		} else {
			require.Greater(t, results[i-1].FinalScore, results[i].FinalScore)
		}
	}
}

func TestNotesLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alice, err := f.identity.RegisterAgent(ctx, identity.RegisterAgentRequest{Name: "alice"})
	require.NoError(t, err)

	note, err := f.messaging.WriteNote(ctx, alice.Ref(), "remember the retry bug", "session-1", []string{"bugs"})
	require.NoError(t, err)
	require.Equal(t, "notes:alice:global", note.ChannelID)

	recent, err := f.messaging.RecentNotes(ctx, alice.Ref(), 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	require.Equal(t, "note", recent[0].Metadata["type"])

	results, err := f.messaging.SearchNotes(ctx, alice.Ref(), "retry", []string{"bugs"}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)

	// Another agent cannot post into the journal.
	bob, err := f.identity.RegisterAgent(ctx, identity.RegisterAgentRequest{Name: "bob"})
	require.NoError(t, err)
	_, err = f.messaging.Post(ctx, messaging.PostRequest{
		ChannelID: "notes:alice:global",
		Sender:    bob.Ref(),
		Content:   "x",
	})
	require.ErrorIs(t, err, membership.ErrNotAMember)
}

func TestThreadValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.setupChannel(t, "general", "alice")[0]

	root, err := f.messaging.Post(ctx, messaging.PostRequest{
		ChannelID: "global:general",
		Sender:    alice,
		Content:   "root",
	})
	require.NoError(t, err)

	_, err = f.messaging.Post(ctx, messaging.PostRequest{
		ChannelID: "global:general",
		Sender:    alice,
		Content:   "reply",
		ThreadID:  &root.ID,
	})
	require.NoError(t, err)

	missing := root.ID + 100
	_, err = f.messaging.Post(ctx, messaging.PostRequest{
		ChannelID: "global:general",
		Sender:    alice,
		Content:   "orphan",
		ThreadID:  &missing,
	})
	require.ErrorIs(t, err, messaging.ErrInvalidThread)
}
