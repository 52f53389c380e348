package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/theo-nash/claude-slack/internal/domain/identity"
	"github.com/theo-nash/claude-slack/internal/domain/membership"
	"github.com/theo-nash/claude-slack/internal/repository"
)

func seedAgent(t *testing.T, db *DB, name, projectID string) {
	t.Helper()
	_, err := db.Exec(`
		INSERT INTO agents (name, project_id, description, created_at)
		VALUES (?, ?, '', ?)
	`, name, projectID, time.Now().Unix())
	require.NoError(t, err)
}

func seedChannel(t *testing.T, db *DB, id string, accessType membership.AccessType) {
	t.Helper()
	_, err := db.Exec(`
		INSERT INTO channels (id, channel_type, access_type, scope, name, created_at)
		VALUES (?, 'channel', ?, 'global', ?, ?)
	`, id, accessType, id, time.Now().Unix())
	require.NoError(t, err)
}

func TestMemberRepository_AddIsIdempotent(t *testing.T) {
	db := NewTestDB(t)
	repo := NewMemberRepository(db)
	ctx := context.Background()

	seedAgent(t, db, "alice", "")
	seedChannel(t, db, "global:general", membership.AccessOpen)

	member := &membership.Member{
		ChannelID: "global:general",
		Agent:     identity.AgentRef{Name: "alice"},
		InvitedBy: membership.InvitedBySelf,
		Source:    membership.SourceExplicit,
		CanLeave:  true,
		CanSend:   true,
		JoinedAt:  time.Now(),
	}

	inserted, err := repo.Add(ctx, member)
	require.NoError(t, err)
	require.True(t, inserted)

	inserted, err = repo.Add(ctx, member)
	require.NoError(t, err)
	require.False(t, inserted, "second add must be a no-op")

	members, err := repo.ListByChannel(ctx, "global:general")
	require.NoError(t, err)
	require.Len(t, members, 1)
}

func TestMemberRepository_AddRequiresAgent(t *testing.T) {
	db := NewTestDB(t)
	repo := NewMemberRepository(db)
	ctx := context.Background()

	seedChannel(t, db, "global:general", membership.AccessOpen)

	_, err := repo.Add(ctx, &membership.Member{
		ChannelID: "global:general",
		Agent:     identity.AgentRef{Name: "ghost"},
		InvitedBy: membership.InvitedBySelf,
		Source:    membership.SourceExplicit,
		JoinedAt:  time.Now(),
	})
	require.ErrorIs(t, err, repository.ErrForeignKeyViolation)
}

func TestMemberRepository_Promote(t *testing.T) {
	db := NewTestDB(t)
	repo := NewMemberRepository(db)
	ctx := context.Background()

	seedAgent(t, db, "alice", "")
	seedChannel(t, db, "global:general", membership.AccessOpen)

	_, err := repo.Add(ctx, &membership.Member{
		ChannelID:     "global:general",
		Agent:         identity.AgentRef{Name: "alice"},
		InvitedBy:     membership.InvitedBySystem,
		Source:        membership.SourceDefault,
		CanLeave:      true,
		CanSend:       true,
		IsFromDefault: true,
		JoinedAt:      time.Now(),
	})
	require.NoError(t, err)

	err = repo.Promote(ctx, "global:general", identity.AgentRef{Name: "alice"}, membership.SourceExplicit, membership.InvitedBySelf)
	require.NoError(t, err)

	m, err := repo.Get(ctx, "global:general", identity.AgentRef{Name: "alice"})
	require.NoError(t, err)
	require.Equal(t, membership.SourceExplicit, m.Source)
	require.False(t, m.IsFromDefault)
}

func TestMemberRepository_PartitionMentions(t *testing.T) {
	db := NewTestDB(t)
	repo := NewMemberRepository(db)
	ctx := context.Background()

	_, err := db.Exec(`INSERT INTO projects (id, path, name, created_at) VALUES ('aaaabbbbccccddddaaaabbbbccccdddd', '/alpha', 'alpha', 0)`)
	require.NoError(t, err)

	seedAgent(t, db, "alice", "")
	seedAgent(t, db, "bob", "aaaabbbbccccddddaaaabbbbccccdddd")
	seedChannel(t, db, "global:open-discussion", membership.AccessOpen)

	_, err = repo.Add(ctx, &membership.Member{
		ChannelID: "global:open-discussion",
		Agent:     identity.AgentRef{Name: "alice"},
		InvitedBy: membership.InvitedBySelf,
		Source:    membership.SourceExplicit,
		CanLeave:  true,
		CanSend:   true,
		JoinedAt:  time.Now(),
	})
	require.NoError(t, err)

	refs := []identity.AgentRef{
		{Name: "alice"},
		{Name: "bob", ProjectID: "aaaabbbbccccddddaaaabbbbccccdddd"},
		{Name: "eve"},
	}
	part, err := repo.PartitionMentions(ctx, "global:open-discussion", refs)
	require.NoError(t, err)

	require.Equal(t, []identity.AgentRef{{Name: "alice"}}, part.Valid)
	require.Equal(t, []identity.AgentRef{{Name: "bob", ProjectID: "aaaabbbbccccddddaaaabbbbccccdddd"}}, part.Invalid)
	require.Equal(t, []identity.AgentRef{{Name: "eve"}}, part.Unknown)

	// The three sets cover the input exactly.
	require.Len(t, part.Valid, 1)
	require.Len(t, part.Invalid, 1)
	require.Len(t, part.Unknown, 1)
}

func TestMemberRepository_AccessibleChannelIDs(t *testing.T) {
	db := NewTestDB(t)
	repo := NewMemberRepository(db)
	ctx := context.Background()

	seedAgent(t, db, "alice", "")
	seedChannel(t, db, "global:general", membership.AccessOpen)
	seedChannel(t, db, "global:dead", membership.AccessOpen)
	_, err := db.Exec(`UPDATE channels SET archived = 1 WHERE id = 'global:dead'`)
	require.NoError(t, err)

	for _, ch := range []string{"global:general", "global:dead"} {
		_, err := repo.Add(ctx, &membership.Member{
			ChannelID: ch,
			Agent:     identity.AgentRef{Name: "alice"},
			InvitedBy: membership.InvitedBySelf,
			Source:    membership.SourceExplicit,
			CanLeave:  true,
			CanSend:   true,
			JoinedAt:  time.Now(),
		})
		require.NoError(t, err)
	}

	ids, err := repo.AccessibleChannelIDs(ctx, identity.AgentRef{Name: "alice"})
	require.NoError(t, err)
	require.Equal(t, []string{"global:general"}, ids, "archived channels are not accessible")
}
