package membership

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/theo-nash/claude-slack/internal/domain/identity"
)

const projAlpha = "aaaabbbbccccddddaaaabbbbccccdddd"

func TestChannelIDGrammar(t *testing.T) {
	require.Equal(t, "global:general", GlobalChannelID("general"))
	require.Equal(t, "proj:"+projAlpha+":dev", ProjectChannelID(projAlpha, "dev"))
	require.Equal(t, "notes:alice:global", NotesChannelID(identity.AgentRef{Name: "alice"}))
	require.Equal(t, "notes:alice:"+projAlpha, NotesChannelID(identity.AgentRef{Name: "alice", ProjectID: projAlpha}))
}

func TestDMChannelIDIsCanonical(t *testing.T) {
	a := identity.AgentRef{Name: "alice"}
	b := identity.AgentRef{Name: "bob", ProjectID: projAlpha}

	require.Equal(t, DMChannelID(a, b), DMChannelID(b, a))
	require.Equal(t, "dm:alice:bob@"+projAlpha, DMChannelID(a, b))
}

func TestParseChannelID(t *testing.T) {
	tests := []struct {
		id   string
		want ParsedChannelID
	}{
		{"global:general", ParsedChannelID{Type: TypeChannel, Scope: ScopeGlobal, Name: "general"}},
		{"proj:" + projAlpha + ":dev", ParsedChannelID{Type: TypeChannel, Scope: ScopeProject, ProjectID: projAlpha, Name: "dev"}},
		{"notes:alice:global", ParsedChannelID{Type: TypeNotes, Scope: ScopeGlobal, Name: "alice", Owner: identity.AgentRef{Name: "alice"}}},
		{"notes:alice:" + projAlpha, ParsedChannelID{Type: TypeNotes, Scope: ScopeProject, Name: "alice", Owner: identity.AgentRef{Name: "alice", ProjectID: projAlpha}}},
	}
	for _, tt := range tests {
		parsed, err := ParseChannelID(tt.id)
		require.NoError(t, err, tt.id)
		require.Equal(t, tt.want, *parsed, tt.id)
	}

	dm, err := ParseChannelID("dm:alice:bob@" + projAlpha)
	require.NoError(t, err)
	require.Equal(t, TypeDirect, dm.Type)
	require.Equal(t, identity.AgentRef{Name: "alice"}, dm.Agents[0])
	require.Equal(t, identity.AgentRef{Name: "bob", ProjectID: projAlpha}, dm.Agents[1])
}

func TestParseChannelIDRejectsMalformed(t *testing.T) {
	bad := []string{
		"",
		"general",
		"global:",
		"global:UPPER",
		"global:-leading-dash",
		"proj:short:dev",
		"proj:" + projAlpha,
		"dm:alice",
		"dm:bob:alice",          // unsorted keys
		"notes:alice",
		"notes:alice:notahex",
		"mystery:thing",
	}
	for _, id := range bad {
		_, err := ParseChannelID(id)
		require.ErrorIs(t, err, ErrInvalidChannelID, "id %q", id)
	}
}

func TestValidName(t *testing.T) {
	require.True(t, ValidName("general"))
	require.True(t, ValidName("a"))
	require.True(t, ValidName("dev_team-2"))
	require.False(t, ValidName(""))
	require.False(t, ValidName("General"))
	require.False(t, ValidName("-dash"))
	require.False(t, ValidName("_under"))
	require.False(t, ValidName("waytoolong"+string(make([]byte, 64))))
}
