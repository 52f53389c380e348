package messaging

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/theo-nash/claude-slack/internal/domain/identity"
)

func TestExtractMentions(t *testing.T) {
	projID := "aaaabbbbccccddddaaaabbbbccccdddd"

	refs := ExtractMentions("hey @alice, can @bob@" + projID + " look at this? cc @alice")
	require.Equal(t, []identity.AgentRef{
		{Name: "alice"},
		{Name: "bob", ProjectID: projID},
	}, refs)
}

func TestExtractMentionsNone(t *testing.T) {
	require.Nil(t, ExtractMentions("no mentions here"))
	require.Nil(t, ExtractMentions(""))
}

func TestExtractMentionsIgnoresInvalidNames(t *testing.T) {
	// Uppercase is outside the name grammar.
	require.Nil(t, ExtractMentions("ping @Alice"))

	// A malformed project suffix still yields the bare mention.
	refs := ExtractMentions("ping @alice@NOTHEX")
	require.Equal(t, []identity.AgentRef{{Name: "alice"}}, refs)
}
