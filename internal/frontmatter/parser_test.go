package frontmatter

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleAgent = `---
name: test-agent
description: Test agent for coordination
tools: [Read, Write]
channels:
  global: [general]
  project: [dev]
  exclude: [announcements]
never_default: false
dm_policy: restricted
discoverable: project
---

This is a test agent.
`

func TestParse(t *testing.T) {
	agent, err := Parse([]byte(sampleAgent))
	require.NoError(t, err)
	require.Equal(t, "test-agent", agent.Name)
	require.Equal(t, "Test agent for coordination", agent.Description)
	require.Equal(t, []string{"Read", "Write"}, agent.Tools)
	require.Equal(t, []string{"general"}, agent.Channels.Global)
	require.Equal(t, []string{"dev"}, agent.Channels.Project)
	require.Equal(t, []string{"announcements"}, agent.Channels.Exclude)
	require.False(t, agent.NeverDefault)
	require.Equal(t, "restricted", agent.DMPolicy)
	require.Equal(t, "project", agent.Discoverable)
}

func TestParseRejectsMissingFrontmatter(t *testing.T) {
	_, err := Parse([]byte("# Just a readme\n"))
	require.ErrorIs(t, err, ErrNoFrontmatter)

	_, err = Parse([]byte("---\nname: unterminated\n"))
	require.ErrorIs(t, err, ErrNoFrontmatter)
}

func TestParseRequiresName(t *testing.T) {
	_, err := Parse([]byte("---\ndescription: nameless\n---\n"))
	require.Error(t, err)
}

func TestDiscoverDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "agent.md"), []byte(sampleAgent), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.md"), []byte("no frontmatter"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	agents, err := DiscoverDir(dir)
	require.NoError(t, err)
	require.Len(t, agents, 1)
	require.Equal(t, "test-agent", agents[0].Name)

	// A missing directory yields no agents and no error.
	agents, err = DiscoverDir(filepath.Join(dir, "nope"))
	require.NoError(t, err)
	require.Empty(t, agents)
}
