// Package frontmatter parses the YAML preamble of agent markdown files.
package frontmatter

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrNoFrontmatter indicates the file carries no YAML preamble.
var ErrNoFrontmatter = errors.New("no frontmatter block")

// Agent is the recognized frontmatter of an agent definition file.
type Agent struct {
	Name         string   `yaml:"name"`
	Description  string   `yaml:"description"`
	Tools        []string `yaml:"tools"`
	Channels     Channels `yaml:"channels"`
	NeverDefault bool     `yaml:"never_default"`
	DMPolicy     string   `yaml:"dm_policy"`
	Discoverable string   `yaml:"discoverable"`
}

// Channels lists explicit channel subscriptions and default exclusions.
type Channels struct {
	Global  []string `yaml:"global"`
	Project []string `yaml:"project"`
	Exclude []string `yaml:"exclude"`
}

const delimiter = "---"

// Parse extracts the frontmatter block from a markdown document.
func Parse(data []byte) (*Agent, error) {
	content := strings.ReplaceAll(string(data), "\r\n", "\n")
	if !strings.HasPrefix(content, delimiter+"\n") {
		return nil, ErrNoFrontmatter
	}
	rest := content[len(delimiter)+1:]
	end := strings.Index(rest, "\n"+delimiter)
	if end < 0 {
		return nil, ErrNoFrontmatter
	}

	var agent Agent
	if err := yaml.Unmarshal([]byte(rest[:end]), &agent); err != nil {
		return nil, fmt.Errorf("parse frontmatter: %w", err)
	}
	if agent.Name == "" {
		return nil, fmt.Errorf("frontmatter missing name")
	}
	return &agent, nil
}

// ParseFile parses one agent definition file.
func ParseFile(path string) (*Agent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read agent file: %w", err)
	}
	return Parse(data)
}

// DiscoverDir parses every .md file in dir. Files without frontmatter are
// skipped; a missing directory yields no agents.
func DiscoverDir(dir string) ([]Agent, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read agents dir: %w", err)
	}

	var agents []Agent
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		agent, err := ParseFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			if errors.Is(err, ErrNoFrontmatter) {
				continue
			}
			return nil, fmt.Errorf("parse %s: %w", entry.Name(), err)
		}
		agents = append(agents, *agent)
	}
	return agents, nil
}
