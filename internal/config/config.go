package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config defines the claude-slack configuration file.
type Config struct {
	Version         string          `yaml:"version"`
	DefaultChannels DefaultChannels `yaml:"default_channels"`
	ProjectLinks    []ProjectLink   `yaml:"project_links"`
	Settings        Settings        `yaml:"settings"`
	DefaultMCPTools []string        `yaml:"default_mcp_tools,omitempty"`
}

// DefaultChannels lists channels provisioned per scope.
type DefaultChannels struct {
	Global  []ChannelDef `yaml:"global"`
	Project []ChannelDef `yaml:"project"`
}

// ChannelDef is a configured default channel.
type ChannelDef struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
}

// ProjectLink is a configured cross-project link. Source and target are
// project paths.
type ProjectLink struct {
	Source string `yaml:"source"`
	Target string `yaml:"target"`
	Type   string `yaml:"type,omitempty"` // a_to_b, b_to_a or bidirectional
}

// Settings carries the messaging limits.
type Settings struct {
	MessageRetentionDays int  `yaml:"message_retention_days"`
	MaxMessageLength     int  `yaml:"max_message_length"`
	AutoCreateChannels   bool `yaml:"auto_create_channels"`
	AutoLinkProjects     bool `yaml:"auto_link_projects"`
}

// Default returns the configuration written on first run.
func Default() Config {
	return Config{
		Version: "1.0",
		DefaultChannels: DefaultChannels{
			Global: []ChannelDef{
				{Name: "general", Description: "General discussion"},
				{Name: "announcements", Description: "Important updates"},
				{Name: "cross-project", Description: "Cross-project coordination"},
			},
			Project: []ChannelDef{
				{Name: "general", Description: "Project general discussion"},
				{Name: "dev", Description: "Development discussion"},
				{Name: "releases", Description: "Release coordination"},
			},
		},
		ProjectLinks: []ProjectLink{},
		Settings: Settings{
			MessageRetentionDays: 30,
			MaxMessageLength:     4000,
			AutoCreateChannels:   true,
			AutoLinkProjects:     true,
		},
	}
}

// Env is the resolved runtime environment: directories, the writer
// service URL and debug flags.
type Env struct {
	ConfigDir   string // CLAUDE_CONFIG_DIR, default ~/.claude
	SlackDir    string // <ConfigDir>/claude-slack
	DBPath      string
	ConfigPath  string
	SessionsDir string // fallback session files
	LogsDir     string
	APIURL      string // CLAUDE_SLACK_API_URL
	ProjectDir  string // CLAUDE_PROJECT_DIR override
	Port        int
	Debug       bool
	Perf        bool
}

// LoadEnv resolves the environment from variables and defaults.
func LoadEnv() (Env, error) {
	configDir := os.Getenv("CLAUDE_CONFIG_DIR")
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Env{}, fmt.Errorf("resolving home directory: %w", err)
		}
		configDir = filepath.Join(home, ".claude")
	}
	slackDir := filepath.Join(configDir, "claude-slack")

	env := Env{
		ConfigDir:   configDir,
		SlackDir:    slackDir,
		DBPath:      filepath.Join(slackDir, "data", "claude-slack.db"),
		ConfigPath:  filepath.Join(configDir, "config", "claude-slack.config.yaml"),
		SessionsDir: filepath.Join(slackDir, "data", "sessions"),
		LogsDir:     filepath.Join(slackDir, "logs"),
		APIURL:      "http://localhost:8000",
		ProjectDir:  os.Getenv("CLAUDE_PROJECT_DIR"),
		Port:        8000,
		Debug:       os.Getenv("CLAUDE_SLACK_DEBUG") != "",
		Perf:        os.Getenv("CLAUDE_SLACK_PERF") != "",
	}

	if url := os.Getenv("CLAUDE_SLACK_API_URL"); url != "" {
		env.APIURL = url
	}
	if portStr := os.Getenv("CLAUDE_SLACK_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return Env{}, fmt.Errorf("invalid CLAUDE_SLACK_PORT: %w", err)
		}
		env.Port = port
	}
	return env, nil
}

// Load reads the configuration file, creating it with defaults when it
// does not exist. Missing keys fall back to defaults.
func Load(path string) (Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Default()
		if err := Save(path, cfg); err != nil {
			return Config{}, err
		}
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}
	if cfg.Settings.MaxMessageLength <= 0 {
		cfg.Settings.MaxMessageLength = Default().Settings.MaxMessageLength
	}
	if cfg.Settings.MessageRetentionDays < 0 {
		cfg.Settings.MessageRetentionDays = 0
	}
	return cfg, nil
}

// Save writes the configuration atomically via a temp file rename.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".claude-slack-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace config: %w", err)
	}
	return nil
}
