// Package config loads OptiBot configuration from a YAML file overlaid on
// defaults, with environment-variable overrides for the secrets that are
// conventionally injected that way.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for OptiBot.
type Config struct {
	ClusterName string `yaml:"clusterName"`

	Server   ServerConfig   `yaml:"server"`
	Slack    SlackConfig    `yaml:"slack"`
	Jira     JiraConfig     `yaml:"jira"`
	AI       AIConfig       `yaml:"ai"`
	Workflow WorkflowConfig `yaml:"workflow"`
	Digest   DigestConfig   `yaml:"digest"`
	Database DatabaseConfig `yaml:"database"`
}

type ServerConfig struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

type SlackConfig struct {
	BotToken            string `yaml:"botToken"`
	SigningSecret       string `yaml:"signingSecret"`
	NotificationChannel string `yaml:"notificationChannel"`
}

type JiraConfig struct {
	URL      string `yaml:"url"`
	Username string `yaml:"username"`
	APIToken string `yaml:"apiToken"`
	Project  string `yaml:"project"`
}

type AIConfig struct {
	Enabled bool          `yaml:"enabled"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

type WorkflowConfig struct {
	IdleTimeout   time.Duration `yaml:"idleTimeout"`
	SweepInterval time.Duration `yaml:"sweepInterval"`
}

type DigestConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Schedule string `yaml:"schedule"` // cron expression
}

type DatabaseConfig struct {
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retentionDays"`
}

// DefaultConfig returns a Config with sensible defaults. Secrets come from
// the environment.
func DefaultConfig() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Address: "0.0.0.0",
			Port:    3000,
		},
		AI: AIConfig{
			Enabled: true,
			Model:   "claude-sonnet-4-6",
			Timeout: 10 * time.Second,
		},
		Workflow: WorkflowConfig{
			IdleTimeout:   15 * time.Minute,
			SweepInterval: time.Minute,
		},
		Digest: DigestConfig{
			Enabled:  false,
			Schedule: "0 9 * * MON",
		},
		Database: DatabaseConfig{
			Path:          "/data/optibot.db",
			RetentionDays: 90,
		},
	}

	cfg.applyEnvOverrides()
	return cfg
}

// LoadFromFile loads config from a YAML file, overlaying on defaults.
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides fills in empty fields from environment variables. The
// Anthropic API key is read directly by the SDK and never stored here.
func (c *Config) applyEnvOverrides() {
	setIfEmpty := func(dst *string, keys ...string) {
		if *dst != "" {
			return
		}
		for _, k := range keys {
			if v := os.Getenv(k); v != "" {
				*dst = v
				return
			}
		}
	}

	setIfEmpty(&c.Slack.BotToken, "SLACK_BOT_TOKEN")
	setIfEmpty(&c.Slack.SigningSecret, "SLACK_SIGNING_SECRET")
	setIfEmpty(&c.Slack.NotificationChannel, "NOTIFICATION_CHANNEL")
	setIfEmpty(&c.Jira.URL, "JIRA_URL")
	setIfEmpty(&c.Jira.Username, "JIRA_USERNAME")
	setIfEmpty(&c.Jira.APIToken, "JIRA_API_TOKEN")
	setIfEmpty(&c.Jira.Project, "JIRA_PROJECT")
	setIfEmpty(&c.ClusterName, "CLUSTER_NAME")

	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
}

// Validate checks the config for errors.
func (c *Config) Validate() error {
	if c.Slack.BotToken == "" {
		return fmt.Errorf("slack bot token is required: set slack.botToken or SLACK_BOT_TOKEN")
	}
	if c.Slack.SigningSecret == "" {
		return fmt.Errorf("slack signing secret is required: set slack.signingSecret or SLACK_SIGNING_SECRET")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Workflow.IdleTimeout <= 0 {
		return fmt.Errorf("workflow idleTimeout must be positive, got %v", c.Workflow.IdleTimeout)
	}
	if c.Workflow.SweepInterval <= 0 {
		return fmt.Errorf("workflow sweepInterval must be positive, got %v", c.Workflow.SweepInterval)
	}
	if c.Workflow.SweepInterval > c.Workflow.IdleTimeout {
		return fmt.Errorf("sweepInterval (%v) must not exceed idleTimeout (%v)",
			c.Workflow.SweepInterval, c.Workflow.IdleTimeout)
	}

	// Jira is all-or-nothing: partial credentials are a config mistake,
	// not a degraded mode.
	jiraFields := 0
	for _, v := range []string{c.Jira.URL, c.Jira.Username, c.Jira.APIToken, c.Jira.Project} {
		if v != "" {
			jiraFields++
		}
	}
	if jiraFields > 0 && jiraFields < 4 {
		return fmt.Errorf("incomplete Jira config: url, username, apiToken, and project must all be set (or none)")
	}

	return nil
}
