package config

import (
	"github.com/kelseyhightower/envconfig"

	"github.com/agentgate/agentgate/internal/oauth"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	Port                int    `envconfig:"PORT" default:"8080"`
	LogLevel            string `envconfig:"LOG_LEVEL" default:"info"`
	DatabaseURL         string `envconfig:"DATABASE_URL" required:"true"`
	EncryptionKey       string `envconfig:"ENCRYPTION_KEY" required:"true"`
	Version             string `envconfig:"VERSION" default:"dev"`
	ContextMaxAge       int    `envconfig:"CONTEXT_MAX_AGE_SECONDS" default:"300"`
	RefreshWindow       int    `envconfig:"REFRESH_WINDOW_SECONDS" default:"300"`
	BuildTimeout        int    `envconfig:"BUILD_TIMEOUT_SECONDS" default:"10"`
	CatalogPath         string `envconfig:"CATALOG_PATH" default:""`
	CatalogSyncInterval int    `envconfig:"CATALOG_SYNC_INTERVAL" default:"300"`
	BcryptCost          int    `envconfig:"BCRYPT_COST" default:"12"`

	// OAuth client registrations, loaded under per-provider prefixes
	// (GOOGLE_CLIENT_ID, SLACK_CLIENT_SECRET, ...). A provider whose
	// client ID is empty is simply not registered.
	Google oauth.ClientConfig `ignored:"true"`
	GitHub oauth.ClientConfig `ignored:"true"`
	Notion oauth.ClientConfig `ignored:"true"`
	Slack  oauth.ClientConfig `ignored:"true"`
	Jira   oauth.ClientConfig `ignored:"true"`
}

// Load reads configuration from environment variables into a Config struct.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}

	providers := map[string]*oauth.ClientConfig{
		"GOOGLE": &cfg.Google,
		"GITHUB": &cfg.GitHub,
		"NOTION": &cfg.Notion,
		"SLACK":  &cfg.Slack,
		"JIRA":   &cfg.Jira,
	}
	for prefix, cc := range providers {
		if err := envconfig.Process(prefix, cc); err != nil {
			return nil, err
		}
	}

	return &cfg, nil
}
