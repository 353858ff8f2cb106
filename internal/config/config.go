// Package config loads and validates the daemon's declarative TOML
// configuration: engine settings, sources, and output channels.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config is the root of the declarative configuration file.
type Config struct {
	Pail           PailConfig            `mapstructure:"pail"`
	Database       DatabaseConfig        `mapstructure:"database"`
	Opencode       OpencodeConfig        `mapstructure:"opencode"`
	Sources        []SourceConfig        `mapstructure:"source"`
	OutputChannels []OutputChannelConfig `mapstructure:"output_channel"`
}

// PailConfig holds engine-wide settings.
type PailConfig struct {
	Version                  int    `mapstructure:"version"`
	DataDir                  string `mapstructure:"data_dir"`
	Retention                string `mapstructure:"retention"`
	Timezone                 string `mapstructure:"timezone"`
	LogLevel                 string `mapstructure:"log_level"`
	LogFormat                string `mapstructure:"log_format"`
	MaxConcurrentGenerations int    `mapstructure:"max_concurrent_generations"`
	Listen                   string `mapstructure:"listen"`
	FeedToken                string `mapstructure:"feed_token"`
	ChatEnabled              bool   `mapstructure:"chat_enabled"`
	ChatAPIID                int    `mapstructure:"chat_api_id"`
	ChatAPIHash              string `mapstructure:"chat_api_hash"`
}

// DatabaseConfig holds the store's on-disk location.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// OpencodeConfig configures the generator subprocess.
type OpencodeConfig struct {
	Binary       string   `mapstructure:"binary"`
	DefaultModel string   `mapstructure:"default_model"`
	Timeout      string   `mapstructure:"timeout"`
	MaxRetries   int      `mapstructure:"max_retries"`
	ExtraArgs    []string `mapstructure:"extra_args"`
}

// SourceConfig declares one ingestion Source.
type SourceConfig struct {
	Name         string            `mapstructure:"name"`
	Type         string            `mapstructure:"type"`
	URL          string            `mapstructure:"url"`
	PollInterval string            `mapstructure:"poll_interval"`
	MaxItems     int               `mapstructure:"max_items"`
	Auth         *SourceAuthConfig `mapstructure:"auth"`
	Enabled      *bool             `mapstructure:"enabled"`
	PeerID       int64             `mapstructure:"peer_id"`
	Username     string            `mapstructure:"username"`
	FolderName   string            `mapstructure:"folder_name"`
	Description  string            `mapstructure:"description"`
	Exclude      []string          `mapstructure:"exclude"`
}

// SourceAuthConfig declares how HTTP requests authenticate against a
// syndication Source.
type SourceAuthConfig struct {
	Type        string `mapstructure:"type"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	Token       string `mapstructure:"token"`
	HeaderName  string `mapstructure:"header_name"`
	HeaderValue string `mapstructure:"header_value"`
}

// OutputChannelConfig declares one scheduled digest.
type OutputChannelConfig struct {
	Name         string   `mapstructure:"name"`
	Slug         string   `mapstructure:"slug"`
	Schedule     string   `mapstructure:"schedule"`
	Sources      []string `mapstructure:"sources"`
	Prompt       string   `mapstructure:"prompt"`
	Model        string   `mapstructure:"model"`
	Language     string   `mapstructure:"language"`
	Enabled      *bool    `mapstructure:"enabled"`
	MarkChatRead bool     `mapstructure:"mark_chat_read"`
}

// DBPath resolves the database path relative to data_dir unless absolute.
func (c *Config) DBPath() string {
	if filepath.IsAbs(c.Database.Path) {
		return c.Database.Path
	}
	return filepath.Join(c.Pail.DataDir, c.Database.Path)
}

// Load reads and parses the TOML config file at path, applying the same
// defaults the daemon has always shipped with. PAIL_DATA_DIR overrides
// pail.data_dir, the one environment override named in SPEC_FULL.md §6.6.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")

	setDefaults(v)

	v.SetEnvPrefix("PAIL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("pail.data_dir", "PAIL_DATA_DIR")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("pail.version", 1)
	v.SetDefault("pail.data_dir", "./data")
	v.SetDefault("pail.retention", "7d")
	v.SetDefault("pail.timezone", "UTC")
	v.SetDefault("pail.log_level", "info")
	v.SetDefault("pail.log_format", "console")
	v.SetDefault("pail.max_concurrent_generations", 1)
	v.SetDefault("pail.listen", "127.0.0.1:8680")
	v.SetDefault("pail.chat_enabled", false)

	v.SetDefault("database.path", "pail.db")

	v.SetDefault("opencode.binary", "opencode")
	v.SetDefault("opencode.timeout", "10m")
	v.SetDefault("opencode.max_retries", 1)
}
