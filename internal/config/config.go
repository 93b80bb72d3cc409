// Package config provides YAML-based configuration loading for Mailroom.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Database driver names.
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// Attachment storage backend names.
const (
	BackendDisk = "disk"
	BackendS3   = "s3"
)

// Config is the top-level Mailroom configuration, loaded from config.yaml.
type Config struct {
	Token           string `yaml:"token"`
	MainGuildID     string `yaml:"main_guild_id"`
	InboxGuildID    string `yaml:"inbox_guild_id"`
	Prefix          string `yaml:"prefix"`
	SnippetPrefix   string `yaml:"snippet_prefix"`
	Status          string `yaml:"status"`
	ResponseMessage string `yaml:"response_message"`

	// StaffPermission is the permission a member must hold in the inbox guild
	// to use staff commands. Empty means every inbox guild member is staff.
	StaffPermission string `yaml:"staff_permission"`

	// StaffChannelID is the inbox guild channel for announcements (new
	// threads, warnings). Empty resolves to the guild's first text channel.
	StaffChannelID string `yaml:"staff_channel_id"`

	UseNicknames    bool `yaml:"use_nicknames"`
	AlwaysReply     bool `yaml:"always_reply"`
	AlwaysReplyAnon bool `yaml:"always_reply_anon"`

	Database    DatabaseConfig    `yaml:"database"`
	Attachments AttachmentsConfig `yaml:"attachments"`
	LogServer   LogServerConfig   `yaml:"log_server"`
	Janitor     JanitorConfig     `yaml:"janitor"`
}

// DatabaseConfig selects and parameterizes the persistence backend.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite" (default) or "mysql"
	Path   string `yaml:"path"`   // sqlite file path
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	User   string `yaml:"user"`
	Name   string `yaml:"name"`
}

// AttachmentsConfig selects where attachment bytes and transcripts are stored.
type AttachmentsConfig struct {
	Backend string   `yaml:"backend"` // "disk" (default) or "s3"
	Dir     string   `yaml:"dir"`     // disk backend root
	S3      S3Config `yaml:"s3"`
}

// S3Config holds connection settings for an S3-compatible object store.
type S3Config struct {
	Endpoint      string `yaml:"endpoint"`
	AccessKey     string `yaml:"access_key"`
	SecretKey     string `yaml:"secret_key"`
	Bucket        string `yaml:"bucket"`
	UseSSL        bool   `yaml:"use_ssl"`
	PublicBaseURL string `yaml:"public_base_url"`
}

// LogServerConfig configures the HTTP server that exposes saved transcripts.
type LogServerConfig struct {
	Port    int    `yaml:"port"`
	BaseURL string `yaml:"base_url"` // public base URL used in posted links
}

// JanitorConfig schedules the orphaned-thread sweep.
type JanitorConfig struct {
	Enabled bool   `yaml:"enabled"`
	Cron    string `yaml:"cron"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Prefix == "" {
		c.Prefix = "!"
	}
	if c.SnippetPrefix == "" {
		c.SnippetPrefix = strings.Repeat(c.Prefix, 2)
	}
	if c.Status == "" {
		c.Status = "Message me for help"
	}
	if c.ResponseMessage == "" {
		c.ResponseMessage = "Thank you for your message! Our mod team will reply to you here as soon as possible."
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DriverSQLite
	}
	if c.Database.Path == "" {
		c.Database.Path = "mailroom.db"
	}
	if c.Database.Host == "" {
		c.Database.Host = "127.0.0.1"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 3306
	}
	if c.Database.User == "" {
		c.Database.User = "root"
	}
	if c.Database.Name == "" {
		c.Database.Name = "mailroom"
	}
	if c.Attachments.Backend == "" {
		c.Attachments.Backend = BackendDisk
	}
	if c.Attachments.Dir == "" {
		c.Attachments.Dir = "attachments"
	}
	if c.LogServer.Port == 0 {
		c.LogServer.Port = 8890
	}
	if c.LogServer.BaseURL == "" {
		c.LogServer.BaseURL = fmt.Sprintf("http://localhost:%d", c.LogServer.Port)
	}
	if c.Janitor.Cron == "" {
		c.Janitor.Cron = "0 4 * * *"
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.Token == "" {
		errs = append(errs, "token is required")
	}
	if c.MainGuildID == "" {
		errs = append(errs, "main_guild_id is required")
	}
	if c.InboxGuildID == "" {
		errs = append(errs, "inbox_guild_id is required")
	}
	switch c.Database.Driver {
	case DriverSQLite, DriverMySQL:
	default:
		errs = append(errs, fmt.Sprintf("database.driver must be %q or %q", DriverSQLite, DriverMySQL))
	}
	switch c.Attachments.Backend {
	case BackendDisk:
	case BackendS3:
		if c.Attachments.S3.Endpoint == "" {
			errs = append(errs, "attachments.s3.endpoint is required for the s3 backend")
		}
		if c.Attachments.S3.Bucket == "" {
			errs = append(errs, "attachments.s3.bucket is required for the s3 backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("attachments.backend must be %q or %q", BackendDisk, BackendS3))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
