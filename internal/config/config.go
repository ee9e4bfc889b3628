package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/thebronway/domain-manager/internal/domain"
	"github.com/thebronway/domain-manager/pkg/logger"
)

// Config holds the full application settings, resolved once at load.
// Per-cycle consumers treat it as an immutable snapshot.
type Config struct {
	Timezone        string         `mapstructure:"timezone"`
	IPCheckInterval string         `mapstructure:"ip_check_interval"`
	LogRetention    string         `mapstructure:"log_retention"`
	LogCleanupTime  string         `mapstructure:"log_cleanup_time"`
	CertManagement  CertManagement `mapstructure:"cert_management"`
	Domains         []DomainSpec   `mapstructure:"domains"`
	Notifications   Notifications  `mapstructure:"notifications"`
	AWS             AWSConfig      `mapstructure:"aws"`
	Server          ServerConfig   `mapstructure:"server"`
	Logging         LoggingConfig  `mapstructure:"logging"`
	DataDir         string         `mapstructure:"data_dir"`
	CertsDir        string         `mapstructure:"certs_dir"`
}

// CertManagement configures the daily renewal batch.
type CertManagement struct {
	Enabled         bool   `mapstructure:"enabled"`
	CheckTime       string `mapstructure:"check_time"`
	Email           string `mapstructure:"email"`
	Staging         bool   `mapstructure:"staging"`
	RenewWithinDays int    `mapstructure:"renew_within_days"`
}

// DomainSpec describes one managed domain. AutoUpdate and Notifications
// default to true when omitted, matching the original settings format,
// so they are pointers rather than plain bools.
type DomainSpec struct {
	Name          string  `mapstructure:"name"`
	DDNS          bool    `mapstructure:"ddns"`
	AutoUpdate    *bool   `mapstructure:"auto_update"`
	Notifications *bool   `mapstructure:"notifications"`
	SSL           SSLSpec `mapstructure:"ssl"`
}

// SSLSpec holds the per-domain certificate settings.
type SSLSpec struct {
	Enabled  bool `mapstructure:"enabled"`
	Wildcard bool `mapstructure:"wildcard"`
}

// AutoUpdateEnabled reports whether drift correction may write records.
func (d DomainSpec) AutoUpdateEnabled() bool {
	return d.AutoUpdate == nil || *d.AutoUpdate
}

// NotificationsEnabled reports the per-domain alert flag.
func (d DomainSpec) NotificationsEnabled() bool {
	return d.Notifications == nil || *d.Notifications
}

// Notifications configures the fanout channels.
type Notifications struct {
	Enabled  bool          `mapstructure:"enabled"`
	SMTP     SMTPConfig    `mapstructure:"smtp"`
	Discord  ChannelConfig `mapstructure:"discord"`
	Slack    ChannelConfig `mapstructure:"slack"`
	Telegram ChannelConfig `mapstructure:"telegram"`
	MSTeams  ChannelConfig `mapstructure:"msteams"`
	Pushover ChannelConfig `mapstructure:"pushover"`
	GChat    ChannelConfig `mapstructure:"gchat"`
}

// ChannelConfig is a URL-addressed notification channel.
type ChannelConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

// SMTPConfig holds mail delivery settings.
type SMTPConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	User      string `mapstructure:"user"`
	Pass      string `mapstructure:"pass"`
	FromEmail string `mapstructure:"from_email"`
	ToEmail   string `mapstructure:"to_email"`
}

// AWSConfig holds the Route 53 credentials.
type AWSConfig struct {
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

// ServerConfig configures the trigger API.
type ServerConfig struct {
	Port       int    `mapstructure:"port"`
	AuthSecret string `mapstructure:"auth_secret"`
}

// LoggingConfig configures the rotating file sink.
type LoggingConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Level      string `mapstructure:"level"`
	Dir        string `mapstructure:"dir"`
	File       string `mapstructure:"file"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// Load reads settings from the file viper was pointed at, applies
// defaults, and overlays secrets from the environment. PROVIDER=demo
// short-circuits to the editable demo settings.
func Load() (*Config, error) {
	log := logger.GetLogger()

	if os.Getenv("PROVIDER") == "demo" {
		log.Info("DEMO MODE ENABLED (via PROVIDER=demo)")
		cfg := demoConfig()
		cfg.overlaySystemSecrets()
		return cfg, nil
	}

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Warn("No settings file found, using defaults")
		} else {
			// Parse failure: keep defaults rather than aborting.
			log.Error("Error parsing settings file, using defaults", "error", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode settings: %w", err)
	}

	cfg.overlaySystemSecrets()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate rejects settings the engine cannot run with. Soft problems
// (unknown timezone, bad interval) degrade with a logged warning instead.
func (c *Config) validate() error {
	seen := make(map[string]bool, len(c.Domains))
	for _, d := range c.Domains {
		if d.Name == "" {
			return fmt.Errorf("domain with empty name: %w", domain.ErrInvalidConfig)
		}
		if seen[d.Name] {
			return fmt.Errorf("domain %s listed twice: %w", d.Name, domain.ErrInvalidConfig)
		}
		seen[d.Name] = true
	}
	return nil
}

func setDefaults() {
	viper.SetDefault("timezone", "UTC")
	viper.SetDefault("ip_check_interval", "5m")
	viper.SetDefault("log_retention", "3 months")
	viper.SetDefault("log_cleanup_time", "03:30")
	viper.SetDefault("cert_management.enabled", true)
	viper.SetDefault("cert_management.check_time", "02:30")
	viper.SetDefault("cert_management.renew_within_days", 30)
	viper.SetDefault("notifications.enabled", false)
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("data_dir", "/config")
	viper.SetDefault("certs_dir", "/certs")
	viper.SetDefault("logging.enabled", true)
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.dir", "/logs")
	viper.SetDefault("logging.file", "domain-manager.log")
	viper.SetDefault("logging.max_size", 10)
	viper.SetDefault("logging.max_backups", 5)
	viper.SetDefault("logging.max_age", 90)
	viper.SetDefault("aws.region", "us-east-1")
}

// overlaySystemSecrets injects credentials from environment variables.
// The environment is the source of truth for secrets; values in the
// settings file are only a fallback.
func (c *Config) overlaySystemSecrets() {
	if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
		c.AWS.AccessKeyID = v
	}
	if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
		c.AWS.SecretAccessKey = v
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		c.AWS.Region = v
	}
	if v := os.Getenv("SMTP_USER"); v != "" {
		c.Notifications.SMTP.User = v
	}
	if v := os.Getenv("SMTP_PASS"); v != "" {
		c.Notifications.SMTP.Pass = v
	}
	if v := os.Getenv("API_AUTH_SECRET"); v != "" {
		c.Server.AuthSecret = v
	}

	channels := []struct {
		env string
		ch  *ChannelConfig
	}{
		{"DISCORD_WEBHOOK_URL", &c.Notifications.Discord},
		{"SLACK_WEBHOOK_URL", &c.Notifications.Slack},
		{"TELEGRAM_URL", &c.Notifications.Telegram},
		{"MSTEAMS_WEBHOOK_URL", &c.Notifications.MSTeams},
		{"PUSHOVER_URL", &c.Notifications.Pushover},
		{"GCHAT_WEBHOOK_URL", &c.Notifications.GChat},
	}
	for _, e := range channels {
		if v := os.Getenv(e.env); v != "" {
			e.ch.URL = v
			e.ch.Enabled = true
		}
	}
}

// Location resolves the configured timezone, falling back to UTC on an
// unknown name.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		logger.GetLogger().Warn("Unknown timezone, defaulting to UTC", "timezone", c.Timezone)
		return time.UTC
	}
	return loc
}

// Now returns the current time in the configured timezone.
func (c *Config) Now() time.Time {
	return time.Now().In(c.Location())
}

// StateFile is the path of the persisted engine state document.
func (c *Config) StateFile() string {
	return filepath.Join(c.DataDir, "app_state.json")
}

// AccountFile is the path of the persisted ACME account.
func (c *Config) AccountFile() string {
	return filepath.Join(c.DataDir, "acme_account.json")
}

// EventsFile is the path of the sqlite event history.
func (c *Config) EventsFile() string {
	return filepath.Join(c.DataDir, "events.db")
}

// LogFile is the path of the rotating application log.
func (c *Config) LogFile() string {
	return filepath.Join(c.Logging.Dir, c.Logging.File)
}

// Domain looks up a domain spec by name.
func (c *Config) Domain(name string) (DomainSpec, bool) {
	for _, d := range c.Domains {
		if d.Name == name {
			return d, true
		}
	}
	return DomainSpec{}, false
}

// SSLDomains returns the SSL-enabled domains in configuration order.
func (c *Config) SSLDomains() []DomainSpec {
	var out []DomainSpec
	for _, d := range c.Domains {
		if d.SSL.Enabled {
			out = append(out, d)
		}
	}
	return out
}
