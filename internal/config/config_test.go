package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebronway/domain-manager/internal/domain"
)

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
}

func TestLoadDefaults(t *testing.T) {
	resetViper(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "UTC", cfg.Timezone)
	assert.Equal(t, "5m", cfg.IPCheckInterval)
	assert.Equal(t, "3 months", cfg.LogRetention)
	assert.Equal(t, "03:30", cfg.LogCleanupTime)
	assert.True(t, cfg.CertManagement.Enabled)
	assert.Equal(t, "02:30", cfg.CertManagement.CheckTime)
	assert.Equal(t, 30, cfg.CertManagement.RenewWithinDays)
	assert.False(t, cfg.Notifications.Enabled)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "/config", cfg.DataDir)
	assert.Equal(t, "/certs", cfg.CertsDir)
	assert.Empty(t, cfg.Domains)
}

func TestLoadFromFile(t *testing.T) {
	resetViper(t)

	settings := `
timezone: Europe/Berlin
ip_check_interval: 10m
cert_management:
  enabled: true
  check_time: "04:15"
  email: admin@example.com
  staging: true
domains:
  - name: a.example.com
    ddns: true
    auto_update: false
    ssl:
      enabled: true
      wildcard: true
  - name: b.example.com
    ddns: true
`
	path := filepath.Join(t.TempDir(), "domain-manager.yaml")
	require.NoError(t, os.WriteFile(path, []byte(settings), 0o644))
	viper.SetConfigFile(path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "Europe/Berlin", cfg.Timezone)
	assert.Equal(t, "10m", cfg.IPCheckInterval)
	assert.Equal(t, "04:15", cfg.CertManagement.CheckTime)
	assert.True(t, cfg.CertManagement.Staging)

	require.Len(t, cfg.Domains, 2)
	a := cfg.Domains[0]
	assert.Equal(t, "a.example.com", a.Name)
	assert.True(t, a.DDNS)
	assert.False(t, a.AutoUpdateEnabled())
	assert.True(t, a.SSL.Enabled)
	assert.True(t, a.SSL.Wildcard)

	b := cfg.Domains[1]
	assert.True(t, b.AutoUpdateEnabled(), "auto_update defaults to true when omitted")
	assert.True(t, b.NotificationsEnabled())
	assert.False(t, b.SSL.Enabled)
}

func TestLoadUnparsableFileFallsBackToDefaults(t *testing.T) {
	resetViper(t)

	path := filepath.Join(t.TempDir(), "domain-manager.yaml")
	require.NoError(t, os.WriteFile(path, []byte(":\n  - ["), 0o644))
	viper.SetConfigFile(path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "UTC", cfg.Timezone)
	assert.Equal(t, "5m", cfg.IPCheckInterval)
}

func TestDemoMode(t *testing.T) {
	resetViper(t)
	t.Setenv("PROVIDER", "demo")

	cfg, err := Load()
	require.NoError(t, err)

	require.NotEmpty(t, cfg.Domains)
	_, ok := cfg.Domain("demo-server.com")
	assert.True(t, ok)
}

func TestSecretOverlayFromEnvironment(t *testing.T) {
	resetViper(t)
	t.Setenv("AWS_ACCESS_KEY_ID", "AKIATEST")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "shhh")
	t.Setenv("DISCORD_WEBHOOK_URL", "discord://token@channel")
	t.Setenv("API_AUTH_SECRET", "hunter2")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "AKIATEST", cfg.AWS.AccessKeyID)
	assert.Equal(t, "shhh", cfg.AWS.SecretAccessKey)
	assert.Equal(t, "hunter2", cfg.Server.AuthSecret)
	assert.True(t, cfg.Notifications.Discord.Enabled, "a webhook URL in the environment enables the channel")
	assert.Equal(t, "discord://token@channel", cfg.Notifications.Discord.URL)
}

func TestLoadRejectsDuplicateDomains(t *testing.T) {
	resetViper(t)

	settings := `
domains:
  - name: a.example.com
    ddns: true
  - name: a.example.com
    ddns: true
`
	path := filepath.Join(t.TempDir(), "domain-manager.yaml")
	require.NoError(t, os.WriteFile(path, []byte(settings), 0o644))
	viper.SetConfigFile(path)

	_, err := Load()
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestLoadRejectsUnnamedDomain(t *testing.T) {
	resetViper(t)

	settings := `
domains:
  - ddns: true
`
	path := filepath.Join(t.TempDir(), "domain-manager.yaml")
	require.NoError(t, os.WriteFile(path, []byte(settings), 0o644))
	viper.SetConfigFile(path)

	_, err := Load()
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestLocationFallsBackToUTC(t *testing.T) {
	cfg := &Config{Timezone: "Mars/Olympus_Mons"}
	assert.Equal(t, "UTC", cfg.Location().String())
}

func TestSSLDomainsPreservesConfigOrder(t *testing.T) {
	cfg := &Config{Domains: []DomainSpec{
		{Name: "c.example.com", SSL: SSLSpec{Enabled: true}},
		{Name: "plain.example.com"},
		{Name: "a.example.com", SSL: SSLSpec{Enabled: true}},
	}}

	ssl := cfg.SSLDomains()
	require.Len(t, ssl, 2)
	assert.Equal(t, "c.example.com", ssl[0].Name)
	assert.Equal(t, "a.example.com", ssl[1].Name)
}

func TestStatePaths(t *testing.T) {
	cfg := &Config{DataDir: "/data", Logging: LoggingConfig{Dir: "/logs", File: "app.log"}}
	assert.Equal(t, "/data/app_state.json", cfg.StateFile())
	assert.Equal(t, "/data/acme_account.json", cfg.AccountFile())
	assert.Equal(t, "/data/events.db", cfg.EventsFile())
	assert.Equal(t, "/logs/app.log", cfg.LogFile())
}
