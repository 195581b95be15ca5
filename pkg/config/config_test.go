package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("BOT_TOKEN", "")
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)

	assert.Equal(t, DefaultConfig(), cfg)
	assert.Equal(t, 15*time.Second, cfg.Relay.SendTimeout())
}

func TestLoadConfig_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"discord": {"token": "file-token", "guild_id": "123"},
		"relay": {"workers": 2}
	}`), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "file-token", cfg.Discord.Token)
	assert.Equal(t, "123", cfg.Discord.GuildID)
	assert.Equal(t, 2, cfg.Relay.Workers)
	assert.Equal(t, 4, cfg.Relay.FanoutLimit)
}

func TestLoadConfig_AllowsComments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		// local test guild
		"discord": {"guild_id": "42",},
		/* trace everything */
		"telemetry": {"otlp_endpoint": "http://localhost:4318", "sample_ratio": 0.5},
	}`), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "42", cfg.Discord.GuildID)
	assert.Equal(t, "http://localhost:4318", cfg.Telemetry.OTLPEndpoint)
	assert.InDelta(t, 0.5, cfg.Telemetry.SampleRatio, 1e-9)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("CROSSBRIDGE_DISCORD_TOKEN", "env-token")
	t.Setenv("CROSSBRIDGE_RELAY_FANOUT_LIMIT", "9")
	t.Setenv("CROSSBRIDGE_AUDIT_PRUNE", "true")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, err)
	assert.Equal(t, "env-token", cfg.Discord.Token)
	assert.Equal(t, 9, cfg.Relay.FanoutLimit)
	assert.True(t, cfg.Audit.Prune)
}

func TestLoadConfig_LegacyTokenFallback(t *testing.T) {
	t.Setenv("CROSSBRIDGE_DISCORD_TOKEN", "")
	t.Setenv("BOT_TOKEN", "legacy")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, err)
	assert.Equal(t, "legacy", cfg.Discord.Token)
}

func TestLoadConfig_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o600))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Relay.Workers = 0
	cfg.Audit.Schedule = "every hour"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "relay.workers")
	assert.Contains(t, err.Error(), "audit.schedule")

	cfg = DefaultConfig()
	cfg.Telemetry.SampleRatio = 2
	assert.ErrorContains(t, cfg.Validate(), "telemetry.sample_ratio")

	cfg = DefaultConfig()
	cfg.Audit.Enabled = false
	cfg.Audit.Schedule = ""
	assert.NoError(t, cfg.Validate())
}

func TestSaveConfig_RoundTripAndMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	cfg := DefaultConfig()
	cfg.Discord.Token = "secret"
	require.NoError(t, SaveConfig(path, cfg))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "secret", loaded.Discord.Token)
}

func TestStoragePath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	cfg := DefaultConfig()
	assert.Equal(t, filepath.Join(home, ".crossbridge", "bridges.db"), cfg.StoragePath())

	cfg.Storage.Path = "/var/lib/crossbridge.db"
	assert.Equal(t, "/var/lib/crossbridge.db", cfg.StoragePath())
}
