package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adhocore/gronx"
	"github.com/caarlos0/env/v11"
	"github.com/tidwall/jsonc"
)

// LegacyTokenEnv is where earlier deployments of the bot kept the token.
const LegacyTokenEnv = "BOT_TOKEN"

type Config struct {
	Discord   DiscordConfig   `json:"discord"`
	Storage   StorageConfig   `json:"storage"`
	Relay     RelayConfig     `json:"relay"`
	Gateway   GatewayConfig   `json:"gateway"`
	Audit     AuditConfig     `json:"audit"`
	Telemetry TelemetryConfig `json:"telemetry,omitzero"`
}

type DiscordConfig struct {
	Token string `env:"CROSSBRIDGE_DISCORD_TOKEN" json:"token"`
	// GuildID registers slash commands to one guild; empty registers them globally.
	GuildID       string `env:"CROSSBRIDGE_DISCORD_GUILD_ID"       json:"guild_id,omitempty"`
	RelayWebhooks bool   `env:"CROSSBRIDGE_DISCORD_RELAY_WEBHOOKS" json:"relay_webhooks"`
}

type StorageConfig struct {
	Path string `env:"CROSSBRIDGE_STORAGE_PATH" json:"path"`
}

type RelayConfig struct {
	Workers            int `env:"CROSSBRIDGE_RELAY_WORKERS"              json:"workers"`
	FanoutLimit        int `env:"CROSSBRIDGE_RELAY_FANOUT_LIMIT"         json:"fanout_limit"`
	QueueSize          int `env:"CROSSBRIDGE_RELAY_QUEUE_SIZE"           json:"queue_size"`
	SendTimeoutSeconds int `env:"CROSSBRIDGE_RELAY_SEND_TIMEOUT_SECONDS" json:"send_timeout_seconds"`
	MaxMessageLength   int `env:"CROSSBRIDGE_RELAY_MAX_MESSAGE_LENGTH"   json:"max_message_length"` // runes
	MaxAttachmentBytes int `env:"CROSSBRIDGE_RELAY_MAX_ATTACHMENT_BYTES" json:"max_attachment_bytes"`
}

func (r RelayConfig) SendTimeout() time.Duration {
	return time.Duration(r.SendTimeoutSeconds) * time.Second
}

type GatewayConfig struct {
	Host string `env:"CROSSBRIDGE_GATEWAY_HOST" json:"host"`
	Port int    `env:"CROSSBRIDGE_GATEWAY_PORT" json:"port"`
}

type AuditConfig struct {
	Enabled  bool   `env:"CROSSBRIDGE_AUDIT_ENABLED"  json:"enabled"`
	Schedule string `env:"CROSSBRIDGE_AUDIT_SCHEDULE" json:"schedule"` // cron expression
	Prune    bool   `env:"CROSSBRIDGE_AUDIT_PRUNE"    json:"prune"`
}

type TelemetryConfig struct {
	OTLPEndpoint string  `env:"CROSSBRIDGE_TELEMETRY_OTLP_ENDPOINT" json:"otlp_endpoint,omitempty"`
	ServiceName  string  `env:"CROSSBRIDGE_TELEMETRY_SERVICE_NAME"  json:"service_name,omitempty"`
	SampleRatio  float64 `env:"CROSSBRIDGE_TELEMETRY_SAMPLE_RATIO"  json:"sample_ratio,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Path: "~/.crossbridge/bridges.db",
		},
		Relay: RelayConfig{
			Workers:            8,
			FanoutLimit:        4,
			QueueSize:          100,
			SendTimeoutSeconds: 15,
			MaxMessageLength:   2000,
			MaxAttachmentBytes: 25 << 20,
		},
		Gateway: GatewayConfig{
			Host: "0.0.0.0",
			Port: 18790,
		},
		Audit: AuditConfig{
			Enabled:  true,
			Schedule: "0 * * * *",
		},
	}
}

// LoadConfig reads path over the defaults, then applies environment
// overrides. The file may contain comments and trailing commas. A missing
// file is not an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(jsonc.ToJSON(data), cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case !os.IsNotExist(err):
		return nil, err
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if cfg.Discord.Token == "" {
		cfg.Discord.Token = os.Getenv(LegacyTokenEnv)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func SaveConfig(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate checks the settings that would otherwise fail late at runtime.
// The token is not checked here; offline commands run without one.
func (c *Config) Validate() error {
	var errs []error
	if c.Storage.Path == "" {
		errs = append(errs, errors.New("storage.path is required"))
	}
	if c.Relay.Workers <= 0 {
		errs = append(errs, fmt.Errorf("relay.workers must be positive, got %d", c.Relay.Workers))
	}
	if c.Relay.FanoutLimit <= 0 {
		errs = append(errs, fmt.Errorf("relay.fanout_limit must be positive, got %d", c.Relay.FanoutLimit))
	}
	if c.Relay.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("relay.queue_size must be positive, got %d", c.Relay.QueueSize))
	}
	if c.Relay.SendTimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf(
			"relay.send_timeout_seconds must be positive, got %d", c.Relay.SendTimeoutSeconds))
	}
	if c.Gateway.Port < 0 || c.Gateway.Port > 65535 {
		errs = append(errs, fmt.Errorf("gateway.port out of range: %d", c.Gateway.Port))
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("telemetry.sample_ratio must be within [0,1], got %v", c.Telemetry.SampleRatio))
	}
	if c.Audit.Enabled && !gronx.New().IsValid(c.Audit.Schedule) {
		errs = append(errs, fmt.Errorf("audit.schedule is not a valid cron expression: %q", c.Audit.Schedule))
	}
	return errors.Join(errs...)
}

// StoragePath returns the database path with ~ expanded.
func (c *Config) StoragePath() string {
	return expandHome(c.Storage.Path)
}

func expandHome(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && path[1] == '/' {
			return home + path[1:]
		}
		return home
	}
	return path
}
