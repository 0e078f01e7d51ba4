package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
device:
  principal_id: "user-42"
database:
  path: "/tmp/mobus.db"
mqtt:
  broker:
    host: "broker.local"
    port: 8883
    tls: true
  qos: 1
  queue_limit: 16
link:
  interface: "wlp2s0"
  max_retries: 3
  candidate_timeout: 5s
fallback:
  retry_interval: 30s
notification:
  min_interval: 250ms
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Device.PrincipalID != "user-42" {
		t.Errorf("Device.PrincipalID = %q, want %q", cfg.Device.PrincipalID, "user-42")
	}
	if cfg.MQTT.Broker.Host != "broker.local" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "broker.local")
	}
	if !cfg.MQTT.Broker.TLS {
		t.Error("MQTT.Broker.TLS = false, want true")
	}
	if cfg.MQTT.QueueLimit != 16 {
		t.Errorf("MQTT.QueueLimit = %d, want 16", cfg.MQTT.QueueLimit)
	}
	if cfg.Link.Interface != "wlp2s0" {
		t.Errorf("Link.Interface = %q, want %q", cfg.Link.Interface, "wlp2s0")
	}
	if cfg.Link.CandidateTimeout != 5*time.Second {
		t.Errorf("Link.CandidateTimeout = %v, want 5s", cfg.Link.CandidateTimeout)
	}
	if cfg.Fallback.RetryInterval != 30*time.Second {
		t.Errorf("Fallback.RetryInterval = %v, want 30s", cfg.Fallback.RetryInterval)
	}
	// Unset fields keep their defaults.
	if cfg.Fallback.PerTryTimeout != 8*time.Second {
		t.Errorf("Fallback.PerTryTimeout = %v, want 8s", cfg.Fallback.PerTryTimeout)
	}
	if cfg.Notification.MinInterval != 250*time.Millisecond {
		t.Errorf("Notification.MinInterval = %v, want 250ms", cfg.Notification.MinInterval)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
link:
  interface: ""
`
	_, err := Load(writeConfig(t, content))
	if err == nil {
		t.Error("Load() expected validation error for empty link.interface, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}, wantErr: false},
		{name: "missing database path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: true},
		{name: "invalid QoS", mutate: func(c *Config) { c.MQTT.QoS = 3 }, wantErr: true},
		{name: "negative queue limit", mutate: func(c *Config) { c.MQTT.QueueLimit = -1 }, wantErr: true},
		{name: "zero retries", mutate: func(c *Config) { c.Link.MaxRetries = 0 }, wantErr: true},
		{name: "zero candidate timeout", mutate: func(c *Config) { c.Link.CandidateTimeout = 0 }, wantErr: true},
		{name: "fallback without interval", mutate: func(c *Config) { c.Fallback.RetryInterval = 0 }, wantErr: true},
		{
			name: "disabled fallback ignores interval",
			mutate: func(c *Config) {
				c.Fallback.Enabled = false
				c.Fallback.RetryInterval = 0
			},
			wantErr: false,
		},
		{name: "pairing without binary", mutate: func(c *Config) { c.Pairing.Enabled = true }, wantErr: true},
		{name: "api port high", mutate: func(c *Config) { c.API.Port = 70000 }, wantErr: true},
		{name: "influxdb without url", mutate: func(c *Config) { c.InfluxDB.Enabled = true }, wantErr: true},
		{name: "negative min interval", mutate: func(c *Config) { c.Notification.MinInterval = -time.Second }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{Read: 30, Write: 45, Idle: 60},
		},
	}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}
	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}
	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("MOBUS_DEVICE_ID", "dev-7")
	t.Setenv("MOBUS_DATABASE_PATH", "/custom/path.db")
	t.Setenv("MOBUS_MQTT_HOST", "mqtt.example.com")
	t.Setenv("MOBUS_MQTT_PORT", "8883")
	t.Setenv("MOBUS_MQTT_USERNAME", "testuser")
	t.Setenv("MOBUS_MQTT_PASSWORD", "testpass")
	t.Setenv("MOBUS_LINK_INTERFACE", "wlan1")
	t.Setenv("MOBUS_INFLUXDB_TOKEN", "secret-token")

	applyEnvOverrides(cfg)

	if cfg.Device.ID != "dev-7" {
		t.Errorf("Device.ID = %q, want %q", cfg.Device.ID, "dev-7")
	}
	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}
	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}
	if cfg.MQTT.Broker.Port != 8883 {
		t.Errorf("MQTT.Broker.Port = %d, want 8883", cfg.MQTT.Broker.Port)
	}
	if cfg.MQTT.Auth.Username != "testuser" {
		t.Errorf("MQTT.Auth.Username = %q, want %q", cfg.MQTT.Auth.Username, "testuser")
	}
	if cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth.Password = %q, want %q", cfg.MQTT.Auth.Password, "testpass")
	}
	if cfg.Link.Interface != "wlan1" {
		t.Errorf("Link.Interface = %q, want %q", cfg.Link.Interface, "wlan1")
	}
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
}

func TestApplyEnvOverrides_BadPortIgnored(t *testing.T) {
	cfg := defaultConfig()
	t.Setenv("MOBUS_MQTT_PORT", "not-a-port")

	applyEnvOverrides(cfg)

	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	if cfg.Database.Path == "" {
		t.Error("Default should have non-empty Database.Path")
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("Default MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.MQTT.KeepAlive != 30 {
		t.Errorf("Default MQTT.KeepAlive = %d, want 30", cfg.MQTT.KeepAlive)
	}
	if cfg.Link.MaxRetries != 5 {
		t.Errorf("Default Link.MaxRetries = %d, want 5", cfg.Link.MaxRetries)
	}
	if cfg.Link.CandidateTimeout != 12*time.Second {
		t.Errorf("Default Link.CandidateTimeout = %v, want 12s", cfg.Link.CandidateTimeout)
	}
	if cfg.Fallback.RetryInterval != 20*time.Second {
		t.Errorf("Default Fallback.RetryInterval = %v, want 20s", cfg.Fallback.RetryInterval)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default Validate() error = %v", err)
	}
}

// TestLoad_ShippedConfig keeps configs/config.yaml loadable.
func TestLoad_ShippedConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "..", "configs", "config.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Link.CandidateTimeout != 12*time.Second {
		t.Errorf("CandidateTimeout = %v, want 12s", cfg.Link.CandidateTimeout)
	}
	if cfg.MQTT.QueueLimit != 64 {
		t.Errorf("QueueLimit = %d, want 64", cfg.MQTT.QueueLimit)
	}
}
