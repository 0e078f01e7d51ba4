package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the Mobus connectivity core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Device       DeviceConfig       `yaml:"device"`
	Database     DatabaseConfig     `yaml:"database"`
	MQTT         MQTTConfig         `yaml:"mqtt"`
	Link         LinkConfig         `yaml:"link"`
	Fallback     FallbackConfig     `yaml:"fallback"`
	Pairing      PairingConfig      `yaml:"pairing"`
	Notification NotificationConfig `yaml:"notification"`
	API          APIConfig          `yaml:"api"`
	InfluxDB     InfluxDBConfig     `yaml:"influxdb"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// DeviceConfig contains device identity settings.
type DeviceConfig struct {
	// ID identifies the device to the broker. When empty a UUID is generated
	// on first boot and persisted in the key-value store.
	ID string `yaml:"id"`

	// PrincipalID seeds the messaging principal when storage holds none.
	PrincipalID string `yaml:"principal_id"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker MQTTBrokerConfig `yaml:"broker"`
	Auth   MQTTAuthConfig   `yaml:"auth"`
	QoS    int              `yaml:"qos"`

	// KeepAlive is the session keepalive in seconds.
	KeepAlive int `yaml:"keepalive"`

	// QueueLimit bounds every inbound queue (drop-oldest). 0 means unbounded.
	QueueLimit int `yaml:"queue_limit"`

	// AutoStart opens the session at boot instead of waiting for the link.
	AutoStart bool `yaml:"auto_start"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// LinkConfig contains wireless station settings.
type LinkConfig struct {
	// Interface is the wireless network interface (e.g. "wlan0").
	Interface string `yaml:"interface"`

	// MaxRetries bounds automatic reconnects before the link is marked failed.
	MaxRetries int `yaml:"max_retries"`

	// CandidateTimeout is how long boot waits on each saved network.
	CandidateTimeout time.Duration `yaml:"candidate_timeout"`

	// Supplicant configures the wpa_supplicant backend.
	Supplicant SupplicantConfig `yaml:"supplicant"`
}

// SupplicantConfig contains wpa_supplicant process settings.
type SupplicantConfig struct {
	Binary        string        `yaml:"binary"`
	CLIBinary     string        `yaml:"cli_binary"`
	ConfigPath    string        `yaml:"config_path"`
	ControlDir    string        `yaml:"control_dir"`
	Driver        string        `yaml:"driver"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	AttemptWindow time.Duration `yaml:"attempt_window"`
}

// FallbackConfig contains settings for the pairing-channel fallback loop.
type FallbackConfig struct {
	Enabled       bool          `yaml:"enabled"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	PerTryTimeout time.Duration `yaml:"per_try_timeout"`
}

// PairingConfig describes the secondary radio bridge daemon.
type PairingConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Binary          string        `yaml:"binary"`
	Args            []string      `yaml:"args"`
	GracefulTimeout time.Duration `yaml:"graceful_timeout"`
}

// NotificationConfig contains notification effect settings.
type NotificationConfig struct {
	// MinInterval is the minimum spacing between two effect runs. 0 disables pacing.
	MinInterval time.Duration `yaml:"min_interval"`

	// LEDPath is a sysfs multicolour LED directory (e.g. /sys/class/leds/rgb:status).
	// When empty the effect only logs.
	LEDPath string `yaml:"led_path"`
}

// APIConfig contains local control API settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: MOBUS_SECTION_KEY
// For example: MOBUS_DATABASE_PATH, MOBUS_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in configuration. It is what Load starts from.
func Default() *Config {
	return defaultConfig()
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:        "./data/mobus.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Port: 1883,
			},
			QoS:        1,
			KeepAlive:  30,
			QueueLimit: 64,
		},
		Link: LinkConfig{
			Interface:        "wlan0",
			MaxRetries:       5,
			CandidateTimeout: 12 * time.Second,
			Supplicant: SupplicantConfig{
				Binary:        "/usr/sbin/wpa_supplicant",
				CLIBinary:     "/usr/sbin/wpa_cli",
				ConfigPath:    "./data/wpa_supplicant.conf",
				ControlDir:    "/run/wpa_supplicant",
				Driver:        "nl80211",
				PollInterval:  time.Second,
				AttemptWindow: 15 * time.Second,
			},
		},
		Fallback: FallbackConfig{
			Enabled:       true,
			RetryInterval: 20 * time.Second,
			PerTryTimeout: 8 * time.Second,
		},
		Pairing: PairingConfig{
			GracefulTimeout: 5 * time.Second,
		},
		API: APIConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8380,
			Timeouts: APITimeoutConfig{
				Read:  10,
				Write: 10,
				Idle:  60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: MOBUS_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MOBUS_DEVICE_ID"); v != "" {
		cfg.Device.ID = v
	}

	if v := os.Getenv("MOBUS_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("MOBUS_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("MOBUS_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("MOBUS_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("MOBUS_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("MOBUS_LINK_INTERFACE"); v != "" {
		cfg.Link.Interface = v
	}

	if v := os.Getenv("MOBUS_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Broker.Port < 0 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 0 and 65535")
	}
	if c.MQTT.QueueLimit < 0 {
		errs = append(errs, "mqtt.queue_limit cannot be negative")
	}

	if c.Link.Interface == "" {
		errs = append(errs, "link.interface is required")
	}
	if c.Link.MaxRetries < 1 {
		errs = append(errs, "link.max_retries must be at least 1")
	}
	if c.Link.CandidateTimeout <= 0 {
		errs = append(errs, "link.candidate_timeout must be positive")
	}

	if c.Fallback.Enabled {
		if c.Fallback.RetryInterval <= 0 {
			errs = append(errs, "fallback.retry_interval must be positive")
		}
		if c.Fallback.PerTryTimeout <= 0 {
			errs = append(errs, "fallback.per_try_timeout must be positive")
		}
	}

	if c.Pairing.Enabled && c.Pairing.Binary == "" {
		errs = append(errs, "pairing.binary is required when pairing is enabled")
	}

	if c.Notification.MinInterval < 0 {
		errs = append(errs, "notification.min_interval cannot be negative")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
