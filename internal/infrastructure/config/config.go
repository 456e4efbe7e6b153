package config

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Fleet Relay.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Bot       BotConfig       `yaml:"bot"`
	Storage   StorageConfig   `yaml:"storage"`
	Files     FilesConfig     `yaml:"files"`
	Relay     RelayConfig     `yaml:"relay"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
}

// BotConfig contains chat platform settings.
type BotConfig struct {
	Token         string `yaml:"token"`
	AdminID       string `yaml:"admin_id"`
	APIURL        string `yaml:"api_url"`
	WebhookURL    string `yaml:"webhook_url"`
	WebhookSecret string `yaml:"webhook_secret"`
	// RateLimit is the number of messages a single user may send per minute.
	// Zero disables limiting.
	RateLimit int `yaml:"rate_limit"`
}

// StorageConfig contains the location of the JSON registry files.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// FilesConfig controls the file access layer.
type FilesConfig struct {
	Root             string `yaml:"root"`
	MaxFileSize      int64  `yaml:"max_file_size"`
	MaxSearchResults int    `yaml:"max_search_results"`
	EnableDownload   bool   `yaml:"enable_download"`
	EnableDelete     bool   `yaml:"enable_delete"`
}

// RelayConfig points at the companion server that executes device commands.
// An empty URL disables relaying; commands are then only queued.
type RelayConfig struct {
	URL     string `yaml:"url"`
	Timeout int    `yaml:"timeout"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
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

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
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

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains device token settings. Device tokens are only issued
// and enforced when Secret is set.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	DeviceTokenTTL int    `yaml:"device_token_ttl"` // hours
}

const (
	minJWTSecretLength = 32
	defaultMaxFileSize = 50 * 1024 * 1024
)

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// A missing file is not an error: the relay is commonly deployed with
// environment variables only. Environment variables follow the pattern
// FLEETRELAY_SECTION_KEY, for example FLEETRELAY_BOT_TOKEN or FLEETRELAY_API_PORT.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// defaults + env only
	case err != nil:
		return nil, fmt.Errorf("reading config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Bot: BotConfig{
			APIURL:    "https://api.telegram.org",
			RateLimit: 10,
		},
		Storage: StorageConfig{
			Path: "/tmp/bot_storage",
		},
		Files: FilesConfig{
			Root:             "./data/files",
			MaxFileSize:      defaultMaxFileSize,
			MaxSearchResults: 100,
			EnableDownload:   true,
			EnableDelete:     false,
		},
		Relay: RelayConfig{
			Timeout: 30,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Database: DatabaseConfig{
			Enabled:     true,
			Path:        "./data/fleetrelay.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "fleetrelay",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				DeviceTokenTTL: 24 * 30,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	// Bot
	if v := os.Getenv("FLEETRELAY_BOT_TOKEN"); v != "" {
		cfg.Bot.Token = v
	}
	if v := os.Getenv("FLEETRELAY_ADMIN_ID"); v != "" {
		cfg.Bot.AdminID = v
	}
	if v := os.Getenv("FLEETRELAY_WEBHOOK_URL"); v != "" {
		cfg.Bot.WebhookURL = v
	}
	if v := os.Getenv("FLEETRELAY_WEBHOOK_SECRET"); v != "" {
		cfg.Bot.WebhookSecret = v
	}
	if v, ok := envInt("FLEETRELAY_RATE_LIMIT"); ok {
		cfg.Bot.RateLimit = v
	}

	// Storage and files
	if v := os.Getenv("FLEETRELAY_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("FLEETRELAY_FILES_ROOT"); v != "" {
		cfg.Files.Root = v
	}
	if v, ok := envInt("FLEETRELAY_MAX_FILE_SIZE"); ok {
		cfg.Files.MaxFileSize = int64(v)
	}
	if v, ok := envBool("FLEETRELAY_ENABLE_FILE_DOWNLOAD"); ok {
		cfg.Files.EnableDownload = v
	}
	if v, ok := envBool("FLEETRELAY_ENABLE_FILE_DELETE"); ok {
		cfg.Files.EnableDelete = v
	}

	// Relay
	if v := os.Getenv("FLEETRELAY_RELAY_URL"); v != "" {
		cfg.Relay.URL = v
	}

	// API
	if v := os.Getenv("FLEETRELAY_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v, ok := envInt("FLEETRELAY_API_PORT"); ok {
		cfg.API.Port = v
	}

	// Database
	if v := os.Getenv("FLEETRELAY_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("FLEETRELAY_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("FLEETRELAY_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("FLEETRELAY_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("FLEETRELAY_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Security
	if v := os.Getenv("FLEETRELAY_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envBool(key string) (bool, bool) {
	v := os.Getenv(key)
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}

// Validate checks the configuration for errors and security issues.
//
// A missing bot token is not an error: the relay still serves the device
// endpoints and reports bot_token_set=false on /health.
func (c *Config) Validate() error {
	var errs []string

	if c.Bot.AdminID == "" {
		errs = append(errs, "bot.admin_id is required (set FLEETRELAY_ADMIN_ID environment variable)")
	}
	if c.Bot.RateLimit < 0 {
		errs = append(errs, "bot.rate_limit must not be negative")
	}

	if c.Storage.Path == "" {
		errs = append(errs, "storage.path is required")
	}

	if c.Files.Root == "" {
		errs = append(errs, "files.root is required")
	}
	if c.Files.MaxFileSize <= 0 {
		errs = append(errs, "files.max_file_size must be positive")
	}
	if c.Files.MaxSearchResults <= 0 {
		errs = append(errs, "files.max_search_results must be positive")
	}

	if c.Relay.Timeout <= 0 {
		errs = append(errs, "relay.timeout must be positive")
	}

	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when the database is enabled")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	// Device tokens are optional, but a short secret would make them forgeable.
	if s := c.Security.JWT.Secret; s != "" && len(s) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters for adequate security")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// BotTokenHash returns the hex SHA-256 of the bot token so it can be logged
// for identification without exposing the token itself. Empty when unset.
func (c *Config) BotTokenHash() string {
	if c.Bot.Token == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(c.Bot.Token))
	return hex.EncodeToString(sum[:])
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

// GetRelayTimeout returns the companion server request timeout as a Duration.
func (c *Config) GetRelayTimeout() time.Duration {
	return time.Duration(c.Relay.Timeout) * time.Second
}

// GetDeviceTokenTTL returns the lifetime of issued device tokens.
func (c *Config) GetDeviceTokenTTL() time.Duration {
	return time.Duration(c.Security.JWT.DeviceTokenTTL) * time.Hour
}
