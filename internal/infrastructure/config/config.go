package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Slotline.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Service   ServiceConfig   `yaml:"service"`
	Resolver  ResolverConfig  `yaml:"resolver"`
	Directory DirectoryConfig `yaml:"directory"`
	Query     QueryConfig     `yaml:"query"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServiceConfig contains service identity information.
type ServiceConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// ResolverConfig contains resolver core settings.
type ResolverConfig struct {
	// SlotCount is the number of hardware slots features are scoped to.
	SlotCount int `yaml:"slot_count"`

	// DeviceDefaultPackage is the fallback provider for slots and features
	// not claimed by a per-slot override. May be empty (no fallback).
	DeviceDefaultPackage string `yaml:"device_default_package"`

	// PermissionMarker is the protection marker a provider's remote interface
	// must declare before the candidate is admitted to the catalog.
	PermissionMarker string `yaml:"permission_marker"`

	// AllowMarkerMismatch admits candidates whose declared marker does not
	// match PermissionMarker. Test deployments only.
	AllowMarkerMismatch bool `yaml:"allow_marker_mismatch"`

	// Backoff tunes the per-provider reconnection schedule.
	Backoff BackoffConfig `yaml:"backoff"`
}

// BackoffConfig contains reconnection backoff settings (seconds).
type BackoffConfig struct {
	InitialDelay int     `yaml:"initial_delay"`
	Multiplier   float64 `yaml:"multiplier"`
	MaxDelay     int     `yaml:"max_delay"`
}

// DirectoryConfig contains provider directory settings.
type DirectoryConfig struct {
	// Path is the YAML file listing installed provider descriptors.
	Path string `yaml:"path"`
}

// QueryConfig contains capability-query settings (seconds).
type QueryConfig struct {
	Timeout    int `yaml:"timeout"`
	RetryDelay int `yaml:"retry_delay"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
// The broker carries package install/remove and per-slot override notifications.
type MQTTConfig struct {
	Enabled bool             `yaml:"enabled"`
	Broker  MQTTBrokerConfig `yaml:"broker"`
	Auth    MQTTAuthConfig   `yaml:"auth"`
	QoS     int              `yaml:"qos"`
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

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
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

// WebSocketConfig contains WebSocket event-stream settings.
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

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: SLOTLINE_SECTION_KEY
// For example: SLOTLINE_DATABASE_PATH, SLOTLINE_MQTT_HOST
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

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			ID:   "slotline-001",
			Name: "Slotline",
		},
		Resolver: ResolverConfig{
			SlotCount:        2,
			PermissionMarker: "slotline.permission.BIND_PROVIDER",
			Backoff: BackoffConfig{
				InitialDelay: 2,
				Multiplier:   2.0,
				MaxDelay:     60,
			},
		},
		Directory: DirectoryConfig{
			Path: "./configs/providers.yaml",
		},
		Query: QueryConfig{
			Timeout:    5,
			RetryDelay: 10,
		},
		Database: DatabaseConfig{
			Path:        "./data/slotline.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Enabled: true,
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "slotline-core",
			},
			QoS: 1,
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
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: SLOTLINE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Resolver
	if v := os.Getenv("SLOTLINE_DEVICE_DEFAULT"); v != "" {
		cfg.Resolver.DeviceDefaultPackage = v
	}
	if v := os.Getenv("SLOTLINE_SLOT_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Resolver.SlotCount = n
		}
	}

	// Directory
	if v := os.Getenv("SLOTLINE_DIRECTORY_PATH"); v != "" {
		cfg.Directory.Path = v
	}

	// Database
	if v := os.Getenv("SLOTLINE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("SLOTLINE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("SLOTLINE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("SLOTLINE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("SLOTLINE_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("SLOTLINE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// maxSlotCount bounds the slot count. Real hardware tops out at dual-SIM
// style deployments; eight leaves headroom for test rigs.
const maxSlotCount = 8

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Service.ID == "" {
		errs = append(errs, "service.id is required")
	}

	if c.Resolver.SlotCount < 1 || c.Resolver.SlotCount > maxSlotCount {
		errs = append(errs, fmt.Sprintf("resolver.slot_count must be between 1 and %d", maxSlotCount))
	}
	if c.Resolver.PermissionMarker == "" {
		errs = append(errs, "resolver.permission_marker is required")
	}
	if c.Resolver.Backoff.InitialDelay < 1 {
		errs = append(errs, "resolver.backoff.initial_delay must be at least 1 second")
	}
	if c.Resolver.Backoff.Multiplier < 1 {
		errs = append(errs, "resolver.backoff.multiplier must be >= 1")
	}
	if c.Resolver.Backoff.MaxDelay < c.Resolver.Backoff.InitialDelay {
		errs = append(errs, "resolver.backoff.max_delay must be >= initial_delay")
	}

	if c.Query.Timeout < 1 {
		errs = append(errs, "query.timeout must be at least 1 second")
	}
	if c.Query.RetryDelay < 1 {
		errs = append(errs, "query.retry_delay must be at least 1 second")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetBackoffInitialDelay returns the initial reconnect delay as a Duration.
func (c *Config) GetBackoffInitialDelay() time.Duration {
	return time.Duration(c.Resolver.Backoff.InitialDelay) * time.Second
}

// GetBackoffMaxDelay returns the reconnect delay ceiling as a Duration.
func (c *Config) GetBackoffMaxDelay() time.Duration {
	return time.Duration(c.Resolver.Backoff.MaxDelay) * time.Second
}

// GetQueryTimeout returns the capability-query timeout as a Duration.
func (c *Config) GetQueryTimeout() time.Duration {
	return time.Duration(c.Query.Timeout) * time.Second
}

// GetQueryRetryDelay returns the capability-query retry delay as a Duration.
func (c *Config) GetQueryRetryDelay() time.Duration {
	return time.Duration(c.Query.RetryDelay) * time.Second
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
