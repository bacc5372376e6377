// Package config handles configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	// Server configuration
	Host string `envconfig:"DD_HOST" yaml:"host"`
	Port int    `envconfig:"DD_PORT" yaml:"port"`

	// gRPC health port, 0 disables the gRPC listener
	GRPCPort int `envconfig:"DD_GRPC_PORT" yaml:"grpc_port"`

	// Output connector defaults
	Output OutputConfig `yaml:"output"`

	// Similarity index configuration
	Index IndexConfig `yaml:"index"`

	// Qdrant configuration
	Qdrant QdrantConfig `yaml:"qdrant"`

	// Measure history configuration
	History HistoryConfig `yaml:"history"`

	// Bus configuration
	Bus BusConfig `yaml:"bus"`

	// Logging configuration
	Log LogConfig `yaml:"log"`

	// Security configuration
	Security SecurityConfig `yaml:"security"`

	// Observability configuration
	Observability ObservabilityConfig `yaml:"observability"`
}

// OutputConfig holds the supervised output defaults.
type OutputConfig struct {
	Best        int `envconfig:"DD_OUTPUT_BEST" yaml:"best"`
	SearchNN    int `envconfig:"DD_OUTPUT_SEARCH_NN" yaml:"search_nn"`         // 0 = use best
	ROISearchNN int `envconfig:"DD_OUTPUT_ROI_SEARCH_NN" yaml:"roi_search_nn"` // default for roi searches
}

// IndexConfig holds similarity index settings.
type IndexConfig struct {
	Engine     string `envconfig:"DD_INDEX_ENGINE" yaml:"engine"` // memory or qdrant
	Collection string `envconfig:"DD_INDEX_COLLECTION" yaml:"collection"`
	BatchSize  int    `envconfig:"DD_INDEX_BATCH_SIZE" yaml:"batch_size"`
}

// QdrantConfig holds Qdrant connection settings.
type QdrantConfig struct {
	Host             string        `envconfig:"QDRANT_HOST" yaml:"host"`
	Port             int           `envconfig:"QDRANT_PORT" yaml:"port"`
	APIKey           string        `envconfig:"QDRANT_API_KEY" yaml:"api_key"`
	UseTLS           bool          `envconfig:"QDRANT_USE_TLS" yaml:"use_tls"`
	CollectionPrefix string        `envconfig:"QDRANT_COLLECTION_PREFIX" yaml:"collection_prefix"`
	Timeout          time.Duration `envconfig:"QDRANT_TIMEOUT" yaml:"timeout"`
}

// HistoryConfig holds Redis-backed measure history settings.
type HistoryConfig struct {
	Enabled  bool   `envconfig:"DD_HISTORY_ENABLED" yaml:"enabled"`
	RedisURL string `envconfig:"DD_REDIS_URL" yaml:"redis_url"`
	TTLHours int    `envconfig:"DD_HISTORY_TTL_HOURS" yaml:"ttl_hours"`
}

// BusConfig holds event bus settings.
type BusConfig struct {
	Type         string `envconfig:"DD_BUS_TYPE" yaml:"type"`
	KafkaBrokers string `envconfig:"DD_KAFKA_BROKERS" yaml:"kafka_brokers"`
	KafkaGroup   string `envconfig:"DD_KAFKA_GROUP" yaml:"kafka_group"`
	JournalPath  string `envconfig:"DD_BUS_JOURNAL" yaml:"journal_path"` // empty = no event journal
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `envconfig:"DD_LOG_LEVEL" yaml:"level"`
	Format string `envconfig:"DD_LOG_FORMAT" yaml:"format"`
	File   string `envconfig:"DD_LOG_FILE" yaml:"file"`
}

// SecurityConfig holds security settings.
type SecurityConfig struct {
	RateLimit int `envconfig:"DD_RATE_LIMIT" yaml:"rate_limit"` // 0 = disabled
	Burst     int `envconfig:"DD_RATE_BURST" yaml:"burst"`
}

// ObservabilityConfig holds observability settings.
type ObservabilityConfig struct {
	MetricsEnabled bool   `envconfig:"DD_METRICS_ENABLED" yaml:"metrics_enabled"`
	MetricsPath    string `envconfig:"DD_METRICS_PATH" yaml:"metrics_path"`
}

// Load loads configuration from environment variables and optional config file.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	setDefaults(cfg)

	// YAML overrides defaults
	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	// Environment has the highest priority
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("processing env config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables only.
func LoadFromEnv() (*Config, error) {
	return Load("")
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

func setDefaults(cfg *Config) {
	cfg.Host = "0.0.0.0"
	cfg.Port = 8080

	cfg.Output = OutputConfig{
		Best:        1,
		ROISearchNN: 10,
	}

	cfg.Index = IndexConfig{
		Engine:     "memory",
		Collection: "default",
		BatchSize:  100,
	}

	cfg.Qdrant = QdrantConfig{
		Host:             "localhost",
		Port:             6334,
		CollectionPrefix: "dd_",
		Timeout:          30 * time.Second,
	}

	cfg.History = HistoryConfig{
		Enabled:  false,
		RedisURL: "redis://localhost:6379",
		TTLHours: 24 * 7,
	}

	cfg.Bus = BusConfig{
		Type: "memory",
	}

	cfg.Log = LogConfig{
		Level:  "info",
		Format: "text",
	}

	cfg.Security = SecurityConfig{
		RateLimit: 0,
		Burst:     200,
	}

	cfg.Observability = ObservabilityConfig{
		MetricsEnabled: true,
		MetricsPath:    "/metrics",
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []string

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, "port must be between 1 and 65535")
	}

	if c.GRPCPort < 0 || c.GRPCPort > 65535 || (c.GRPCPort != 0 && c.GRPCPort == c.Port) {
		errs = append(errs, "grpc_port must be 0 or a port distinct from port")
	}

	// Output validation
	if c.Output.Best < -1 || c.Output.Best == 0 {
		errs = append(errs, "output best must be -1 (all) or positive")
	}

	if c.Output.SearchNN < 0 {
		errs = append(errs, "search_nn must not be negative")
	}

	if c.Output.ROISearchNN < 1 {
		errs = append(errs, "roi_search_nn must be positive")
	}

	// Index validation
	validEngines := map[string]bool{"memory": true, "qdrant": true}
	if !validEngines[c.Index.Engine] {
		errs = append(errs, fmt.Sprintf("invalid index engine: %s (must be memory or qdrant)", c.Index.Engine))
	}

	if c.Index.Collection == "" {
		errs = append(errs, "index collection must not be empty")
	}

	if c.Index.BatchSize < 1 {
		errs = append(errs, "index batch_size must be positive")
	}

	if c.Index.Engine == "qdrant" && c.Qdrant.Host == "" {
		errs = append(errs, "qdrant host is required when index engine is qdrant")
	}

	// History validation
	if c.History.Enabled && c.History.RedisURL == "" {
		errs = append(errs, "redis_url is required when history is enabled")
	}

	// Bus validation
	validBusTypes := map[string]bool{"memory": true, "kafka": true}
	if !validBusTypes[c.Bus.Type] {
		errs = append(errs, fmt.Sprintf("invalid bus type: %s (must be memory or kafka)", c.Bus.Type))
	}

	// Log validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("invalid log level: %s (must be debug, info, warn, or error)", c.Log.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("invalid log format: %s (must be text or json)", c.Log.Format))
	}

	if c.Security.RateLimit < 0 {
		errs = append(errs, "rate_limit must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// Address returns the server address.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Log.Level == "debug"
}
