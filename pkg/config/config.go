package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/mycelicmemory/memengine/internal/curator"
	"github.com/mycelicmemory/memengine/internal/embedder"
	"github.com/mycelicmemory/memengine/internal/engine"
	"github.com/mycelicmemory/memengine/internal/ratelimit"
	"github.com/mycelicmemory/memengine/internal/structurer"
	"github.com/mycelicmemory/memengine/internal/vectorindex"
)

// Config represents the complete application configuration.
type Config struct {
	Profile    string            `mapstructure:"profile"`
	Database   DatabaseConfig    `mapstructure:"database"`
	Vector     VectorConfig      `mapstructure:"vector"`
	Embedder   EmbedderConfig    `mapstructure:"embedder"`
	Structurer StructurerConfig  `mapstructure:"structurer"`
	Curator    CuratorConfig     `mapstructure:"curator"`
	RateLimit  ratelimit.Config  `mapstructure:"rate_limit"`
	Health     HealthConfig      `mapstructure:"health"`
	Setup      SetupConfig       `mapstructure:"setup"`
	License    LicenseConfig     `mapstructure:"license"`
	Session    SessionConfig     `mapstructure:"session"`
	Logging    LoggingConfig     `mapstructure:"logging"`
}

// DatabaseConfig holds the SQLite store's configuration.
type DatabaseConfig struct {
	Path           string        `mapstructure:"path"`
	BackupInterval time.Duration `mapstructure:"backup_interval"`
	MaxBackups     int           `mapstructure:"max_backups"`
	AutoMigrate    bool          `mapstructure:"auto_migrate"`
}

// VectorConfig holds the embedded HNSW vector index's configuration.
type VectorConfig struct {
	Path       string `mapstructure:"path"`
	Dimensions int    `mapstructure:"dimensions"`
	M          int    `mapstructure:"m"`
	EfSearch   int    `mapstructure:"ef_search"`
}

// EmbedderConfig addresses the Embedder gateway process.
type EmbedderConfig struct {
	Disabled     bool          `mapstructure:"disabled"`
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	EmbedTimeout time.Duration `mapstructure:"embed_timeout"`
}

// StructurerConfig addresses the Structurer gateway process.
type StructurerConfig struct {
	Disabled           bool          `mapstructure:"disabled"`
	Host               string        `mapstructure:"host"`
	Port               int           `mapstructure:"port"`
	DialTimeout        time.Duration `mapstructure:"dial_timeout"`
	DefaultTimeout      time.Duration `mapstructure:"default_timeout"`
	StructurizeTimeout time.Duration `mapstructure:"structurize_timeout"`
	MergeTimeout       time.Duration `mapstructure:"merge_timeout"`
	AnalyzeTimeout     time.Duration `mapstructure:"analyze_timeout"`
}

// CuratorConfig holds the Curator's dedup/cluster-join thresholds.
type CuratorConfig struct {
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
	MaturityCount       int     `mapstructure:"maturity_count"`
	MaturityConfidence  float64 `mapstructure:"maturity_confidence"`
}

// HealthConfig holds the daemon's loopback health-endpoint configuration.
type HealthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
}

// SetupConfig holds setup wizard configuration.
type SetupConfig struct {
	FirstRun    bool `mapstructure:"first_run"`
	WizardShown bool `mapstructure:"wizard_shown"`
}

// LicenseConfig holds license and terms configuration.
type LicenseConfig struct {
	Required       bool        `mapstructure:"required"`
	CheckOnStartup bool        `mapstructure:"check_on_startup"`
	Terms          TermsConfig `mapstructure:"terms"`
}

// TermsConfig holds terms of service configuration.
type TermsConfig struct {
	Required bool   `mapstructure:"required"`
	Source   string `mapstructure:"source"`
}

// SessionConfig holds session management configuration.
// Strategies: "git-directory", "manual", or "hash".
type SessionConfig struct {
	AutoGenerate bool   `mapstructure:"auto_generate"`
	Strategy     string `mapstructure:"strategy"`
	ManualID     string `mapstructure:"manual_id"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // console, json
}

// DefaultConfig returns configuration with the documented default values.
func DefaultConfig() *Config {
	configDir := ConfigPath()

	return &Config{
		Profile: "default",
		Database: DatabaseConfig{
			Path:           filepath.Join(configDir, "memories.db"),
			BackupInterval: 24 * time.Hour,
			MaxBackups:     7,
			AutoMigrate:    true,
		},
		Vector: VectorConfig{
			Path:       filepath.Join(configDir, "vectors.gob"),
			Dimensions: 1024,
			M:          16,
			EfSearch:   64,
		},
		Embedder: EmbedderConfig{
			Host:         "127.0.0.1",
			Port:         23811,
			DialTimeout:  2 * time.Second,
			EmbedTimeout: 10 * time.Second,
		},
		Structurer: StructurerConfig{
			Host:               "127.0.0.1",
			Port:               23812,
			DialTimeout:        2 * time.Second,
			DefaultTimeout:     5 * time.Second,
			StructurizeTimeout: 10 * time.Second,
			MergeTimeout:       10 * time.Second,
			AnalyzeTimeout:     20 * time.Second,
		},
		Curator: CuratorConfig{
			SimilarityThreshold: curator.ClusterSimThreshold,
			MaturityCount:       5,
			MaturityConfidence:  0.65,
		},
		RateLimit: *ratelimit.DefaultConfig(),
		Health: HealthConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    23810,
		},
		Setup: SetupConfig{
			FirstRun:    true,
			WizardShown: false,
		},
		License: LicenseConfig{
			Required:       false,
			CheckOnStartup: false,
			Terms: TermsConfig{
				Required: false,
				Source:   "embedded",
			},
		},
		Session: SessionConfig{
			AutoGenerate: true,
			Strategy:     "git-directory",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from YAML file with fallback to defaults.
// Searches in multiple locations:
//  1. ./config.yaml (current directory)
//  2. ~/.mycelicmemory/config.yaml (user home)
//  3. /etc/mycelicmemory/config.yaml (system-wide)
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath(".")
	homeDir, _ := os.UserHomeDir()
	v.AddConfigPath(filepath.Join(homeDir, ".mycelicmemory"))
	v.AddConfigPath("/etc/mycelicmemory")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setDefaults seeds Viper with the same values DefaultConfig returns,
// so a partial config.yaml only overrides what it names.
func setDefaults(v *viper.Viper) {
	def := DefaultConfig()

	v.SetDefault("profile", def.Profile)

	v.SetDefault("database.path", def.Database.Path)
	v.SetDefault("database.backup_interval", def.Database.BackupInterval)
	v.SetDefault("database.max_backups", def.Database.MaxBackups)
	v.SetDefault("database.auto_migrate", def.Database.AutoMigrate)

	v.SetDefault("vector.path", def.Vector.Path)
	v.SetDefault("vector.dimensions", def.Vector.Dimensions)
	v.SetDefault("vector.m", def.Vector.M)
	v.SetDefault("vector.ef_search", def.Vector.EfSearch)

	v.SetDefault("embedder.host", def.Embedder.Host)
	v.SetDefault("embedder.port", def.Embedder.Port)
	v.SetDefault("embedder.dial_timeout", def.Embedder.DialTimeout)
	v.SetDefault("embedder.embed_timeout", def.Embedder.EmbedTimeout)

	v.SetDefault("structurer.host", def.Structurer.Host)
	v.SetDefault("structurer.port", def.Structurer.Port)
	v.SetDefault("structurer.dial_timeout", def.Structurer.DialTimeout)
	v.SetDefault("structurer.default_timeout", def.Structurer.DefaultTimeout)
	v.SetDefault("structurer.structurize_timeout", def.Structurer.StructurizeTimeout)
	v.SetDefault("structurer.merge_timeout", def.Structurer.MergeTimeout)
	v.SetDefault("structurer.analyze_timeout", def.Structurer.AnalyzeTimeout)

	v.SetDefault("curator.similarity_threshold", def.Curator.SimilarityThreshold)
	v.SetDefault("curator.maturity_count", def.Curator.MaturityCount)
	v.SetDefault("curator.maturity_confidence", def.Curator.MaturityConfidence)

	v.SetDefault("rate_limit.enabled", def.RateLimit.Enabled)
	v.SetDefault("rate_limit.global.requests_per_second", def.RateLimit.Global.RequestsPerSecond)
	v.SetDefault("rate_limit.global.burst_size", def.RateLimit.Global.BurstSize)

	v.SetDefault("health.enabled", def.Health.Enabled)
	v.SetDefault("health.host", def.Health.Host)
	v.SetDefault("health.port", def.Health.Port)

	v.SetDefault("session.auto_generate", def.Session.AutoGenerate)
	v.SetDefault("session.strategy", def.Session.Strategy)

	v.SetDefault("logging.level", def.Logging.Level)
	v.SetDefault("logging.format", def.Logging.Format)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Database.MaxBackups < 0 {
		return fmt.Errorf("database.max_backups must be >= 0")
	}

	if c.Vector.Dimensions <= 0 {
		return fmt.Errorf("vector.dimensions must be > 0")
	}

	if c.Health.Enabled {
		if c.Health.Port < 1 || c.Health.Port > 65535 {
			return fmt.Errorf("health.port must be between 1 and 65535")
		}
		if c.Health.Host == "" {
			return fmt.Errorf("health.host is required when the health endpoint is enabled")
		}
	}

	if c.Session.Strategy != "git-directory" && c.Session.Strategy != "manual" && c.Session.Strategy != "hash" {
		return fmt.Errorf("session.strategy must be 'git-directory', 'manual' or 'hash'")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}

	validFormats := map[string]bool{"console": true, "json": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: console, json")
	}

	return nil
}

// EnsureConfigDir creates the configuration directory if it doesn't exist.
func (c *Config) EnsureConfigDir() error {
	configDir := filepath.Dir(c.Database.Path)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return nil
}

// EngineConfig translates the loaded configuration into the engine's
// composition parameters.
func (c *Config) EngineConfig() engine.Config {
	return engine.Config{
		DatabasePath: c.Database.Path,
		VectorPath:   c.Vector.Path,
		VectorConfig: vectorindex.Config{
			Dimensions: c.Vector.Dimensions,
			M:          c.Vector.M,
			EfSearch:   c.Vector.EfSearch,
		},
		EmbedderConfig: embedder.Config{
			Host:         c.Embedder.Host,
			Port:         c.Embedder.Port,
			Dimensions:   c.Vector.Dimensions,
			DialTimeout:  c.Embedder.DialTimeout,
			EmbedTimeout: c.Embedder.EmbedTimeout,
		},
		StructurerConfig: structurer.Config{
			Host:               c.Structurer.Host,
			Port:               c.Structurer.Port,
			DialTimeout:        c.Structurer.DialTimeout,
			DefaultTimeout:     c.Structurer.DefaultTimeout,
			StructurizeTimeout: c.Structurer.StructurizeTimeout,
			MergeTimeout:       c.Structurer.MergeTimeout,
			AnalyzeTimeout:     c.Structurer.AnalyzeTimeout,
		},
		CuratorConfig: curator.Config{
			SimilarityThreshold: c.Curator.SimilarityThreshold,
			MaturityCount:       c.Curator.MaturityCount,
			MaturityConfidence:  c.Curator.MaturityConfidence,
		},
		DisableEmbedder:   c.Embedder.Disabled,
		DisableStructurer: c.Structurer.Disabled,
	}
}

// ConfigPath returns the path to the configuration directory.
func ConfigPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".mycelicmemory")
}

// DatabasePath returns the default database path.
func DatabasePath() string {
	return filepath.Join(ConfigPath(), "memories.db")
}
