package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Database.MaxBackups != 7 {
		t.Errorf("Expected MaxBackups=7, got %d", cfg.Database.MaxBackups)
	}
	if cfg.Database.BackupInterval != 24*time.Hour {
		t.Errorf("Expected BackupInterval=24h, got %v", cfg.Database.BackupInterval)
	}
	if !cfg.Database.AutoMigrate {
		t.Error("Expected AutoMigrate=true")
	}

	if cfg.Vector.Dimensions != 1024 {
		t.Errorf("Expected Vector.Dimensions=1024, got %d", cfg.Vector.Dimensions)
	}

	if !cfg.Health.Enabled {
		t.Error("Expected Health.Enabled=true")
	}
	if cfg.Health.Port != 23810 {
		t.Errorf("Expected Health.Port=23810, got %d", cfg.Health.Port)
	}

	if cfg.Embedder.Port != 23811 {
		t.Errorf("Expected Embedder.Port=23811, got %d", cfg.Embedder.Port)
	}
	if cfg.Structurer.Port != 23812 {
		t.Errorf("Expected Structurer.Port=23812, got %d", cfg.Structurer.Port)
	}

	if cfg.Curator.MaturityCount != 5 {
		t.Errorf("Expected Curator.MaturityCount=5, got %d", cfg.Curator.MaturityCount)
	}

	if !cfg.RateLimit.Enabled {
		t.Error("Expected RateLimit.Enabled=true")
	}

	if !cfg.Session.AutoGenerate {
		t.Error("Expected Session.AutoGenerate=true")
	}
	if cfg.Session.Strategy != "git-directory" {
		t.Errorf("Expected Strategy=git-directory, got %s", cfg.Session.Strategy)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		modify    func(*Config)
		expectErr bool
	}{
		{
			name:      "valid config",
			modify:    func(c *Config) {},
			expectErr: false,
		},
		{
			name: "empty database path",
			modify: func(c *Config) {
				c.Database.Path = ""
			},
			expectErr: true,
		},
		{
			name: "negative max backups",
			modify: func(c *Config) {
				c.Database.MaxBackups = -1
			},
			expectErr: true,
		},
		{
			name: "non-positive vector dimensions",
			modify: func(c *Config) {
				c.Vector.Dimensions = 0
			},
			expectErr: true,
		},
		{
			name: "invalid health port",
			modify: func(c *Config) {
				c.Health.Port = 99999
			},
			expectErr: true,
		},
		{
			name: "invalid session strategy",
			modify: func(c *Config) {
				c.Session.Strategy = "invalid"
			},
			expectErr: true,
		},
		{
			name: "invalid logging level",
			modify: func(c *Config) {
				c.Logging.Level = "invalid"
			},
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.expectErr && err == nil {
				t.Error("Expected error, got nil")
			}
			if !tt.expectErr && err != nil {
				t.Errorf("Expected no error, got: %v", err)
			}
		})
	}
}

func TestLoadConfig_NoFile(t *testing.T) {
	tmpDir := t.TempDir()
	oldWd, _ := os.Getwd()
	defer os.Chdir(oldWd) //nolint:errcheck
	_ = os.Chdir(tmpDir)

	oldHome := os.Getenv("HOME")
	os.Setenv("HOME", tmpDir)
	defer os.Setenv("HOME", oldHome)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Expected no error with missing config, got: %v", err)
	}

	if cfg == nil {
		t.Fatal("Expected config, got nil")
	}

	if cfg.Health.Port != 23810 {
		t.Errorf("Expected default health port 23810, got %d", cfg.Health.Port)
	}
}

func TestLoadConfig_WithFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
profile: test
database:
  path: /tmp/test.db
  backup_interval: 12h
  max_backups: 3
  auto_migrate: false
health:
  enabled: true
  port: 4000
  host: 127.0.0.1
session:
  auto_generate: false
  strategy: manual
logging:
  level: debug
  format: json
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	oldWd, _ := os.Getwd()
	defer os.Chdir(oldWd) //nolint:errcheck
	_ = os.Chdir(tmpDir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Profile != "test" {
		t.Errorf("Expected profile=test, got %s", cfg.Profile)
	}
	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Expected database path=/tmp/test.db, got %s", cfg.Database.Path)
	}
	if cfg.Database.MaxBackups != 3 {
		t.Errorf("Expected max_backups=3, got %d", cfg.Database.MaxBackups)
	}
	if cfg.Health.Port != 4000 {
		t.Errorf("Expected health.port=4000, got %d", cfg.Health.Port)
	}
	if cfg.Session.Strategy != "manual" {
		t.Errorf("Expected strategy=manual, got %s", cfg.Session.Strategy)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Expected level=debug, got %s", cfg.Logging.Level)
	}
}

func TestEnsureConfigDir(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := &Config{
		Database: DatabaseConfig{
			Path: filepath.Join(tmpDir, "subdir", "test.db"),
		},
	}

	if err := cfg.EnsureConfigDir(); err != nil {
		t.Fatalf("EnsureConfigDir failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(tmpDir, "subdir")); os.IsNotExist(err) {
		t.Error("Config directory was not created")
	}
}

func TestConfigPath(t *testing.T) {
	path := ConfigPath()
	if path == "" {
		t.Error("ConfigPath returned empty string")
	}

	homeDir, _ := os.UserHomeDir()
	expected := filepath.Join(homeDir, ".mycelicmemory")
	if path != expected {
		t.Errorf("Expected %s, got %s", expected, path)
	}
}

func TestDatabasePath(t *testing.T) {
	path := DatabasePath()
	if path == "" {
		t.Error("DatabasePath returned empty string")
	}

	if filepath.Base(path) != "memories.db" {
		t.Errorf("Expected database file named memories.db, got %s", filepath.Base(path))
	}
}

func TestEngineConfig(t *testing.T) {
	cfg := DefaultConfig()
	ec := cfg.EngineConfig()

	if ec.DatabasePath != cfg.Database.Path {
		t.Errorf("expected DatabasePath=%s, got %s", cfg.Database.Path, ec.DatabasePath)
	}
	if ec.VectorConfig.Dimensions != cfg.Vector.Dimensions {
		t.Errorf("expected VectorConfig.Dimensions=%d, got %d", cfg.Vector.Dimensions, ec.VectorConfig.Dimensions)
	}
	if ec.EmbedderConfig.Port != cfg.Embedder.Port {
		t.Errorf("expected EmbedderConfig.Port=%d, got %d", cfg.Embedder.Port, ec.EmbedderConfig.Port)
	}
	if ec.StructurerConfig.Port != cfg.Structurer.Port {
		t.Errorf("expected StructurerConfig.Port=%d, got %d", cfg.Structurer.Port, ec.StructurerConfig.Port)
	}
}
