package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("DD_PORT", "9090")
	t.Setenv("DD_LOG_LEVEL", "debug")
	t.Setenv("DD_OUTPUT_BEST", "-1")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}

	if cfg.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Port)
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %s, want debug", cfg.Log.Level)
	}

	if cfg.Output.Best != -1 {
		t.Errorf("Output.Best = %d, want -1", cfg.Output.Best)
	}

	if !cfg.IsDevelopment() {
		t.Error("IsDevelopment() = false with debug level")
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
host: "127.0.0.1"
port: 8888
log:
  level: warn
  format: json
output:
  best: 3
  roi_search_nn: 5
index:
  engine: qdrant
  collection: faces
qdrant:
  host: qdrant.internal
  timeout: 5s
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Address() != "127.0.0.1:8888" {
		t.Errorf("Address() = %s, want 127.0.0.1:8888", cfg.Address())
	}

	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %s, want json", cfg.Log.Format)
	}

	if cfg.Output.Best != 3 || cfg.Output.ROISearchNN != 5 {
		t.Errorf("Output = %+v, want best 3 roi_search_nn 5", cfg.Output)
	}

	if cfg.Index.Engine != "qdrant" || cfg.Index.Collection != "faces" {
		t.Errorf("Index = %+v", cfg.Index)
	}

	if cfg.Qdrant.Host != "qdrant.internal" {
		t.Errorf("Qdrant.Host = %s, want qdrant.internal", cfg.Qdrant.Host)
	}

	if cfg.Qdrant.Timeout != 5*time.Second {
		t.Errorf("Qdrant.Timeout = %v, want 5s", cfg.Qdrant.Timeout)
	}

	// Untouched sections keep their defaults
	if cfg.Index.BatchSize != 100 {
		t.Errorf("Index.BatchSize = %d, want 100", cfg.Index.BatchSize)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("port: 7000\n"), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	t.Setenv("DD_PORT", "7100")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != 7100 {
		t.Errorf("Port = %d, want 7100", cfg.Port)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Load() expected error for missing file")
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid defaults",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name: "invalid port",
			modify: func(c *Config) {
				c.Port = 0
			},
			wantErr: true,
		},
		{
			name: "best zero",
			modify: func(c *Config) {
				c.Output.Best = 0
			},
			wantErr: true,
		},
		{
			name: "best all",
			modify: func(c *Config) {
				c.Output.Best = -1
			},
			wantErr: false,
		},
		{
			name: "negative search_nn",
			modify: func(c *Config) {
				c.Output.SearchNN = -2
			},
			wantErr: true,
		},
		{
			name: "invalid index engine",
			modify: func(c *Config) {
				c.Index.Engine = "faiss"
			},
			wantErr: true,
		},
		{
			name: "qdrant without host",
			modify: func(c *Config) {
				c.Index.Engine = "qdrant"
				c.Qdrant.Host = ""
			},
			wantErr: true,
		},
		{
			name: "history without redis",
			modify: func(c *Config) {
				c.History.Enabled = true
				c.History.RedisURL = ""
			},
			wantErr: true,
		},
		{
			name: "invalid log level",
			modify: func(c *Config) {
				c.Log.Level = "invalid"
			},
			wantErr: true,
		},
		{
			name: "invalid bus type",
			modify: func(c *Config) {
				c.Bus.Type = "nats"
			},
			wantErr: true,
		},
		{
			name: "negative rate limit",
			modify: func(c *Config) {
				c.Security.RateLimit = -1
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			setDefaults(cfg)
			tt.modify(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidation_CollectsAllErrors(t *testing.T) {
	cfg := &Config{}
	setDefaults(cfg)
	cfg.Port = -1
	cfg.Log.Format = "xml"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "port") || !strings.Contains(msg, "log format") {
		t.Errorf("error should list every problem, got: %s", msg)
	}
}
