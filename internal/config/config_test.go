package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// TestLoad tests the Load function with various scenarios
func TestLoad(t *testing.T) {
	tests := []struct {
		name        string
		env         map[string]string
		file        string
		wantErr     bool
		validateCfg func(*testing.T, *Config)
	}{
		{
			name: "defaults",
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
				assert.Equal(t, DefaultDatasetFile, cfg.Dataset.Path)
				assert.Equal(t, 6, cfg.Dataset.IdentifierWidth)
				assert.Equal(t, 2000, cfg.Dataset.PeriodMin)
				assert.Equal(t, 2100, cfg.Dataset.PeriodMax)
				assert.Equal(t, "行业平均指数", cfg.Dataset.GroupAverageLabel)
				assert.False(t, cfg.Dataset.Mapping.Enabled())
				assert.Equal(t, "股票代码全称", cfg.Merge.SecondaryIdentifier)
				assert.Equal(t, "json", cfg.Logging.Format)
			},
		},
		{
			name: "yaml file overrides defaults",
			file: `
server:
  port: 9000
dataset:
  path: data/index.xlsx
  identifier_width: 0
  mapping:
    identifier: code
    period: yr
    metric: score
logging:
  level: DEBUG
`,
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 9000, cfg.Server.Port)
				assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout, "unset keys keep defaults")
				assert.Equal(t, "data/index.xlsx", cfg.Dataset.Path)
				assert.Equal(t, 0, cfg.Dataset.IdentifierWidth)
				assert.Equal(t, MappingConfig{Identifier: "code", Period: "yr", Metric: "score"}, cfg.Dataset.Mapping)
				assert.Equal(t, "debug", cfg.Logging.Level)
			},
		},
		{
			name: "environment overrides file",
			env: map[string]string{
				"DTI_SERVER_PORT":                "9100",
				"DTI_DATASET_FILE":               "/srv/index.csv",
				"DTI_DATASET_MAPPING_METRIC":     "指数",
				"DTI_DATASET_MAPPING_PERIOD":     "年份",
				"DTI_DATASET_MAPPING_IDENTIFIER": "代码",
			},
			file: "server:\n  port: 9000\n",
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 9100, cfg.Server.Port)
				assert.Equal(t, "/srv/index.csv", cfg.Dataset.Path)
				assert.Equal(t, "指数", cfg.Dataset.Mapping.Metric)
			},
		},
		{
			name:    "partial mapping is rejected",
			file:    "dataset:\n  mapping:\n    metric: score\n",
			wantErr: true,
		},
		{
			name:    "invalid port",
			env:     map[string]string{"DTI_SERVER_PORT": "70000"},
			wantErr: true,
		},
		{
			name:    "malformed yaml",
			file:    "server: [",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := ""
			if tt.file != "" {
				path = writeConfig(t, tt.file)
			}

			cfg, err := Load(path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.validateCfg(t, cfg)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default is valid", func(*Config) {}, false},
		{"text format", func(c *Config) { c.Logging.Format = "TEXT" }, false},
		{"unknown format", func(c *Config) { c.Logging.Format = "xml" }, true},
		{"unknown level", func(c *Config) { c.Logging.Level = "loud" }, true},
		{"file output without path", func(c *Config) { c.Logging.Output = "file"; c.Logging.FilePath = "" }, true},
		{"empty dataset path", func(c *Config) { c.Dataset.Path = "" }, true},
		{"negative width", func(c *Config) { c.Dataset.IdentifierWidth = -1 }, true},
		{"inverted period bounds", func(c *Config) { c.Dataset.PeriodMin = 2100; c.Dataset.PeriodMax = 2000 }, true},
		{"cors without origins", func(c *Config) { c.Security.AllowedOrigins = nil }, true},
		{"bad sample ratio", func(c *Config) { c.Telemetry.SampleRatio = 2 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAddr(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "127.0.0.1:8080", cfg.Addr())
}
