package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// EnvPrefix namespaces every environment variable, e.g. DTI_DATASET_FILE.
const EnvPrefix = "DTI"

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Security  SecurityConfig  `yaml:"security" envconfig:"SECURITY"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Dataset   DatasetConfig   `yaml:"dataset" envconfig:"DATASET"`
	Merge     MergeConfig     `yaml:"merge" envconfig:"MERGE"`
	Telemetry TelemetryConfig `yaml:"telemetry" envconfig:"TELEMETRY"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host" envconfig:"LISTEN_HOST"`
	Port            int           `yaml:"port" envconfig:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes" envconfig:"MAX_HEADER_BYTES"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
	RequestTimeout  time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT"`
}

// SecurityConfig contains security-related configuration
type SecurityConfig struct {
	AllowedOrigins []string        `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
	EnableCORS     bool            `yaml:"enable_cors" envconfig:"ENABLE_CORS"`
	RateLimit      RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED"`
	RPS     float64 `yaml:"rps" envconfig:"RPS"`
	Burst   int     `yaml:"burst" envconfig:"BURST"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL"`
	Format   string `yaml:"format" envconfig:"FORMAT"`
	Output   string `yaml:"output" envconfig:"OUTPUT"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// DatasetConfig describes the index workbook and how to read it.
type DatasetConfig struct {
	Path  string `yaml:"path" envconfig:"FILE"`
	Sheet string `yaml:"sheet" envconfig:"SHEET"`
	// IdentifierWidth is the fixed number of digits of an identifier.
	// Zero disables padding and format checks.
	IdentifierWidth   int           `yaml:"identifier_width" envconfig:"IDENTIFIER_WIDTH"`
	PeriodMin         int           `yaml:"period_min" envconfig:"PERIOD_MIN"`
	PeriodMax         int           `yaml:"period_max" envconfig:"PERIOD_MAX"`
	GroupAverageLabel string        `yaml:"group_average_label" envconfig:"GROUP_AVERAGE_LABEL"`
	Mapping           MappingConfig `yaml:"mapping" envconfig:"MAPPING"`
}

// MappingConfig is an explicit column mapping. When Identifier, Period and
// Metric are all set it replaces inference entirely.
type MappingConfig struct {
	Identifier string `yaml:"identifier" envconfig:"IDENTIFIER"`
	Period     string `yaml:"period" envconfig:"PERIOD"`
	Metric     string `yaml:"metric" envconfig:"METRIC"`
	Group      string `yaml:"group" envconfig:"GROUP"`
	GroupName  string `yaml:"group_name" envconfig:"GROUP_NAME"`
	Name       string `yaml:"name" envconfig:"NAME"`
}

// Enabled reports whether any column is mapped.
func (m MappingConfig) Enabled() bool {
	return m != MappingConfig{}
}

// MergeConfig drives the offline merge of the index workbook with the
// industry classification workbook.
type MergeConfig struct {
	PrimaryPath         string `yaml:"primary_path" envconfig:"PRIMARY_PATH"`
	SecondaryPath       string `yaml:"secondary_path" envconfig:"SECONDARY_PATH"`
	OutputPath          string `yaml:"output_path" envconfig:"OUTPUT_PATH"`
	PrimaryIdentifier   string `yaml:"primary_identifier" envconfig:"PRIMARY_IDENTIFIER"`
	PrimaryPeriod       string `yaml:"primary_period" envconfig:"PRIMARY_PERIOD"`
	SecondaryIdentifier string `yaml:"secondary_identifier" envconfig:"SECONDARY_IDENTIFIER"`
	SecondaryPeriod     string `yaml:"secondary_period" envconfig:"SECONDARY_PERIOD"`
	GroupCode           string `yaml:"group_code" envconfig:"GROUP_CODE"`
	GroupName           string `yaml:"group_name" envconfig:"GROUP_NAME"`
	// KeyWidth zero-pads numeric identifiers on both sides before joining.
	KeyWidth int `yaml:"key_width" envconfig:"KEY_WIDTH"`
}

// TelemetryConfig controls OpenTelemetry exporters.
type TelemetryConfig struct {
	Environment    string  `yaml:"environment" envconfig:"ENVIRONMENT"`
	TraceExporter  string  `yaml:"trace_exporter" envconfig:"TRACE_EXPORTER"`
	MetricExporter string  `yaml:"metric_exporter" envconfig:"METRIC_EXPORTER"`
	SampleRatio    float64 `yaml:"sample_ratio" envconfig:"SAMPLE_RATIO"`
}

// Load builds the configuration: defaults, then the YAML file (path, or the
// first config.yaml found in the usual locations when path is empty), then
// DTI_* environment variables. The result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile overlays the YAML file onto c. Keys absent from the file keep
// their current values.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

// Validate checks the configuration and normalizes enumerations.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid server port: %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, errors.New("server read timeout must be positive"))
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, errors.New("server write timeout must be positive"))
	}
	if c.Security.EnableCORS && len(c.Security.AllowedOrigins) == 0 {
		errs = append(errs, errors.New("at least one allowed origin must be specified when CORS is enabled"))
	}
	if c.Security.RateLimit.Enabled && (c.Security.RateLimit.RPS <= 0 || c.Security.RateLimit.Burst <= 0) {
		errs = append(errs, errors.New("rate limit rps and burst must be positive"))
	}

	c.Logging.Level = strings.ToLower(c.Logging.Level)
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log level %q", c.Logging.Level))
	}
	c.Logging.Format = strings.ToLower(c.Logging.Format)
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Logging.Format))
	}
	c.Logging.Output = strings.ToLower(c.Logging.Output)
	switch c.Logging.Output {
	case "console", "file", "both":
	default:
		errs = append(errs, fmt.Errorf("unknown log output %q", c.Logging.Output))
	}
	if c.Logging.Output != "console" && c.Logging.FilePath == "" {
		errs = append(errs, errors.New("log file path is required for file output"))
	}

	if c.Dataset.Path == "" {
		errs = append(errs, errors.New("dataset path is required"))
	}
	if c.Dataset.IdentifierWidth < 0 {
		errs = append(errs, errors.New("identifier width cannot be negative"))
	}
	if c.Dataset.PeriodMin > c.Dataset.PeriodMax {
		errs = append(errs, fmt.Errorf("period bounds are inverted: %d > %d", c.Dataset.PeriodMin, c.Dataset.PeriodMax))
	}
	if m := c.Dataset.Mapping; m.Enabled() && (m.Identifier == "" || m.Period == "" || m.Metric == "") {
		errs = append(errs, errors.New("a column mapping needs identifier, period and metric"))
	}

	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("sample ratio %g outside [0, 1]", c.Telemetry.SampleRatio))
	}
	return errors.Join(errs...)
}

// Addr is the listen address of the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// findConfigFile returns the first config file found in the usual
// locations, or "" when there is none.
func findConfigFile() string {
	locations := []string{
		"config.yaml",
		"configs/config.yaml",
		"../configs/config.yaml",
	}
	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}
	return ""
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            DefaultPort,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			MaxHeaderBytes:  1 << 20, // 1MB
			ShutdownTimeout: 30 * time.Second,
			RequestTimeout:  DefaultRequestTimeout,
		},
		Security: SecurityConfig{
			AllowedOrigins: []string{"http://localhost:8501", "http://localhost:8080"},
			EnableCORS:     true,
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     DefaultRateLimit,
				Burst:   DefaultBurstSize,
			},
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "console",
			FilePath: "logs/dtindex.log",
		},
		Dataset: DatasetConfig{
			Path:              DefaultDatasetFile,
			IdentifierWidth:   DefaultIdentifierWidth,
			PeriodMin:         DefaultPeriodMin,
			PeriodMax:         DefaultPeriodMax,
			GroupAverageLabel: DefaultGroupAverageLabel,
		},
		Merge: MergeConfig{
			PrimaryPath:         DefaultIndexFile,
			SecondaryPath:       DefaultIndustryFile,
			OutputPath:          DefaultDatasetFile,
			PrimaryIdentifier:   "股票代码",
			PrimaryPeriod:       "年份",
			SecondaryIdentifier: "股票代码全称",
			SecondaryPeriod:     "年度",
			GroupCode:           "行业代码",
			GroupName:           "行业名称",
		},
		Telemetry: TelemetryConfig{
			Environment:    "development",
			TraceExporter:  "none",
			MetricExporter: "prometheus",
			SampleRatio:    1.0,
		},
	}
}
