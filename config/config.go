package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Tradesim  TradesimConfig  `yaml:"tradesim"`
	Source    SourceConfig    `yaml:"source"`
	Channels  ChannelsConfig  `yaml:"channels"`
	Cache     CacheConfig     `yaml:"cache"`
	Simulator SimulatorConfig `yaml:"simulator"`
	Server    ServerConfig    `yaml:"server"`
	Recorder  RecorderConfig  `yaml:"recorder"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type TradesimConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// SourceConfig describes the upstream order book stream. The URL points at an
// endpoint that pushes L2 snapshots as JSON messages; when Symbols is
// non-empty an OKX-style subscription request is sent after connecting.
type SourceConfig struct {
	URL              string        `yaml:"url"`
	Exchange         string        `yaml:"exchange"`
	Symbols          []string      `yaml:"symbols"`
	PingInterval     time.Duration `yaml:"ping_interval"`
	ReconnectBackoff time.Duration `yaml:"reconnect_backoff"`
}

type ChannelsConfig struct {
	RawBuffer      int `yaml:"raw_buffer"`
	RecorderBuffer int `yaml:"recorder_buffer"`
}

type CacheConfig struct {
	HistoryDepth   int `yaml:"history_depth"`
	LatencySamples int `yaml:"latency_samples"`
}

// SimulatorConfig carries the tunables of the cost model. Model coefficients
// themselves live in the simulator package as named calibration groups; only
// the knobs an operator realistically changes are exposed here.
type SimulatorConfig struct {
	RiskAversion float64 `yaml:"risk_aversion"`
	DepthLevels  int     `yaml:"depth_levels"`
}

type ServerConfig struct {
	Enabled           bool    `yaml:"enabled"`
	Address           string  `yaml:"address"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

type RecorderConfig struct {
	Enabled       bool          `yaml:"enabled"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	MaxLevels     int           `yaml:"max_levels"`
	Compression   string        `yaml:"compression"`
	S3            S3Config      `yaml:"s3"`
}

type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Prefix          string `yaml:"prefix"`
}

type MetricsConfig struct {
	CloudWatchEnabled bool   `yaml:"cloudwatch_enabled"`
	Namespace         string `yaml:"namespace"`
	Region            string `yaml:"region"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

// LoadConfig reads, defaults and validates the configuration file at path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{
		Source: SourceConfig{
			Exchange:         "OKX",
			PingInterval:     15 * time.Second,
			ReconnectBackoff: 5 * time.Second,
		},
		Channels: ChannelsConfig{
			RawBuffer:      1024,
			RecorderBuffer: 256,
		},
		Cache: CacheConfig{
			HistoryDepth:   100,
			LatencySamples: 1000,
		},
		Simulator: SimulatorConfig{
			RiskAversion: 1e-7,
			DepthLevels:  10,
		},
		Server: ServerConfig{
			Address:           ":8080",
			RequestsPerSecond: 50,
			Burst:             100,
		},
		Recorder: RecorderConfig{
			FlushInterval: 30 * time.Second,
			MaxLevels:     10,
			Compression:   "snappy",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override S3 settings from environment variables if available
	if config.Recorder.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Recorder.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Recorder.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Recorder.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			config.Recorder.S3.Bucket = strings.TrimSpace(v)
		}
	}

	config.Recorder.S3.Bucket = strings.TrimSpace(config.Recorder.S3.Bucket)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func validateConfig(cfg *Config) error {
	if cfg.Tradesim.Name == "" {
		return fmt.Errorf("tradesim.name is required")
	}

	if cfg.Tradesim.Version == "" {
		return fmt.Errorf("tradesim.version is required")
	}

	if cfg.Source.URL == "" {
		return fmt.Errorf("source.url is required")
	}

	if cfg.Channels.RawBuffer <= 0 {
		return fmt.Errorf("channels.raw_buffer must be greater than 0")
	}

	if cfg.Cache.HistoryDepth <= 0 {
		return fmt.Errorf("cache.history_depth must be greater than 0")
	}

	if cfg.Cache.LatencySamples <= 0 {
		return fmt.Errorf("cache.latency_samples must be greater than 0")
	}

	if cfg.Simulator.RiskAversion <= 0 {
		return fmt.Errorf("simulator.risk_aversion must be greater than 0")
	}

	if cfg.Source.ReconnectBackoff <= 0 {
		return fmt.Errorf("source.reconnect_backoff must be greater than 0")
	}

	if cfg.Recorder.Enabled {
		if cfg.Recorder.S3.Bucket == "" {
			return fmt.Errorf("recorder.s3.bucket is required when the recorder is enabled")
		}
		if !isValidS3Bucket(cfg.Recorder.S3.Bucket) {
			return fmt.Errorf("recorder.s3.bucket %q is not a valid bucket name", cfg.Recorder.S3.Bucket)
		}
		if cfg.Recorder.FlushInterval <= 0 {
			return fmt.Errorf("recorder.flush_interval must be greater than 0")
		}
	}

	return nil
}

// isValidS3Bucket performs the subset of AWS bucket naming rules that matter
// for catching configuration typos early.
func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		case c == '-' || c == '.':
		default:
			return false
		}
	}
	return name[0] != '-' && name[0] != '.' && name[len(name)-1] != '-' && name[len(name)-1] != '.'
}
