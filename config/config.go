package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"binflow/models"
)

const (
	// DefaultBaseURL is the production Binance websocket endpoint.
	DefaultBaseURL = "wss://stream.binance.com:9443/ws"
	// DefaultTestnetURL is the Binance testnet websocket endpoint.
	DefaultTestnetURL = "wss://stream.testnet.binance.vision/ws"
)

type Config struct {
	Binflow    BinflowConfig    `yaml:"binflow"`
	Feed       FeedConfig       `yaml:"feed"`
	Bus        BusConfig        `yaml:"bus"`
	Dispatcher DispatcherConfig `yaml:"dispatcher"`
	Sinks      SinksConfig      `yaml:"sinks"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Shutdown   ShutdownConfig   `yaml:"shutdown"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type BinflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type FeedConfig struct {
	BaseURL       string         `yaml:"base_url"`
	TestnetURL    string         `yaml:"testnet_url"`
	Testnet       bool           `yaml:"testnet"`
	Symbols       []string       `yaml:"symbols"`
	Streams       []string       `yaml:"streams"`
	KlineInterval string         `yaml:"kline_interval"`
	Samples       int            `yaml:"samples"`
	DialRate      DialRateConfig `yaml:"dial_rate"`
	Retry         RetryConfig    `yaml:"retry"`
}

// DialRateConfig caps connection attempts across all subscriptions so a
// reconnect storm cannot hammer the exchange.
type DialRateConfig struct {
	PerSecond float64 `yaml:"per_second"`
	Burst     int     `yaml:"burst"`
}

type RetryConfig struct {
	BaseDelay         time.Duration `yaml:"base_delay"`
	MaxDelay          time.Duration `yaml:"max_delay"`
	BackoffMultiplier int           `yaml:"backoff_multiplier"`
}

type BusConfig struct {
	Capacity int `yaml:"capacity"`
}

type DispatcherConfig struct {
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type SinksConfig struct {
	Console ConsoleSinkConfig `yaml:"console"`
	Redis   RedisSinkConfig   `yaml:"redis"`
	File    FileSinkConfig    `yaml:"file"`
	S3      S3SinkConfig      `yaml:"s3"`
}

type ConsoleSinkConfig struct {
	Enabled bool   `yaml:"enabled"`
	Mode    string `yaml:"mode"`
}

type RedisSinkConfig struct {
	Enabled   bool             `yaml:"enabled"`
	Host      string           `yaml:"host"`
	Port      int              `yaml:"port"`
	Namespace string           `yaml:"namespace"`
	Retry     RedisRetryConfig `yaml:"retry"`
}

type RedisRetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
}

type FileSinkConfig struct {
	Enabled     bool     `yaml:"enabled"`
	Formats     []string `yaml:"formats"`
	OutputDir   string   `yaml:"output_dir"`
	RotateLines int      `yaml:"rotate_lines"`
	BatchSize   int      `yaml:"batch_size"`
	Compression string   `yaml:"compression"`
}

type S3SinkConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	Prefix          string `yaml:"prefix"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	BatchSize       int    `yaml:"batch_size"`
	Compression     string `yaml:"compression"`
}

type MetricsConfig struct {
	CloudWatch CloudWatchConfig `yaml:"cloudwatch"`
}

type CloudWatchConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Region    string        `yaml:"region"`
	Namespace string        `yaml:"namespace"`
	Interval  time.Duration `yaml:"interval"`
}

type ShutdownConfig struct {
	GracePeriod time.Duration `yaml:"grace_period"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

// FileFormats recognised by the file sink layer. "json" is accepted as an
// alias for "jsonl" to match the original CLI surface.
var lineFormats = map[string]string{
	"json":  "jsonl",
	"jsonl": "jsonl",
	"csv":   "csv",
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := defaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(config)

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

func defaultConfig() *Config {
	return &Config{
		Binflow: BinflowConfig{Name: "binflow", Version: "dev"},
		Feed: FeedConfig{
			BaseURL:       DefaultBaseURL,
			TestnetURL:    DefaultTestnetURL,
			Streams:       []string{"ticker", "trades", "order-book"},
			KlineInterval: "1m",
			DialRate:      DialRateConfig{PerSecond: 5, Burst: 10},
			Retry: RetryConfig{
				BaseDelay:         time.Second,
				MaxDelay:          60 * time.Second,
				BackoffMultiplier: 2,
			},
		},
		Bus:        BusConfig{Capacity: 2048},
		Dispatcher: DispatcherConfig{WriteTimeout: 5 * time.Second},
		Sinks: SinksConfig{
			Console: ConsoleSinkConfig{Mode: "human"},
			Redis: RedisSinkConfig{
				Host:      "localhost",
				Port:      31111,
				Namespace: "binance",
				Retry:     RedisRetryConfig{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond},
			},
			File: FileSinkConfig{
				OutputDir:   "data",
				RotateLines: 100000,
				BatchSize:   10000,
				Compression: "snappy",
			},
			S3: S3SinkConfig{BatchSize: 10000, Compression: "snappy"},
		},
		Metrics: MetricsConfig{
			CloudWatch: CloudWatchConfig{Namespace: "Binflow", Interval: time.Minute},
		},
		Shutdown: ShutdownConfig{GracePeriod: 30 * time.Second},
		Logging:  LoggingConfig{Level: "info", Format: "json", Output: "stderr"},
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Binflow.Name == "" {
		return fmt.Errorf("binflow.name is required")
	}
	if cfg.Binflow.Version == "" {
		return fmt.Errorf("binflow.version is required")
	}

	if len(cfg.Feed.Symbols) == 0 {
		return fmt.Errorf("feed.symbols must list at least one symbol")
	}
	if len(cfg.Feed.Streams) == 0 {
		return fmt.Errorf("feed.streams must list at least one stream kind")
	}
	for _, s := range cfg.Feed.Streams {
		kind, err := models.ParseStreamKind(s)
		if err != nil {
			return err
		}
		if kind == models.StreamKlines && strings.TrimSpace(cfg.Feed.KlineInterval) == "" {
			return fmt.Errorf("feed.kline_interval is required when klines are enabled")
		}
	}
	if cfg.Feed.Samples < 0 {
		return fmt.Errorf("feed.samples must not be negative")
	}
	if cfg.Feed.Retry.BaseDelay <= 0 {
		return fmt.Errorf("feed.retry.base_delay must be greater than 0")
	}
	if cfg.Feed.Retry.MaxDelay < cfg.Feed.Retry.BaseDelay {
		return fmt.Errorf("feed.retry.max_delay must be at least base_delay")
	}
	if cfg.Feed.Retry.BackoffMultiplier < 2 {
		return fmt.Errorf("feed.retry.backoff_multiplier must be at least 2")
	}

	if cfg.Bus.Capacity <= 0 {
		return fmt.Errorf("bus.capacity must be greater than 0")
	}
	if cfg.Dispatcher.WriteTimeout <= 0 {
		return fmt.Errorf("dispatcher.write_timeout must be greater than 0")
	}

	if !cfg.Sinks.Console.Enabled && !cfg.Sinks.Redis.Enabled &&
		!cfg.Sinks.File.Enabled && !cfg.Sinks.S3.Enabled {
		return fmt.Errorf("at least one sink must be enabled")
	}

	if cfg.Sinks.Console.Enabled {
		switch cfg.Sinks.Console.Mode {
		case "human", "machine":
		default:
			return fmt.Errorf("sinks.console.mode must be 'human' or 'machine'")
		}
	}

	if cfg.Sinks.Redis.Enabled {
		if cfg.Sinks.Redis.Host == "" {
			return fmt.Errorf("sinks.redis.host is required when the redis sink is enabled")
		}
		if cfg.Sinks.Redis.Port <= 0 {
			return fmt.Errorf("sinks.redis.port must be greater than 0")
		}
		if cfg.Sinks.Redis.Namespace == "" {
			return fmt.Errorf("sinks.redis.namespace is required when the redis sink is enabled")
		}
		if cfg.Sinks.Redis.Retry.MaxAttempts < 1 {
			return fmt.Errorf("sinks.redis.retry.max_attempts must be at least 1")
		}
	}

	if cfg.Sinks.File.Enabled {
		if len(cfg.Sinks.File.Formats) == 0 {
			return fmt.Errorf("sinks.file.formats must list at least one format")
		}
		for _, f := range cfg.Sinks.File.Formats {
			switch strings.ToLower(f) {
			case "json", "jsonl", "csv", "parquet":
			case "orc":
				return fmt.Errorf("orc output is not supported; use parquet for columnar parts")
			default:
				return fmt.Errorf("unknown output format %q", f)
			}
		}
		if cfg.Sinks.File.OutputDir == "" {
			return fmt.Errorf("sinks.file.output_dir is required when the file sink is enabled")
		}
		if cfg.Sinks.File.RotateLines <= 0 {
			return fmt.Errorf("sinks.file.rotate_lines must be greater than 0")
		}
		if cfg.Sinks.File.BatchSize <= 0 {
			return fmt.Errorf("sinks.file.batch_size must be greater than 0")
		}
	}

	if cfg.Sinks.S3.Enabled {
		if cfg.Sinks.S3.Bucket == "" {
			return fmt.Errorf("sinks.s3.bucket is required when the s3 sink is enabled")
		}
		if cfg.Sinks.S3.Region == "" {
			return fmt.Errorf("sinks.s3.region is required when the s3 sink is enabled")
		}
		if cfg.Sinks.S3.BatchSize <= 0 {
			return fmt.Errorf("sinks.s3.batch_size must be greater than 0")
		}
	}

	if cfg.Shutdown.GracePeriod <= 0 {
		return fmt.Errorf("shutdown.grace_period must be greater than 0")
	}

	return nil
}

// WebsocketBaseURL returns the endpoint matching the testnet flag.
func (c *Config) WebsocketBaseURL() string {
	if c.Feed.Testnet {
		return c.Feed.TestnetURL
	}
	return c.Feed.BaseURL
}

// LineFormats returns the normalized class-A formats from the file sink
// configuration, deduplicated ("json" folds into "jsonl").
func (c *Config) LineFormats() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, f := range c.Sinks.File.Formats {
		norm, ok := lineFormats[strings.ToLower(f)]
		if !ok {
			continue
		}
		if _, dup := seen[norm]; dup {
			continue
		}
		seen[norm] = struct{}{}
		out = append(out, norm)
	}
	return out
}

// ParquetEnabled reports whether the file sink should write parquet parts.
func (c *Config) ParquetEnabled() bool {
	for _, f := range c.Sinks.File.Formats {
		if strings.EqualFold(f, "parquet") {
			return true
		}
	}
	return false
}

// Subscriptions materializes the symbol x stream cross-product requested by
// the feed configuration. Symbols are uppercased; each subscription carries
// the shared sample limit.
func (c *Config) Subscriptions() ([]models.Subscription, error) {
	var subs []models.Subscription
	for _, rawSymbol := range c.Feed.Symbols {
		symbol := strings.ToUpper(strings.TrimSpace(rawSymbol))
		if symbol == "" {
			return nil, fmt.Errorf("feed.symbols contains an empty symbol")
		}
		for _, rawStream := range c.Feed.Streams {
			kind, err := models.ParseStreamKind(rawStream)
			if err != nil {
				return nil, err
			}
			sub := models.Subscription{
				Symbol:      symbol,
				Stream:      kind,
				SampleLimit: c.Feed.Samples,
			}
			if kind == models.StreamKlines {
				sub.Interval = c.Feed.KlineInterval
			}
			subs = append(subs, sub)
		}
	}
	return subs, nil
}
