package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"`
	Log         struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Server struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Refresh struct {
		Interval time.Duration `yaml:"interval"`
		Timeout  time.Duration `yaml:"timeout"`
	} `yaml:"refresh"`
	Publisher struct {
		Type  string `yaml:"type"` // "kafka" or "none"
		Topic string `yaml:"topic"`
	} `yaml:"publisher"`
	Kafka struct {
		Brokers      []string `yaml:"brokers"`
		RequiredAcks int      `yaml:"required_acks"`
		Compression  string   `yaml:"compression"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			Linger       time.Duration `yaml:"linger"`
			BatchBytes   int           `yaml:"batch_bytes"`
			BatchSize    int           `yaml:"batch_size"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			ReadTimeout  time.Duration `yaml:"read_timeout"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
	} `yaml:"kafka"`
	Cache struct {
		Enabled bool          `yaml:"enabled"`
		TTL     time.Duration `yaml:"ttl"`
		Redis   struct {
			Host     string `yaml:"host"`
			Port     int    `yaml:"port"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
	} `yaml:"cache"`
	CoinGecko SourceConfig `yaml:"coingecko"`
	Upbit     SourceConfig `yaml:"upbit"`
	Finnhub   struct {
		SourceConfig `yaml:",inline"`
		APIKey       string `yaml:"api_key"`
	} `yaml:"finnhub"`
	Tables struct {
		Crypto    TableConfig `yaml:"crypto"`
		Dividends TableConfig `yaml:"dividends"`
	} `yaml:"tables"`
	Locale string `yaml:"locale"`
}

// SourceConfig holds one upstream source's endpoint and rate budget.
type SourceConfig struct {
	BaseURL   string        `yaml:"base_url"`
	Timeout   time.Duration `yaml:"timeout"`
	RateLimit struct {
		Capacity     float64 `yaml:"capacity"`
		RefillPerSec float64 `yaml:"refill_per_sec"`
	} `yaml:"rate_limit"`
}

// TableConfig holds one table's entity registry and optional
// per-table refresh interval override.
type TableConfig struct {
	Interval time.Duration `yaml:"interval"`
	Entities []Entity      `yaml:"entities"`
}

// Entity is one registry row: a stable id, a display name, and the
// per-source symbol mapping.
type Entity struct {
	ID      string            `yaml:"id"`
	Name    string            `yaml:"name"`
	Symbols map[string]string `yaml:"symbols"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	c.applyDefaults()

	// Validate required fields
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	// Override with environment variables
	if v := os.Getenv("FINNHUB_API_KEY"); v != "" {
		c.Finnhub.APIKey = v
	}
	if v := os.Getenv("PUBLISHER"); v != "" {
		c.Publisher.Type = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		host, port := splitHostPort(v)
		c.Cache.Redis.Host = host
		if port > 0 {
			c.Cache.Redis.Port = port
		}
	}
	if v := os.Getenv("REFRESH_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Refresh.Interval = d
		}
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if c.Refresh.Interval == 0 {
		c.Refresh.Interval = time.Minute
	}
	if c.Refresh.Timeout == 0 {
		c.Refresh.Timeout = 20 * time.Second
	}
	if c.Publisher.Type == "" {
		c.Publisher.Type = "none"
	}
	if c.Locale == "" {
		c.Locale = "ko"
	}
	if c.Tables.Crypto.Interval == 0 {
		c.Tables.Crypto.Interval = c.Refresh.Interval
	}
	if c.Tables.Dividends.Interval == 0 {
		c.Tables.Dividends.Interval = c.Refresh.Interval
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Publisher.Type != "none" && c.Publisher.Type != "kafka" {
		return fmt.Errorf("publisher.type must be 'none' or 'kafka', got '%s'", c.Publisher.Type)
	}
	if c.Publisher.Type == "kafka" && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers required when publisher.type is kafka")
	}
	if len(c.Tables.Crypto.Entities) == 0 {
		return fmt.Errorf("tables.crypto.entities cannot be empty")
	}
	if len(c.Tables.Dividends.Entities) == 0 {
		return fmt.Errorf("tables.dividends.entities cannot be empty")
	}
	if c.Finnhub.APIKey == "" {
		return fmt.Errorf("finnhub.api_key is required")
	}
	if c.CoinGecko.BaseURL == "" {
		return fmt.Errorf("coingecko.base_url is required")
	}
	if c.Upbit.BaseURL == "" {
		return fmt.Errorf("upbit.base_url is required")
	}
	if c.Finnhub.BaseURL == "" {
		return fmt.Errorf("finnhub.base_url is required")
	}
	return nil
}

func splitHostPort(addr string) (string, int) {
	host := addr
	port := 0
	if i := strings.LastIndex(addr, ":"); i >= 0 {
		host = addr[:i]
		fmt.Sscanf(addr[i+1:], "%d", &port)
	}
	return host, port
}
