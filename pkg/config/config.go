package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
		CORS            bool          `yaml:"cors" default:"true"`
		CORSOrigins     []string      `yaml:"cors_origins"`
	} `yaml:"server"`
	Log struct {
		Level        string        `yaml:"level" default:"info"`
		Format       string        `yaml:"format" default:"json"`
		Output       string        `yaml:"output" default:"stdout"`
		DigestTopic  string        `yaml:"digest_topic"`
		DigestWindow time.Duration `yaml:"digest_window" default:"30s"`
	} `yaml:"log"`
	Auth struct {
		// JWTSecret enables bearer-token account identity; empty falls back to the X-Account-ID header.
		JWTSecret      string        `yaml:"jwt_secret"`
		CallbackSecret string        `yaml:"callback_secret"`
		CallbackTTL    time.Duration `yaml:"callback_ttl" default:"30m"`
		AdminToken     string        `yaml:"admin_token"`
	} `yaml:"auth"`
	Storage struct {
		Backend  string `yaml:"backend" default:"memory"`
		Postgres struct {
			URL             string        `yaml:"url"`
			MaxConns        int32         `yaml:"max_conns" default:"10"`
			MinConns        int32         `yaml:"min_conns" default:"1"`
			MaxConnLifetime time.Duration `yaml:"max_conn_lifetime" default:"30m"`
			Migrate         bool          `yaml:"migrate" default:"true"`
		} `yaml:"postgres"`
	} `yaml:"storage"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Host     string `yaml:"host" default:"localhost"`
		Port     int    `yaml:"port" default:"6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix" default:"tradereview"`
	} `yaml:"redis"`
	Queue struct {
		Backend    string        `yaml:"backend" default:"memory"`
		Workers    int           `yaml:"workers" default:"4"`
		MaxDepth   int           `yaml:"max_depth" default:"256"`
		RetryLimit int           `yaml:"retry_limit" default:"0"`
		RetryDelay time.Duration `yaml:"retry_delay" default:"5s"`
	} `yaml:"queue"`
	Kafka struct {
		Enabled       bool     `yaml:"enabled"`
		Brokers       []string `yaml:"brokers"`
		EventsTopic   string   `yaml:"events_topic" default:"review.events"`
		VerdictsTopic string   `yaml:"verdicts_topic" default:"review.verdicts"`
		RequiredAcks  int      `yaml:"required_acks" default:"-1"`
		Compression   string   `yaml:"compression" default:"snappy"`
		Producer      struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"50ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"tradereview"`
			Workers    int           `yaml:"workers" default:"2"`
			BufferSize int           `yaml:"buffer_size" default:"64"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"50ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"2s"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"10000000"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"tradereview"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert" default:"true"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
	} `yaml:"clickhouse"`
	Engine struct {
		BaseURL        string        `yaml:"base_url"`
		SubmitPath     string        `yaml:"submit_path" default:"/v1/reviews"`
		CallbackURL    string        `yaml:"callback_url"`
		Timeout        time.Duration `yaml:"timeout" default:"10s"`
		SubmitAttempts int           `yaml:"submit_attempts" default:"3"`
	} `yaml:"engine"`
	Review struct {
		// Timeout bounds the wait for the engine's callback; past it the attempt is an infra fault.
		Timeout           time.Duration `yaml:"timeout" default:"5m"`
		RetryFromRejected bool          `yaml:"retry_from_rejected" default:"true"`
		SweepSchedule     string        `yaml:"sweep_schedule" default:"0 */1 * * * *"`
		SweepBatch        int           `yaml:"sweep_batch" default:"100"`
		StatusCacheTTL    time.Duration `yaml:"status_cache_ttl" default:"10s"`
	} `yaml:"review"`
	Credits struct {
		BonusTTL          time.Duration `yaml:"bonus_ttl" default:"24h"`
		BonusPerAd        int64         `yaml:"bonus_per_ad" default:"1"`
		ProvisionOnDemand int64         `yaml:"provision_on_demand" default:"0"`
	} `yaml:"credits"`
	Instruments struct {
		SnapshotPath string `yaml:"snapshot_path" default:"config/instruments.yaml"`
	} `yaml:"instruments"`
	RateLimit struct {
		Capacity     float64 `yaml:"capacity" default:"10"`
		RefillPerSec float64 `yaml:"refill_per_sec" default:"0.5"`
	} `yaml:"ratelimit"`
}

// Load reads a YAML configuration file, fills defaults and validates.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes, fills defaults and validates.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
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
	c.applyEnv(os.Getenv)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("DATABASE_URL"); v != "" {
		c.Storage.Postgres.URL = v
		c.Storage.Backend = "postgres"
	}
	if v := getenv("STORAGE_BACKEND"); v != "" {
		c.Storage.Backend = v
	}
	if v := getenv("REDIS_HOST"); v != "" {
		c.Redis.Host = v
		c.Redis.Enabled = true
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
		c.Kafka.Enabled = true
	}
	if v := getenv("ENGINE_URL"); v != "" {
		c.Engine.BaseURL = v
	}
	if v := getenv("ENGINE_CALLBACK_URL"); v != "" {
		c.Engine.CallbackURL = v
	}
	if v := getenv("CALLBACK_SECRET"); v != "" {
		c.Auth.CallbackSecret = v
	}
	if v := getenv("JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := getenv("HTTP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	switch c.Storage.Backend {
	case "memory":
	case "postgres":
		if c.Storage.Postgres.URL == "" {
			return fmt.Errorf("storage.postgres.url is required for postgres backend")
		}
	default:
		return fmt.Errorf("storage.backend must be 'memory' or 'postgres', got '%s'", c.Storage.Backend)
	}
	switch c.Queue.Backend {
	case "memory":
	case "redis":
		if !c.Redis.Enabled {
			return fmt.Errorf("queue.backend 'redis' requires redis.enabled")
		}
	default:
		return fmt.Errorf("queue.backend must be 'memory' or 'redis', got '%s'", c.Queue.Backend)
	}
	if c.Queue.Workers <= 0 {
		return fmt.Errorf("queue.workers must be positive")
	}
	if c.Queue.MaxDepth <= 0 {
		return fmt.Errorf("queue.max_depth must be positive")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Review.Timeout <= 0 {
		return fmt.Errorf("review.timeout must be positive")
	}
	if c.Credits.BonusTTL <= 0 {
		return fmt.Errorf("credits.bonus_ttl must be positive")
	}
	if c.Engine.CallbackURL != "" && c.Auth.CallbackSecret == "" {
		return fmt.Errorf("auth.callback_secret is required when engine.callback_url is set")
	}
	return nil
}
