package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config is loaded from the environment. Nested sections are prefixed with
// their envconfig name, e.g. DB.Host <- DB_HOST, Worker.OutboxBatch <- WORKER_OUTBOX_BATCH.
type Config struct {
	App      AppConfig      `envconfig:"APP"`
	Log      LogConfig      `envconfig:"LOG"`
	DB       DBConfig       `envconfig:"DB"`
	Redis    RedisConfig    `envconfig:"REDIS"`
	GRPC     GRPCConfig     `envconfig:"GRPC"`
	HTTP     HTTPConfig     `envconfig:"HTTP"`
	Matching MatchingConfig `envconfig:"MATCHING"`
	Worker   WorkerConfig   `envconfig:"WORKER"`
}

type AppConfig struct {
	ENV string `envconfig:"ENV" default:"development"`
}

type LogConfig struct {
	Level     string `default:"info"`
	Format    string `default:"text"`
	Component string `default:"matching"`
	Source    bool   `default:"false"`
}

type DBConfig struct {
	Driver   string `default:"mysql"`
	DSN      string
	Host     string `default:"localhost"`
	Port     string `default:"3306"`
	User     string `default:"root"`
	Password string `default:"root"`
	Name     string `default:"muzz"`
	LogSQL   bool   `envconfig:"LOG_SQL" default:"false"`
}

type RedisConfig struct {
	Addr     string        `default:"localhost:6379"`
	Password string        `default:""`
	DB       int           `default:"0"`
	CacheTTL time.Duration `envconfig:"CACHE_TTL" default:"1h"`
	Channel  string        `default:"matching.events"`
}

type GRPCConfig struct {
	Host string `default:"127.0.0.1"`
	Port string `default:"50051"`
}

type HTTPConfig struct {
	Enabled bool   `default:"true"`
	Addr    string `default:":8080"`
}

// MatchingConfig tunes the matching core.
type MatchingConfig struct {
	// RetryLimit bounds local retries of a lost optimistic write.
	RetryLimit       int           `envconfig:"RETRY_LIMIT" default:"3"`
	AutoArchiveAfter time.Duration `envconfig:"AUTO_ARCHIVE_AFTER" default:"720h"`
	// ProjectionGrace is how old an unprojected action/message must be before the
	// dispatcher picks it up; younger ones are still owned by the request path.
	ProjectionGrace time.Duration `envconfig:"PROJECTION_GRACE" default:"30s"`
}

type WorkerConfig struct {
	OutboxInterval       time.Duration `envconfig:"OUTBOX_INTERVAL" default:"2s"`
	OutboxBatch          int           `envconfig:"OUTBOX_BATCH" default:"100"`
	SweepInterval        time.Duration `envconfig:"SWEEP_INTERVAL" default:"1h"`
	ReconcileInterval    time.Duration `envconfig:"RECONCILE_INTERVAL" default:"24h"`
	ReconcileConcurrency int           `envconfig:"RECONCILE_CONCURRENCY" default:"4"`
}

// Load reads the configuration from the environment and fills derived values.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.resolve(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) resolve() error {
	c.DB.Driver = strings.ToLower(strings.TrimSpace(c.DB.Driver))
	switch c.DB.Driver {
	case "mysql":
		if c.DB.DSN == "" {
			c.DB.DSN = fmt.Sprintf(
				"%s:%s@tcp(%s:%s)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
				c.DB.User, c.DB.Password, c.DB.Host, c.DB.Port, c.DB.Name,
			)
		}
	case "sqlite":
		if c.DB.DSN == "" {
			c.DB.DSN = fmt.Sprintf("file:%s.db?_foreign_keys=on", c.DB.Name)
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER: %q", c.DB.Driver)
	}

	if c.Matching.RetryLimit < 1 {
		c.Matching.RetryLimit = 1
	}
	if c.Worker.ReconcileConcurrency < 1 {
		c.Worker.ReconcileConcurrency = 1
	}
	return nil
}

// IsDevelopment reports whether demo data may be seeded on boot.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.App.ENV, "development")
}
