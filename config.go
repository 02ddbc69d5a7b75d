package adminflow

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/viant/adminflow/internal/expand"
	"github.com/viant/adminflow/internal/logging"
	"github.com/viant/adminflow/policy"
	"github.com/viant/adminflow/service/analytics"
	"github.com/viant/adminflow/service/analytics/cache"
	"github.com/viant/adminflow/service/breaker"
	"github.com/viant/adminflow/service/dao/postgres"
	"github.com/viant/adminflow/service/messaging/kafka"
	"github.com/viant/adminflow/service/outbox"
	"github.com/viant/adminflow/service/processor"
	"github.com/viant/adminflow/tracing"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "ADMINFLOW_"

// Config is a serialisable representation of the engine configuration. It can
// be populated from YAML, a .env file and environment variables. Empty
// postgres, kafka and redis sections select the in-memory implementations.
type Config struct {
	Processor processor.Config  `json:"processor" yaml:"processor" envPrefix:"PROCESSOR_"`
	Risk      policy.Config     `json:"risk" yaml:"risk" envPrefix:"RISK_"`
	Breaker   breaker.Config    `json:"breaker" yaml:"breaker" envPrefix:"BREAKER_"`
	Outbox    outbox.Config     `json:"outbox" yaml:"outbox" envPrefix:"OUTBOX_"`
	Analytics analytics.Config  `json:"analytics" yaml:"analytics" envPrefix:"ANALYTICS_"`
	Postgres  postgres.Config   `json:"postgres" yaml:"postgres" envPrefix:"POSTGRES_"`
	Redis     cache.RedisConfig `json:"redis" yaml:"redis" envPrefix:"REDIS_"`
	Kafka     kafka.Config      `json:"kafka" yaml:"kafka" envPrefix:"KAFKA_"`
	Export    ExportConfig      `json:"export" yaml:"export" envPrefix:"EXPORT_"`
	Log       logging.Config    `json:"log" yaml:"log" envPrefix:"LOG_"`
	Tracing   tracing.Config    `json:"tracing" yaml:"tracing" envPrefix:"TRACING_"`
}

// ExportConfig locates the risk assessment export.
type ExportConfig struct {
	// BaseURL is an afs URL (file://, s3://, gs://, mem://); empty disables export.
	BaseURL string `json:"baseURL,omitempty" yaml:"baseURL,omitempty" env:"BASE_URL"`
}

// DefaultConfig returns a Config populated with the package defaults.
func DefaultConfig() *Config {
	return &Config{
		Processor: processor.DefaultConfig(),
		Risk:      *policy.ToConfig(policy.Default()),
		Breaker:   breaker.DefaultConfig(),
		Outbox:    outbox.DefaultConfig(),
		Analytics: analytics.DefaultConfig(),
		Postgres:  postgres.Config{MaxConns: 10, MaxConnLifetime: time.Hour},
		Kafka:     kafka.DefaultConfig(),
		Tracing:   tracing.Config{ServiceName: "adminflow"},
	}
}

// LoadConfig layers, lowest precedence first: defaults, the YAML file at
// path (optional, ${env.NAME} references expanded), the .env files (missing
// files are skipped) and the ADMINFLOW_ prefixed environment.
func LoadConfig(path string, envFiles ...string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err = yaml.Unmarshal([]byte(expand.Env(string(data))), cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config %s: %w", path, err)
		}
	}
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", file, err)
		}
	}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate returns aggregated error describing invalid settings or nil.
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.Processor.ValidationWorkers <= 0 {
		errs = append(errs, fmt.Errorf("processor.validationWorkers must be > 0"))
	}
	if c.Processor.RiskTimeout <= 0 {
		errs = append(errs, fmt.Errorf("processor.riskTimeout must be > 0"))
	}
	if _, err := policy.FromConfig(&c.Risk); err != nil {
		errs = append(errs, err)
	}
	if err := c.Breaker.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Outbox.Workers <= 0 {
		errs = append(errs, fmt.Errorf("outbox.workers must be > 0"))
	}
	if c.Outbox.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("outbox.maxAttempts must be > 0"))
	}
	if c.Outbox.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("outbox.pollInterval must be > 0"))
	}
	if c.Analytics.BucketSize <= 0 {
		errs = append(errs, fmt.Errorf("analytics.bucketSize must be > 0"))
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		errs = append(errs, fmt.Errorf("kafka.topic is required with brokers"))
	}
	return errors.Join(errs...)
}
