// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Postgres, Elasticsearch, Redis, Kafka, Sync, Logging, Metrics).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Postgres      PostgresConfig      `yaml:"postgres"`
	Elasticsearch ElasticsearchConfig `yaml:"elasticsearch"`
	Redis         RedisConfig         `yaml:"redis"`
	Kafka         KafkaConfig         `yaml:"kafka"`
	Sync          SyncConfig          `yaml:"sync"`
	Logging       LoggingConfig       `yaml:"logging"`
	Metrics       MetricsConfig       `yaml:"metrics"`
}

// PostgresConfig holds PostgreSQL connection parameters for the
// source-of-truth database.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// ElasticsearchConfig holds search engine connection and index settings.
type ElasticsearchConfig struct {
	Addresses        []string      `yaml:"addresses"`
	Username         string        `yaml:"username"`
	Password         string        `yaml:"password"`
	RequestTimeout   time.Duration `yaml:"requestTimeout"`
	NumberOfShards   int           `yaml:"numberOfShards"`
	NumberOfReplicas int           `yaml:"numberOfReplicas"`
}

// RedisConfig holds Redis connection parameters. Redis carries migration
// leases and reindex checkpoints; an empty Addr disables both.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	LeaseTTL time.Duration `yaml:"leaseTTL"`
}

// KafkaConfig holds Kafka broker and topic settings for operational events.
// An empty Brokers list disables event publishing.
type KafkaConfig struct {
	Brokers []string    `yaml:"brokers"`
	Topics  KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	ReindexEvents   string `yaml:"reindexEvents"`
	DocumentFailure string `yaml:"documentFailure"`
}

// SyncConfig holds the synchronization engine's own knobs.
type SyncConfig struct {
	// DefaultTimezone names the zone naive source timestamps are assumed
	// to be in. Conversion to UTC happens at serialization time.
	DefaultTimezone string        `yaml:"defaultTimezone"`
	SynonymDir      string        `yaml:"synonymDir"`
	DefaultLocale   string        `yaml:"defaultLocale"`
	SQLChunkSize    int           `yaml:"sqlChunkSize"`
	IndexChunkSize  int           `yaml:"indexChunkSize"`
	BulkTimeout     time.Duration `yaml:"bulkTimeout"`
	Workers         int           `yaml:"workers"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults for local
// development.
func defaultConfig() *Config {
	return &Config{
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "helpfront",
			User:            "helpfront",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Elasticsearch: ElasticsearchConfig{
			Addresses:        []string{"http://localhost:9200"},
			RequestTimeout:   30 * time.Second,
			NumberOfShards:   1,
			NumberOfReplicas: 0,
		},
		Redis: RedisConfig{
			Addr:     "",
			DB:       0,
			PoolSize: 10,
			LeaseTTL: 2 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers: nil,
			Topics: KafkaTopics{
				ReindexEvents:   "search.reindex-events",
				DocumentFailure: "search.document-failures",
			},
		},
		Sync: SyncConfig{
			DefaultTimezone: "UTC",
			SynonymDir:      "synonyms",
			DefaultLocale:   "en-US",
			SQLChunkSize:    1000,
			IndexChunkSize:  500,
			BulkTimeout:     30 * time.Second,
			Workers:         4,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
		},
	}
}

func (c *Config) validate() error {
	if c.Sync.SQLChunkSize <= 0 {
		return fmt.Errorf("sync.sqlChunkSize must be positive, got %d", c.Sync.SQLChunkSize)
	}
	if c.Sync.IndexChunkSize <= 0 {
		return fmt.Errorf("sync.indexChunkSize must be positive, got %d", c.Sync.IndexChunkSize)
	}
	if c.Sync.Workers <= 0 {
		return fmt.Errorf("sync.workers must be positive, got %d", c.Sync.Workers)
	}
	if len(c.Elasticsearch.Addresses) == 0 {
		return fmt.Errorf("elasticsearch.addresses must not be empty")
	}
	if _, err := time.LoadLocation(c.Sync.DefaultTimezone); err != nil {
		return fmt.Errorf("sync.defaultTimezone %q: %w", c.Sync.DefaultTimezone, err)
	}
	return nil
}

// applyEnvOverrides reads SS_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SS_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("SS_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("SS_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("SS_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("SS_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("SS_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("SS_ELASTICSEARCH_ADDRESSES"); v != "" {
		cfg.Elasticsearch.Addresses = strings.Split(v, ",")
	}
	if v := os.Getenv("SS_ELASTICSEARCH_USERNAME"); v != "" {
		cfg.Elasticsearch.Username = v
	}
	if v := os.Getenv("SS_ELASTICSEARCH_PASSWORD"); v != "" {
		cfg.Elasticsearch.Password = v
	}
	if v := os.Getenv("SS_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("SS_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SS_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("SS_SYNC_TIMEZONE"); v != "" {
		cfg.Sync.DefaultTimezone = v
	}
	if v := os.Getenv("SS_SYNC_SYNONYM_DIR"); v != "" {
		cfg.Sync.SynonymDir = v
	}
	if v := os.Getenv("SS_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SS_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("SS_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = port
		}
	}
}
