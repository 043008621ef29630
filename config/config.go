// Package config loads process configuration from the environment, optional
// .env files and an optional YAML config file.
package config

import (
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/Ramsey-B/fern/internal/database"
	"github.com/Ramsey-B/fern/internal/validation"
	"github.com/Ramsey-B/fern/pkg/batch"
	"github.com/Ramsey-B/fern/pkg/kafka"
)

// Config mirrors the environment: `env` names the variable (and the config
// file key, case-insensitively) and `env-default` its fallback.
type Config struct {
	AppName            string `env:"APP_NAME" env-default:"fern" validate:"required"`
	Port               int    `env:"PORT" env-default:"3004" validate:"min=1,max=65535"`
	StartupMaxAttempts int    `env:"STARTUP_MAX_ATTEMPTS" env-default:"5" validate:"min=1"`

	// Logging
	LogLevel       string `env:"LOG_LEVEL" env-default:"info" validate:"oneof=debug info warn error"`
	PrettyLogs     bool   `env:"PRETTY_LOGS" env-default:"false"`
	TracingEnabled bool   `env:"TRACING_ENABLED" env-default:"false"`

	// PostgreSQL
	DatabaseHost                string        `env:"DB_HOST" env-default:""`
	DatabasePort                int           `env:"DB_PORT" env-default:"5432"`
	DatabaseUserName            string        `env:"DB_USER_NAME" env-default:""`
	DatabasePassword            string        `env:"DB_PASSWORD" env-default:""`
	DatabaseName                string        `env:"DB_NAME" env-default:"fern"`
	DatabaseSSLMode             string        `env:"DB_SSL_MODE" env-default:"disable"`
	DatabaseMaxOpenConns        int           `env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	DatabaseMaxIdleConns        int           `env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	DatabaseConnMaxLifetime     time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"10s"`
	DatabaseMigrationFolderPath string        `env:"DB_MIGRATION_FOLDER_PATH" env-default:"db/pg"`
	DatabaseMigrationVersion    uint          `env:"DB_MIGRATION_VERSION" env-default:"0"`
	DatabaseMigrationForce      int           `env:"DB_MIGRATION_FORCE" env-default:"0"`

	// Kafka
	KafkaBrokers        []string      `env:"KAFKA_BROKERS" env-default:""`
	KafkaInputTopic     string        `env:"KAFKA_INPUT_TOPIC" env-default:"company-records"`
	KafkaConsumerGroup  string        `env:"KAFKA_CONSUMER_GROUP" env-default:"fern-import"`
	KafkaIdleTimeout    time.Duration `env:"KAFKA_IDLE_TIMEOUT" env-default:"10s"`
	KafkaOutputTopic    string        `env:"KAFKA_OUTPUT_TOPIC" env-default:""`
	KafkaBatchSize      int           `env:"KAFKA_BATCH_SIZE" env-default:"100"`
	KafkaBatchTimeoutMS int           `env:"KAFKA_BATCH_TIMEOUT_MS" env-default:"100"`
	KafkaRequiredAcks   int           `env:"KAFKA_REQUIRED_ACKS" env-default:"1"`
	KafkaCompression    string        `env:"KAFKA_COMPRESSION" env-default:"snappy" validate:"oneof=none gzip snappy lz4 zstd"`

	// Processing
	BatchSize        int           `env:"BATCH_SIZE" env-default:"500" validate:"min=1,max=500"`
	BatchConcurrency int           `env:"BATCH_CONCURRENCY" env-default:"8" validate:"min=1"`
	BatchMaxRetries  int           `env:"BATCH_MAX_RETRIES" env-default:"3" validate:"min=0"`
	BatchBackoff     time.Duration `env:"BATCH_BACKOFF" env-default:"500ms"`
	BatchMaxBackoff  time.Duration `env:"BATCH_MAX_BACKOFF" env-default:"10s"`
	CorpusPageSize   int           `env:"CORPUS_PAGE_SIZE" env-default:"1000" validate:"min=1"`
	PolicyPath       string        `env:"POLICY_PATH" env-default:""`
}

// Load reads configuration. Values come, in order of precedence, from the
// environment, the given .env files, configFile and the env-default tags.
// Missing .env files are ignored.
func Load(configFile string, envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		_ = godotenv.Load(f)
	}

	v := viper.New()
	setDefaults(v, reflect.TypeOf(Config{}))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "failed to read config file %s", configFile)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "env"
	}); err != nil {
		return nil, errors.Wrap(err, "failed to decode config")
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.KafkaBrokers = splitList(strings.Join(cfg.KafkaBrokers, ","))

	if _, err := validation.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every env-tagged field with viper. AutomaticEnv only
// resolves keys viper already knows about.
func setDefaults(v *viper.Viper, t reflect.Type) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		key, ok := f.Tag.Lookup("env")
		if !ok {
			continue
		}
		v.SetDefault(strings.ToLower(key), f.Tag.Get("env-default"))
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Database returns the connection settings for the record store.
func (c *Config) Database() database.Config {
	return database.Config{
		Host:            c.DatabaseHost,
		Port:            c.DatabasePort,
		User:            c.DatabaseUserName,
		Password:        c.DatabasePassword,
		Name:            c.DatabaseName,
		SSLMode:         c.DatabaseSSLMode,
		MaxOpenConns:    c.DatabaseMaxOpenConns,
		MaxIdleConns:    c.DatabaseMaxIdleConns,
		ConnMaxLifetime: c.DatabaseConnMaxLifetime,
	}
}

// Migration returns the migration settings. down requests a full rollback.
func (c *Config) Migration(down bool) database.MigrationConfig {
	return database.MigrationConfig{
		MigrationFolderPath: c.DatabaseMigrationFolderPath,
		Version:             c.DatabaseMigrationVersion,
		Force:               c.DatabaseMigrationForce,
		Down:                down,
	}
}

// KafkaEnabled reports whether any broker is configured.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

func (c *Config) Consumer() kafka.ConsumerConfig {
	return kafka.ConsumerConfig{
		Brokers:       c.KafkaBrokers,
		Topic:         c.KafkaInputTopic,
		ConsumerGroup: c.KafkaConsumerGroup,
		IdleTimeout:   c.KafkaIdleTimeout,
	}
}

func (c *Config) Producer() kafka.ProducerConfig {
	return kafka.ProducerConfig{
		Brokers:      c.KafkaBrokers,
		Topic:        c.KafkaOutputTopic,
		BatchSize:    c.KafkaBatchSize,
		BatchTimeout: time.Duration(c.KafkaBatchTimeoutMS) * time.Millisecond,
		RequiredAcks: c.KafkaRequiredAcks,
		Compression:  c.KafkaCompression,
	}
}

// BatchOptions returns executor options for a run.
func (c *Config) BatchOptions() batch.Options {
	retries := c.BatchMaxRetries
	if retries == 0 {
		// zero means "default" to the executor
		retries = -1
	}
	return batch.Options{
		MaxOpsPerBatch: c.BatchSize,
		Concurrency:    c.BatchConcurrency,
		MaxRetries:     retries,
		InitialBackoff: c.BatchBackoff,
		MaxBackoff:     c.BatchMaxBackoff,
	}
}
