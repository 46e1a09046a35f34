// Package config loads jobdb configuration from config.yaml and JOBDB_*
// environment variables.
package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/jobdb/internal/staging"
)

// ErrInvalid marks a configuration value that cannot be used.
var ErrInvalid = eris.New("config: invalid")

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Staging   StagingConfig   `yaml:"staging" mapstructure:"staging"`
	Loader    LoaderConfig    `yaml:"loader" mapstructure:"loader"`
	Transform TransformConfig `yaml:"transform" mapstructure:"transform"`
	Dedup     DedupConfig     `yaml:"dedup" mapstructure:"dedup"`
}

// StoreConfig configures the Postgres connection.
type StoreConfig struct {
	DatabaseURL     string        `yaml:"database_url" mapstructure:"database_url"`
	MaxConns        int32         `yaml:"max_conns" mapstructure:"max_conns"`
	ConnectAttempts int           `yaml:"connect_attempts" mapstructure:"connect_attempts"`
	MigrateTimeout  time.Duration `yaml:"migrate_timeout" mapstructure:"migrate_timeout"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// StagingConfig configures the intermediate tables.
type StagingConfig struct {
	Schema        string        `yaml:"schema" mapstructure:"schema"`
	DropOnSuccess bool          `yaml:"drop_on_success" mapstructure:"drop_on_success"`
	TxTimeout     time.Duration `yaml:"tx_timeout" mapstructure:"tx_timeout"`
}

// LoaderConfig configures batch loading into staging.
type LoaderConfig struct {
	BatchSize   int           `yaml:"batch_size" mapstructure:"batch_size"`
	Concurrency int           `yaml:"concurrency" mapstructure:"concurrency"`
	TxTimeout   time.Duration `yaml:"tx_timeout" mapstructure:"tx_timeout"`
	BatchPause  time.Duration `yaml:"batch_pause" mapstructure:"batch_pause"`
}

// TransformConfig configures the staging to jobdb transformation.
type TransformConfig struct {
	TxTimeout              time.Duration `yaml:"tx_timeout" mapstructure:"tx_timeout"`
	LocationBatchSize      int           `yaml:"location_batch_size" mapstructure:"location_batch_size"`
	LargeLocationBatchSize int           `yaml:"large_location_batch_size" mapstructure:"large_location_batch_size"`
	LargeThreshold         int           `yaml:"large_threshold" mapstructure:"large_threshold"`
	BatchPause             time.Duration `yaml:"batch_pause" mapstructure:"batch_pause"`
	PhasePause             time.Duration `yaml:"phase_pause" mapstructure:"phase_pause"`
	ReclaimMemory          bool          `yaml:"reclaim_memory" mapstructure:"reclaim_memory"`
}

// DedupConfig configures the founder dedup pass.
type DedupConfig struct {
	TxTimeout time.Duration `yaml:"tx_timeout" mapstructure:"tx_timeout"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("JOBDB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.connect_attempts", 3)
	v.SetDefault("store.migrate_timeout", "5m")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("staging.schema", staging.DefaultSchema)
	v.SetDefault("staging.drop_on_success", false)
	v.SetDefault("staging.tx_timeout", "2m")
	v.SetDefault("loader.batch_size", 200)
	v.SetDefault("loader.concurrency", 8)
	v.SetDefault("loader.tx_timeout", "5m")
	v.SetDefault("loader.batch_pause", "0s")
	v.SetDefault("transform.tx_timeout", "10m")
	v.SetDefault("transform.location_batch_size", 1000)
	v.SetDefault("transform.large_location_batch_size", 500)
	v.SetDefault("transform.large_threshold", 50000)
	v.SetDefault("transform.batch_pause", "0s")
	v.SetDefault("transform.phase_pause", "0s")
	v.SetDefault("transform.reclaim_memory", true)
	v.SetDefault("dedup.tx_timeout", "1m")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Store.DatabaseURL == "":
		return eris.Wrap(ErrInvalid, "store.database_url is required")
	case c.Store.MaxConns <= 0:
		return eris.Wrapf(ErrInvalid, "store.max_conns must be positive, got %d", c.Store.MaxConns)
	case c.Store.MigrateTimeout <= 0:
		return eris.Wrapf(ErrInvalid, "store.migrate_timeout must be positive, got %s", c.Store.MigrateTimeout)
	case !staging.ValidSchema(c.Staging.Schema):
		return eris.Wrapf(ErrInvalid, "staging.schema %q is not a plain identifier", c.Staging.Schema)
	case c.Staging.TxTimeout <= 0:
		return eris.Wrapf(ErrInvalid, "staging.tx_timeout must be positive, got %s", c.Staging.TxTimeout)
	case c.Loader.BatchSize <= 0:
		return eris.Wrapf(ErrInvalid, "loader.batch_size must be positive, got %d", c.Loader.BatchSize)
	case c.Loader.Concurrency <= 0:
		return eris.Wrapf(ErrInvalid, "loader.concurrency must be positive, got %d", c.Loader.Concurrency)
	case c.Loader.TxTimeout <= 0:
		return eris.Wrapf(ErrInvalid, "loader.tx_timeout must be positive, got %s", c.Loader.TxTimeout)
	case c.Transform.TxTimeout <= 0:
		return eris.Wrapf(ErrInvalid, "transform.tx_timeout must be positive, got %s", c.Transform.TxTimeout)
	case c.Transform.LocationBatchSize <= 0 || c.Transform.LargeLocationBatchSize <= 0:
		return eris.Wrap(ErrInvalid, "transform location batch sizes must be positive")
	case c.Dedup.TxTimeout <= 0:
		return eris.Wrapf(ErrInvalid, "dedup.tx_timeout must be positive, got %s", c.Dedup.TxTimeout)
	case c.Loader.BatchPause < 0 || c.Transform.BatchPause < 0 || c.Transform.PhasePause < 0:
		return eris.Wrap(ErrInvalid, "pauses must not be negative")
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
