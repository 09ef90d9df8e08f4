package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config drives the audit stream worker. Environment overrides use the
// GOTUS_WORKER_ prefix, e.g. GOTUS_WORKER_REDIS_ADDR.
type Config struct {
	Environment string
	Redis       RedisConfig
	Audit       AuditConfig
	Archive     ArchiveConfig
	Logging     LoggingConfig
}

type RedisConfig struct {
	Addr     string `validate:"required"`
	Password string
	DB       int
}

type AuditConfig struct {
	Stream        string `validate:"required"`
	Group         string `validate:"required"`
	Consumer      string `validate:"required"`
	BatchSize     int64  `validate:"gt=0"`
	Block         time.Duration
	ClaimInterval time.Duration `validate:"gt=0"`
}

// ArchiveConfig points at the S3-compatible store that keeps every
// acknowledged audit event. Disabled, the worker only logs events.
type ArchiveConfig struct {
	Enabled   bool
	Endpoint  string `validate:"required_if=Enabled true"`
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
	Bucket    string `validate:"required_if=Enabled true"`
	Prefix    string
}

type LoggingConfig struct {
	Level string
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("worker")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("../config")
	v.SetEnvPrefix("GOTUS_WORKER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
		)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid worker config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("audit.stream", "accounts:audit")
	v.SetDefault("audit.group", "audit-workers")
	v.SetDefault("audit.consumer", defaultConsumer())
	v.SetDefault("audit.batchsize", 10)
	v.SetDefault("audit.block", "5s")
	v.SetDefault("audit.claiminterval", "30s")

	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.endpoint", "127.0.0.1:9000")
	v.SetDefault("archive.accesskey", "")
	v.SetDefault("archive.secretkey", "")
	v.SetDefault("archive.region", "us-east-1")
	v.SetDefault("archive.usessl", false)
	v.SetDefault("archive.bucket", "audit")
	v.SetDefault("archive.prefix", "audit")

	v.SetDefault("logging.level", "info")
}

func defaultConsumer() string {
	if host, err := os.Hostname(); err == nil && host != "" {
		return "worker-" + host
	}
	return "worker-1"
}
