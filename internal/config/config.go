package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const (
	DriverMongo    = "mongodb"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type HTTPConfig struct {
	Host         string
	Port         int `validate:"gt=0"`
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	Driver string `validate:"oneof=mongodb postgres memory"`
}

type MongoConfig struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
}

type PostgresConfig struct {
	DSN               string
	MaxOpen           int
	MaxIdle           int
	ConnMaxLifetime   time.Duration
	HealthCheckPeriod time.Duration
	ConnectTimeout    time.Duration
	AutoMigrate       bool
}

type RedisConfig struct {
	Enabled      bool
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type SecurityConfig struct {
	JWTSecret       string        `validate:"required"`
	TokenTTL        time.Duration `validate:"gt=0"`
	RefreshGrace    time.Duration `validate:"gte=0"`
	Issuer          string
	CookieName      string `validate:"required"`
	RevokeOnSignOut bool
	PasswordMinLen  int `validate:"gte=1"`
}

type SeedConfig struct {
	Enabled       bool
	AdminEmail    string
	AdminPassword string
	FirstName     string
	LastName      string
}

type SessionProviderConfig struct {
	BaseURL          string
	SessionPath      string
	Timeout          time.Duration
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

type AuditConfig struct {
	Stream string
}

type JobsConfig struct {
	CensusSpec string
}

type AppConfig struct {
	Environment      string
	HTTP             HTTPConfig
	Database         DatabaseConfig
	Mongo            MongoConfig
	Postgres         PostgresConfig
	Redis            RedisConfig
	Security         SecurityConfig
	Seed             SeedConfig
	SessionProvider  SessionProviderConfig
	Audit            AuditConfig
	Jobs             JobsConfig
	AllowCORSOrigins []string
}

func (c *AppConfig) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// Validate checks the invariants the service cannot start without.
func (c *AppConfig) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Database.Driver == DriverPostgres && c.Postgres.DSN == "" {
		return fmt.Errorf("invalid config: postgres.dsn is required for the postgres driver")
	}
	if c.Database.Driver == DriverMongo && c.Mongo.URI == "" {
		return fmt.Errorf("invalid config: mongo.uri is required for the mongodb driver")
	}
	return nil
}

func Load() (*AppConfig, error) {
	v := newViper("config", "GOTUS")
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg, decoderOptions); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func newViper(name, envPrefix string) *viper.Viper {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("../config")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func decoderOptions(dc *mapstructure.DecoderConfig) {
	dc.TagName = "mapstructure"
	dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.readtimeout", "10s")
	v.SetDefault("http.writetimeout", "15s")
	v.SetDefault("http.idletimeout", "60s")

	v.SetDefault("database.driver", DriverMongo)

	v.SetDefault("mongo.uri", "mongodb://127.0.0.1:27017")
	v.SetDefault("mongo.database", "gotus")
	v.SetDefault("mongo.connecttimeout", "10s")

	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.maxopen", 30)
	v.SetDefault("postgres.maxidle", 10)
	v.SetDefault("postgres.connmaxlifetime", "30m")
	v.SetDefault("postgres.healthcheckperiod", "30s")
	v.SetDefault("postgres.connecttimeout", "10s")
	v.SetDefault("postgres.automigrate", true)

	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.poolsize", 10)
	v.SetDefault("redis.minidleconns", 2)
	v.SetDefault("redis.dialtimeout", "5s")
	v.SetDefault("redis.readtimeout", "3s")
	v.SetDefault("redis.writetimeout", "3s")

	v.SetDefault("security.jwtsecret", "")
	v.SetDefault("security.tokenttl", "168h") // 7 days
	v.SetDefault("security.refreshgrace", "168h")
	v.SetDefault("security.issuer", "gotus")
	v.SetDefault("security.cookiename", "auth-token")
	v.SetDefault("security.revokeonsignout", true)
	v.SetDefault("security.passwordminlen", 6)

	v.SetDefault("seed.enabled", true)
	v.SetDefault("seed.adminemail", "admin@gotus.com")
	v.SetDefault("seed.adminpassword", "")
	v.SetDefault("seed.firstname", "System")
	v.SetDefault("seed.lastname", "Administrator")

	v.SetDefault("sessionprovider.baseurl", "")
	v.SetDefault("sessionprovider.sessionpath", "/api/auth/session")
	v.SetDefault("sessionprovider.timeout", "3s")
	v.SetDefault("sessionprovider.failurethreshold", 5)
	v.SetDefault("sessionprovider.opentimeout", "30s")

	v.SetDefault("audit.stream", "accounts:audit")

	v.SetDefault("jobs.censusspec", "0 0 * * * *") // hourly

	v.SetDefault("allowcorsorigins", []string{})
}
