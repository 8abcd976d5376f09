package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	// EnvPrefix is passed to envconfig; individual tags carry the full name.
	EnvPrefix = ""

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

// Config aggregates every runtime setting for the backend binaries.
type Config struct {
	App          AppConfig
	JWT          JWTConfig
	DB           DBConfig
	Redis        RedisConfig
	Stripe       StripeConfig
	Payments     PaymentsConfig
	Email        EmailConfig
	Cron         CronConfig
	FeatureFlags FeatureFlagsConfig
}

// Load parses the process environment into a Config.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"CINEVAULT_APP_ENV" required:"true"`
	Port         string `envconfig:"CINEVAULT_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"CINEVAULT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"CINEVAULT_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// JWTConfig covers token validation only; issuance happens in the identity
// service that fronts this backend.
type JWTConfig struct {
	Secret string `envconfig:"CINEVAULT_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"CINEVAULT_JWT_ISSUER" default:"cinevault"`
}

type DBConfig struct {
	DSN    string `envconfig:"CINEVAULT_DB_DSN"`
	Driver string `envconfig:"CINEVAULT_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"CINEVAULT_DB_HOST"`
	Port     int    `envconfig:"CINEVAULT_DB_PORT" default:"5432"`
	User     string `envconfig:"CINEVAULT_DB_USER"`
	Password string `envconfig:"CINEVAULT_DB_PASSWORD"`
	Name     string `envconfig:"CINEVAULT_DB_NAME"`
	SSLMode  string `envconfig:"CINEVAULT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CINEVAULT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CINEVAULT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CINEVAULT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CINEVAULT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

func (d *DBConfig) ensureDSN() error {
	if d.DSN != "" {
		return nil
	}
	if d.Host == "" || d.User == "" || d.Name == "" {
		return fmt.Errorf("database DSN or host/user/name settings are required")
	}
	d.DSN = fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(d.User),
		url.QueryEscape(d.Password),
		d.Host,
		d.Port,
		d.Name,
		d.SSLMode,
	)
	return nil
}

type RedisConfig struct {
	URL          string        `envconfig:"CINEVAULT_REDIS_URL"`
	Address      string        `envconfig:"CINEVAULT_REDIS_ADDR"`
	Password     string        `envconfig:"CINEVAULT_REDIS_PASSWORD"`
	DB           int           `envconfig:"CINEVAULT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CINEVAULT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CINEVAULT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CINEVAULT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CINEVAULT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CINEVAULT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type StripeConfig struct {
	APIKey string `envconfig:"CINEVAULT_STRIPE_API_KEY"`
	Secret string `envconfig:"CINEVAULT_STRIPE_WEBHOOK_SECRET"`
	Env    string `envconfig:"CINEVAULT_STRIPE_ENV" default:"test"`

	// WebhookEventTTL bounds how long processed event ids stay deduplicated.
	WebhookEventTTL time.Duration `envconfig:"CINEVAULT_STRIPE_WEBHOOK_EVENT_TTL" default:"720h"`
}

func (s StripeConfig) Environment() string {
	return s.Env
}

type PaymentsConfig struct {
	// ChargeTimeout bounds a single gateway call; a timed-out charge stays
	// pending and is settled by webhook or the reconcile job.
	ChargeTimeout time.Duration `envconfig:"CINEVAULT_PAYMENTS_CHARGE_TIMEOUT" default:"10s"`
	// ChargeRetries is the retry budget for transient gateway failures.
	ChargeRetries  int           `envconfig:"CINEVAULT_PAYMENTS_CHARGE_RETRIES" default:"3"`
	ChargeBackoff  time.Duration `envconfig:"CINEVAULT_PAYMENTS_CHARGE_BACKOFF" default:"500ms"`
	MaxAttempts    int           `envconfig:"CINEVAULT_PAYMENTS_MAX_ATTEMPTS" default:"3"`
	ReconcileAfter time.Duration `envconfig:"CINEVAULT_PAYMENTS_RECONCILE_AFTER" default:"30m"`
}

type EmailConfig struct {
	Hostname string `envconfig:"CINEVAULT_EMAIL_HOST"`
	Port     int    `envconfig:"CINEVAULT_EMAIL_PORT" default:"587"`
	From     string `envconfig:"CINEVAULT_EMAIL_FROM"`
	Password string `envconfig:"CINEVAULT_EMAIL_PASSWORD"`
	UseTLS   bool   `envconfig:"CINEVAULT_EMAIL_USE_TLS" default:"true"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"CINEVAULT_CRON_INTERVAL" default:"12h"`
	LockTTL  time.Duration `envconfig:"CINEVAULT_CRON_LOCK_TTL" default:"13h"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"CINEVAULT_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"CINEVAULT_AUTO_MIGRATE" default:"false"`
}
