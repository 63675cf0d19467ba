package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Stripe       StripeConfig
	Mailer       MailerConfig
	Sweep        SweepConfig
	FeatureFlags FeatureFlagsConfig
}

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
	Env          string `envconfig:"RAV_APP_ENV" required:"true"`
	Port         string `envconfig:"RAV_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"RAV_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"RAV_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"RAV_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"RAV_DB_DSN"`
	Driver string `envconfig:"RAV_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"RAV_DB_HOST"`
	LegacyPort     int    `envconfig:"RAV_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"RAV_DB_USER"`
	LegacyPassword string `envconfig:"RAV_DB_PASSWORD"`
	LegacyName     string `envconfig:"RAV_DB_NAME"`
	LegacySSLMode  string `envconfig:"RAV_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"RAV_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"RAV_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"RAV_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"RAV_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"RAV_REDIS_URL" required:"true"`
	Address      string        `envconfig:"RAV_REDIS_ADDR"`
	Password     string        `envconfig:"RAV_REDIS_PASSWORD"`
	DB           int           `envconfig:"RAV_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"RAV_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"RAV_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"RAV_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"RAV_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"RAV_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"RAV_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"RAV_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"RAV_JWT_EXPIRATION_MINUTES" default:"60"`
}

type StripeConfig struct {
	APIKey string `envconfig:"RAV_STRIPE_API_KEY"`
	Secret string `envconfig:"RAV_STRIPE_WEBHOOK_SECRET"`
	Env    string `envconfig:"RAV_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type MailerConfig struct {
	APIKey    string `envconfig:"RAV_MAILERSEND_API_KEY"`
	FromName  string `envconfig:"RAV_MAILER_FROM_NAME" default:"Rent-A-Vacation"`
	FromEmail string `envconfig:"RAV_MAILER_FROM_EMAIL"`
	SiteURL   string `envconfig:"RAV_SITE_URL" default:"https://rent-a-vacation.com"`
}

type SweepConfig struct {
	Interval         time.Duration `envconfig:"RAV_SWEEP_INTERVAL" default:"15m"`
	LockTTL          time.Duration `envconfig:"RAV_SWEEP_LOCK_TTL" default:"30m"`
	WebhookIdemTTL   time.Duration `envconfig:"RAV_WEBHOOK_IDEMPOTENCY_TTL" default:"720h"`
	WebhookIdemScope string        `envconfig:"RAV_WEBHOOK_IDEMPOTENCY_SCOPE" default:"stripe-webhook"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"RAV_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
