package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	AuthRateLimit AuthRateLimitConfig
	FeatureFlags  FeatureFlagsConfig
	Razorpay      RazorpayConfig
	Timeouts      TimeoutConfig
	Payments      PaymentsConfig
	GCP           GCPConfig
	PubSub        PubSubConfig
	Outbox        OutboxConfig
	Cron          CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if cfg.App.IsProd() {
		if err := cfg.validateProd(); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

// validateProd rejects settings that are only acceptable against local fakes.
func (c *Config) validateProd() error {
	if !strings.EqualFold(c.DB.Driver, "postgres") {
		return fmt.Errorf("%s must be postgres in prod", EnvDBDriver)
	}
	if !strings.HasPrefix(c.Razorpay.BaseURL, "https://") {
		return fmt.Errorf("%s must use https in prod", EnvRazorpayBaseURL)
	}
	return nil
}

type AppConfig struct {
	Env            string `envconfig:"LEARNHUB_APP_ENV" required:"true"`
	Port           string `envconfig:"LEARNHUB_APP_PORT" required:"true"`
	LogLevel       string `envconfig:"LEARNHUB_LOG_LEVEL" default:"info"`
	LogWarnStack   bool   `envconfig:"LEARNHUB_LOG_WARN_STACK" default:"false"`
	FrontendOrigin string `envconfig:"LEARNHUB_FRONTEND_ORIGIN" default:"http://localhost:5173"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// AllowedOrigins splits the configured frontend origin list on commas.
func (a AppConfig) AllowedOrigins() []string {
	out := []string{}
	for _, origin := range strings.Split(a.FrontendOrigin, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

type ServiceConfig struct {
	Kind string `envconfig:"LEARNHUB_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"LEARNHUB_DB_DSN"`
	Driver string `envconfig:"LEARNHUB_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"LEARNHUB_DB_HOST"`
	LegacyPort     int    `envconfig:"LEARNHUB_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"LEARNHUB_DB_USER"`
	LegacyPassword string `envconfig:"LEARNHUB_DB_PASSWORD"`
	LegacyName     string `envconfig:"LEARNHUB_DB_NAME"`
	LegacySSLMode  string `envconfig:"LEARNHUB_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"LEARNHUB_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"LEARNHUB_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"LEARNHUB_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"LEARNHUB_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"LEARNHUB_REDIS_URL" required:"true"`
	Address      string        `envconfig:"LEARNHUB_REDIS_ADDR"`
	Password     string        `envconfig:"LEARNHUB_REDIS_PASSWORD"`
	DB           int           `envconfig:"LEARNHUB_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"LEARNHUB_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"LEARNHUB_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"LEARNHUB_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"LEARNHUB_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"LEARNHUB_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret                 string `envconfig:"LEARNHUB_JWT_SECRET" required:"true"`
	Issuer                 string `envconfig:"LEARNHUB_JWT_ISSUER" required:"true"`
	ExpirationMinutes      int    `envconfig:"LEARNHUB_JWT_EXPIRATION_MINUTES" required:"true"`
	RefreshTokenTTLMinutes int    `envconfig:"LEARNHUB_REFRESH_TOKEN_TTL_MINUTES" default:"43200"`
}

// RefreshTokenTTL returns the session TTL configured in minutes.
func (j JWTConfig) RefreshTokenTTL() time.Duration {
	if j.RefreshTokenTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.RefreshTokenTTLMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"LEARNHUB_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"LEARNHUB_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"LEARNHUB_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"LEARNHUB_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"LEARNHUB_ARGON_KEY_LEN" default:"32"`
}

type AuthRateLimitConfig struct {
	LoginWindow      time.Duration `envconfig:"LEARNHUB_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit  int           `envconfig:"LEARNHUB_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit     int           `envconfig:"LEARNHUB_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	SignupWindow     time.Duration `envconfig:"LEARNHUB_AUTH_RATE_LIMIT_SIGNUP_WINDOW" default:"5m"`
	SignupEmailLimit int           `envconfig:"LEARNHUB_AUTH_RATE_LIMIT_SIGNUP_EMAIL_LIMIT" default:"3"`
	SignupIPLimit    int           `envconfig:"LEARNHUB_AUTH_RATE_LIMIT_SIGNUP_IP_LIMIT" default:"20"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"LEARNHUB_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"LEARNHUB_AUTO_MIGRATE" default:"false"`
}

type RazorpayConfig struct {
	KeyID         string `envconfig:"LEARNHUB_RAZORPAY_KEY_ID" required:"true"`
	KeySecret     string `envconfig:"LEARNHUB_RAZORPAY_KEY_SECRET" required:"true"`
	WebhookSecret string `envconfig:"LEARNHUB_RAZORPAY_WEBHOOK_SECRET" required:"true"`
	BaseURL       string `envconfig:"LEARNHUB_RAZORPAY_BASE_URL" default:"https://api.razorpay.com"`
	Currency      string `envconfig:"LEARNHUB_RAZORPAY_CURRENCY" default:"INR"`
}

// TimeoutConfig bounds every call to an external collaborator.
type TimeoutConfig struct {
	Identity time.Duration `envconfig:"LEARNHUB_IDENTITY_TIMEOUT" default:"3s"`
	Gateway  time.Duration `envconfig:"LEARNHUB_GATEWAY_TIMEOUT" default:"10s"`
	Store    time.Duration `envconfig:"LEARNHUB_STORE_TIMEOUT" default:"5s"`
}

type PaymentsConfig struct {
	StaleAfter time.Duration `envconfig:"LEARNHUB_PAYMENTS_STALE_AFTER" default:"24h"`
	WebhookTTL time.Duration `envconfig:"LEARNHUB_PAYMENTS_WEBHOOK_DEDUPE_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"LEARNHUB_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"LEARNHUB_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"LEARNHUB_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	EnrollmentTopic string `envconfig:"LEARNHUB_PUBSUB_ENROLLMENT_TOPIC" default:"learnhub-enrollment-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"LEARNHUB_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"LEARNHUB_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"LEARNHUB_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type CronConfig struct {
	Interval            time.Duration `envconfig:"LEARNHUB_CRON_INTERVAL" default:"15m"`
	LockTTL             time.Duration `envconfig:"LEARNHUB_CRON_LOCK_TTL" default:"10m"`
	StaleBatchSize      int           `envconfig:"LEARNHUB_CRON_STALE_BATCH_SIZE" default:"100"`
	OutboxRetentionDays int           `envconfig:"LEARNHUB_CRON_OUTBOX_RETENTION_DAYS" default:"30"`
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
