package config

// EnvPrefix is empty because every field names its full variable.
const EnvPrefix = ""

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv   = "LEARNHUB_APP_ENV"
	EnvPort     = "LEARNHUB_APP_PORT"
	EnvLogLevel = "LEARNHUB_LOG_LEVEL"

	EnvDBDSN    = "LEARNHUB_DB_DSN"
	EnvDBDriver = "LEARNHUB_DB_DRIVER"
	EnvDBHost   = "LEARNHUB_DB_HOST"
	EnvDBUser   = "LEARNHUB_DB_USER"
	EnvDBName   = "LEARNHUB_DB_NAME"

	EnvRedisURL = "LEARNHUB_REDIS_URL"

	EnvJWTSecret              = "LEARNHUB_JWT_SECRET"
	EnvJWTIssuer              = "LEARNHUB_JWT_ISSUER"
	EnvJWTExpMins             = "LEARNHUB_JWT_EXPIRATION_MINUTES"
	EnvRefreshTokenTTLMinutes = "LEARNHUB_REFRESH_TOKEN_TTL_MINUTES"

	EnvRazorpayKeyID         = "LEARNHUB_RAZORPAY_KEY_ID"
	EnvRazorpayKeySecret     = "LEARNHUB_RAZORPAY_KEY_SECRET"
	EnvRazorpayWebhookSecret = "LEARNHUB_RAZORPAY_WEBHOOK_SECRET"
	EnvRazorpayBaseURL       = "LEARNHUB_RAZORPAY_BASE_URL"

	EnvGatewayTimeout = "LEARNHUB_GATEWAY_TIMEOUT"
	EnvFrontendOrigin = "LEARNHUB_FRONTEND_ORIGIN"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
