package config

const (
	// EnvPrefix namespaces every environment variable the service reads.
	EnvPrefix = "rav"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv = "RAV_APP_ENV"
	EnvPort   = "RAV_APP_PORT"

	EnvDBDSN  = "RAV_DB_DSN"
	EnvDBHost = "RAV_DB_HOST"
	EnvDBUser = "RAV_DB_USER"
	EnvDBName = "RAV_DB_NAME"

	EnvRedisURL  = "RAV_REDIS_URL"
	EnvJWTSecret = "RAV_JWT_SECRET"
	EnvJWTIssuer = "RAV_JWT_ISSUER"

	EnvStripeAPIKey        = "RAV_STRIPE_API_KEY"
	EnvStripeWebhookSecret = "RAV_STRIPE_WEBHOOK_SECRET"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
