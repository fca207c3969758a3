package config

// EnvPrefix is the envconfig prefix for every MorningMarket variable.
const EnvPrefix = "MORNINGMARKET"

const (
	AppEnvDev  = "development"
	AppEnvProd = "production"
)

const (
	EnvAppEnv     = "MORNINGMARKET_APP_ENV"
	EnvPort       = "MORNINGMARKET_APP_PORT"
	EnvDBDSN      = "MORNINGMARKET_DB_DSN"
	EnvDBHost     = "MORNINGMARKET_DB_HOST"
	EnvDBUser     = "MORNINGMARKET_DB_USER"
	EnvDBName     = "MORNINGMARKET_DB_NAME"
	EnvRedisURL   = "MORNINGMARKET_REDIS_URL"
	EnvJWTSecret  = "MORNINGMARKET_JWT_SECRET"
	EnvJWTIssuer  = "MORNINGMARKET_JWT_ISSUER"
	EnvJWTExpMins = "MORNINGMARKET_JWT_EXPIRATION_MINUTES"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
