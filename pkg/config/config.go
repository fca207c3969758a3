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
	FeatureFlags FeatureFlagsConfig
	Store        StoreConfig
	PayGate      PayGateConfig
	Geo          GeoConfig
	Cron         CronConfig
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
	Env          string `envconfig:"MORNINGMARKET_APP_ENV" required:"true"`
	Port         string `envconfig:"MORNINGMARKET_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"MORNINGMARKET_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"MORNINGMARKET_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"MORNINGMARKET_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"MORNINGMARKET_DB_DSN"`
	Driver string `envconfig:"MORNINGMARKET_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"MORNINGMARKET_DB_HOST"`
	LegacyPort     int    `envconfig:"MORNINGMARKET_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"MORNINGMARKET_DB_USER"`
	LegacyPassword string `envconfig:"MORNINGMARKET_DB_PASSWORD"`
	LegacyName     string `envconfig:"MORNINGMARKET_DB_NAME"`
	LegacySSLMode  string `envconfig:"MORNINGMARKET_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"MORNINGMARKET_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MORNINGMARKET_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MORNINGMARKET_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MORNINGMARKET_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"MORNINGMARKET_REDIS_URL" required:"true"`
	Address      string        `envconfig:"MORNINGMARKET_REDIS_ADDR"`
	Password     string        `envconfig:"MORNINGMARKET_REDIS_PASSWORD"`
	DB           int           `envconfig:"MORNINGMARKET_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MORNINGMARKET_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MORNINGMARKET_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MORNINGMARKET_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MORNINGMARKET_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MORNINGMARKET_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"MORNINGMARKET_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"MORNINGMARKET_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"MORNINGMARKET_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"MORNINGMARKET_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"MORNINGMARKET_AUTO_MIGRATE" default:"false"`
}

// StoreConfig carries the physical store parameters the reservation and
// fee logic depend on. Deadlines are wall-clock hours in the store's zone.
type StoreConfig struct {
	Timezone           string  `envconfig:"MORNINGMARKET_STORE_TIMEZONE" default:"America/Chicago"`
	CancelCutoffHour   int     `envconfig:"MORNINGMARKET_STORE_CANCEL_CUTOFF_HOUR" default:"13"`
	PickupDeadlineHour int     `envconfig:"MORNINGMARKET_STORE_PICKUP_DEADLINE_HOUR" default:"20"`
	WarnThreshold      int     `envconfig:"MORNINGMARKET_STORE_WARN_THRESHOLD" default:"3"`
	OriginLat          float64 `envconfig:"MORNINGMARKET_STORE_ORIGIN_LAT" default:"41.8781"`
	OriginLng          float64 `envconfig:"MORNINGMARKET_STORE_ORIGIN_LNG" default:"-87.6298"`

	DeliveryBaseFeeCents     int `envconfig:"MORNINGMARKET_DELIVERY_BASE_FEE_CENTS" default:"300"`
	DeliveryPerKmCents       int `envconfig:"MORNINGMARKET_DELIVERY_PER_KM_CENTS" default:"50"`
	DeliveryFreeKm           int `envconfig:"MORNINGMARKET_DELIVERY_FREE_KM" default:"3"`
	DeliveryMaxKm            int `envconfig:"MORNINGMARKET_DELIVERY_MAX_KM" default:"15"`
	DeliverySurchargeCents   int `envconfig:"MORNINGMARKET_DELIVERY_SURCHARGE_CENTS" default:"200"`
	DeliverySurchargeAfterKm int `envconfig:"MORNINGMARKET_DELIVERY_SURCHARGE_AFTER_KM" default:"10"`
}

// Location resolves the configured store timezone, falling back to UTC.
func (s StoreConfig) Location() *time.Location {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type PayGateConfig struct {
	Enabled     bool          `envconfig:"MORNINGMARKET_PAYGATE_ENABLED" default:"false"`
	Provider    string        `envconfig:"MORNINGMARKET_PAYGATE_PROVIDER" default:"kakaopay"`
	BaseURL     string        `envconfig:"MORNINGMARKET_PAYGATE_BASE_URL"`
	AdminKey    string        `envconfig:"MORNINGMARKET_PAYGATE_ADMIN_KEY"`
	MerchantCID string        `envconfig:"MORNINGMARKET_PAYGATE_CID" default:"TC0ONETIME"`
	ApprovalURL string        `envconfig:"MORNINGMARKET_PAYGATE_APPROVAL_URL"`
	CancelURL   string        `envconfig:"MORNINGMARKET_PAYGATE_CANCEL_URL"`
	FailURL     string        `envconfig:"MORNINGMARKET_PAYGATE_FAIL_URL"`
	Timeout     time.Duration `envconfig:"MORNINGMARKET_PAYGATE_TIMEOUT" default:"10s"`
	MaxRetries  int           `envconfig:"MORNINGMARKET_PAYGATE_MAX_RETRIES" default:"3"`
}

type GeoConfig struct {
	APIKey  string        `envconfig:"MORNINGMARKET_GEO_API_KEY"`
	BaseURL string        `envconfig:"MORNINGMARKET_GEO_BASE_URL"`
	Timeout time.Duration `envconfig:"MORNINGMARKET_GEO_TIMEOUT" default:"10s"`
}

type CronConfig struct {
	Interval              time.Duration `envconfig:"MORNINGMARKET_CRON_INTERVAL" default:"10m"`
	ReconcileGracePeriod  time.Duration `envconfig:"MORNINGMARKET_RECONCILE_GRACE_PERIOD" default:"10m"`
	ReconcileBatchSize    int           `envconfig:"MORNINGMARKET_RECONCILE_BATCH_SIZE" default:"100"`
	SettlementLookbackDay int           `envconfig:"MORNINGMARKET_SETTLEMENT_LOOKBACK_DAYS" default:"1"`
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
