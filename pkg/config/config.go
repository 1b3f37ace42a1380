package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "DISPATCH"

	AppEnvDev  = "dev"
	AppEnvProd = "production"

	EnvAppEnv   = "DISPATCH_APP_ENV"
	EnvPort     = "DISPATCH_APP_PORT"
	EnvDBDSN    = "DISPATCH_DB_DSN"
	EnvDBHost   = "DISPATCH_DB_HOST"
	EnvDBUser   = "DISPATCH_DB_USER"
	EnvDBName   = "DISPATCH_DB_NAME"
	EnvRedisURL = "DISPATCH_REDIS_URL"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	Dispatch     DispatchConfig
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
	Env          string `envconfig:"DISPATCH_APP_ENV" required:"true"`
	Port         string `envconfig:"DISPATCH_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"DISPATCH_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"DISPATCH_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"DISPATCH_DB_DSN"`
	Driver string `envconfig:"DISPATCH_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"DISPATCH_DB_HOST"`
	LegacyPort     int    `envconfig:"DISPATCH_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"DISPATCH_DB_USER"`
	LegacyPassword string `envconfig:"DISPATCH_DB_PASSWORD"`
	LegacyName     string `envconfig:"DISPATCH_DB_NAME"`
	LegacySSLMode  string `envconfig:"DISPATCH_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"DISPATCH_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"DISPATCH_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"DISPATCH_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"DISPATCH_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

func (db *DBConfig) ensureDSN() error {
	if strings.TrimSpace(db.DSN) != "" {
		return nil
	}

	legacyDBEnvVars := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	var missing []string
	for env, value := range legacyDBEnvVars {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, env)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	dsn := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(db.LegacyUser, db.LegacyPassword),
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}
	query := dsn.Query()
	query.Set("sslmode", db.LegacySSLMode)
	dsn.RawQuery = query.Encode()
	db.DSN = dsn.String()
	return nil
}

type RedisConfig struct {
	URL          string        `envconfig:"DISPATCH_REDIS_URL" required:"true"`
	Password     string        `envconfig:"DISPATCH_REDIS_PASSWORD"`
	DB           int           `envconfig:"DISPATCH_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"DISPATCH_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"DISPATCH_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"DISPATCH_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"DISPATCH_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"DISPATCH_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// DispatchConfig holds the matching and settlement tunables.
type DispatchConfig struct {
	MatchRadiusKm      float64       `envconfig:"DISPATCH_MATCH_RADIUS_KM" default:"10"`
	EtaMinutesPerKm    float64       `envconfig:"DISPATCH_ETA_MINUTES_PER_KM" default:"3"`
	BaseDeliveryFee    string        `envconfig:"DISPATCH_BASE_DELIVERY_FEE" default:"15.00"`
	DistanceRatePerKm  string        `envconfig:"DISPATCH_DISTANCE_RATE_PER_KM" default:"2.00"`
	MinCancelReasonLen int           `envconfig:"DISPATCH_MIN_CANCEL_REASON_LEN" default:"10"`
	PositionCacheTTL   time.Duration `envconfig:"DISPATCH_POSITION_CACHE_TTL" default:"2m"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"DISPATCH_AUTO_MIGRATE" default:"false"`
}
