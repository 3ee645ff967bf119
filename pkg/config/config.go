package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App     AppConfig
	Service ServiceConfig
	DB      DBConfig
	Redis   RedisConfig
	AdsAPI  AdsAPIConfig
	ETL     ETLConfig
	GCP     GCPConfig
	PubSub  PubSubConfig
	Metrics MetricsConfig
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
	Env          string `envconfig:"ADSYNC_APP_ENV" required:"true"`
	LogLevel     string `envconfig:"ADSYNC_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"ADSYNC_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind        string `envconfig:"ADSYNC_SERVICE_KIND" default:"sync-worker"`
	AutoMigrate bool   `envconfig:"ADSYNC_AUTO_MIGRATE" default:"false"`
}

type DBConfig struct {
	DSN    string `envconfig:"ADSYNC_DB_DSN"`
	Driver string `envconfig:"ADSYNC_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"ADSYNC_DB_HOST"`
	LegacyPort     int    `envconfig:"ADSYNC_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"ADSYNC_DB_USER"`
	LegacyPassword string `envconfig:"ADSYNC_DB_PASSWORD"`
	LegacyName     string `envconfig:"ADSYNC_DB_NAME"`
	LegacySSLMode  string `envconfig:"ADSYNC_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"ADSYNC_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"ADSYNC_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"ADSYNC_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"ADSYNC_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"ADSYNC_REDIS_URL" required:"true"`
	Password     string        `envconfig:"ADSYNC_REDIS_PASSWORD"`
	DB           int           `envconfig:"ADSYNC_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"ADSYNC_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"ADSYNC_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"ADSYNC_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"ADSYNC_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"ADSYNC_REDIS_WRITE_TIMEOUT" default:"5s"`
	RunLockTTL   time.Duration `envconfig:"ADSYNC_REDIS_RUN_LOCK_TTL" default:"2h"`
}

// AdsAPIConfig points at the upstream ads-insights API.
type AdsAPIConfig struct {
	BaseURL        string        `envconfig:"ADSYNC_ADS_API_BASE_URL" required:"true"`
	AccessToken    string        `envconfig:"ADSYNC_ADS_API_ACCESS_TOKEN" required:"true"`
	RequestTimeout time.Duration `envconfig:"ADSYNC_ADS_API_REQUEST_TIMEOUT" default:"60s"`
	PageSize       int           `envconfig:"ADSYNC_ADS_API_PAGE_SIZE" default:"500"`
}

// ETLConfig carries the pipeline tuning knobs. The defaults are a starting
// point and have not been validated against real upstream rate limits.
type ETLConfig struct {
	ChunkDays       int           `envconfig:"ADSYNC_ETL_CHUNK_DAYS" default:"30"`
	FetchWorkers    int           `envconfig:"ADSYNC_ETL_FETCH_WORKERS" default:"5"`
	MaxAttempts     int           `envconfig:"ADSYNC_ETL_MAX_ATTEMPTS" default:"5"`
	BackoffBase     time.Duration `envconfig:"ADSYNC_ETL_BACKOFF_BASE" default:"1s"`
	LookbackDays    int           `envconfig:"ADSYNC_ETL_DEFAULT_LOOKBACK_DAYS" default:"90"`
	MaxLookbackDays int           `envconfig:"ADSYNC_ETL_MAX_LOOKBACK_DAYS" default:"1095"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"ADSYNC_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"ADSYNC_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"ADSYNC_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	SyncTopic        string `envconfig:"ADSYNC_PUBSUB_SYNC_TOPIC" default:"adsync-sync-requests"`
	SyncSubscription string `envconfig:"ADSYNC_PUBSUB_SYNC_SUBSCRIPTION" required:"true"`
	ProgressTopic    string `envconfig:"ADSYNC_PUBSUB_PROGRESS_TOPIC" default:"adsync-sync-progress"`
}

type MetricsConfig struct {
	Addr string `envconfig:"ADSYNC_METRICS_ADDR" default:":9090"`
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
