package config

// EnvPrefix is passed to envconfig; individual fields carry explicit
// ADSYNC_-prefixed tags so the prefix stays empty.
const EnvPrefix = ""

const (
	AppEnvDev  = "development"
	AppEnvProd = "production"
)

// Environment variable names referenced outside struct tags.
const (
	EnvAppEnv      = "ADSYNC_APP_ENV"
	EnvDBDSN       = "ADSYNC_DB_DSN"
	EnvDBHost      = "ADSYNC_DB_HOST"
	EnvDBUser      = "ADSYNC_DB_USER"
	EnvDBName      = "ADSYNC_DB_NAME"
	EnvRedisURL    = "ADSYNC_REDIS_URL"
	EnvGCPProject  = "ADSYNC_GCP_PROJECT_ID"
	EnvAdsBaseURL  = "ADSYNC_ADS_API_BASE_URL"
	EnvAdsToken    = "ADSYNC_ADS_API_ACCESS_TOKEN"
	EnvSyncSub     = "ADSYNC_PUBSUB_SYNC_SUBSCRIPTION"
	EnvSyncTopic   = "ADSYNC_PUBSUB_SYNC_TOPIC"
	EnvProgressTop = "ADSYNC_PUBSUB_PROGRESS_TOPIC"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
