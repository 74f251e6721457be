package config

const EnvPrefix = "QUIZLINK"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
)

const (
	EnvAppEnv   = "QUIZLINK_APP_ENV"
	EnvPort     = "QUIZLINK_APP_PORT"
	EnvLogLevel = "QUIZLINK_LOG_LEVEL"

	EnvDBDSN  = "QUIZLINK_DB_DSN"
	EnvDBHost = "QUIZLINK_DB_HOST"
	EnvDBUser = "QUIZLINK_DB_USER"
	EnvDBName = "QUIZLINK_DB_NAME"

	EnvRedisURL = "QUIZLINK_REDIS_URL"

	EnvUseSQLite    = "QUIZLINK_USE_SQLITE"
	EnvUseLocalLock = "QUIZLINK_USE_LOCAL_LOCK"

	EnvSyncMaxWindow           = "QUIZLINK_SYNC_MAX_WINDOW"
	EnvSyncMaxAttributionDelay = "QUIZLINK_SYNC_MAX_ATTRIBUTION_DELAY"
	EnvSyncSafetyLag           = "QUIZLINK_SYNC_SAFETY_LAG"
	EnvSyncShops               = "QUIZLINK_SYNC_SHOPS"
	EnvSyncReportingTZ         = "QUIZLINK_SYNC_REPORTING_TZ"

	EnvGCPProjectID    = "QUIZLINK_GCP_PROJECT_ID"
	EnvPubSubSyncTopic = "QUIZLINK_PUBSUB_SYNC_TOPIC"
)
