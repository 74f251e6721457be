package config

import (
	"fmt"
	"net"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	Sync         SyncConfig
	Cron         CronConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.Sync.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"QUIZLINK_APP_ENV" required:"true"`
	Port         string `envconfig:"QUIZLINK_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"QUIZLINK_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"QUIZLINK_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"QUIZLINK_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"QUIZLINK_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"QUIZLINK_DB_DSN"`
	Driver string `envconfig:"QUIZLINK_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"QUIZLINK_DB_HOST"`
	LegacyPort     int    `envconfig:"QUIZLINK_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"QUIZLINK_DB_USER"`
	LegacyPassword string `envconfig:"QUIZLINK_DB_PASSWORD"`
	LegacyName     string `envconfig:"QUIZLINK_DB_NAME"`
	LegacySSLMode  string `envconfig:"QUIZLINK_DB_SSLMODE" default:"disable"`

	SQLitePath string `envconfig:"QUIZLINK_SQLITE_PATH" default:"quizlink.db"`

	MaxOpenConns    int           `envconfig:"QUIZLINK_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"QUIZLINK_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"QUIZLINK_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"QUIZLINK_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	// SlowQuery logs statements slower than this at warn. Zero disables it.
	SlowQuery time.Duration `envconfig:"QUIZLINK_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"QUIZLINK_REDIS_URL"`
	Address      string        `envconfig:"QUIZLINK_REDIS_ADDR"`
	Password     string        `envconfig:"QUIZLINK_REDIS_PASSWORD"`
	DB           int           `envconfig:"QUIZLINK_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"QUIZLINK_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"QUIZLINK_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"QUIZLINK_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"QUIZLINK_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"QUIZLINK_REDIS_WRITE_TIMEOUT" default:"5s"`
	KeyPrefix    string        `envconfig:"QUIZLINK_REDIS_KEY_PREFIX" default:"ql"`
}

// Enabled reports whether a redis endpoint was configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

type FeatureFlagsConfig struct {
	UseSQLite    bool `envconfig:"QUIZLINK_USE_SQLITE" default:"false"`
	AutoMigrate  bool `envconfig:"QUIZLINK_AUTO_MIGRATE" default:"false"`
	UseLocalLock bool `envconfig:"QUIZLINK_USE_LOCAL_LOCK" default:"false"`
}

// SyncConfig drives the attribution reconciliation pass.
type SyncConfig struct {
	MaxWindow           time.Duration `envconfig:"QUIZLINK_SYNC_MAX_WINDOW" default:"168h"`
	MaxAttributionDelay time.Duration `envconfig:"QUIZLINK_SYNC_MAX_ATTRIBUTION_DELAY" default:"24h"`
	SafetyLag           time.Duration `envconfig:"QUIZLINK_SYNC_SAFETY_LAG" default:"5m"`
	BootstrapLookback   time.Duration `envconfig:"QUIZLINK_SYNC_BOOTSTRAP_LOOKBACK" default:"24h"`
	Interval            time.Duration `envconfig:"QUIZLINK_SYNC_INTERVAL" default:"15m"`
	LockTTL             time.Duration `envconfig:"QUIZLINK_SYNC_LOCK_TTL" default:"30m"`
	Concurrency         int           `envconfig:"QUIZLINK_SYNC_CONCURRENCY" default:"4"`
	Shops               []string      `envconfig:"QUIZLINK_SYNC_SHOPS"`
	CustomerTieBreak    string        `envconfig:"QUIZLINK_SYNC_CUSTOMER_TIE_BREAK" default:"latest_start"`
	ProximityPolicy     string        `envconfig:"QUIZLINK_SYNC_PROXIMITY_POLICY" default:"closest_start"`
	ReportingTimezone   string        `envconfig:"QUIZLINK_SYNC_REPORTING_TZ" default:"UTC"`
	TriggerWindow       time.Duration `envconfig:"QUIZLINK_SYNC_TRIGGER_WINDOW" default:"1m"`
	TriggerLimit        int           `envconfig:"QUIZLINK_SYNC_TRIGGER_LIMIT" default:"6"`
	EmitEvents          bool          `envconfig:"QUIZLINK_SYNC_EMIT_EVENTS" default:"true"`
}

// Location resolves the reporting timezone, falling back to UTC.
func (s SyncConfig) Location() *time.Location {
	name := strings.TrimSpace(s.ReportingTimezone)
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (s SyncConfig) validate() error {
	if s.MaxWindow <= 0 {
		return fmt.Errorf("%s must be positive", EnvSyncMaxWindow)
	}
	if s.MaxAttributionDelay <= 0 {
		return fmt.Errorf("%s must be positive", EnvSyncMaxAttributionDelay)
	}
	if s.SafetyLag < 0 {
		return fmt.Errorf("%s must not be negative", EnvSyncSafetyLag)
	}
	if _, err := time.LoadLocation(strings.TrimSpace(s.ReportingTimezone)); err != nil {
		return fmt.Errorf("%s: %w", EnvSyncReportingTZ, err)
	}
	return nil
}

// CronConfig tunes the cron-worker loop.
type CronConfig struct {
	RunOnce    bool          `envconfig:"QUIZLINK_CRON_RUN_ONCE" default:"false"`
	JobTimeout time.Duration `envconfig:"QUIZLINK_CRON_JOB_TIMEOUT" default:"10m"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"QUIZLINK_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	SyncTopic string `envconfig:"QUIZLINK_PUBSUB_SYNC_TOPIC" default:"attribution-sync"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"QUIZLINK_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollInterval   time.Duration `envconfig:"QUIZLINK_OUTBOX_POLL_INTERVAL" default:"500ms"`
	MaxBackoff     time.Duration `envconfig:"QUIZLINK_OUTBOX_MAX_BACKOFF" default:"10s"`
	PublishTimeout time.Duration `envconfig:"QUIZLINK_OUTBOX_PUBLISH_TIMEOUT" default:"15s"`
	MaxAttempts    int           `envconfig:"QUIZLINK_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

// ValidatePublisher checks the settings only the outbox publisher needs.
func (c *Config) ValidatePublisher() error {
	if strings.TrimSpace(c.GCP.ProjectID) == "" {
		return fmt.Errorf("%s is required for the outbox publisher", EnvGCPProjectID)
	}
	if strings.TrimSpace(c.PubSub.SyncTopic) == "" {
		return fmt.Errorf("%s is required for the outbox publisher", EnvPubSubSyncTopic)
	}
	return nil
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	switch {
	case useSQLite:
		db.Driver = DBDriverSQLite
		if db.DSN == "" {
			db.DSN = db.SQLitePath
		}
		return nil
	case db.DSN != "":
		return nil
	}

	var absent []string
	for env, v := range map[string]string{EnvDBHost: db.LegacyHost, EnvDBUser: db.LegacyUser, EnvDBName: db.LegacyName} {
		if v == "" {
			absent = append(absent, env)
		}
	}
	if len(absent) > 0 {
		slices.Sort(absent)
		return fmt.Errorf("set %s, or all of %s", EnvDBDSN, strings.Join(absent, ", "))
	}

	dsn := url.URL{
		Scheme: DBDriverPostgres,
		User:   url.User(db.LegacyUser),
		Host:   net.JoinHostPort(db.LegacyHost, strconv.Itoa(db.LegacyPort)),
		Path:   db.LegacyName,
	}
	if db.LegacyPassword != "" {
		dsn.User = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}
	if db.LegacySSLMode != "" {
		dsn.RawQuery = url.Values{"sslmode": {db.LegacySSLMode}}.Encode()
	}
	db.DSN = dsn.String()
	return nil
}
