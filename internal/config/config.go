package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/headonpro/viktoria-wertheim-backend-sub010/internal/platform/logging"
)

const (
	EnvDev   = "development"
	EnvTest  = "test"
	EnvStage = "staging"
	EnvProd  = "production"
)

// Features are runtime toggles. Mutation is rejected in production.
type Features struct {
	mu sync.RWMutex

	appEnv               string
	AutomaticCalculation bool
	QueueProcessing      bool
	SnapshotCreation     bool
	Caching              bool
	CircuitBreaker       bool
	Notifications        bool
}

// Set flips a named feature flag at runtime. Production configurations are
// immutable after load.
func (f *Features) Set(name string, enabled bool) error {
	if f.appEnv == EnvProd {
		return fmt.Errorf("feature flags are immutable in %s", EnvProd)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	switch name {
	case "automaticCalculation":
		f.AutomaticCalculation = enabled
	case "queueProcessing":
		f.QueueProcessing = enabled
	case "snapshotCreation":
		f.SnapshotCreation = enabled
	case "caching":
		f.Caching = enabled
	case "circuitBreaker":
		f.CircuitBreaker = enabled
	case "notifications":
		f.Notifications = enabled
	default:
		return fmt.Errorf("unknown feature flag %q", name)
	}
	return nil
}

func (f *Features) Get(name string) (bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	switch name {
	case "automaticCalculation":
		return f.AutomaticCalculation, nil
	case "queueProcessing":
		return f.QueueProcessing, nil
	case "snapshotCreation":
		return f.SnapshotCreation, nil
	case "caching":
		return f.Caching, nil
	case "circuitBreaker":
		return f.CircuitBreaker, nil
	case "notifications":
		return f.Notifications, nil
	default:
		return false, fmt.Errorf("unknown feature flag %q", name)
	}
}

// Config stores runtime configuration for the calculation core.
type Config struct {
	AppEnv         string
	ServiceName    string
	ServiceVersion string
	DBURL          string
	// DBDisablePreparedBinary appends disable_prepared_binary_result=yes to
	// the connection URL; required by some pgbouncer setups.
	DBDisablePreparedBinary bool
	LogLevel                logging.Level

	QueueConcurrency      int
	QueueMaxRetries       int
	QueueRetryDelay       time.Duration
	QueueMaxRetryDelay    time.Duration
	QueueJobTimeout       time.Duration
	QueueMaxPendingJobs   int
	QueueMaxCompletedJobs int
	QueueMaxFailedJobs    int
	QueueDefaultPriority  string
	QueuePriorityManual   string
	QueuePriorityGameResult string
	QueuePriorityScheduled  string

	SnapshotDirectory          string
	SnapshotMaxCount           int
	SnapshotMaxAgeDays         int
	SnapshotCompressionEnabled bool
	SnapshotChecksumEnabled    bool

	CacheEnabled         bool
	CacheDefaultTTL      time.Duration
	CacheTableDataTTL    time.Duration
	CacheSweepInterval   time.Duration

	CalculationTimeout    time.Duration
	CalculationMaxTeams   int

	CircuitEnabled          bool
	CircuitFailureThreshold int
	CircuitOpenTimeout      time.Duration

	Features *Features
}

func Load() (Config, error) {
	appEnv, err := parseAppEnv(getEnv("APP_ENV", EnvDev))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppEnv:         appEnv,
		ServiceName:    getEnv("SERVICE_NAME", "viktoria-table-core"),
		ServiceVersion: getEnv("SERVICE_VERSION", "dev"),
		DBURL:          strings.TrimSpace(getEnv("DATABASE_URL", "")),
		LogLevel:       parseLogLevel(getEnv("LOG_LEVEL", defaultLogLevel(appEnv))),
	}

	cfg.DBDisablePreparedBinary, err = strconv.ParseBool(getEnv("DATABASE_DISABLE_PREPARED_BINARY_RESULT", "false"))
	if err != nil {
		return Config{}, fmt.Errorf("parse DATABASE_DISABLE_PREPARED_BINARY_RESULT: %w", err)
	}

	cfg.QueueConcurrency, err = getEnvAsInt("QUEUE_CONCURRENCY", 2)
	if err != nil {
		return Config{}, fmt.Errorf("parse QUEUE_CONCURRENCY: %w", err)
	}
	if cfg.QueueConcurrency < 1 {
		return Config{}, fmt.Errorf("QUEUE_CONCURRENCY must be at least 1")
	}
	// The test profile runs jobs strictly serially.
	if appEnv == EnvTest && cfg.QueueConcurrency > 1 {
		cfg.QueueConcurrency = 1
	}

	cfg.QueueMaxRetries, err = getEnvAsInt("QUEUE_MAX_RETRIES", 3)
	if err != nil {
		return Config{}, fmt.Errorf("parse QUEUE_MAX_RETRIES: %w", err)
	}
	cfg.QueueRetryDelay, err = time.ParseDuration(getEnv("QUEUE_RETRY_DELAY", "1s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse QUEUE_RETRY_DELAY: %w", err)
	}
	if backoffType := getEnv("QUEUE_BACKOFF_TYPE", "exponential"); backoffType != "exponential" {
		return Config{}, fmt.Errorf("unsupported QUEUE_BACKOFF_TYPE %q", backoffType)
	}
	cfg.QueueMaxRetryDelay, err = time.ParseDuration(getEnv("QUEUE_BACKOFF_MAX_DELAY", "30s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse QUEUE_BACKOFF_MAX_DELAY: %w", err)
	}
	cfg.QueueJobTimeout, err = time.ParseDuration(getEnv("QUEUE_JOB_TIMEOUT", "2m"))
	if err != nil {
		return Config{}, fmt.Errorf("parse QUEUE_JOB_TIMEOUT: %w", err)
	}
	cfg.QueueMaxPendingJobs, err = getEnvAsInt("QUEUE_MAX_PENDING_JOBS", 100)
	if err != nil {
		return Config{}, fmt.Errorf("parse QUEUE_MAX_PENDING_JOBS: %w", err)
	}
	cfg.QueueMaxCompletedJobs, err = getEnvAsInt("QUEUE_MAX_COMPLETED_JOBS", 50)
	if err != nil {
		return Config{}, fmt.Errorf("parse QUEUE_MAX_COMPLETED_JOBS: %w", err)
	}
	cfg.QueueMaxFailedJobs, err = getEnvAsInt("QUEUE_MAX_FAILED_JOBS", 50)
	if err != nil {
		return Config{}, fmt.Errorf("parse QUEUE_MAX_FAILED_JOBS: %w", err)
	}

	cfg.QueueDefaultPriority, err = parsePriority(getEnv("QUEUE_PRIORITY_DEFAULT", "normal"))
	if err != nil {
		return Config{}, fmt.Errorf("parse QUEUE_PRIORITY_DEFAULT: %w", err)
	}
	cfg.QueuePriorityManual, err = parsePriority(getEnv("QUEUE_PRIORITY_MANUAL", "normal"))
	if err != nil {
		return Config{}, fmt.Errorf("parse QUEUE_PRIORITY_MANUAL: %w", err)
	}
	cfg.QueuePriorityGameResult, err = parsePriority(getEnv("QUEUE_PRIORITY_GAME_RESULT", "high"))
	if err != nil {
		return Config{}, fmt.Errorf("parse QUEUE_PRIORITY_GAME_RESULT: %w", err)
	}
	cfg.QueuePriorityScheduled, err = parsePriority(getEnv("QUEUE_PRIORITY_SCHEDULED", "low"))
	if err != nil {
		return Config{}, fmt.Errorf("parse QUEUE_PRIORITY_SCHEDULED: %w", err)
	}

	cfg.SnapshotDirectory = strings.TrimSpace(getEnv("SNAPSHOT_STORAGE_DIRECTORY", "./snapshots"))
	cfg.SnapshotMaxCount, err = getEnvAsInt("SNAPSHOT_MAX_SNAPSHOTS", 50)
	if err != nil {
		return Config{}, fmt.Errorf("parse SNAPSHOT_MAX_SNAPSHOTS: %w", err)
	}
	cfg.SnapshotMaxAgeDays, err = getEnvAsInt("SNAPSHOT_MAX_AGE_DAYS", 30)
	if err != nil {
		return Config{}, fmt.Errorf("parse SNAPSHOT_MAX_AGE_DAYS: %w", err)
	}
	cfg.SnapshotCompressionEnabled, err = strconv.ParseBool(getEnv("SNAPSHOT_COMPRESSION_ENABLED", "true"))
	if err != nil {
		return Config{}, fmt.Errorf("parse SNAPSHOT_COMPRESSION_ENABLED: %w", err)
	}
	cfg.SnapshotChecksumEnabled, err = strconv.ParseBool(getEnv("SNAPSHOT_CHECKSUM_ENABLED", "true"))
	if err != nil {
		return Config{}, fmt.Errorf("parse SNAPSHOT_CHECKSUM_ENABLED: %w", err)
	}

	cfg.CacheEnabled, err = strconv.ParseBool(getEnv("CACHE_ENABLED", "true"))
	if err != nil {
		return Config{}, fmt.Errorf("parse CACHE_ENABLED: %w", err)
	}
	cacheDefaultTTL, err := getEnvAsInt("CACHE_DEFAULT_TTL_SECONDS", 300)
	if err != nil {
		return Config{}, fmt.Errorf("parse CACHE_DEFAULT_TTL_SECONDS: %w", err)
	}
	cfg.CacheDefaultTTL = time.Duration(cacheDefaultTTL) * time.Second
	cacheTableTTL, err := getEnvAsInt("CACHE_TTL_TABLE_DATA_SECONDS", cacheDefaultTTL)
	if err != nil {
		return Config{}, fmt.Errorf("parse CACHE_TTL_TABLE_DATA_SECONDS: %w", err)
	}
	cfg.CacheTableDataTTL = time.Duration(cacheTableTTL) * time.Second
	cfg.CacheSweepInterval, err = time.ParseDuration(getEnv("CACHE_SWEEP_INTERVAL", "1m"))
	if err != nil {
		return Config{}, fmt.Errorf("parse CACHE_SWEEP_INTERVAL: %w", err)
	}

	cfg.CalculationTimeout, err = time.ParseDuration(getEnv("CALCULATION_TIMEOUT", "90s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse CALCULATION_TIMEOUT: %w", err)
	}
	cfg.CalculationMaxTeams, err = getEnvAsInt("CALCULATION_MAX_TEAMS_PER_LIGA", 24)
	if err != nil {
		return Config{}, fmt.Errorf("parse CALCULATION_MAX_TEAMS_PER_LIGA: %w", err)
	}

	cfg.CircuitEnabled, err = strconv.ParseBool(getEnv("CIRCUIT_BREAKER_ENABLED", "true"))
	if err != nil {
		return Config{}, fmt.Errorf("parse CIRCUIT_BREAKER_ENABLED: %w", err)
	}
	cfg.CircuitFailureThreshold, err = getEnvAsInt("CIRCUIT_BREAKER_FAILURE_THRESHOLD", 5)
	if err != nil {
		return Config{}, fmt.Errorf("parse CIRCUIT_BREAKER_FAILURE_THRESHOLD: %w", err)
	}
	cfg.CircuitOpenTimeout, err = time.ParseDuration(getEnv("CIRCUIT_BREAKER_OPEN_DURATION", "30s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse CIRCUIT_BREAKER_OPEN_DURATION: %w", err)
	}

	features := &Features{appEnv: appEnv}
	for _, flag := range []struct {
		env      string
		fallback string
		dst      *bool
	}{
		{"FEATURES_AUTOMATIC_CALCULATION", "true", &features.AutomaticCalculation},
		{"FEATURES_QUEUE_PROCESSING", "true", &features.QueueProcessing},
		{"FEATURES_SNAPSHOT_CREATION", "true", &features.SnapshotCreation},
		{"FEATURES_CACHING", "true", &features.Caching},
		{"FEATURES_CIRCUIT_BREAKER", "true", &features.CircuitBreaker},
		{"FEATURES_NOTIFICATIONS", "false", &features.Notifications},
	} {
		*flag.dst, err = strconv.ParseBool(getEnv(flag.env, flag.fallback))
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", flag.env, err)
		}
	}
	cfg.Features = features

	if cfg.AppEnv == EnvProd || cfg.AppEnv == EnvStage {
		if cfg.DBURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL is required in %s", cfg.AppEnv)
		}
	}

	return cfg, nil
}

// UsesDatabase reports whether the profile runs against postgres instead of
// the in-memory repositories.
func (c Config) UsesDatabase() bool {
	return c.DBURL != ""
}

func defaultLogLevel(appEnv string) string {
	if appEnv == EnvProd {
		return "info"
	}
	return "debug"
}

func parseAppEnv(v string) (string, error) {
	value := strings.ToLower(strings.TrimSpace(v))
	switch value {
	case EnvDev, EnvTest, EnvStage, EnvProd:
		return value, nil
	default:
		return "", fmt.Errorf("invalid APP_ENV %q: valid values are %s, %s, %s, %s",
			v, EnvDev, EnvTest, EnvStage, EnvProd)
	}
}

func parsePriority(v string) (string, error) {
	value := strings.ToLower(strings.TrimSpace(v))
	switch value {
	case "high", "normal", "low":
		return value, nil
	default:
		return "", fmt.Errorf("invalid priority %q: valid values are high, normal, low", v)
	}
}

func parseLogLevel(v string) logging.Level {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "debug":
		return logging.LevelDebug
	case "warn", "warning":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if strings.TrimSpace(value) == "" {
		return fallback
	}

	return value
}

func getEnvAsInt(key string, fallback int) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}

	out, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}

	return out, nil
}
