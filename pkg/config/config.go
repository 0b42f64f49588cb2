package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	CORS          CORSConfig
	Log           LogConfig
	Intake        IntakeConfig
	Warehouse     WarehouseConfig
	Notifications NotificationsConfig
	Sweeper       SweeperConfig
	Catalog       CatalogConfig
	Stats         StatsConfig
	Slips         SlipsConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// JWTConfig holds the shared secret used to verify upstream-issued tokens.
// The engine trusts the identity provider; it never issues tokens itself.
type JWTConfig struct {
	Secret string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// IntakeConfig governs queue item creation and workflow behaviour.
type IntakeConfig struct {
	// SLA hours per priority used to derive deadlines.
	SLALowHours       int
	SLANormalHours    int
	SLAHighHours      int
	SLACriticalHours  int
	SLAExpeditedHours int
	// ArrivalGrace is how far in the past expected_arrival may lie at submission.
	ArrivalGrace time.Duration
	// MaxStepFailures flags an item for escalation after N consecutive failures
	// of the same step. Zero disables the flag.
	MaxStepFailures int
}

// WarehouseConfig holds scoring weights and retry tuning for slot assignment.
type WarehouseConfig struct {
	SizeFitWeight       float64
	ProximityWeight     float64
	AffinityWeight      float64
	WeightBalanceWeight float64
	RotationWeight      float64
	// AssignRetries bounds rescoring attempts after losing an occupancy race.
	AssignRetries int
}

// NotificationsConfig tunes the fire-and-forget vendor notification dispatcher.
type NotificationsConfig struct {
	Enabled           bool
	WorkerConcurrency int
	WorkerRetries     int
	RetryDelay        time.Duration
}

// SweeperConfig controls the periodic delay/overdue sweep.
type SweeperConfig struct {
	Enabled  bool
	Interval time.Duration
}

// CatalogConfig points at the external catalog/vendor service.
type CatalogConfig struct {
	BaseURL string
	Timeout time.Duration
}

// StatsConfig governs caching for aggregate queue statistics and availability.
type StatsConfig struct {
	CacheTTL time.Duration
}

// SlipsConfig controls the on-disk putaway slip archive.
type SlipsConfig struct {
	Dir       string
	TokenTTL  time.Duration
	Retention time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{Secret: v.GetString("JWT_SECRET")}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Intake = IntakeConfig{
		SLALowHours:       v.GetInt("SLA_LOW_HOURS"),
		SLANormalHours:    v.GetInt("SLA_NORMAL_HOURS"),
		SLAHighHours:      v.GetInt("SLA_HIGH_HOURS"),
		SLACriticalHours:  v.GetInt("SLA_CRITICAL_HOURS"),
		SLAExpeditedHours: v.GetInt("SLA_EXPEDITED_HOURS"),
		ArrivalGrace:      parseDuration(v.GetString("INTAKE_ARRIVAL_GRACE"), time.Hour),
		MaxStepFailures:   v.GetInt("INTAKE_MAX_STEP_FAILURES"),
	}

	cfg.Warehouse = WarehouseConfig{
		SizeFitWeight:       v.GetFloat64("SCORE_SIZE_FIT_WEIGHT"),
		ProximityWeight:     v.GetFloat64("SCORE_PROXIMITY_WEIGHT"),
		AffinityWeight:      v.GetFloat64("SCORE_AFFINITY_WEIGHT"),
		WeightBalanceWeight: v.GetFloat64("SCORE_WEIGHT_BALANCE_WEIGHT"),
		RotationWeight:      v.GetFloat64("SCORE_ROTATION_WEIGHT"),
		AssignRetries:       v.GetInt("ASSIGN_RETRIES"),
	}

	cfg.Notifications = NotificationsConfig{
		Enabled:           v.GetBool("ENABLE_NOTIFICATIONS"),
		WorkerConcurrency: v.GetInt("NOTIFICATIONS_WORKER_CONCURRENCY"),
		WorkerRetries:     v.GetInt("NOTIFICATIONS_WORKER_RETRIES"),
		RetryDelay:        parseDuration(v.GetString("NOTIFICATIONS_RETRY_DELAY"), 5*time.Second),
	}

	cfg.Sweeper = SweeperConfig{
		Enabled:  v.GetBool("ENABLE_SWEEPER"),
		Interval: parseDuration(v.GetString("SWEEPER_INTERVAL"), 15*time.Minute),
	}

	cfg.Catalog = CatalogConfig{
		BaseURL: v.GetString("CATALOG_BASE_URL"),
		Timeout: parseDuration(v.GetString("CATALOG_TIMEOUT"), 3*time.Second),
	}

	cfg.Stats = StatsConfig{
		CacheTTL: parseDuration(v.GetString("STATS_CACHE_TTL"), time.Minute),
	}

	cfg.Slips = SlipsConfig{
		Dir:       v.GetString("SLIP_DIR"),
		TokenTTL:  parseDuration(v.GetString("SLIP_TOKEN_TTL"), 24*time.Hour),
		Retention: parseDuration(v.GetString("SLIP_RETENTION"), 30*24*time.Hour),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "intake")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("SLA_LOW_HOURS", 120)
	v.SetDefault("SLA_NORMAL_HOURS", 72)
	v.SetDefault("SLA_HIGH_HOURS", 48)
	v.SetDefault("SLA_CRITICAL_HOURS", 24)
	v.SetDefault("SLA_EXPEDITED_HOURS", 12)
	v.SetDefault("INTAKE_ARRIVAL_GRACE", "1h")
	v.SetDefault("INTAKE_MAX_STEP_FAILURES", 0)

	v.SetDefault("SCORE_SIZE_FIT_WEIGHT", 0.30)
	v.SetDefault("SCORE_PROXIMITY_WEIGHT", 0.25)
	v.SetDefault("SCORE_AFFINITY_WEIGHT", 0.20)
	v.SetDefault("SCORE_WEIGHT_BALANCE_WEIGHT", 0.15)
	v.SetDefault("SCORE_ROTATION_WEIGHT", 0.10)
	v.SetDefault("ASSIGN_RETRIES", 3)

	v.SetDefault("ENABLE_NOTIFICATIONS", true)
	v.SetDefault("NOTIFICATIONS_WORKER_CONCURRENCY", 1)
	v.SetDefault("NOTIFICATIONS_WORKER_RETRIES", 3)
	v.SetDefault("NOTIFICATIONS_RETRY_DELAY", "5s")

	v.SetDefault("ENABLE_SWEEPER", false)
	v.SetDefault("SWEEPER_INTERVAL", "15m")

	v.SetDefault("CATALOG_BASE_URL", "http://localhost:9090")
	v.SetDefault("CATALOG_TIMEOUT", "3s")

	v.SetDefault("STATS_CACHE_TTL", "1m")

	v.SetDefault("SLIP_DIR", "./slips")
	v.SetDefault("SLIP_TOKEN_TTL", "24h")
	v.SetDefault("SLIP_RETENTION", "720h")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
