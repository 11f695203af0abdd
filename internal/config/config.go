package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hay-kot/criterio"
	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort              string
	ServerReadHeaderTimeout time.Duration
	ServerWriteTimeout      time.Duration
	ServerIdleTimeout       time.Duration
	RequestTimeout          time.Duration
	DatabaseURL             string
	DBMaxConns              int32
	DBMinConns              int32
	JWTSecret               string
	JWTAccessTTL            time.Duration
	JWTRefreshTTL           time.Duration
	CORSOrigins             []string
	RateLimitRPM            int
	AuthRateLimitRPM        int
	UndoWindow              time.Duration
	DeleteCommitTimeout     time.Duration
	ViewCacheTTL            time.Duration
	BootstrapTenantID       string
	BootstrapAdminPassword  string
	LogLevel                slog.Level
	LogFormat               string
	MetricsEnabled          bool
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ServerPort:              getEnv("SERVER_PORT", "8080"),
		ServerReadHeaderTimeout: getDuration("SERVER_READ_HEADER_TIMEOUT", 10*time.Second),
		ServerWriteTimeout:      getDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
		ServerIdleTimeout:       getDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
		RequestTimeout:          getDuration("REQUEST_TIMEOUT", 30*time.Second),
		DatabaseURL:             strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DBMaxConns:              getInt32("DB_MAX_CONNS", 10),
		DBMinConns:              getInt32("DB_MIN_CONNS", 2),
		JWTSecret:               strings.TrimSpace(os.Getenv("JWT_SECRET")),
		JWTAccessTTL:            getDuration("JWT_ACCESS_TTL", 15*time.Minute),
		JWTRefreshTTL:           getDuration("JWT_REFRESH_TTL", 168*time.Hour),
		CORSOrigins:             splitCSV(getEnv("CORS_ORIGINS", "*")),
		RateLimitRPM:            getInt("RATE_LIMIT_RPM", 300),
		AuthRateLimitRPM:        getInt("AUTH_RATE_LIMIT_RPM", 10),
		UndoWindow:              getDuration("UNDO_WINDOW", 5*time.Second),
		DeleteCommitTimeout:     getDuration("DELETE_COMMIT_TIMEOUT", 10*time.Second),
		ViewCacheTTL:            getDuration("VIEW_CACHE_TTL", 2*time.Minute),
		BootstrapTenantID:       getEnv("BOOTSTRAP_TENANT_ID", "default"),
		BootstrapAdminPassword:  strings.TrimSpace(os.Getenv("BOOTSTRAP_ADMIN_PASSWORD")),
		LogLevel:                getLevel("LOG_LEVEL", slog.LevelInfo),
		LogFormat:               strings.ToLower(getEnv("LOG_FORMAT", "pretty")),
		MetricsEnabled:          getBool("METRICS_ENABLED", true),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate reports every invalid setting at once, keyed by environment
// variable name.
func (c *Config) Validate() error {
	return criterio.ValidateStruct(
		criterio.Run("JWT_SECRET", c.JWTSecret, required),
		criterio.Run("SERVER_PORT", c.ServerPort, required),
		criterio.Run("DATABASE_URL", c.DatabaseURL, required),
		criterio.Run("BOOTSTRAP_TENANT_ID", c.BootstrapTenantID, required),
		criterio.Run("LOG_FORMAT", c.LogFormat, oneOf("pretty", "json")),
		c.validateDurations(),
		c.validatePool(),
	)
}

func (c *Config) validateDurations() error {
	var errs criterio.FieldErrorsBuilder

	positive := []struct {
		key   string
		value time.Duration
	}{
		{"REQUEST_TIMEOUT", c.RequestTimeout},
		{"JWT_ACCESS_TTL", c.JWTAccessTTL},
		{"JWT_REFRESH_TTL", c.JWTRefreshTTL},
		{"UNDO_WINDOW", c.UndoWindow},
		{"DELETE_COMMIT_TIMEOUT", c.DeleteCommitTimeout},
	}
	for _, d := range positive {
		if d.value <= 0 {
			errs = errs.Append(d.key, fmt.Errorf("must be positive"))
		}
	}

	if c.ViewCacheTTL < 0 {
		errs = errs.Append("VIEW_CACHE_TTL", fmt.Errorf("must not be negative"))
	}
	if c.UndoWindow > time.Minute {
		errs = errs.Append("UNDO_WINDOW", fmt.Errorf("must be at most 1m, got %s", c.UndoWindow))
	}

	return errs.ToError()
}

func (c *Config) validatePool() error {
	var errs criterio.FieldErrorsBuilder

	if c.DBMaxConns <= 0 {
		errs = errs.Append("DB_MAX_CONNS", fmt.Errorf("must be positive"))
	}
	if c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		errs = errs.Append("DB_MIN_CONNS", fmt.Errorf("must be between 0 and DB_MAX_CONNS"))
	}
	if c.RateLimitRPM <= 0 {
		errs = errs.Append("RATE_LIMIT_RPM", fmt.Errorf("must be positive"))
	}
	if c.AuthRateLimitRPM <= 0 {
		errs = errs.Append("AUTH_RATE_LIMIT_RPM", fmt.Errorf("must be positive"))
	}

	return errs.ToError()
}

func required(value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("is required")
	}
	return nil
}

func oneOf(allowed ...string) func(string) error {
	return func(value string) error {
		for _, candidate := range allowed {
			if value == candidate {
				return nil
			}
		}
		return fmt.Errorf("must be one of %s", strings.Join(allowed, ", "))
	}
}

func getEnv(key string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}

	return v
}

func getInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}

	return v
}

func getInt32(key string, fallback int32) int32 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.ParseInt(raw, 10, 32)
	if err != nil {
		return fallback
	}

	return int32(v)
}

func getBool(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}

	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return v
}

func getLevel(key string, fallback slog.Level) slog.Level {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		return fallback
	}

	return level
}

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}

	return out
}
