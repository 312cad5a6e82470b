package config

import (
	"errors"
	"io/fs"
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

	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Log       LogConfig
	Cache     CacheConfig
	Sessions  SessionConfig
	WhatIf    WhatIfConfig
	Recompute RecomputeConfig
}

type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret   string
	Issuer   string
	Audience []string
}

type LogConfig struct {
	Level  string
	Format string
}

// CacheConfig controls the course data cache in front of Postgres.
type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

// SessionConfig governs grade session lifetime.
type SessionConfig struct {
	IdleTTL       time.Duration
	SweepInterval time.Duration
}

// WhatIfConfig bounds hypothetical scores accepted from clients.
type WhatIfConfig struct {
	MaxScore float64
}

// RecomputeConfig toggles delivery of grade recomputation events.
type RecomputeConfig struct {
	Enabled    bool
	Workers    int
	Retries    int
	RetryDelay time.Duration
	Channel    string
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
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:            v.GetString("DB_HOST"),
		Port:            v.GetInt("DB_PORT"),
		User:            v.GetString("DB_USER"),
		Password:        v.GetString("DB_PASSWORD"),
		Name:            v.GetString("DB_NAME"),
		SSLMode:         v.GetString("DB_SSL_MODE"),
		MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
		ConnMaxLifetime: parseDuration(v.GetString("DB_CONN_MAX_LIFETIME"), time.Hour),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:   v.GetString("JWT_SECRET"),
		Issuer:   v.GetString("JWT_ISSUER"),
		Audience: splitAndTrim(v.GetString("JWT_AUDIENCE")),
	}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Cache = CacheConfig{
		Enabled: v.GetBool("ENABLE_COURSE_CACHE"),
		TTL:     parseDuration(v.GetString("COURSE_CACHE_TTL"), 5*time.Minute),
	}

	cfg.Sessions = SessionConfig{
		IdleTTL:       parseDuration(v.GetString("SESSION_IDLE_TTL"), 30*time.Minute),
		SweepInterval: parseDuration(v.GetString("SESSION_SWEEP_INTERVAL"), time.Minute),
	}

	cfg.WhatIf = WhatIfConfig{
		MaxScore: v.GetFloat64("WHATIF_MAX_SCORE"),
	}

	cfg.Recompute = RecomputeConfig{
		Enabled:    v.GetBool("ENABLE_RECOMPUTE_EVENTS"),
		Workers:    v.GetInt("RECOMPUTE_WORKERS"),
		Retries:    v.GetInt("RECOMPUTE_RETRIES"),
		RetryDelay: parseDuration(v.GetString("RECOMPUTE_RETRY_DELAY"), time.Second),
		Channel:    v.GetString("RECOMPUTE_CHANNEL"),
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
	v.SetDefault("DB_NAME", "course_grades")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_CONN_MAX_LIFETIME", "1h")

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")
	v.SetDefault("JWT_AUDIENCE", "")

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ENABLE_COURSE_CACHE", true)
	v.SetDefault("COURSE_CACHE_TTL", "5m")

	v.SetDefault("SESSION_IDLE_TTL", "30m")
	v.SetDefault("SESSION_SWEEP_INTERVAL", "1m")

	v.SetDefault("WHATIF_MAX_SCORE", 10000)

	v.SetDefault("ENABLE_RECOMPUTE_EVENTS", false)
	v.SetDefault("RECOMPUTE_WORKERS", 2)
	v.SetDefault("RECOMPUTE_RETRIES", 3)
	v.SetDefault("RECOMPUTE_RETRY_DELAY", "1s")
	v.SetDefault("RECOMPUTE_CHANNEL", "grades:recomputed")
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
