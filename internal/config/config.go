// Package config loads server configuration from the environment.
//
// main calls godotenv.Load() first, so a .env file in the working directory
// fills in anything the real environment leaves unset.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port   int
	DBPath string

	// DatabaseURL selects the Postgres store when non-empty.
	DatabaseURL      string
	DBMaxConns       int
	DBConnectTimeout time.Duration

	// RedisAddr enables the post cache when non-empty.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	JWTSecret          string
	GitHubClientID     string
	GitHubClientSecret string
	GitHubCallbackURL  string

	RequestTimeout time.Duration
	// EnrichChunkSize is how many distinct titles go into one comment-count query.
	EnrichChunkSize int

	LogLevel slog.Level
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// loader collects the first parse error so Load can report it once.
type loader struct {
	err error
}

func (l *loader) int(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil && l.err == nil {
		l.err = fmt.Errorf("config: %s=%q is not an integer", key, v)
	}
	return n
}

func (l *loader) duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil && l.err == nil {
		l.err = fmt.Errorf("config: %s=%q is not a duration (e.g. 10s)", key, v)
	}
	return d
}

func (l *loader) level(key string, def slog.Level) slog.Level {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(v))); err != nil && l.err == nil {
		l.err = fmt.Errorf("config: %s=%q is not a log level", key, v)
	}
	return lvl
}

// Load reads the environment. It fails on malformed numbers and durations
// rather than silently falling back to defaults.
func Load() (*Config, error) {
	var l loader

	cfg := &Config{
		Port:   l.int("PORT", 8080),
		DBPath: getenv("DB_PATH", "data/forum.db"),

		DatabaseURL:      os.Getenv("DATABASE_URL"),
		DBMaxConns:       l.int("DB_MAX_CONNS", 20),
		DBConnectTimeout: l.duration("DB_CONNECT_TIMEOUT", 5*time.Second),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       l.int("REDIS_DB", 0),
		CacheTTL:      time.Duration(l.int("CACHE_TTL_SECONDS", 300)) * time.Second,

		JWTSecret:          os.Getenv("JWT_SECRET"),
		GitHubClientID:     os.Getenv("GITHUB_CLIENT_ID"),
		GitHubClientSecret: os.Getenv("GITHUB_CLIENT_SECRET"),
		GitHubCallbackURL:  os.Getenv("GITHUB_CALLBACK_URL"),

		RequestTimeout:  l.duration("REQUEST_TIMEOUT", 10*time.Second),
		EnrichChunkSize: l.int("ENRICH_CHUNK_SIZE", 25),

		LogLevel: l.level("LOG_LEVEL", slog.LevelInfo),
	}
	if l.err != nil {
		return nil, l.err
	}

	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("config: PORT=%d out of range", cfg.Port)
	}
	if cfg.RequestTimeout <= 0 {
		return nil, fmt.Errorf("config: REQUEST_TIMEOUT must be positive")
	}
	if cfg.EnrichChunkSize <= 0 {
		return nil, fmt.Errorf("config: ENRICH_CHUNK_SIZE must be positive")
	}
	if cfg.GitHubCallbackURL == "" {
		cfg.GitHubCallbackURL = fmt.Sprintf("http://localhost:%d/auth/github/callback", cfg.Port)
	}
	return cfg, nil
}

// OAuthEnabled reports whether GitHub sign-in can be offered.
func (c *Config) OAuthEnabled() bool {
	return c.JWTSecret != "" && c.GitHubClientID != "" && c.GitHubClientSecret != ""
}
