package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// GetString retrieves an environment variable or returns a fallback when unset.
func GetString(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// GetInt retrieves an environment variable as integer or returns fallback.
func GetInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			log.Printf("invalid value for %s: %v", key, err)
			return fallback
		}
		return parsed
	}
	return fallback
}

// GetBool retrieves an environment variable as bool or returns fallback.
func GetBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			log.Printf("invalid value for %s: %v", key, err)
			return fallback
		}
		return parsed
	}
	return fallback
}

// TierLimits holds per-tier rate limit thresholds for a shared window.
type TierLimits struct {
	Guest  int
	User   int
	Admin  int
	Window time.Duration
}

// Config holds runtime configuration for the auth API service.
type Config struct {
	Environment        string
	Addr               string
	DatabaseURL        string
	MigrationsDir      string
	JWTSecret          string
	TokenTTL           time.Duration
	CookieName         string
	CookieHashKey      string
	CookieBlockKey     string
	BcryptCost         int
	RateLimits         TierLimits
	RateLimitRedisAddr string
	RateLimitRedisPass string
	RateLimitRedisDB   int
}

// Load constructs a Config from environment variables. A local .env file is
// merged in first when present; real environment variables win.
func Load() Config {
	_ = godotenv.Load()
	return Config{
		Environment:        GetString("APP_ENV", "development"),
		Addr:               GetString("API_ADDR", ":3000"),
		DatabaseURL:        GetString("DATABASE_URL", "postgres://acquisitions:acquisitions@db:5432/acquisitions?sslmode=disable"),
		MigrationsDir:      GetString("DB_MIGRATIONS_DIR", "./db/migrations"),
		JWTSecret:          GetString("JWT_SECRET", "your-secret-key-please-change-in-production"),
		TokenTTL:           time.Duration(GetInt("TOKEN_TTL_HOURS", 24)) * time.Hour,
		CookieName:         GetString("SESSION_COOKIE_NAME", "acq_session"),
		CookieHashKey:      GetString("COOKIE_HASH_KEY", "insecure-dev-cookie-hash-key-32by"),
		CookieBlockKey:     GetString("COOKIE_BLOCK_KEY", ""),
		BcryptCost:         GetInt("BCRYPT_COST", 10),
		RateLimits: TierLimits{
			Guest:  GetInt("RATE_LIMIT_GUEST", 5),
			User:   GetInt("RATE_LIMIT_USER", 10),
			Admin:  GetInt("RATE_LIMIT_ADMIN", 20),
			Window: time.Duration(GetInt("RATE_LIMIT_WINDOW_SECONDS", 60)) * time.Second,
		},
		RateLimitRedisAddr: GetString("RATE_LIMIT_REDIS_ADDR", ""),
		RateLimitRedisPass: GetString("RATE_LIMIT_REDIS_PASSWORD", ""),
		RateLimitRedisDB:   GetInt("RATE_LIMIT_REDIS_DB", 0),
	}
}

// Production reports whether the service runs in a production-like
// environment. Session cookies are marked Secure only in that case.
func (c Config) Production() bool {
	return c.Environment == "production" || c.Environment == "staging"
}
