package app

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Issuer         string // Issuer claim for session and step-up tokens (default: mfagate)
	BootstrapToken string // Optional: token required to perform bootstrap (local gateway only)

	NumKeys      int    // Number of ephemeral signing keys (default: 3, max: 10)
	StoreKind    string // Store driver (sqlite, memory) (default: sqlite)
	DatabaseFile string // SQLite database file (default: ./mfa.db)
	PepperFile   string // File holding the password hashing pepper (default: ./pepper)

	RedisAddr     string // Optional: when set, pending activations live in Redis
	RedisPassword string
	RedisDB       int
	RedisPrefix   string

	IdentityURL          string        // Optional: external user service; empty means local users
	IdentityToken        string        // Optional: bearer token for the user service
	IdentityTimeout      time.Duration // Per request timeout (default: 10s)
	IdentityFailures     uint32        // Consecutive failures that open the breaker (default: 5)
	IdentityOpenDuration time.Duration // How long the breaker stays open (default: 30s)

	MaxFailedAttempts int           // Failures before lockout (default: 5)
	PendingTTL        time.Duration // Enrollment confirmation window (default: 10m)
	BackupCodeCount   int           // Backup codes per user (default: 8)
	TOTPSkew          int           // Accepted steps either side of now (default: 1)
	ReplayProtection  bool          // Reject reused time steps (default: true)
	StepUpTTL         time.Duration // default: 10m
	SessionTTL        time.Duration // default: 24h
	MinPasswordLength int           // default: 8

	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1h)
	StaleSessionAge      time.Duration // Idle non-active MFA sessions older than this are purged (default: 30 days)
}

// LoadConfig reads the environment, after loading ./.env when one exists.
func LoadConfig() Config {
	_ = godotenv.Load()

	cfg := Config{
		Issuer:         getEnvOrDefault("MFA_ISSUER", "mfagate"),
		BootstrapToken: os.Getenv("BOOTSTRAP_TOKEN"),

		NumKeys:      getEnvIntOrDefault("MFA_NUM_KEYS", 3),
		StoreKind:    strings.ToLower(getEnvOrDefault("MFA_STORE", "sqlite")),
		DatabaseFile: getEnvOrDefault("MFA_DATABASE_FILE", "mfa.db"),
		PepperFile:   getEnvOrDefault("MFA_PEPPER_FILE", "pepper"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvIntOrDefault("REDIS_DB", 0),
		RedisPrefix:   getEnvOrDefault("REDIS_PREFIX", "mfa:pending"),

		IdentityURL:          os.Getenv("IDENTITY_URL"),
		IdentityToken:        os.Getenv("IDENTITY_TOKEN"),
		IdentityTimeout:      getEnvDurationOrDefault("IDENTITY_TIMEOUT", 10*time.Second),
		IdentityFailures:     uint32(max(getEnvIntOrDefault("IDENTITY_BREAKER_FAILURES", 5), 1)),
		IdentityOpenDuration: getEnvDurationOrDefault("IDENTITY_BREAKER_OPEN", 30*time.Second),

		MaxFailedAttempts: getEnvIntOrDefault("MFA_MAX_FAILED_ATTEMPTS", 5),
		PendingTTL:        getEnvDurationOrDefault("MFA_PENDING_TTL", 10*time.Minute),
		BackupCodeCount:   getEnvIntOrDefault("MFA_BACKUP_CODE_COUNT", 8),
		TOTPSkew:          getEnvIntOrDefault("MFA_TOTP_SKEW", 1),
		ReplayProtection:  getEnvBoolOrDefault("MFA_REPLAY_PROTECTION", true),
		StepUpTTL:         getEnvDurationOrDefault("MFA_STEP_UP_TTL", 10*time.Minute),
		SessionTTL:        getEnvDurationOrDefault("MFA_SESSION_TTL", 24*time.Hour),
		MinPasswordLength: getEnvIntOrDefault("MFA_MIN_PASSWORD_LENGTH", 8),

		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),
		StaleSessionAge:      getEnvDurationOrDefault("MFA_STALE_SESSION_AGE", 30*24*time.Hour),
	}

	if cfg.TOTPSkew < 0 {
		cfg.TOTPSkew = 0
	}

	return cfg
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are minutes
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
