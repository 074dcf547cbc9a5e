package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database  DatabaseConfig
	Server    ServerConfig
	Auth      AuthConfig
	Lockout   LockoutConfig
	RateLimit RateLimitConfig
	StepUp    StepUpConfig
	TwoFactor TwoFactorConfig
	Email     EmailConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	TrustedProxies []string
}

type AuthConfig struct {
	JWTSecret          string
	AccessTokenExpiry  time.Duration
	CleanupInterval    time.Duration
	TOTPEncryptionKey  string // 32 bytes, AES-256
	TOTPIssuer         string
	TimingDelayBaseMs  int
	TimingDelayRandMs  int
}

type LockoutConfig struct {
	MaxAttempts          int           // primary-password failure threshold
	TwoFactorMaxAttempts int           // stricter threshold for second-factor failures
	BaseDuration         time.Duration // first lockout duration
	AttemptWindow        time.Duration // window for counting consecutive failures
	CapExponent          int           // caps progressive doubling
}

// Rate is a fixed-window limit, e.g. 5 requests per 60s.
type Rate struct {
	Limit  int
	Window time.Duration
}

type RateLimitConfig struct {
	Login         Rate
	StepUpVerify  Rate
	PasswordReset Rate
	UnlockRequest Rate
	Global        Rate
}

type StepUpConfig struct {
	TokenTTL time.Duration
}

type TwoFactorConfig struct {
	BackupCodeCount int
}

type EmailConfig struct {
	AWSRegion   string
	FromAddress string
	BaseURL     string // public URL used in notification emails
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	totpKey := getEnv("TOTP_ENCRYPTION_KEY", "")
	if len(totpKey) != 32 {
		return nil, fmt.Errorf("TOTP_ENCRYPTION_KEY must be exactly 32 bytes, got %d", len(totpKey))
	}

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "bastion"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			TrustedProxies: getEnvAsList("TRUSTED_PROXIES"),
		},
		Auth: AuthConfig{
			JWTSecret:         jwtSecret,
			AccessTokenExpiry: getEnvAsDuration("ACCESS_TOKEN_EXPIRY", 15*time.Minute),
			CleanupInterval:   getEnvAsDuration("CLEANUP_INTERVAL", 1*time.Hour),
			TOTPEncryptionKey: totpKey,
			TOTPIssuer:        getEnv("TOTP_ISSUER", "bastion"),
			TimingDelayBaseMs: getEnvAsInt("TIMING_DELAY_BASE_MS", 100),
			TimingDelayRandMs: getEnvAsInt("TIMING_DELAY_RANDOM_MS", 100),
		},
		Lockout: LockoutConfig{
			MaxAttempts:          getEnvAsInt("LOCKOUT_MAX_ATTEMPTS", 5),
			TwoFactorMaxAttempts: getEnvAsInt("TWO_FACTOR_MAX_ATTEMPTS", 3),
			BaseDuration:         getEnvAsDuration("LOCKOUT_BASE_DURATION", 15*time.Minute),
			AttemptWindow:        getEnvAsDuration("LOCKOUT_ATTEMPT_WINDOW", 5*time.Minute),
			CapExponent:          getEnvAsInt("LOCKOUT_CAP_EXPONENT", 4),
		},
		RateLimit: RateLimitConfig{
			Login:         getEnvAsRate("RATE_LOGIN", Rate{Limit: 5, Window: 60 * time.Second}),
			StepUpVerify:  getEnvAsRate("RATE_STEPUP", Rate{Limit: 5, Window: 60 * time.Second}),
			PasswordReset: getEnvAsRate("RATE_PASSWORD_RESET", Rate{Limit: 3, Window: 300 * time.Second}),
			UnlockRequest: getEnvAsRate("RATE_UNLOCK_REQUEST", Rate{Limit: 3, Window: 300 * time.Second}),
			Global:        getEnvAsRate("RATE_GLOBAL", Rate{Limit: 100, Window: 60 * time.Second}),
		},
		StepUp: StepUpConfig{
			TokenTTL: getEnvAsDuration("TEMP_TOKEN_TTL", 5*time.Minute),
		},
		TwoFactor: TwoFactorConfig{
			BackupCodeCount: getEnvAsInt("BACKUP_CODE_COUNT", 8),
		},
		Email: EmailConfig{
			AWSRegion:   getEnv("AWS_REGION", "us-east-1"),
			FromAddress: getEnv("EMAIL_FROM_ADDRESS", "security@localhost"),
			BaseURL:     getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if err := validateJWTSecret(jwtSecret, env); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateJWTSecret enforces minimum security standards for the JWT secret
func validateJWTSecret(secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32
	}

	if len(secret) < minLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("JWT_SECRET cannot be a common weak value")
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func getEnvAsList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// getEnvAsRate parses "5/60s" style limits: <count>/<window duration>.
func getEnvAsRate(key string, defaultVal Rate) Rate {
	value := os.Getenv(key)
	if value == "" {
		return defaultVal
	}

	parts := strings.SplitN(value, "/", 2)
	if len(parts) != 2 {
		return defaultVal
	}

	limit, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || limit <= 0 {
		return defaultVal
	}

	window, err := time.ParseDuration(strings.TrimSpace(parts[1]))
	if err != nil || window <= 0 {
		return defaultVal
	}

	return Rate{Limit: limit, Window: window}
}
