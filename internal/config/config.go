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
	ServerPort              string
	ServerReadHeaderTimeout time.Duration
	ServerWriteTimeout      time.Duration
	ServerIdleTimeout       time.Duration
	RequestTimeout          time.Duration
	OpenAPISpecPath         string

	DatabaseURL      string
	DBMaxConns       int32
	DBMinConns       int32
	DBConnectRetries int
	DBConnectBackoff time.Duration

	JWTAccessSecret   string
	JWTRefreshSecret  string
	JWTAccessTTL      time.Duration
	SessionTTL        time.Duration
	PatientRefreshTTL time.Duration
	PairingCodeTTL    time.Duration
	BcryptCost        int

	RefreshCookieName    string
	RefreshCookiePath    string
	CookieSecure         bool
	DeviceLoginAllowRaw  bool
	SessionPurgeInterval time.Duration

	CORSOrigins []string
	LogLevel    string
	LogFormat   string

	AMQPURL      string
	AMQPExchange string

	SeedAdminEmail    string
	SeedAdminPassword string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ServerPort:              getEnv("SERVER_PORT", "8080"),
		ServerReadHeaderTimeout: getDuration("SERVER_READ_HEADER_TIMEOUT", 10*time.Second),
		ServerWriteTimeout:      getDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
		ServerIdleTimeout:       getDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
		RequestTimeout:          getDuration("REQUEST_TIMEOUT", 30*time.Second),
		OpenAPISpecPath:         getEnv("OPENAPI_SPEC_PATH", "./docs/openapi.yaml"),

		DatabaseURL:      strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DBMaxConns:       int32(getInt("DB_MAX_CONNS", 10)),
		DBMinConns:       int32(getInt("DB_MIN_CONNS", 2)),
		DBConnectRetries: getInt("DB_CONNECT_RETRIES", 5),
		DBConnectBackoff: getDuration("DB_CONNECT_BACKOFF", 2*time.Second),

		JWTAccessSecret:   strings.TrimSpace(os.Getenv("JWT_ACCESS_SECRET")),
		JWTRefreshSecret:  strings.TrimSpace(os.Getenv("JWT_REFRESH_SECRET")),
		JWTAccessTTL:      getDuration("JWT_ACCESS_TTL", 15*time.Minute),
		SessionTTL:        getDuration("SESSION_TTL", 30*24*time.Hour),
		PatientRefreshTTL: getDuration("PATIENT_REFRESH_TTL", 30*24*time.Hour),
		PairingCodeTTL:    getDuration("PAIRING_CODE_TTL", 24*time.Hour),
		BcryptCost:        getInt("BCRYPT_COST", 12),

		RefreshCookieName:    getEnv("REFRESH_COOKIE_NAME", "refresh_token"),
		RefreshCookiePath:    getEnv("REFRESH_COOKIE_PATH", "/api/v1/auth"),
		CookieSecure:         getBool("COOKIE_SECURE", true),
		DeviceLoginAllowRaw:  getBool("DEVICE_LOGIN_ALLOW_RAW_ID", true),
		SessionPurgeInterval: getDuration("SESSION_PURGE_INTERVAL", time.Hour),

		CORSOrigins: splitCSV(getEnv("CORS_ORIGINS", "*")),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", "pretty"),

		AMQPURL:      strings.TrimSpace(os.Getenv("AMQP_URL")),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "caregiver.auth"),

		SeedAdminEmail:    strings.TrimSpace(os.Getenv("SEED_ADMIN_EMAIL")),
		SeedAdminPassword: strings.TrimSpace(os.Getenv("SEED_ADMIN_PASSWORD")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.ServerPort == "" {
		return fmt.Errorf("SERVER_PORT cannot be empty")
	}

	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.JWTAccessSecret == "" {
		return fmt.Errorf("JWT_ACCESS_SECRET is required")
	}

	if c.JWTRefreshSecret == "" {
		return fmt.Errorf("JWT_REFRESH_SECRET is required")
	}

	if c.JWTAccessSecret == c.JWTRefreshSecret {
		return fmt.Errorf("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
	}

	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return fmt.Errorf("BCRYPT_COST must be between 4 and 31")
	}

	if c.JWTAccessTTL <= 0 || c.SessionTTL <= 0 || c.PatientRefreshTTL <= 0 || c.PairingCodeTTL <= 0 {
		return fmt.Errorf("token, session and pairing code lifetimes must be positive")
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}

	if c.DBConnectRetries < 1 {
		return fmt.Errorf("DB_CONNECT_RETRIES must be at least 1")
	}

	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS cannot exceed DB_MAX_CONNS")
	}

	if (c.SeedAdminEmail == "") != (c.SeedAdminPassword == "") {
		return fmt.Errorf("SEED_ADMIN_EMAIL and SEED_ADMIN_PASSWORD must be set together")
	}

	return nil
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
