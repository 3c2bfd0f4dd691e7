package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/samber/oops"
)

// Config holds all service configuration loaded from environment variables.
type Config struct {
	Port      string
	Env       string
	LogFormat string

	PostgresDSN    string
	MongoURI       string
	MongoDB        string
	RedisAddr      string
	RedisPassword  string
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
	ConnectRetries uint64

	JWTSecret     string
	TokenTTL      time.Duration
	BcryptCost    int
	ResetTokenTTL time.Duration

	AuditLogPath     string
	NatsURL          string
	NatsAuditSubject string

	RecoverEmailEnabled bool
	RateLimitPerMinute  int64
	FrontendURL         string
	// TrustProxyHeaders takes the client address from X-Forwarded-For and
	// X-Real-IP. Enable only behind a proxy that overwrites them.
	TrustProxyHeaders bool
}

// LoadEnvFile reads KEY=VALUE pairs from path into the process environment.
// Variables that are already set win. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return oops.Code("CONFIG_ENV_FILE").With("path", path).Wrap(err)
	}
	return nil
}

func Load() *Config {
	return &Config{
		Port:      getenv("PORT", "8080"),
		Env:       getenv("APP_ENV", "development"),
		LogFormat: getenv("LOG_FORMAT", "json"),

		PostgresDSN:    getenv("POSTGRES_DSN", ""),
		MongoURI:       getenv("MONGO_URI", ""),
		MongoDB:        getenv("MONGO_DB", "tasktracker"),
		RedisAddr:      getenv("REDIS_ADDR", "redis:6379"),
		RedisPassword:  getenv("REDIS_PASSWORD", ""),
		MinioEndpoint:  getenv("MINIO_ENDPOINT", "minio:9000"),
		MinioAccessKey: getenv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getenv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getenv("MINIO_BUCKET", "task-exports"),
		MinioUseSSL:    getbool("MINIO_USE_SSL", false),
		ConnectRetries: uint64(getint("CONNECT_RETRIES", 5)),

		JWTSecret:     getenv("JWT_SECRET", ""),
		TokenTTL:      getduration("TOKEN_TTL", 7*24*time.Hour),
		BcryptCost:    int(getint("BCRYPT_COST", 10)),
		ResetTokenTTL: getduration("RESET_TOKEN_TTL", time.Hour),

		AuditLogPath:     getenv("AUDIT_LOG_PATH", "logs/auth-events.log"),
		NatsURL:          getenv("NATS_URL", ""),
		NatsAuditSubject: getenv("NATS_AUDIT_SUBJECT", "auth.events"),

		RecoverEmailEnabled: getbool("RECOVER_EMAIL_ENABLED", true),
		RateLimitPerMinute:  getint("RATE_LIMIT_PER_MINUTE", 0),
		FrontendURL:         getenv("FRONTEND_URL", ""),
		TrustProxyHeaders:   getbool("TRUST_PROXY_HEADERS", false),
	}
}

// Validate reports the first missing setting the server cannot start without.
func (c *Config) Validate() error {
	switch {
	case c.JWTSecret == "":
		return oops.Code("CONFIG_INVALID").Errorf("JWT_SECRET is required")
	case c.PostgresDSN == "":
		return oops.Code("CONFIG_INVALID").Errorf("POSTGRES_DSN is required")
	case c.MongoURI == "":
		return oops.Code("CONFIG_INVALID").Errorf("MONGO_URI is required")
	case c.TokenTTL <= 0:
		return oops.Code("CONFIG_INVALID").Errorf("TOKEN_TTL must be positive")
	}
	return nil
}

// IsProduction reports whether diagnostic detail must be kept out of logs and audit records.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// AllowedOrigins lists the CORS origins for the browser client.
func (c *Config) AllowedOrigins() []string {
	origins := []string{"http://localhost:5173", "http://localhost:3000"}
	if c.FrontendURL != "" {
		origins = append(origins, c.FrontendURL)
	}
	return origins
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getbool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(getenv(key, strconv.FormatBool(fallback)))
	if err != nil {
		return fallback
	}
	return v
}

func getint(key string, fallback int64) int64 {
	v, err := strconv.ParseInt(getenv(key, ""), 10, 64)
	if err != nil {
		return fallback
	}
	return v
}

func getduration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(getenv(key, ""))
	if err != nil {
		return fallback
	}
	return v
}
