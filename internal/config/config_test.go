package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"PORT", "TOKEN_TTL", "BCRYPT_COST", "RESET_TOKEN_TTL", "RECOVER_EMAIL_ENABLED", "RATE_LIMIT_PER_MINUTE", "APP_ENV", "TRUST_PROXY_HEADERS"} {
		t.Setenv(k, "")
	}

	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 7*24*time.Hour, cfg.TokenTTL)
	assert.Equal(t, 10, cfg.BcryptCost)
	assert.Equal(t, time.Hour, cfg.ResetTokenTTL)
	assert.True(t, cfg.RecoverEmailEnabled)
	assert.Zero(t, cfg.RateLimitPerMinute)
	assert.False(t, cfg.TrustProxyHeaders)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("TOKEN_TTL", "2h")
	t.Setenv("BCRYPT_COST", "12")
	t.Setenv("RECOVER_EMAIL_ENABLED", "false")
	t.Setenv("RATE_LIMIT_PER_MINUTE", "30")
	t.Setenv("APP_ENV", "Production")
	t.Setenv("FRONTEND_URL", "https://tasks.example.com")
	t.Setenv("TRUST_PROXY_HEADERS", "true")

	cfg := Load()

	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, 2*time.Hour, cfg.TokenTTL)
	assert.Equal(t, 12, cfg.BcryptCost)
	assert.False(t, cfg.RecoverEmailEnabled)
	assert.EqualValues(t, 30, cfg.RateLimitPerMinute)
	assert.True(t, cfg.IsProduction())
	assert.True(t, cfg.TrustProxyHeaders)
	assert.Contains(t, cfg.AllowedOrigins(), "https://tasks.example.com")
}

func TestLoad_BadValuesFallBack(t *testing.T) {
	t.Setenv("TOKEN_TTL", "soon")
	t.Setenv("BCRYPT_COST", "ten")
	t.Setenv("MINIO_USE_SSL", "maybe")

	cfg := Load()

	assert.Equal(t, 7*24*time.Hour, cfg.TokenTTL)
	assert.Equal(t, 10, cfg.BcryptCost)
	assert.False(t, cfg.MinioUseSSL)
}

func TestValidate(t *testing.T) {
	valid := Config{JWTSecret: "s", PostgresDSN: "postgres://x", MongoURI: "mongodb://x", TokenTTL: time.Hour}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"missing secret", func(c *Config) { c.JWTSecret = "" }, "JWT_SECRET"},
		{"missing postgres", func(c *Config) { c.PostgresDSN = "" }, "POSTGRES_DSN"},
		{"missing mongo", func(c *Config) { c.MongoURI = "" }, "MONGO_URI"},
		{"zero ttl", func(c *Config) { c.TokenTTL = 0 }, "TOKEN_TTL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			err := c.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadEnvFile(t *testing.T) {
	require.NoError(t, LoadEnvFile(""))
	require.NoError(t, LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")))

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("TASKTRACKER_TEST_KEY=from-file\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("TASKTRACKER_TEST_KEY") })

	require.NoError(t, LoadEnvFile(path))
	assert.Equal(t, "from-file", os.Getenv("TASKTRACKER_TEST_KEY"))
}
