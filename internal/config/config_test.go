package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validLocal() Config {
	return Config{
		App:     AppConfig{Env: "local", Port: 8080},
		Backend: BackendConfig{URL: "http://localhost:54321", AnonKey: "anon"},
		DB:      DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "ledger"},
	}
}

func TestValidate_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	err := c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "APP_ENV is required")
	assert.Contains(t, err.Error(), "BACKEND_URL is required")
}

func TestValidate_ProductionRequiresSSLModeAndHTTPS(t *testing.T) {
	c := validLocal()
	c.App.Env = "production"
	err := c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_SSLMODE is required in production")
	assert.Contains(t, err.Error(), "BACKEND_URL must use https in production")
}

func TestValidate_LocalDefaults(t *testing.T) {
	c := validLocal()
	require.NoError(t, c.Validate())

	assert.Equal(t, "disable", c.DB.SSLMode)
	assert.Equal(t, 10*time.Second, c.Backend.IdentityTimeout)
	assert.Equal(t, time.Minute, c.RateLimit.SweepInterval)
	assert.False(t, c.RedisEnabled())
}

func TestValidate_RedisPortDefaults(t *testing.T) {
	c := validLocal()
	c.Redis.Host = "cache"
	require.NoError(t, c.Validate())

	assert.True(t, c.RedisEnabled())
	assert.Equal(t, "cache:6379", c.RedisAddr())
}

func TestValidate_RejectsBadTrustedProxy(t *testing.T) {
	c := validLocal()
	c.HTTP.TrustedProxies = []string{"10.0.0.0/8", "not-an-ip"}
	err := c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not-an-ip")
}

func TestLoad_ReadsEnvironment(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("APP_PORT", "3000")
	t.Setenv("BACKEND_URL", "https://abcd.supabase.co")
	t.Setenv("BACKEND_ANON_KEY", "anon")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_PORT", "5432")
	t.Setenv("DB_USER", "app")
	t.Setenv("DB_NAME", "ledger")
	t.Setenv("REDIS_HOST", "")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, 192.168.1.1")
	t.Setenv("IDENTITY_TIMEOUT", "3s")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, c.App.Port)
	assert.Equal(t, 3*time.Second, c.Backend.IdentityTimeout)
	assert.Equal(t, []string{"10.0.0.0/8", "192.168.1.1"}, c.HTTP.TrustedProxies)
}

func TestLoad_RejectsNonIntegerPort(t *testing.T) {
	t.Setenv("APP_PORT", "eighty")
	t.Setenv("DB_PORT", "5432")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "APP_PORT must be an integer")
}
