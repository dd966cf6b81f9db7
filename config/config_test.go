package config

import (
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("STREAM_BATCH_SIZE", "")
	t.Setenv("PROVIDER_TIMEOUT", "")

	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 5, cfg.StreamBatchSize)
	assert.Equal(t, 120*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, "babagpt.ai", cfg.WebsiteUser)
	assert.Equal(t, "chat.message.created", cfg.AMQPRoutingKey)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("STREAM_BATCH_SIZE", "8")
	t.Setenv("PROVIDER_TIMEOUT", "30s")
	t.Setenv("DEV_MODE", "true")
	t.Setenv("RATE_LIMIT_PER_MINUTE", "not-a-number")

	cfg := Load()

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 8, cfg.StreamBatchSize)
	assert.Equal(t, 30*time.Second, cfg.ProviderTimeout)
	assert.True(t, cfg.DevMode)
	assert.Equal(t, 60, cfg.RateLimitPerMinute)
}

func TestAllowedOriginList(t *testing.T) {
	cfg := &Config{AllowedOrigins: "http://localhost:3000, https://babagpt.ai ,,"}
	assert.Equal(t, []string{"http://localhost:3000", "https://babagpt.ai"}, cfg.AllowedOriginList())
}

func TestDSN(t *testing.T) {
	cfg := &Config{DBUser: "u", DBPassword: "p", DBHost: "db", DBPort: "3306", DBName: "chat"}

	parsed, err := mysql.ParseDSN(cfg.DSN())
	require.NoError(t, err)
	assert.Equal(t, "u", parsed.User)
	assert.Equal(t, "p", parsed.Passwd)
	assert.Equal(t, "db:3306", parsed.Addr)
	assert.Equal(t, "chat", parsed.DBName)
	assert.True(t, parsed.ParseTime)
	assert.True(t, parsed.MultiStatements)
}
